// Package settlement defines the payment collaborator used when an accepted
// offer is paid for.
//
// Implementations must be idempotent by Request.IdempotencyKey: settling the
// same key twice moves funds once and returns the first result.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds indicates the payer cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownSettlement indicates no settlement exists for a key.
	ErrUnknownSettlement = errors.New("unknown settlement")
	// ErrKeyReused indicates an idempotency key was reused with other terms.
	ErrKeyReused = errors.New("idempotency key reused with different terms")
	// ErrAlreadyRefunded indicates a settle call for a refunded key.
	ErrAlreadyRefunded = errors.New("settlement already refunded")
	// ErrInvalidRequest indicates a request rejected before any funds moved.
	ErrInvalidRequest = errors.New("invalid settlement request")
)

// IsDeclined reports whether a Settle failure is a definitive refusal, meaning
// no funds moved. Any other failure, such as a timeout or a 5xx response, may
// have been applied by the payment service and must be refunded.
//
// Implementations mark their own refusals by returning an error with a
// Declined() bool method.
func IsDeclined(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrKeyReused),
		errors.Is(err, ErrAlreadyRefunded),
		errors.Is(err, ErrInvalidRequest):
		return true
	}
	var refusal interface{ Declined() bool }
	return errors.As(err, &refusal) && refusal.Declined()
}

// Request moves Amount from PayerID to PayeeID.
type Request struct {
	IdempotencyKey string
	PayerID        string
	PayeeID        string
	Amount         decimal.Decimal
	Currency       string
}

// Result identifies a completed settlement.
type Result struct {
	Provider  string
	Reference string
	SettledAt time.Time
}

// Settler moves funds between users.
type Settler interface {
	// CanPay reports whether payerID can currently cover amount.
	CanPay(ctx context.Context, payerID string, amount decimal.Decimal, currency string) (bool, error)
	Settle(ctx context.Context, req Request) (Result, error)
	// Refund reverses the settlement recorded under idempotencyKey. Refunding
	// twice succeeds.
	Refund(ctx context.Context, idempotencyKey string) error
}

// Validate checks the request fields every implementation relies on.
func (r Request) Validate() error {
	switch {
	case r.IdempotencyKey == "":
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidRequest)
	case r.PayerID == "" || r.PayeeID == "":
		return fmt.Errorf("%w: payer and payee are required", ErrInvalidRequest)
	case r.PayerID == r.PayeeID:
		return fmt.Errorf("%w: payer and payee must differ", ErrInvalidRequest)
	case r.Amount.IsNegative():
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	case r.Amount.GreaterThan(domain.MaxPrice):
		return fmt.Errorf("%w: amount exceeds the largest settleable value", ErrInvalidRequest)
	case r.Currency == "":
		return fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	return nil
}
