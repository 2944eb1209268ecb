// Package credits settles trades in the in-house credit currency using wallet
// balances stored in SQLite.
//
// Debits are conditional updates on the balance, and every settlement is
// recorded under its idempotency key in the same transaction, so retries and
// concurrent settles never double-spend.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/catmarket/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/catmarket/internal/services/trading/domain"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement/credits/migrations"
	"github.com/shopspring/decimal"
)

// Provider names this settler in payment results.
const Provider = "credits"

const (
	statusSettled  = "settled"
	statusRefunded = "refunded"
)

// Settler implements settlement.Settler over wallet rows.
type Settler struct {
	db    *sql.DB
	clock func() time.Time
}

// Option customizes a Settler.
type Option func(*Settler)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Settler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New applies the wallet migrations to db and returns a settler. db is
// usually the trading store's primary handle.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Settler, error) {
	if db == nil {
		return nil, fmt.Errorf("credits db is required")
	}
	if _, err := sqlitemigrate.ApplyMigrations(ctx, db, migrations.FS, ""); err != nil {
		return nil, fmt.Errorf("run credits migrations: %w", err)
	}
	s := &Settler{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Deposit adds amount to ownerID's wallet, creating it when needed.
func (s *Settler) Deposit(ctx context.Context, ownerID, currency string, amount decimal.Decimal) error {
	ownerID = strings.TrimSpace(ownerID)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if ownerID == "" || currency == "" {
		return fmt.Errorf("owner id and currency are required")
	}
	if amount.IsNegative() {
		return fmt.Errorf("deposit must not be negative")
	}
	if amount.GreaterThan(domain.MaxPrice) {
		return fmt.Errorf("deposit exceeds the largest wallet balance")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO wallets (owner_id, currency, balance_minor, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(owner_id, currency) DO UPDATE SET
	balance_minor = wallets.balance_minor + excluded.balance_minor,
	updated_at = excluded.updated_at`,
		ownerID, currency, domain.ToMinorUnits(amount), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Balance returns ownerID's balance; a missing wallet is zero.
func (s *Settler) Balance(ctx context.Context, ownerID, currency string) (decimal.Decimal, error) {
	var minor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance_minor FROM wallets WHERE owner_id = ? AND currency = ?`,
		strings.TrimSpace(ownerID), strings.ToUpper(strings.TrimSpace(currency)),
	).Scan(&minor)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read balance: %w", err)
	}
	return domain.FromMinorUnits(minor), nil
}

// CanPay reports whether payerID's balance covers amount.
func (s *Settler) CanPay(ctx context.Context, payerID string, amount decimal.Decimal, currency string) (bool, error) {
	if !amount.IsPositive() {
		return true, nil
	}
	balance, err := s.Balance(ctx, payerID, currency)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(amount), nil
}

// Settle moves req.Amount from payer to payee once per idempotency key.
func (s *Settler) Settle(ctx context.Context, req settlement.Request) (settlement.Result, error) {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := req.Validate(); err != nil {
		return settlement.Result{}, err
	}
	amount := domain.ToMinorUnits(req.Amount)
	now := s.now()

	var result settlement.Result
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := getSettlement(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if found {
			if existing.status == statusRefunded {
				return settlement.ErrAlreadyRefunded
			}
			if existing.payerID != req.PayerID || existing.payeeID != req.PayeeID ||
				existing.amountMinor != amount || existing.currency != req.Currency {
				return settlement.ErrKeyReused
			}
			result = existing.result()
			return nil
		}

		if amount > 0 {
			if err := debit(ctx, tx, req.PayerID, req.Currency, amount, now); err != nil {
				return err
			}
			if err := credit(ctx, tx, req.PayeeID, req.Currency, amount, now); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settlements (idempotency_key, payer_id, payee_id, amount_minor, currency, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			req.IdempotencyKey, req.PayerID, req.PayeeID, amount, req.Currency, statusSettled,
			now.UnixMilli(), now.UnixMilli(),
		); err != nil {
			return fmt.Errorf("record settlement: %w", err)
		}
		result = settlement.Result{
			Provider:  Provider,
			Reference: req.IdempotencyKey,
			SettledAt: time.UnixMilli(now.UnixMilli()).UTC(),
		}
		return nil
	})
	if err != nil {
		return settlement.Result{}, err
	}
	return result, nil
}

// Refund returns the funds of the settlement under idempotencyKey to the
// payer. It fails when the payee no longer holds them.
func (s *Settler) Refund(ctx context.Context, idempotencyKey string) error {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, found, err := getSettlement(ctx, tx, idempotencyKey)
		if err != nil {
			return err
		}
		if !found {
			return settlement.ErrUnknownSettlement
		}
		if existing.status == statusRefunded {
			return nil
		}
		if existing.amountMinor > 0 {
			if err := debit(ctx, tx, existing.payeeID, existing.currency, existing.amountMinor, now); err != nil {
				return fmt.Errorf("reclaim from payee: %w", err)
			}
			if err := credit(ctx, tx, existing.payerID, existing.currency, existing.amountMinor, now); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE settlements SET status = ?, updated_at = ? WHERE idempotency_key = ? AND status = ?`,
			statusRefunded, now.UnixMilli(), idempotencyKey, statusSettled,
		); err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}
		return nil
	})
}

type settlementRow struct {
	key         string
	payerID     string
	payeeID     string
	amountMinor int64
	currency    string
	status      string
	createdAt   int64
}

func (r settlementRow) result() settlement.Result {
	return settlement.Result{
		Provider:  Provider,
		Reference: r.key,
		SettledAt: time.UnixMilli(r.createdAt).UTC(),
	}
}

func getSettlement(ctx context.Context, tx *sql.Tx, key string) (settlementRow, bool, error) {
	var row settlementRow
	err := tx.QueryRowContext(ctx, `
SELECT idempotency_key, payer_id, payee_id, amount_minor, currency, status, created_at
  FROM settlements WHERE idempotency_key = ?`, key,
	).Scan(&row.key, &row.payerID, &row.payeeID, &row.amountMinor, &row.currency, &row.status, &row.createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settlementRow{}, false, nil
	}
	if err != nil {
		return settlementRow{}, false, fmt.Errorf("read settlement: %w", err)
	}
	return row, true, nil
}

func debit(ctx context.Context, tx *sql.Tx, ownerID, currency string, amount int64, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
UPDATE wallets SET balance_minor = balance_minor - ?, updated_at = ?
 WHERE owner_id = ? AND currency = ? AND balance_minor >= ?`,
		amount, at.UnixMilli(), ownerID, currency, amount,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit wallet rows: %w", err)
	}
	if rows == 0 {
		return settlement.ErrInsufficientFunds
	}
	return nil
}

func credit(ctx context.Context, tx *sql.Tx, ownerID, currency string, amount int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO wallets (owner_id, currency, balance_minor, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(owner_id, currency) DO UPDATE SET
	balance_minor = wallets.balance_minor + excluded.balance_minor,
	updated_at = excluded.updated_at`,
		ownerID, currency, amount, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

func (s *Settler) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback settlement: %v", err, rollbackErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

func (s *Settler) now() time.Time {
	return s.clock().UTC()
}
