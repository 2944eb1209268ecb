package domain

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/catmarket/internal/platform/errors"
)

// Sentinels for errors.Is matching. Matching is by code, so any error built
// by the constructors below matches the sentinel with the same code.
var (
	ErrValidation             = apperrors.New(apperrors.CodeValidation, "validation failed")
	ErrNotOwner               = apperrors.New(apperrors.CodeNotOwner, "caller does not own asset")
	ErrUnauthorized           = apperrors.New(apperrors.CodeUnauthorized, "caller is not allowed")
	ErrAssetLocked            = apperrors.New(apperrors.CodeAssetLocked, "asset is locked")
	ErrAlreadyLocked          = apperrors.New(apperrors.CodeAlreadyLocked, "asset is locked by another offer")
	ErrCooldownActive         = apperrors.New(apperrors.CodeCooldownActive, "asset is in cooldown")
	ErrOfferLimitExceeded     = apperrors.New(apperrors.CodeOfferLimitExceeded, "active offer limit reached")
	ErrNotFound               = apperrors.New(apperrors.CodeNotFound, "not found")
	ErrWrongState             = apperrors.New(apperrors.CodeWrongState, "offer is in the wrong state")
	ErrOfferNoLongerAvailable = apperrors.New(apperrors.CodeOfferNoLongerAvailable, "offer is no longer available")
	ErrSettlementFailed       = apperrors.New(apperrors.CodeSettlementFailed, "settlement failed")
	ErrInsufficientFunds      = apperrors.New(apperrors.CodeInsufficientFunds, "insufficient funds")
	ErrBuyerAssetLimit        = apperrors.New(apperrors.CodeBuyerAssetLimit, "buyer asset limit reached")
	ErrInternal               = apperrors.New(apperrors.CodeInternal, "internal error")
)

// ValidationError reports invalid input. The reason is shown to callers.
func ValidationError(format string, args ...any) error {
	reason := fmt.Sprintf(format, args...)
	return apperrors.WithMetadata(apperrors.CodeValidation, "validation failed: "+reason, map[string]string{"Reason": reason})
}

// NotOwnerError reports that userID does not own assetID.
func NotOwnerError(assetID, userID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotOwner,
		fmt.Sprintf("user %s does not own asset %s", userID, assetID),
		map[string]string{"AssetID": assetID})
}

// UnauthorizedError reports that the caller may not act on the resource.
func UnauthorizedError(format string, args ...any) error {
	return apperrors.New(apperrors.CodeUnauthorized, fmt.Sprintf(format, args...))
}

// AssetLockedError reports that the asset already has an active offer.
func AssetLockedError(assetID string) error {
	return apperrors.WithMetadata(apperrors.CodeAssetLocked,
		fmt.Sprintf("asset %s is locked", assetID),
		map[string]string{"AssetID": assetID})
}

// AlreadyLockedError reports a lock held by a different offer.
func AlreadyLockedError(assetID, holderOfferID string) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyLocked,
		fmt.Sprintf("asset %s is locked by offer %s", assetID, holderOfferID),
		map[string]string{"AssetID": assetID, "OfferID": holderOfferID})
}

// CooldownActiveError reports that the asset cannot be listed before until.
func CooldownActiveError(assetID string, until time.Time) error {
	return apperrors.WithMetadata(apperrors.CodeCooldownActive,
		fmt.Sprintf("asset %s is in cooldown until %s", assetID, until.UTC().Format(time.RFC3339)),
		map[string]string{"AssetID": assetID, "Until": until.UTC().Format(time.RFC3339)})
}

// OfferLimitExceededError reports that the seller reached the active offer limit.
func OfferLimitExceededError(sellerID string, limit int) error {
	return apperrors.WithMetadata(apperrors.CodeOfferLimitExceeded,
		fmt.Sprintf("seller %s has %d active offers", sellerID, limit),
		map[string]string{"Limit": strconv.Itoa(limit)})
}

// NotFoundError reports a missing resource such as "offer" or "asset".
func NotFoundError(resource, id string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("%s %s not found", resource, id),
		map[string]string{"Resource": resource, "ID": id})
}

// WrongStateError reports a state precondition failure for an offer.
func WrongStateError(offerID string, status OfferStatus) error {
	return apperrors.WithMetadata(apperrors.CodeWrongState,
		fmt.Sprintf("offer %s is %s", offerID, status),
		map[string]string{"OfferID": offerID, "Status": string(status)})
}

// OfferNoLongerAvailableError is returned to callers that lost the accept race.
func OfferNoLongerAvailableError(offerID string) error {
	return apperrors.WithMetadata(apperrors.CodeOfferNoLongerAvailable,
		fmt.Sprintf("offer %s is no longer available", offerID),
		map[string]string{"OfferID": offerID})
}

// SettlementFailedError wraps a settlement collaborator failure.
func SettlementFailedError(offerID string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeSettlementFailed,
		fmt.Sprintf("settlement for offer %s failed", offerID),
		map[string]string{"OfferID": offerID}, cause)
}

// InsufficientFundsError reports that the payer cannot cover the amount.
func InsufficientFundsError(payerID, currency string) error {
	return apperrors.WithMetadata(apperrors.CodeInsufficientFunds,
		fmt.Sprintf("user %s cannot pay in %s", payerID, currency),
		map[string]string{"Currency": currency})
}

// BuyerAssetLimitError reports that the buyer owns the maximum number of assets.
func BuyerAssetLimitError(buyerID string, limit int) error {
	return apperrors.WithMetadata(apperrors.CodeBuyerAssetLimit,
		fmt.Sprintf("buyer %s owns %d assets", buyerID, limit),
		map[string]string{"Limit": strconv.Itoa(limit)})
}

// InternalError wraps an infrastructure failure.
func InternalError(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeInternal, message, cause)
}

// IsCode reports whether err carries code.
func IsCode(err error, code apperrors.Code) bool {
	return err != nil && apperrors.CodeOf(err) == code
}

// EnsureCoded returns err unchanged when it carries a code and wraps it as
// internal otherwise, for example a failed commit.
func EnsureCoded(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return InternalError(message, err)
}
