// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request validation errors
	CodeValidation Code = "VALIDATION_FAILED"

	// Permission errors
	CodeNotOwner     Code = "NOT_OWNER"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Asset lock errors
	CodeAssetLocked   Code = "ASSET_LOCKED"
	CodeAlreadyLocked Code = "ASSET_ALREADY_LOCKED"

	// Offer lifecycle errors
	CodeCooldownActive         Code = "COOLDOWN_ACTIVE"
	CodeOfferLimitExceeded     Code = "OFFER_LIMIT_EXCEEDED"
	CodeWrongState             Code = "WRONG_STATE"
	CodeOfferNoLongerAvailable Code = "OFFER_NO_LONGER_AVAILABLE"

	// Acceptance errors
	CodeSettlementFailed  Code = "SETTLEMENT_FAILED"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeBuyerAssetLimit   Code = "BUYER_ASSET_LIMIT"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeValidation:
		return codes.InvalidArgument

	// PermissionDenied - caller is not allowed to act on the resource
	case CodeNotOwner, CodeUnauthorized:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodeAssetLocked,
		CodeAlreadyLocked,
		CodeCooldownActive,
		CodeWrongState,
		CodeSettlementFailed,
		CodeInsufficientFunds,
		CodeBuyerAssetLimit:
		return codes.FailedPrecondition

	// ResourceExhausted - per-user quota reached
	case CodeOfferLimitExceeded:
		return codes.ResourceExhausted

	// Aborted - lost a concurrent race; do not retry the same resource
	case CodeOfferNoLongerAvailable:
		return codes.Aborted

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}
