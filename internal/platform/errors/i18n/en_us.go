package i18n

// Codes repeat the values in the parent errors package; errors_test checks
// that every code has an en-US message.
const (
	CodeValidation             = "VALIDATION_FAILED"
	CodeNotOwner               = "NOT_OWNER"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeAssetLocked            = "ASSET_LOCKED"
	CodeAlreadyLocked          = "ASSET_ALREADY_LOCKED"
	CodeCooldownActive         = "COOLDOWN_ACTIVE"
	CodeOfferLimitExceeded     = "OFFER_LIMIT_EXCEEDED"
	CodeWrongState             = "WRONG_STATE"
	CodeOfferNoLongerAvailable = "OFFER_NO_LONGER_AVAILABLE"
	CodeSettlementFailed       = "SETTLEMENT_FAILED"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeBuyerAssetLimit        = "BUYER_ASSET_LIMIT"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL"
)

var enUSMessages = map[Code]string{
	CodeValidation:             "The request is invalid: {{.Reason}}",
	CodeNotOwner:               "You do not own this cat.",
	CodeUnauthorized:           "You are not allowed to change this offer.",
	CodeAssetLocked:            "This cat already has an active offer.",
	CodeAlreadyLocked:          "This cat is locked by another offer.",
	CodeCooldownActive:         "This cat was traded recently and can be listed again after {{.Until}}.",
	CodeOfferLimitExceeded:     "You already have {{.Limit}} active offers.",
	CodeWrongState:             "This offer is {{.Status}} and cannot be changed.",
	CodeOfferNoLongerAvailable: "This offer is no longer available.",
	CodeSettlementFailed:       "The payment could not be completed. The offer is still open.",
	CodeInsufficientFunds:      "You do not have enough {{.Currency}} to accept this offer.",
	CodeBuyerAssetLimit:        "You already own the maximum number of cats.",
	CodeNotFound:               "The requested {{.Resource}} was not found.",
	CodeInternal:               "Something went wrong. Please try again.",
}
