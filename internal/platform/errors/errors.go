// Package errors defines coded trading failures and their gRPC rendering.
//
// A coded error keeps two messages apart: Message is written for operators
// and logs, while the client-facing text is rendered from the i18n catalog
// using Code and Metadata.
package errors

import (
	stderrors "errors"
	"maps"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain scopes ErrorInfo reasons on the wire.
const Domain = "catmarket.trading"

// Error is a failure with a stable machine code.
type Error struct {
	Code    Code
	Message string
	// Metadata fills placeholders in the catalog message and is attached to
	// ErrorInfo details.
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so callers can compare
// against a bare New(code, "").
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

func build(code Code, message string, metadata map[string]string, cause error) *Error {
	return &Error{Code: code, Message: message, Metadata: maps.Clone(metadata), Cause: cause}
}

// New returns a coded error without metadata.
func New(code Code, message string) *Error {
	return build(code, message, nil, nil)
}

// WithMetadata returns a coded error whose catalog message needs values.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return build(code, message, metadata, nil)
}

// Wrap attaches a code to an underlying failure.
func Wrap(code Code, message string, cause error) *Error {
	return build(code, message, nil, cause)
}

// WrapWithMetadata is Wrap plus catalog values.
func WrapWithMetadata(code Code, message string, metadata map[string]string, cause error) *Error {
	return build(code, message, metadata, cause)
}

// CodeOf finds the first coded error in err's chain. Uncoded errors report
// CodeUnknown.
func CodeOf(err error) Code {
	var coded *Error
	if !stderrors.As(err, &coded) {
		return CodeUnknown
	}
	return coded.Code
}

// ToGRPCStatus renders e as a status error. The status text keeps the
// operator message; userMessage travels as a LocalizedMessage detail next to
// an ErrorInfo carrying the code and metadata.
func (e *Error) ToGRPCStatus(locale string, userMessage string) error {
	base := status.New(e.Code.GRPCCode(), e.Error())
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata}
	localized := &errdetails.LocalizedMessage{Locale: locale, Message: userMessage}

	detailed, err := base.WithDetails(info, localized)
	if err != nil {
		return base.Err()
	}
	return detailed.Err()
}
