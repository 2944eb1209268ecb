package errors

import (
	stderrors "errors"

	"github.com/louisbranch/catmarket/internal/platform/errors/i18n"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// HandleError converts err to a gRPC status for client responses. Coded
// errors carry a user message rendered from the catalog for locale; anything
// else becomes a generic Internal status so storage details never leak.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && CodeOf(err) == CodeUnknown {
		return err
	}

	var appErr *Error
	if stderrors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		userMsg := catalog.Format(string(appErr.Code), appErr.Metadata)
		return appErr.ToGRPCStatus(catalog.Locale(), userMsg)
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}
