// Package grpcauthctx carries caller identity across gRPC boundaries.
//
// Authentication happens upstream; services trust the user id header and
// only check that it is present.
package grpcauthctx

import (
	"context"
	"strings"

	"github.com/louisbranch/catmarket/internal/platform/requestctx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const (
	// UserIDHeader is the metadata key holding the acting user id.
	UserIDHeader = "x-catmarket-user-id"
	// LocaleHeader is the metadata key holding the caller's preferred locale.
	LocaleHeader = "x-catmarket-locale"
)

// WithUserID returns a context with user-id gRPC metadata when userID is non-empty.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, UserIDHeader, userID)
}

// UserIDFromIncoming reads the first non-empty user id from incoming metadata.
func UserIDFromIncoming(ctx context.Context) string {
	return firstIncoming(ctx, UserIDHeader)
}

// LocaleFromIncoming reads the caller locale from incoming metadata.
func LocaleFromIncoming(ctx context.Context) string {
	return firstIncoming(ctx, LocaleHeader)
}

func firstIncoming(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(key) {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// UnaryServerInterceptor copies the incoming user id and locale into the
// request context so handlers can read them through requestctx.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if userID := UserIDFromIncoming(ctx); userID != "" {
			ctx = requestctx.WithUserID(ctx, userID)
		}
		if locale := LocaleFromIncoming(ctx); locale != "" {
			ctx = requestctx.WithLocale(ctx, locale)
		}
		return handler(ctx, req)
	}
}

// UserIDUnaryClientInterceptor appends a fixed user id to every outgoing call.
// The worker uses it to identify itself to the trading service.
func UserIDUnaryClientInterceptor(userID string) grpc.UnaryClientInterceptor {
	userID = strings.TrimSpace(userID)
	return func(
		ctx context.Context,
		method string,
		req any,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if UserIDFromOutgoing(ctx) == "" {
			ctx = WithUserID(ctx, userID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UserIDFromOutgoing returns the user id already attached to outgoing metadata.
func UserIDFromOutgoing(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(UserIDHeader)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
