// Package requestctx carries the authenticated caller and preferred locale
// of a trading request through its context.
package requestctx

import (
	"context"
	"strings"
)

type key int

const (
	userIDKey key = iota
	localeKey
)

func with(ctx context.Context, k key, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, k, strings.TrimSpace(value))
}

func get(ctx context.Context, k key) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(k).(string)
	return value
}

// WithUserID records the caller. Surrounding whitespace is dropped.
func WithUserID(ctx context.Context, userID string) context.Context {
	return with(ctx, userIDKey, userID)
}

// UserIDFromContext returns the caller, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	return get(ctx, userIDKey)
}

// WithLocale records the caller's locale tag, such as "pt-BR".
func WithLocale(ctx context.Context, locale string) context.Context {
	return with(ctx, localeKey, locale)
}

// LocaleFromContext returns the recorded locale tag, or "".
func LocaleFromContext(ctx context.Context) string {
	return get(ctx, localeKey)
}
