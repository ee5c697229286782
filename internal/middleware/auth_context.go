package middleware

import (
	"context"

	"github.com/technosupport/ts-auth/internal/authz"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity retrieves the validated token result placed by TokenAuth.
func Identity(ctx context.Context) (*authz.TokenResult, bool) {
	val, ok := ctx.Value(identityContextKey).(*authz.TokenResult)
	return val, ok
}

// WithIdentity attaches the validated token result to the context.
func WithIdentity(ctx context.Context, res *authz.TokenResult) context.Context {
	return context.WithValue(ctx, identityContextKey, res)
}

// RawToken retrieves the opaque token string that authenticated the
// request. Handlers that revoke or inspect the presented token need it.
const rawTokenContextKey contextKey = "raw_token"

func TokenFromContext(ctx context.Context) string {
	val, _ := ctx.Value(rawTokenContextKey).(string)
	return val
}

func withRawToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, rawTokenContextKey, token)
}
