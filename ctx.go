package signin

import (
	"context"
)

var userCtxKey = &contextKey{"user"}
var tokenCtxKey = &contextKey{"token"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithTokenContext sets the resolved AuthToken in the given context
func WithTokenContext(r context.Context, token *AuthToken) context.Context {
	return context.WithValue(r, tokenCtxKey, token)
}

// TokenFromContext finds the auth token from the context.
func TokenFromContext(ctx context.Context) (*AuthToken, bool) {
	raw, ok := ctx.Value(tokenCtxKey).(*AuthToken)
	return raw, ok
}
