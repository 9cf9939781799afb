package auth

import (
	"context"
	"errors"
)

type ctxKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

func WithIdentity(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{UserID: userID, Role: role})
}

// IdentityFrom returns the caller stored by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

func UserID(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok {
		return id.UserID, nil
	}
	return "", errors.New("user_id not in context")
}

func Role(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.Role != "" {
		return id.Role, nil
	}
	return "", errors.New("role not in context")
}
