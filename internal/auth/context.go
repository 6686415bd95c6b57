package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

type AuthContext struct {
	UserID    uuid.UUID
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the authenticated user's id, or uuid.Nil if none.
func UserID(ctx context.Context) uuid.UUID {
	ac, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return ac.UserID
}

func SessionID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.SessionID
}
