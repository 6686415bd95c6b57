package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithAuthAndFromContext(t *testing.T) {
	id := uuid.New()
	ac := AuthContext{
		UserID:    id,
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != id {
		t.Errorf("UserID = %s, want %s", got.UserID, id)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	id := uuid.New()
	ctx := WithAuth(context.Background(), AuthContext{UserID: id})
	if UserID(ctx) != id {
		t.Errorf("UserID = %s, want %s", UserID(ctx), id)
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != uuid.Nil {
		t.Error("expected uuid.Nil for missing context")
	}
}

func TestSessionID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{SessionID: 9})
	if SessionID(ctx) != 9 {
		t.Errorf("SessionID = %d, want 9", SessionID(ctx))
	}
}

func TestSessionIDMissing(t *testing.T) {
	if SessionID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}
