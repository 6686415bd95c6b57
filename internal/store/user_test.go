package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/database"
	"github.com/dukerupert/questlog/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, us *UserStore, email string) *model.User {
	t.Helper()
	u, err := us.Create(context.Background(), email, "Test User", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserCreate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	u, err := us.Create(ctx, "  Alice@Example.com ", "Alice", "secret-hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == uuid.Nil {
		t.Error("expected non-nil id")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.Name != "Alice" {
		t.Errorf("name = %q, want %q", u.Name, "Alice")
	}
	if u.PasswordHash != "secret-hash" {
		t.Errorf("password_hash = %q, want %q", u.PasswordHash, "secret-hash")
	}
	if u.XP != 0 || u.Level != 1 || u.Gold != 0 {
		t.Errorf("xp/level/gold = %d/%d/%d, want 0/1/0", u.XP, u.Level, u.Gold)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	createTestUser(t, us, "alice@example.com")
	if _, err := us.Create(ctx, "ALICE@example.com", "Other", "hash"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestUserGetByEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	created := createTestUser(t, us, "bob@example.com")

	got, err := us.GetByEmail(ctx, "BOB@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.ID != created.ID {
		t.Errorf("id = %s, want %s", got.ID, created.ID)
	}

	missing, err := us.GetByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("get missing by email: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	got, err := us.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got != nil {
		t.Error("expected nil for non-existent user")
	}
}

func TestUserUpdateProgress(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	u := createTestUser(t, us, "carol@example.com")

	updated, err := us.UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: 25, Level: 2})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if updated.XP != 25 || updated.Level != 2 {
		t.Errorf("progress = %d/%d, want 25/2", updated.XP, updated.Level)
	}
	if updated.Gold != 0 {
		t.Errorf("gold = %d, want 0", updated.Gold)
	}
}

func TestUserUpdateProgressStale(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	u := createTestUser(t, us, "dave@example.com")
	if _, err := us.UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: 10, Level: 1}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	// Second writer still holds the original snapshot.
	_, err := us.UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: 30, Level: 1})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}

	got, _ := us.GetByID(ctx, u.ID)
	if got.XP != 10 {
		t.Errorf("xp = %d, want 10 (stale write must not apply)", got.XP)
	}
}

func TestUserLeaderboard(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	a := createTestUser(t, us, "a@example.com")
	b := createTestUser(t, us, "b@example.com")
	c := createTestUser(t, us, "c@example.com")

	us.UpdateProgress(ctx, a.ID, a.Progress(), model.Progress{XP: 10, Level: 2})
	us.UpdateProgress(ctx, b.ID, b.Progress(), model.Progress{XP: 90, Level: 2})
	us.UpdateProgress(ctx, c.ID, c.Progress(), model.Progress{XP: 99, Level: 1})

	entries, err := us.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []uuid.UUID{b.ID, a.ID, c.ID}
	for i, want := range wantOrder {
		if entries[i].UserID != want {
			t.Errorf("entries[%d].UserID = %s, want %s", i, entries[i].UserID, want)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("entries[%d].Rank = %d, want %d", i, entries[i].Rank, i+1)
		}
	}

	top, err := us.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("leaderboard limit: %v", err)
	}
	if len(top) != 1 {
		t.Errorf("expected 1 entry with limit, got %d", len(top))
	}
}

func TestWithTxRollback(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()

	u := createTestUser(t, us, "erin@example.com")

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := us.WithTx(tx).UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: 50, Level: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, _ := us.GetByID(ctx, u.ID)
	if got.XP != 0 {
		t.Errorf("xp = %d, want 0 after rollback", got.XP)
	}
}

func TestWithTxCommit(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()

	u := createTestUser(t, us, "frank@example.com")

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := us.WithTx(tx).UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: 50, Level: 1})
		return err
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}

	got, _ := us.GetByID(ctx, u.ID)
	if got.XP != 50 {
		t.Errorf("xp = %d, want 50 after commit", got.XP)
	}
}
