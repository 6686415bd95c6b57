package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/model"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// WithTx returns a UserStore bound to tx.
func (s *UserStore) WithTx(tx *sql.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash,
		&u.XP, &u.Level, &u.Gold,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, name, password_hash, xp, level, gold, created_at, updated_at`

// Create inserts a user at level 1 with no XP and no gold. A taken email
// returns ErrDuplicate.
func (s *UserStore) Create(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash) VALUES (?, ?, ?, ?)`,
		id, normalizeEmail(email), name, passwordHash,
	)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, normalizeEmail(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateProgress writes a new (xp, level) only if the row still holds from.
// It returns ErrStale when another writer got there first.
func (s *UserStore) UpdateProgress(ctx context.Context, id uuid.UUID, from, to model.Progress) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET xp = ?, level = ?, updated_at = ? WHERE id = ? AND xp = ? AND level = ?`,
		to.XP, to.Level, time.Now().UTC(), id, from.XP, from.Level,
	)
	if err != nil {
		return nil, fmt.Errorf("update user progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrStale
	}
	return s.GetByID(ctx, id)
}

// Leaderboard returns up to limit users ordered by level, then XP.
func (s *UserStore) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, level, xp FROM users ORDER BY level DESC, xp DESC, created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Level, &e.XP); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
