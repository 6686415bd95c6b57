package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/model"
)

type TaskStore struct {
	db DBTX
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// WithTx returns a TaskStore bound to tx.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{db: tx}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var description sql.NullString
	var difficulty sql.NullString
	var completed int
	var completedAt sql.NullTime
	var gainedXP sql.NullInt64
	var timeSpent sql.NullInt64

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Title, &description, &difficulty,
		&completed, &completedAt, &gainedXP, &timeSpent,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	if description.Valid {
		t.Description = &description.String
	}
	if difficulty.Valid {
		d := model.Difficulty(difficulty.String)
		t.Difficulty = &d
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if gainedXP.Valid {
		v := int(gainedXP.Int64)
		t.GainedXP = &v
	}
	if timeSpent.Valid {
		v := int(timeSpent.Int64)
		t.TimeSpent = &v
	}
	return &t, nil
}

const taskCols = `id, user_id, title, description, difficulty, completed, completed_at, gained_xp, time_spent, created_at, updated_at`

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDifficulty(d *model.Difficulty) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*d), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func (s *TaskStore) Create(ctx context.Context, in model.NewTask) (*model.Task, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, difficulty) VALUES (?, ?, ?, ?, ?)`,
		id, in.UserID, in.Title, nullString(in.Description), nullDifficulty(in.Difficulty),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListByUser returns the user's tasks, newest first. A nil completed returns all.
func (s *TaskStore) ListByUser(ctx context.Context, userID uuid.UUID, completed *bool) ([]model.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if completed != nil {
		query += ` AND completed = ?`
		args = append(args, boolToInt(*completed))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update applies the non-nil fields to an incomplete task.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, f model.TaskFields) (*model.Task, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET
			title = COALESCE(?, title),
			description = COALESCE(?, description),
			difficulty = COALESCE(?, difficulty),
			updated_at = ?
		WHERE id = ? AND completed = 0`,
		nullString(f.Title), nullString(f.Description), nullDifficulty(f.Difficulty), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrAlreadyCompleted
	}
	return s.GetByID(ctx, id)
}

// MarkCompleted records a completion. It returns ErrAlreadyCompleted if the
// task was completed by someone else in the meantime.
func (s *TaskStore) MarkCompleted(ctx context.Context, id uuid.UUID, c model.Completion) (*model.Task, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = 1, completed_at = ?, gained_xp = ?, time_spent = ?, updated_at = ?
		WHERE id = ? AND completed = 0`,
		c.CompletedAt.UTC(), c.GainedXP, nullInt(c.TimeSpent), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("mark task completed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrAlreadyCompleted
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
