package task

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/store"
)

// UserRepo is the slice of user storage the task service needs.
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, from, to model.Progress) (*model.User, error)
}

// TaskRepo is the task storage the service needs. GetByID returns (nil, nil)
// for a missing task.
type TaskRepo interface {
	Create(ctx context.Context, in model.NewTask) (*model.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	ListByUser(ctx context.Context, userID uuid.UUID, completed *bool) ([]model.Task, error)
	Update(ctx context.Context, id uuid.UUID, f model.TaskFields) (*model.Task, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, c model.Completion) (*model.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repos are the repositories bound to one transaction.
type Repos struct {
	Users UserRepo
	Tasks TaskRepo
}

// Transactor runs fn with repositories bound to a single transaction. The
// transaction commits only if fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(r Repos) error) error
}

// SQLTransactor runs transactions against the SQLite stores.
type SQLTransactor struct {
	db    *sql.DB
	users *store.UserStore
	tasks *store.TaskStore
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{
		db:    db,
		users: store.NewUserStore(db),
		tasks: store.NewTaskStore(db),
	}
}

func (t *SQLTransactor) InTx(ctx context.Context, fn func(r Repos) error) error {
	return store.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		return fn(Repos{
			Users: t.users.WithTx(tx),
			Tasks: t.tasks.WithTx(tx),
		})
	})
}
