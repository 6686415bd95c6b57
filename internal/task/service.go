// Package task manages the task lifecycle and applies progression changes
// when tasks are completed or deleted.
package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/model"
	"github.com/dukerupert/questlog/internal/progression"
	"github.com/dukerupert/questlog/internal/store"
)

const maxTitleLength = 200

// CompleteResult reports the effect of completing a task.
type CompleteResult struct {
	Task        *model.Task `json:"task"`
	XPGained    int         `json:"xp_gained"`
	NewXP       int         `json:"new_xp"`
	NewLevel    int         `json:"new_level"`
	LevelBefore int         `json:"level_before"`
	LevelUp     bool        `json:"level_up"`
}

// DeleteResult confirms a deletion and reports any XP taken back. The
// progress fields are set only when a completed task was refunded.
type DeleteResult struct {
	Message     string `json:"message"`
	RefundedXP  int    `json:"refunded_xp"`
	NewXP       *int   `json:"new_xp,omitempty"`
	NewLevel    *int   `json:"new_level,omitempty"`
	LevelBefore int    `json:"level_before,omitempty"`
	LevelDown   bool   `json:"level_down"`
}

type Service struct {
	tx     Transactor
	policy progression.Policy
	logger *slog.Logger
	now    func() time.Time
}

func NewService(tx Transactor, policy progression.Policy, logger *slog.Logger) *Service {
	return &Service{
		tx:     tx,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the progression policy the service applies.
func (s *Service) Policy() progression.Policy {
	return s.policy
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperr.Validation("title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

func validateDifficulty(d *model.Difficulty) error {
	if d != nil && !d.Valid() {
		return apperr.Validation("difficulty must be one of EASY, MEDIUM, HARD, EPIC")
	}
	return nil
}

// ownedTask loads a task and checks that userID owns it.
func ownedTask(ctx context.Context, r Repos, userID, taskID uuid.UUID) (*model.Task, error) {
	t, err := r.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("task not found")
	}
	if t.UserID != userID {
		return nil, apperr.Authorization("task belongs to another user")
	}
	return t, nil
}

func loadUser(ctx context.Context, r Repos, userID uuid.UUID) (*model.User, error) {
	u, err := r.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// conflictErr turns guard misses from the store into conflicts.
func conflictErr(err error) error {
	switch {
	case errors.Is(err, store.ErrAlreadyCompleted):
		return apperr.Conflict("task already completed")
	case errors.Is(err, store.ErrStale):
		return apperr.Conflict("user progress changed concurrently")
	}
	return err
}

func (s *Service) CreateTask(ctx context.Context, userID uuid.UUID, title string, description *string, difficulty *model.Difficulty) (*model.Task, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	if err := validateDifficulty(difficulty); err != nil {
		return nil, err
	}

	var created *model.Task
	err = s.tx.InTx(ctx, func(r Repos) error {
		if _, err := loadUser(ctx, r, userID); err != nil {
			return err
		}
		t, err := r.Tasks.Create(ctx, model.NewTask{
			UserID:      userID,
			Title:       title,
			Description: description,
			Difficulty:  difficulty,
		})
		if err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) GetTask(ctx context.Context, userID, taskID uuid.UUID) (*model.Task, error) {
	var found *model.Task
	err := s.tx.InTx(ctx, func(r Repos) error {
		t, err := ownedTask(ctx, r, userID, taskID)
		if err != nil {
			return err
		}
		found = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListTasks returns the user's tasks, newest first. A nil completed returns
// every task.
func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, completed *bool) ([]model.Task, error) {
	var tasks []model.Task
	err := s.tx.InTx(ctx, func(r Repos) error {
		list, err := r.Tasks.ListByUser(ctx, userID, completed)
		if err != nil {
			return err
		}
		tasks = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// CompleteTask marks a task completed and credits its reward to the owner in
// one transaction.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID uuid.UUID, timeSpent *int) (*CompleteResult, error) {
	if timeSpent != nil && *timeSpent < 0 {
		return nil, apperr.Validation("time_spent must be >= 0")
	}

	var res CompleteResult
	err := s.tx.InTx(ctx, func(r Repos) error {
		t, err := ownedTask(ctx, r, userID, taskID)
		if err != nil {
			return err
		}
		if t.Completed {
			return apperr.Conflict("task already completed")
		}
		u, err := loadUser(ctx, r, userID)
		if err != nil {
			return err
		}

		var difficulty model.Difficulty
		if t.Difficulty != nil {
			difficulty = *t.Difficulty
		}
		gain, err := s.policy.ApplyGain(u.XP, u.Level, difficulty)
		if err != nil {
			s.logger.Error("apply gain", "user_id", userID, "task_id", taskID, "xp", u.XP, "level", u.Level, "error", err)
			return err
		}

		done, err := r.Tasks.MarkCompleted(ctx, t.ID, model.Completion{
			CompletedAt: s.now(),
			GainedXP:    gain.Gained,
			TimeSpent:   timeSpent,
		})
		if err != nil {
			return conflictErr(err)
		}
		if _, err := r.Users.UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: gain.XP, Level: gain.Level}); err != nil {
			return conflictErr(err)
		}

		res = CompleteResult{
			Task:        done,
			XPGained:    gain.Gained,
			NewXP:       gain.XP,
			NewLevel:    gain.Level,
			LevelBefore: u.Level,
			LevelUp:     gain.LevelUp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.LevelUp {
		s.logger.Info("level up", "user_id", userID, "from", res.LevelBefore, "to", res.NewLevel)
	}
	return &res, nil
}

// DeleteTask removes a task. Deleting a completed task takes back the XP it
// granted, which may drop the owner's level.
func (s *Service) DeleteTask(ctx context.Context, userID, taskID uuid.UUID) (*DeleteResult, error) {
	var res DeleteResult
	err := s.tx.InTx(ctx, func(r Repos) error {
		t, err := ownedTask(ctx, r, userID, taskID)
		if err != nil {
			return err
		}
		res = DeleteResult{Message: "task deleted"}

		if t.Completed {
			u, err := loadUser(ctx, r, userID)
			if err != nil {
				return err
			}
			amount := 0
			if t.GainedXP != nil {
				amount = *t.GainedXP
			}
			refund, err := s.policy.ApplyRefund(u.XP, u.Level, amount)
			if err != nil {
				s.logger.Error("apply refund", "user_id", userID, "task_id", taskID, "xp", u.XP, "level", u.Level, "amount", amount, "error", err)
				return err
			}
			if _, err := r.Users.UpdateProgress(ctx, u.ID, u.Progress(), model.Progress{XP: refund.XP, Level: refund.Level}); err != nil {
				return conflictErr(err)
			}
			res.RefundedXP = refund.Restored
			res.NewXP = &refund.XP
			res.NewLevel = &refund.Level
			res.LevelBefore = u.Level
			res.LevelDown = refund.LevelDown
		}

		return r.Tasks.Delete(ctx, t.ID)
	})
	if err != nil {
		return nil, err
	}

	if res.LevelDown {
		s.logger.Info("level down", "user_id", userID, "from", res.LevelBefore, "to", *res.NewLevel)
	}
	return &res, nil
}

// UpdateTask edits the non-nil fields of an incomplete task. Completed tasks
// are frozen so their difficulty keeps matching the XP they granted.
func (s *Service) UpdateTask(ctx context.Context, userID, taskID uuid.UUID, f model.TaskFields) (*model.Task, error) {
	if f.Title != nil {
		title, err := validateTitle(*f.Title)
		if err != nil {
			return nil, err
		}
		f.Title = &title
	}
	if err := validateDifficulty(f.Difficulty); err != nil {
		return nil, err
	}

	var updated *model.Task
	err := s.tx.InTx(ctx, func(r Repos) error {
		t, err := ownedTask(ctx, r, userID, taskID)
		if err != nil {
			return err
		}
		if t.Completed {
			return apperr.Conflict("completed tasks cannot be edited")
		}
		ut, err := r.Tasks.Update(ctx, t.ID, f)
		if err != nil {
			return conflictErr(err)
		}
		updated = ut
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
