package model

import (
	"time"

	"github.com/google/uuid"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
	DifficultyEpic   Difficulty = "EPIC"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyEpic:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Title       string      `json:"title"`
	Description *string     `json:"description"`
	Difficulty  *Difficulty `json:"difficulty"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at"`
	GainedXP    *int        `json:"gained_xp"`
	TimeSpent   *int        `json:"time_spent"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewTask holds the fields supplied when a task is created.
type NewTask struct {
	UserID      uuid.UUID
	Title       string
	Description *string
	Difficulty  *Difficulty
}

// TaskFields is a partial update; nil fields are left unchanged.
type TaskFields struct {
	Title       *string
	Description *string
	Difficulty  *Difficulty
}

type Completion struct {
	CompletedAt time.Time
	GainedXP    int
	TimeSpent   *int
}
