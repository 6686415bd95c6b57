package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	XP           int       `json:"xp"`
	Level        int       `json:"level"`
	Gold         int       `json:"gold"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Progress is the (xp, level) pair the progression engine works on.
type Progress struct {
	XP    int `json:"xp"`
	Level int `json:"level"`
}

func (u User) Progress() Progress {
	return Progress{XP: u.XP, Level: u.Level}
}

type LeaderboardEntry struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Level  int       `json:"level"`
	XP     int       `json:"xp"`
	Rank   int       `json:"rank"`
}
