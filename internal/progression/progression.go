// Package progression holds the XP and level arithmetic. It performs no I/O.
package progression

import (
	"github.com/dukerupert/questlog/internal/apperr"
	"github.com/dukerupert/questlog/internal/model"
)

// Gain is the outcome of crediting one task completion.
type Gain struct {
	XP      int
	Level   int
	Gained  int
	LevelUp bool
}

// Refund is the outcome of taking back a previously credited gain.
type Refund struct {
	XP        int
	Level     int
	Restored  int
	LevelDown bool
}

// Status describes how far a user is through their current level.
type Status struct {
	XP        int `json:"xp"`
	Level     int `json:"level"`
	Threshold int `json:"threshold"`
	Remaining int `json:"remaining"`
	Percent   int `json:"percent"`
}

func checkProgress(xp, level int) error {
	if level < 1 {
		return apperr.Precondition("level must be >= 1, got %d", level)
	}
	if xp < 0 {
		return apperr.Precondition("xp must be >= 0, got %d", xp)
	}
	return nil
}

func (p Policy) threshold(level int) (int, error) {
	t := p.Threshold(level)
	if t <= 0 {
		return 0, apperr.Precondition("threshold for level %d must be > 0, got %d", level, t)
	}
	return t, nil
}

// ApplyGain credits the reward for a task of the given difficulty and rolls
// any overflow into as many levels as it covers. An empty difficulty means the
// task has none.
func (p Policy) ApplyGain(xp, level int, difficulty model.Difficulty) (Gain, error) {
	if err := checkProgress(xp, level); err != nil {
		return Gain{}, err
	}
	gained := p.Reward(level, difficulty)
	if gained <= 0 {
		return Gain{}, apperr.Precondition("reward for level %d must be > 0, got %d", level, gained)
	}

	newXP, newLevel := xp+gained, level
	for {
		t, err := p.threshold(newLevel)
		if err != nil {
			return Gain{}, err
		}
		if newXP < t {
			break
		}
		newXP -= t
		newLevel++
	}
	if p.DiscardRemainder && newLevel > level {
		newXP = 0
	}

	return Gain{XP: newXP, Level: newLevel, Gained: gained, LevelUp: newLevel > level}, nil
}

// ApplyRefund removes amount XP, dropping levels as needed. Level never goes
// below 1 and XP is floored at 0 there.
func (p Policy) ApplyRefund(xp, level, amount int) (Refund, error) {
	if err := checkProgress(xp, level); err != nil {
		return Refund{}, err
	}
	if amount < 0 {
		return Refund{}, apperr.Precondition("refund amount must be >= 0, got %d", amount)
	}

	newXP, newLevel := xp-amount, level
	for newXP < 0 && newLevel > 1 {
		newLevel--
		t, err := p.threshold(newLevel)
		if err != nil {
			return Refund{}, err
		}
		newXP += t
	}
	if newXP < 0 {
		newXP = 0
	}

	return Refund{XP: newXP, Level: newLevel, Restored: amount, LevelDown: newLevel < level}, nil
}

// Progress reports the position of (xp, level) within the current level.
func (p Policy) Progress(xp, level int) (Status, error) {
	if err := checkProgress(xp, level); err != nil {
		return Status{}, err
	}
	t, err := p.threshold(level)
	if err != nil {
		return Status{}, err
	}

	remaining := t - xp
	if remaining < 0 {
		remaining = 0
	}
	percent := xp * 100 / t
	if percent > 100 {
		percent = 100
	}
	return Status{XP: xp, Level: level, Threshold: t, Remaining: remaining, Percent: percent}, nil
}
