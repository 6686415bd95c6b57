package progression

import (
	"fmt"

	"github.com/dukerupert/questlog/internal/model"
)

// RewardFunc returns the XP credited for completing a task at the given level.
// Implementations must return a positive value for every level >= 1.
type RewardFunc func(level int, difficulty model.Difficulty) int

// ThresholdFunc returns the XP needed to advance past the given level.
type ThresholdFunc func(level int) int

var tierRewards = map[model.Difficulty]int{
	model.DifficultyEasy:   10,
	model.DifficultyMedium: 30,
	model.DifficultyHard:   50,
	model.DifficultyEpic:   100,
}

// TieredReward pays a fixed amount per difficulty, independent of level.
// Tasks without a difficulty are paid as MEDIUM.
func TieredReward(_ int, d model.Difficulty) int {
	if xp, ok := tierRewards[d]; ok {
		return xp
	}
	return tierRewards[model.DifficultyMedium]
}

// BandedReward pays a flat amount that shrinks as the level grows.
func BandedReward(level int, _ model.Difficulty) int {
	switch {
	case level <= 5:
		return 50
	case level <= 10:
		return 25
	case level <= 20:
		return 15
	default:
		return 10
	}
}

// HybridReward uses the difficulty tier when the task has one and falls back
// to the level band when it does not.
func HybridReward(level int, d model.Difficulty) int {
	if xp, ok := tierRewards[d]; ok {
		return xp
	}
	return BandedReward(level, d)
}

// FixedThreshold requires the same xp at every level.
func FixedThreshold(xp int) ThresholdFunc {
	return func(int) int { return xp }
}

// ScaledThreshold returns level * perLevel.
func ScaledThreshold(perLevel int) ThresholdFunc {
	return func(level int) int { return level * perLevel }
}

const (
	DefaultFixedThreshold  = 100
	DefaultScaledThreshold = 25
)

// Policy bundles the reward and threshold functions used by ApplyGain and
// ApplyRefund. The same Policy must be used in both directions.
type Policy struct {
	Reward    RewardFunc
	Threshold ThresholdFunc
	// DiscardRemainder resets XP to zero on level-up instead of carrying the
	// overflow into the next level. Refunds are not exact in this mode.
	DiscardRemainder bool
}

// DefaultPolicy is hybrid rewards with a fixed 100 XP threshold, carrying the remainder.
func DefaultPolicy() Policy {
	return Policy{
		Reward:    HybridReward,
		Threshold: FixedThreshold(DefaultFixedThreshold),
	}
}

// PolicyConfig names a policy the way it appears in configuration.
type PolicyConfig struct {
	Reward        string // hybrid, tiered, banded
	Threshold     string // fixed, scaled
	ThresholdBase int    // 0 selects the default for the threshold kind
	Remainder     string // carry, discard
}

// NewPolicy builds the Policy named by cfg, rejecting unknown names.
func NewPolicy(cfg PolicyConfig) (Policy, error) {
	var p Policy

	switch cfg.Reward {
	case "", "hybrid":
		p.Reward = HybridReward
	case "tiered":
		p.Reward = TieredReward
	case "banded":
		p.Reward = BandedReward
	default:
		return Policy{}, fmt.Errorf("unknown reward policy %q", cfg.Reward)
	}

	if cfg.ThresholdBase < 0 {
		return Policy{}, fmt.Errorf("threshold base must be > 0, got %d", cfg.ThresholdBase)
	}
	switch cfg.Threshold {
	case "", "fixed":
		base := cfg.ThresholdBase
		if base == 0 {
			base = DefaultFixedThreshold
		}
		p.Threshold = FixedThreshold(base)
	case "scaled":
		base := cfg.ThresholdBase
		if base == 0 {
			base = DefaultScaledThreshold
		}
		p.Threshold = ScaledThreshold(base)
	default:
		return Policy{}, fmt.Errorf("unknown threshold policy %q", cfg.Threshold)
	}

	switch cfg.Remainder {
	case "", "carry":
	case "discard":
		p.DiscardRemainder = true
	default:
		return Policy{}, fmt.Errorf("unknown level-up remainder policy %q", cfg.Remainder)
	}

	return p, nil
}
