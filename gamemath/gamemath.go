package gamemath

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/games/crash"
)

// CrashMath is the stored math model for a crash game (schema_version 1).
type CrashMath struct {
	SchemaVersion int        `json:"schema_version"`
	ModelID       string     `json:"model_id"`
	// ModelVersion increases each time the model's parameters change.
	ModelVersion  int        `json:"model_version"`
	HouseEdge     float64    `json:"house_edge"`
	MaxMultiplier float64    `json:"max_multiplier"`
	GrowthRate    float64    `json:"growth_rate"`
	Stats         *GameStats `json:"stats,omitempty"`
}

type GameStats struct {
	ComputedRTP float64 `json:"computed_rtp"`
	// InstantCrashRate is the probability of a round crashing at 1.00.
	InstantCrashRate float64 `json:"instant_crash_rate"`
}

var (
	ErrInvalidHouseEdge  = errors.New("house edge must be in [0, 1)")
	ErrInvalidCap        = errors.New("max multiplier must be at least 1.00")
	ErrInvalidGrowthRate = errors.New("growth rate must be positive")
)

// Default returns the 1% edge, 1000x cap model.
func Default(modelID string) *CrashMath {
	m := &CrashMath{
		SchemaVersion: 1,
		ModelID:       modelID,
		ModelVersion:  1,
		HouseEdge:     crash.DefaultHouseEdge,
		MaxMultiplier: crash.DefaultMaxMultiplier,
		GrowthRate:    crash.DefaultGrowthRate,
	}
	m.Stats = m.ComputeStats()
	return m
}

func (m *CrashMath) Validate() error {
	const op = "gamemath.CrashMath.Validate"

	if m == nil {
		return fmt.Errorf("%s: nil model", op)
	}
	if m.HouseEdge < 0 || m.HouseEdge >= 1 || math.IsNaN(m.HouseEdge) {
		return fmt.Errorf("%s: %w", op, ErrInvalidHouseEdge)
	}
	if m.MaxMultiplier < crash.MinMultiplier || math.IsInf(m.MaxMultiplier, 0) {
		return fmt.Errorf("%s: %w", op, ErrInvalidCap)
	}
	if m.GrowthRate <= 0 || math.IsNaN(m.GrowthRate) {
		return fmt.Errorf("%s: %w", op, ErrInvalidGrowthRate)
	}
	return nil
}

// SameParams reports whether o draws and grows rounds exactly like m.
func (m *CrashMath) SameParams(o *CrashMath) bool {
	return m.HouseEdge == o.HouseEdge &&
		m.MaxMultiplier == o.MaxMultiplier &&
		m.GrowthRate == o.GrowthRate
}

func (m *CrashMath) HouseEdgeFactor() float64 {
	return 1 - m.HouseEdge
}

// SurvivalProbability is P(crash point >= target), ignoring the two-decimal floor.
func (m *CrashMath) SurvivalProbability(target float64) float64 {
	if target <= crash.MinMultiplier {
		return 1
	}
	if target > m.MaxMultiplier {
		return 0
	}
	return m.HouseEdgeFactor() / target
}

// ComputeStats derives the theoretical return for a player cashing out at any
// fixed target below the cap: target * P(survive) = 1 - house edge.
func (m *CrashMath) ComputeStats() *GameStats {
	return &GameStats{
		ComputedRTP:      m.HouseEdgeFactor(),
		InstantCrashRate: 1 - m.SurvivalProbability(1.01),
	}
}

// Generator builds a crash point generator for this model.
func (m *CrashMath) Generator(src crash.Source) *crash.Generator {
	return crash.NewGenerator(m.HouseEdge, m.MaxMultiplier, src)
}

// MaxTicks bounds the number of logical ticks any round of this model can run.
func (m *CrashMath) MaxTicks(tick time.Duration) int {
	return crash.TicksToReach(m.MaxMultiplier, m.GrowthRate, tick)
}
