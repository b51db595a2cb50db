package crash

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// MinMultiplier is where every round starts and the lowest possible crash point.
const MinMultiplier = 1.0

const (
	DefaultHouseEdge     = 0.01
	DefaultMaxMultiplier = 1000.0
	DefaultGrowthRate    = 0.06
)

// drawResolution is the number of distinct fractions a draw can produce (2^53).
const drawResolution = 1 << 53

// Source yields uniform fractions in [0, 1).
type Source interface {
	Float64() float64
}

// CryptoSource draws fractions from crypto/rand (CSPRNG).
type CryptoSource struct{}

func (CryptoSource) Float64() float64 {
	v, err := rand.Int(rand.Reader, big.NewInt(drawResolution))
	if err != nil {
		return 0
	}
	return float64(v.Int64()) / drawResolution
}

// Generator produces one crash point per round.
type Generator struct {
	houseEdge     float64
	maxMultiplier float64
	src           Source
}

// NewGenerator returns a generator for the given house edge and payout cap.
// A nil src falls back to CryptoSource.
func NewGenerator(houseEdge, maxMultiplier float64, src Source) *Generator {
	if src == nil {
		src = CryptoSource{}
	}
	if maxMultiplier < MinMultiplier {
		maxMultiplier = DefaultMaxMultiplier
	}
	return &Generator{
		houseEdge:     houseEdge,
		maxMultiplier: maxMultiplier,
		src:           src,
	}
}

// Next draws the crash point for a new round.
func (g *Generator) Next() float64 {
	return CrashPoint(g.src.Float64(), g.houseEdge, g.maxMultiplier)
}

// CrashPoint maps a draw r in [0,1) to (1-houseEdge)/(1-r), floored to two
// decimals and clamped to [1.00, maxMultiplier]. P(point >= m) = (1-houseEdge)/m.
func CrashPoint(r, houseEdge, maxMultiplier float64) float64 {
	if math.IsNaN(r) || r < 0 {
		r = 0
	}
	if r >= 1 {
		return maxMultiplier
	}
	point := (1 - houseEdge) / (1 - r)
	point = math.Floor(point*100) / 100
	if point < MinMultiplier || math.IsNaN(point) {
		return MinMultiplier
	}
	if point > maxMultiplier {
		return maxMultiplier
	}
	return point
}

// Step advances m by one logical tick of m(t) = e^(growthRate*t). The time
// step is always the tick interval, never a measured delta.
func Step(m, growthRate float64, tick time.Duration) float64 {
	return m + m*growthRate*tick.Seconds()
}

// TicksToReach is the number of logical ticks after which the multiplier is
// at or above target. It returns -1 when growth can never get there.
func TicksToReach(target, growthRate float64, tick time.Duration) int {
	if target <= MinMultiplier {
		return 0
	}
	per := 1 + growthRate*tick.Seconds()
	if per <= 1 || math.IsNaN(per) || math.IsInf(target, 0) {
		return -1
	}
	return int(math.Ceil(math.Log(target) / math.Log(per)))
}
