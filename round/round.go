package round

import "time"

type Phase string

const (
	PhaseIdle    Phase = "IDLE"
	PhaseRunning Phase = "RUNNING"
	PhaseCrashed Phase = "CRASHED"
)

// Round is the single active round. CrashPoint is fixed at start and must
// not leave the engine before the round crashes.
type Round struct {
	ID         int64
	Phase      Phase
	CrashPoint float64
	Multiplier float64
	Ticks      int
	MaxTicks   int
	StartedAt  time.Time
	CrashedAt  time.Time
}

// Snapshot is a read-only view of the engine for clients.
type Snapshot struct {
	RoundID        int64   `json:"roundId"`
	Phase          Phase   `json:"phase"`
	Multiplier     float64 `json:"multiplier"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	// CrashPoint is only set once the round has crashed.
	CrashPoint float64   `json:"crashPoint,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	Bets       []Bet     `json:"bets"`
	Stats      Stats     `json:"stats"`
}

// Stats are running totals since process start. Forfeited stakes count as
// ordinary losses.
type Stats struct {
	Rounds        int64 `json:"rounds"`
	AbortedRounds int64 `json:"abortedRounds"`
	Bets          int64 `json:"bets"`
	CashOuts      int64 `json:"cashOuts"`
	Forfeits      int64 `json:"forfeits"`
	TotalStaked   int64 `json:"totalStaked"`
	TotalPaidOut  int64 `json:"totalPaidOut"`
	HouseProfit   int64 `json:"houseProfit"`
}
