package round

import "time"

type EventType string

const (
	EventRoundStarted   EventType = "ROUND_STARTED"
	EventTick           EventType = "TICK"
	EventRoundCrashed   EventType = "ROUND_CRASHED"
	EventHistoryUpdated EventType = "HISTORY_UPDATED"
)

// Event is broadcast to every connected participant.
type Event struct {
	Type    EventType `json:"type"`
	RoundID int64     `json:"roundId"`
	Data    any       `json:"data"`
}

// Reliable reports whether the event must reach every connected participant.
// Ticks may be dropped for slow consumers.
func (e Event) Reliable() bool {
	return e.Type != EventTick
}

type RoundStartedData struct {
	RoundID   int64     `json:"roundId"`
	StartedAt time.Time `json:"startedAt"`
}

type TickData struct {
	Multiplier     float64 `json:"multiplier"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

type RoundCrashedData struct {
	CrashPoint  float64      `json:"crashPoint"`
	Settlements []Settlement `json:"settlements"`
}

type HistoryData struct {
	Entries []HistoryEntry `json:"entries"`
}

// Broadcaster receives round events in order. Publish is called with the
// engine lock held, so implementations must hand off and never block on I/O.
type Broadcaster interface {
	Publish(ev Event)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(Event) {}
