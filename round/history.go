package round

import "time"

// DefaultHistorySize is how many completed rounds History keeps.
const DefaultHistorySize = 50

// HistoryEntry records one completed round. Immutable once created.
type HistoryEntry struct {
	RoundID     int64     `json:"roundId"`
	CrashPoint  float64   `json:"crashPoint"`
	CompletedAt time.Time `json:"completedAt"`
}

// History is a fixed-capacity ring of completed rounds. The oldest entry is
// overwritten once capacity is reached. Not safe for concurrent use.
type History struct {
	buf   []HistoryEntry
	next  int
	count int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]HistoryEntry, size)}
}

func (h *History) Push(e HistoryEntry) {
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	if h.count < len(h.buf) {
		h.count++
	}
}

// Entries returns a copy of the ring, most recent first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, h.count)
	for i := 0; i < h.count; i++ {
		idx := (h.next - 1 - i + len(h.buf)) % len(h.buf)
		out[i] = h.buf[idx]
	}
	return out
}

func (h *History) Len() int {
	return h.count
}

func (h *History) Cap() int {
	return len(h.buf)
}
