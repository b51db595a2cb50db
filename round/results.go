package round

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const resultsFile = "crash_results.json"

// Result records a completed round for audit.
type Result struct {
	RoundID     int64        `json:"roundId"`
	CrashPoint  float64      `json:"crashPoint"`
	Settlements []Settlement `json:"settlements"`
	StartedAt   time.Time    `json:"startedAt"`
	CrashedAt   time.Time    `json:"crashedAt"`
	// Aborted is set when the round was ended by an invariant failure.
	Aborted bool `json:"aborted,omitempty"`
}

// ResultsStore keeps completed rounds in data/crash_results.json. The file is
// read once at construction; every Append rewrites it.
type ResultsStore struct {
	mu      sync.Mutex
	dataDir string
	list    []Result
}

// NewResultsStore loads existing results from dataDir. A missing file is an
// empty store.
func NewResultsStore(dataDir string) (*ResultsStore, error) {
	const op = "round.NewResultsStore"

	if dataDir == "" {
		dataDir = "data"
	}
	rs := &ResultsStore{dataDir: dataDir}

	data, err := os.ReadFile(rs.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rs, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rs.list); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return rs, nil
}

func (rs *ResultsStore) path() string {
	return filepath.Join(rs.dataDir, resultsFile)
}

// Append adds a completed round and persists the whole list.
func (rs *ResultsStore) Append(r Result) error {
	const op = "round.ResultsStore.Append"

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := os.MkdirAll(rs.dataDir, 0755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	list := append(rs.list, r)
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmp := rs.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp, rs.path()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rs.list = list
	return nil
}

// Recent returns up to n results, most recent first.
func (rs *ResultsStore) Recent(n int) []Result {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if n <= 0 || n > len(rs.list) {
		n = len(rs.list)
	}
	out := make([]Result, 0, n)
	for i := len(rs.list) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, rs.list[i])
	}
	return out
}

// GetByRoundID returns the result for roundID if it was persisted.
func (rs *ResultsStore) GetByRoundID(roundID int64) (Result, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for i := len(rs.list) - 1; i >= 0; i-- {
		if rs.list[i].RoundID == roundID {
			return rs.list[i], true
		}
	}
	return Result{}, false
}

// LastRoundID returns the highest persisted round id, or 0.
func (rs *ResultsStore) LastRoundID() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var last int64
	for _, r := range rs.list {
		if r.RoundID > last {
			last = r.RoundID
		}
	}
	return last
}
