package gamemath

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const mathFile = "crash_math.json"

// Store persists crash math by model_id. Each model keeps its active version
// plus every version it replaced, so settled rounds can be traced back to the
// edge and cap they were played under.
type Store struct {
	mu      sync.RWMutex
	models  map[string]*record
	dataDir string
}

type record struct {
	ModelID string       `json:"model_id"`
	Active  *CrashMath   `json:"active"`
	Retired []*CrashMath `json:"retired,omitempty"`
}

// NewStore loads dataDir/crash_math.json. A missing file is an empty store;
// entries that fail validation are skipped.
func NewStore(dataDir string) (*Store, error) {
	const op = "gamemath.NewStore"

	if dataDir == "" {
		dataDir = "data"
	}
	s := &Store{
		models:  make(map[string]*record),
		dataDir: dataDir,
	}

	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var list []*record
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, r := range list {
		if r == nil || r.ModelID == "" || r.Active.Validate() != nil {
			continue
		}
		s.models[r.ModelID] = r
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dataDir, mathFile)
}

// saveLocked rewrites the file through a temp file. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	list := make([]*record, 0, len(s.models))
	for _, r := range s.models {
		list = append(list, r)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

// Register validates math and makes it the active version of its model_id.
// A different active version is retired and math gets the next version
// number. Stats are recomputed on the way in.
func (s *Store) Register(math *CrashMath) error {
	const op = "gamemath.Store.Register"

	if math == nil || math.ModelID == "" {
		return nil
	}
	if err := math.Validate(); err != nil {
		return err
	}
	math.Stats = math.ComputeStats()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.activateLocked(math)
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) activateLocked(math *CrashMath) {
	r, ok := s.models[math.ModelID]
	if !ok {
		if math.ModelVersion <= 0 {
			math.ModelVersion = 1
		}
		s.models[math.ModelID] = &record{ModelID: math.ModelID, Active: math}
		return
	}
	math.ModelVersion = r.Active.ModelVersion + 1
	r.Retired = append(r.Retired, r.Active)
	r.Active = math
}

// Get returns the active math for the given model_id, or nil.
func (s *Store) Get(modelID string) *CrashMath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.models[modelID]; ok {
		return r.Active
	}
	return nil
}

// Sync makes configured the active model for its model_id. A stored model
// with the same parameters is kept as is. One with different parameters is
// retired and returned as previous, so a config change is never silently
// ignored.
func (s *Store) Sync(configured *CrashMath) (active, previous *CrashMath, err error) {
	const op = "gamemath.Store.Sync"

	if configured == nil || configured.ModelID == "" {
		return nil, nil, fmt.Errorf("%s: model id is required", op)
	}
	if err := configured.Validate(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.models[configured.ModelID]; ok {
		if r.Active.SameParams(configured) {
			return r.Active, nil, nil
		}
		previous = r.Active
	}
	configured.Stats = configured.ComputeStats()
	s.activateLocked(configured)
	if err := s.saveLocked(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return configured, previous, nil
}
