package round

import (
	"sync"

	"github.com/patrickmn/go-cache"
)

const currentRoundKey = "current_round"

// Sequence hands out strictly increasing round ids. The current id lives in
// the cache; on a miss it is seeded from the last persisted round.
type Sequence struct {
	mu    sync.Mutex
	cache *cache.Cache
	seed  func() int64
}

// NewSequence returns a sequence seeded by seed (may be nil, meaning zero).
func NewSequence(seed func() int64) *Sequence {
	return &Sequence{
		cache: cache.New(cache.NoExpiration, 0),
		seed:  seed,
	}
}

func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache.Get(currentRoundKey); !found {
		var last int64
		if s.seed != nil {
			last = s.seed()
		}
		s.cache.Set(currentRoundKey, last, cache.NoExpiration)
	}
	next, err := s.cache.IncrementInt64(currentRoundKey, 1)
	if err != nil {
		// Only reachable if something stored a non-int64 under the key.
		s.cache.Set(currentRoundKey, int64(1), cache.NoExpiration)
		return 1
	}
	return next
}

// Current returns the last id handed out, or the seed if none yet.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, found := s.cache.Get(currentRoundKey); found {
		return v.(int64)
	}
	if s.seed != nil {
		return s.seed()
	}
	return 0
}
