package round

import "time"

// Ticker delivers tick events. Each value received is exactly one logical step.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Scheduler produces the tick stream and the between-rounds delay.
type Scheduler interface {
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// IntervalScheduler runs on wall-clock time. time.Ticker drops ticks a slow
// receiver misses, so a stall costs one step, never a burst of catch-up steps.
type IntervalScheduler struct{}

func (IntervalScheduler) NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (IntervalScheduler) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
