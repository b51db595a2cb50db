package round

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
)

// Job is background work that must stay off the engine lock.
type Job interface {
	Execute(ctx context.Context)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context)

func (f JobFunc) Execute(ctx context.Context) { f(ctx) }

// abandoner is implemented by jobs that must not run once the queue has
// stopped. Other jobs dispatched after stop run inline.
type abandoner interface {
	abandon()
}

// drainTimeout bounds each job run while the queue shuts down.
const drainTimeout = 5 * time.Second

// Queue is a delayed-dispatch job queue drained by a worker pool. On stop,
// every job still queued or waiting on its delay runs once more before Run
// returns.
type Queue struct {
	jobs chan Job
	done chan struct{}
	log  *slog.Logger

	mu      sync.Mutex
	stopped bool
	// pending counts delayed and overflow jobs that live on their own
	// goroutine.
	pending sync.WaitGroup
}

func NewQueue(size int, log *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = sl.Discard()
	}
	return &Queue{
		jobs: make(chan Job, size),
		done: make(chan struct{}),
		log:  log.With(slog.String("component", "round.queue")),
	}
}

// Dispatch enqueues job after delay. It never blocks the caller.
func (q *Queue) Dispatch(job Job, delay time.Duration) {
	if delay <= 0 {
		q.enqueue(job)
		return
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.abandon(job)
		return
	}
	q.pending.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.pending.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			q.enqueue(job)
		case <-q.done:
			q.runFinal(job)
		}
	}()
}

func (q *Queue) enqueue(job Job) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.abandon(job)
		return
	}
	defer q.mu.Unlock()

	select {
	case q.jobs <- job:
	default:
		q.log.Warn("job queue full, running job on its own goroutine")
		q.pending.Add(1)
		go func() {
			defer q.pending.Done()
			job.Execute(context.Background())
		}()
	}
}

// abandon handles a job dispatched after stop.
func (q *Queue) abandon(job Job) {
	if a, ok := job.(abandoner); ok {
		a.abandon()
		return
	}
	q.runFinal(job)
}

func (q *Queue) runFinal(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	job.Execute(ctx)
}

// Run starts workers and blocks until ctx is done and every outstanding job
// has had its final run.
func (q *Queue) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-q.jobs:
					job.Execute(ctx)
				}
			}
		}()
	}
	<-ctx.Done()

	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.done)
	}
	q.mu.Unlock()

	wg.Wait()
	q.pending.Wait()

	drained := 0
	for {
		select {
		case job := <-q.jobs:
			q.runFinal(job)
			drained++
		default:
			if drained > 0 {
				q.log.Info("job queue drained", slog.Int("jobs", drained))
			}
			return
		}
	}
}

const (
	creditMaxAttempts = 5
	creditBaseDelay   = 500 * time.Millisecond
)

// creditJob pays out a cash-out or refund, retrying with exponential
// backoff. Every attempt reuses txID so a late acknowledgement of an earlier
// attempt cannot pay twice.
type creditJob struct {
	wallet      Wallet
	queue       *Queue
	log         *slog.Logger
	timeout     time.Duration
	txID        string
	participant string
	amount      int64
	roundID     int64
	attempt     int
}

func (j *creditJob) Execute(ctx context.Context) {
	const op = "round.creditJob.Execute"

	log := j.logger().With(slog.String("op", op))

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.timeout)
	defer cancel()

	err := j.wallet.Credit(cctx, j.txID, j.participant, j.amount)
	if err == nil {
		log.Info("payout credited on retry")
		return
	}
	if j.attempt >= creditMaxAttempts {
		log.Error("payout credit abandoned", sl.Err(fmt.Errorf("%s: %w", op, err)))
		return
	}
	log.Warn("payout credit failed, retrying", sl.Err(err))
	next := *j
	next.attempt++
	j.queue.Dispatch(&next, creditBaseDelay<<j.attempt)
}

// abandon reports a payout that will never be retried because the queue
// stopped. The tx id lets it be reconciled with the wallet by hand.
func (j *creditJob) abandon() {
	j.logger().Error("payout credit abandoned", slog.String("reason", "job queue stopped"))
}

func (j *creditJob) logger() *slog.Logger {
	return j.log.With(
		slog.String("participant", j.participant),
		slog.String("tx_id", j.txID),
		slog.Int64("round_id", j.roundID),
		slog.Int64("amount", j.amount),
		slog.Int("attempt", j.attempt),
	)
}
