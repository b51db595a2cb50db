package round

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/games/crash"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
)

const (
	DefaultTickInterval   = 30 * time.Millisecond
	DefaultRestartDelay   = 5 * time.Second
	DefaultBalanceTimeout = 2 * time.Second
	DefaultMinStake       = 1
)

// PointSource draws the crash point of a new round. *crash.Generator
// satisfies it.
type PointSource interface {
	Next() float64
}

type Config struct {
	TickInterval   time.Duration
	GrowthRate     float64
	RestartDelay   time.Duration
	MinStake       int64
	BalanceTimeout time.Duration
	HistorySize    int
}

type Deps struct {
	Points      PointSource
	Wallet      Wallet
	Broadcaster Broadcaster
	Logger      *slog.Logger
	// Sequence defaults to one seeded from Results.
	Sequence *Sequence
	// Results is optional; completed rounds are not persisted without it.
	Results *ResultsStore
	// Jobs runs payout retries and result persistence. Without it the work
	// runs on its own goroutine and failed credits are only logged.
	Jobs  *Queue
	Clock func() time.Time
}

// Engine owns the active round, its ledger and the history ring. Every
// mutation goes through one mutex. Wallet calls are made outside it.
type Engine struct {
	cfg    Config
	points PointSource
	wallet Wallet
	bus    Broadcaster
	log    *slog.Logger
	seq    *Sequence
	result *ResultsStore
	jobs   *Queue
	now    func() time.Time

	// started wakes Run when a round is started by hand during the delay.
	started chan struct{}

	mu      sync.Mutex
	round   Round
	ledger  *Ledger
	history *History
	stats   Stats
}

func New(cfg Config, deps Deps) (*Engine, error) {
	const op = "round.New"

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.GrowthRate <= 0 || math.IsNaN(cfg.GrowthRate) {
		return nil, fmt.Errorf("%s: growth rate must be positive, got %v", op, cfg.GrowthRate)
	}
	if cfg.RestartDelay < 0 {
		cfg.RestartDelay = 0
	}
	if cfg.MinStake <= 0 {
		cfg.MinStake = DefaultMinStake
	}
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = DefaultBalanceTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if deps.Points == nil {
		return nil, fmt.Errorf("%s: point source is required", op)
	}
	if deps.Wallet == nil {
		return nil, fmt.Errorf("%s: wallet is required", op)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}
	if deps.Logger == nil {
		deps.Logger = sl.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sequence == nil {
		var seed func() int64
		if deps.Results != nil {
			seed = deps.Results.LastRoundID
		}
		deps.Sequence = NewSequence(seed)
	}

	e := &Engine{
		cfg:     cfg,
		points:  deps.Points,
		wallet:  deps.Wallet,
		bus:     deps.Broadcaster,
		log:     deps.Logger.With(slog.String("component", "round.engine")),
		seq:     deps.Sequence,
		result:  deps.Results,
		jobs:    deps.Jobs,
		now:     deps.Clock,
		started: make(chan struct{}, 1),
		round:   Round{Phase: PhaseIdle, Multiplier: crash.MinMultiplier},
		ledger:  NewLedger(),
		history: NewHistory(cfg.HistorySize),
	}

	if deps.Results != nil {
		recent := deps.Results.Recent(cfg.HistorySize)
		for i := len(recent) - 1; i >= 0; i-- {
			e.history.Push(HistoryEntry{
				RoundID:     recent[i].RoundID,
				CrashPoint:  recent[i].CrashPoint,
				CompletedAt: recent[i].CrashedAt,
			})
		}
		e.log.Info("history restored",
			slog.Int("entries", e.history.Len()),
			slog.Int("capacity", e.history.Cap()),
			slog.Int64("last_round_id", e.seq.Current()),
		)
	}

	return e, nil
}

// Start opens a new round. It is a no-op returning false while a round is
// running.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Phase == PhaseRunning {
		return false
	}

	target := e.points.Next()
	id := e.seq.Next()
	now := e.now()

	e.round = Round{
		ID:         id,
		Phase:      PhaseRunning,
		CrashPoint: target,
		Multiplier: crash.MinMultiplier,
		StartedAt:  now,
	}
	e.ledger.Reset(id)
	e.stats.Rounds++

	e.log.Info("round started", slog.Int64("round_id", id))
	e.bus.Publish(Event{
		Type:    EventRoundStarted,
		RoundID: id,
		Data:    RoundStartedData{RoundID: id, StartedAt: now},
	})

	if math.IsNaN(target) || target < crash.MinMultiplier {
		e.abortLocked(fmt.Sprintf("invalid crash point %v", target))
	} else if n := crash.TicksToReach(target, e.cfg.GrowthRate, e.cfg.TickInterval); n < 0 {
		e.abortLocked("multiplier can never reach crash point")
	} else {
		// One spare tick covers float drift between Step and the closed form.
		e.round.MaxTicks = n + 1
	}

	select {
	case e.started <- struct{}{}:
	default:
	}
	return true
}

// Tick applies one logical multiplier step and crashes the round once the
// multiplier reaches the target. It returns the phase after the step and
// does nothing outside RUNNING.
func (e *Engine) Tick() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Phase != PhaseRunning {
		return e.round.Phase
	}

	e.round.Ticks++
	if e.round.Ticks > e.round.MaxTicks {
		e.abortLocked(fmt.Sprintf("tick bound %d exceeded", e.round.MaxTicks))
		return e.round.Phase
	}

	next := crash.Step(e.round.Multiplier, e.cfg.GrowthRate, e.cfg.TickInterval)
	if math.IsNaN(next) || next < e.round.Multiplier {
		e.abortLocked(fmt.Sprintf("multiplier step produced %v", next))
		return e.round.Phase
	}

	if next >= e.round.CrashPoint {
		e.round.Multiplier = e.round.CrashPoint
		e.crashLocked(false)
		return e.round.Phase
	}

	e.round.Multiplier = next
	e.bus.Publish(Event{
		Type:    EventTick,
		RoundID: e.round.ID,
		Data: TickData{
			Multiplier:     next,
			ElapsedSeconds: e.elapsedLocked(),
		},
	})
	return e.round.Phase
}

// abortLocked ends the round at its current multiplier.
func (e *Engine) abortLocked(reason string) {
	e.log.Error("round aborted",
		slog.Int64("round_id", e.round.ID),
		slog.Int("ticks", e.round.Ticks),
		slog.String("reason", reason),
	)
	e.round.CrashPoint = e.round.Multiplier
	e.stats.AbortedRounds++
	e.crashLocked(true)
}

func (e *Engine) crashLocked(aborted bool) {
	e.round.Phase = PhaseCrashed
	e.round.CrashedAt = e.now()

	settlements := e.ledger.Settle()
	entry := HistoryEntry{
		RoundID:     e.round.ID,
		CrashPoint:  e.round.CrashPoint,
		CompletedAt: e.round.CrashedAt,
	}
	e.history.Push(entry)

	e.log.Info("round crashed",
		slog.Int64("round_id", e.round.ID),
		slog.Float64("crash_point", e.round.CrashPoint),
		slog.Int("ticks", e.round.Ticks),
		slog.Int("bets", e.ledger.Len()),
	)

	e.bus.Publish(Event{
		Type:    EventRoundCrashed,
		RoundID: e.round.ID,
		Data: RoundCrashedData{
			CrashPoint:  e.round.CrashPoint,
			Settlements: settlements,
		},
	})
	e.bus.Publish(Event{
		Type:    EventHistoryUpdated,
		RoundID: e.round.ID,
		Data:    HistoryData{Entries: e.history.Entries()},
	})

	if e.result != nil {
		e.persist(Result{
			RoundID:     e.round.ID,
			CrashPoint:  e.round.CrashPoint,
			Settlements: settlements,
			StartedAt:   e.round.StartedAt,
			CrashedAt:   e.round.CrashedAt,
			Aborted:     aborted,
		})
	}
}

func (e *Engine) persist(res Result) {
	store, log := e.result, e.log
	job := JobFunc(func(context.Context) {
		if err := store.Append(res); err != nil {
			log.Error("failed to persist round result", slog.Int64("round_id", res.RoundID), sl.Err(err))
		}
	})
	if e.jobs == nil {
		go job.Execute(context.Background())
		return
	}
	e.jobs.Dispatch(job, 0)
}

// PlaceBet debits stake and records the participant's bet in the running
// round. roundID 0 means the current round.
func (e *Engine) PlaceBet(ctx context.Context, participant string, stake int64, roundID int64) (Bet, error) {
	const op = "round.Engine.PlaceBet"

	log := e.log.With(
		slog.String("op", op),
		slog.String("participant", participant),
		slog.Int64("stake", stake),
	)

	e.mu.Lock()
	if e.round.Phase != PhaseRunning || (roundID != 0 && roundID != e.round.ID) {
		e.mu.Unlock()
		return Bet{}, ErrRoundNotAcceptingBets
	}
	if e.ledger.Has(participant) {
		e.mu.Unlock()
		return Bet{}, ErrDuplicateBet
	}
	if stake < e.cfg.MinStake {
		e.mu.Unlock()
		return Bet{}, ErrStakeTooLow
	}
	if err := e.ledger.Reserve(participant); err != nil {
		e.mu.Unlock()
		return Bet{}, err
	}
	current := e.round.ID
	e.mu.Unlock()

	betID := uuid.New()
	dctx, cancel := context.WithTimeout(ctx, e.cfg.BalanceTimeout)
	err := e.wallet.Debit(dctx, stakeTxID(betID.String()), participant, stake)
	cancel()

	if err != nil {
		e.mu.Lock()
		if e.ledger.RoundID() == current {
			e.ledger.Release(participant)
		}
		e.mu.Unlock()

		if errors.Is(err, ErrInsufficientBalance) {
			return Bet{}, ErrInsufficientBalance
		}
		log.Warn("stake debit failed", sl.Err(err))
		return Bet{}, ErrBalanceUnavailable
	}

	e.mu.Lock()
	if e.round.Phase != PhaseRunning || e.round.ID != current {
		if e.ledger.RoundID() == current {
			e.ledger.Release(participant)
		}
		e.mu.Unlock()

		log.Info("round ended during debit, refunding stake", slog.Int64("round_id", current))
		e.credit(ctx, refundTxID(betID.String()), participant, stake, current)
		return Bet{}, ErrRoundNotAcceptingBets
	}

	bet := &Bet{
		ID:          betID,
		Participant: participant,
		RoundID:     current,
		Stake:       stake,
		PlacedAt:    e.now(),
	}
	e.ledger.Commit(bet)
	e.stats.Bets++
	e.stats.TotalStaked += stake
	placed := *bet
	e.mu.Unlock()

	log.Info("bet placed", slog.Int64("round_id", current), slog.String("bet_id", placed.ID.String()))
	return placed, nil
}

// CashOut settles the participant's bet at the multiplier current when the
// request is accepted. roundID 0 means the current round.
func (e *Engine) CashOut(ctx context.Context, participant string, roundID int64) (CashOutResult, error) {
	const op = "round.Engine.CashOut"

	e.mu.Lock()
	if e.round.Phase != PhaseRunning || (roundID != 0 && roundID != e.round.ID) {
		e.mu.Unlock()
		return CashOutResult{}, ErrRoundNotRunning
	}
	res, err := e.ledger.CashOut(participant, e.round.Multiplier)
	if err != nil {
		e.mu.Unlock()
		return CashOutResult{}, err
	}
	e.stats.CashOuts++
	e.stats.TotalPaidOut += res.WinAmount
	e.mu.Unlock()

	e.log.Info("cashed out",
		slog.String("op", op),
		slog.String("participant", participant),
		slog.Int64("round_id", res.RoundID),
		slog.Float64("multiplier", res.Multiplier),
		slog.Int64("win_amount", res.WinAmount),
	)

	e.credit(ctx, payoutTxID(res.BetID), participant, res.WinAmount, res.RoundID)
	return res, nil
}

// credit pays amount to participant under txID. The payout is owed
// regardless of the request's fate, so the request context only contributes
// its values.
func (e *Engine) credit(ctx context.Context, txID, participant string, amount, roundID int64) {
	if amount <= 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.BalanceTimeout)
	err := e.wallet.Credit(cctx, txID, participant, amount)
	cancel()
	if err == nil {
		return
	}

	log := e.log.With(
		slog.String("participant", participant),
		slog.String("tx_id", txID),
		slog.Int64("round_id", roundID),
		slog.Int64("amount", amount),
	)
	if e.jobs == nil {
		log.Error("credit failed", sl.Err(err))
		return
	}
	log.Warn("credit failed, queued for retry", sl.Err(err))
	e.jobs.Dispatch(&creditJob{
		wallet:      e.wallet,
		queue:       e.jobs,
		log:         e.log,
		timeout:     e.cfg.BalanceTimeout,
		txID:        txID,
		participant: participant,
		amount:      amount,
		roundID:     roundID,
		attempt:     1,
	}, creditBaseDelay)
}

// Disconnect forfeits the participant's live bet. The stake stays debited
// and the bet settles as a loss. It reports whether a bet was forfeited.
func (e *Engine) Disconnect(participant string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Phase != PhaseRunning {
		return false
	}
	if !e.ledger.Forfeit(participant) {
		return false
	}
	e.stats.Forfeits++
	e.log.Info("bet forfeited",
		slog.String("participant", participant),
		slog.Int64("round_id", e.round.ID),
	)
	return true
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		RoundID:        e.round.ID,
		Phase:          e.round.Phase,
		Multiplier:     e.round.Multiplier,
		ElapsedSeconds: e.elapsedLocked(),
		StartedAt:      e.round.StartedAt,
		Bets:           e.ledger.Bets(),
		Stats:          e.stats,
	}
	if e.round.Phase == PhaseCrashed {
		s.CrashPoint = e.round.CrashPoint
	}
	s.Stats.HouseProfit = e.stats.TotalStaked - e.stats.TotalPaidOut
	return s
}

// History returns completed rounds, most recent first.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.history.Entries()
}

// Bet returns the participant's bet in the current round.
func (e *Engine) Bet(participant string) (Bet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Get(participant)
}

func (e *Engine) elapsedLocked() float64 {
	return float64(e.round.Ticks) * e.cfg.TickInterval.Seconds()
}

// Run drives rounds until ctx is done: start, tick until crash, wait the
// restart delay, repeat. A round started by hand during the delay is picked
// up immediately.
func (e *Engine) Run(ctx context.Context, sched Scheduler) error {
	const op = "round.Engine.Run"

	log := e.log.With(slog.String("op", op))
	log.Info("round loop started",
		slog.Duration("tick_interval", e.cfg.TickInterval),
		slog.Duration("restart_delay", e.cfg.RestartDelay),
	)

	for {
		e.Start()

		ticker := sched.NewTicker(e.cfg.TickInterval)
		for running := true; running; {
			select {
			case <-ctx.Done():
				ticker.Stop()
				e.stop()
				log.Info("round loop stopped")
				return ctx.Err()
			case <-ticker.C():
				running = e.Tick() == PhaseRunning
			}
		}
		ticker.Stop()

		// Drop a wake-up left over from the Start above.
		select {
		case <-e.started:
		default:
		}
		if e.Phase() == PhaseRunning {
			continue
		}

		select {
		case <-ctx.Done():
			e.stop()
			log.Info("round loop stopped")
			return ctx.Err()
		case <-sched.After(e.cfg.RestartDelay):
		case <-e.started:
		}
	}
}

// stop ends a round still running at shutdown so that every placed bet is
// settled and the round is recorded.
func (e *Engine) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.round.Phase == PhaseRunning {
		e.abortLocked("shutdown")
	}
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.round.Phase
}
