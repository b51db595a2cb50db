package round

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/games/crash"
)

const (
	testTick   = 100 * time.Millisecond
	testGrowth = 1.0
)

type fixedPoints struct {
	mu     sync.Mutex
	points []float64
	i      int
}

func (p *fixedPoints) Next() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.points[p.i%len(p.points)]
	p.i++
	return v
}

type fakeWallet struct {
	mu        sync.Mutex
	balances  map[string]int64
	applied   map[string]bool
	initial   int64
	debitErr  error
	creditErr []error
	// lateAcks credits are applied but reported as timed out.
	lateAcks    int
	onDebit     func()
	credits     []int64
	creditCalls int
}

func newFakeWallet(initial int64) *fakeWallet {
	return &fakeWallet{
		balances: make(map[string]int64),
		applied:  make(map[string]bool),
		initial:  initial,
	}
}

func (w *fakeWallet) balanceLocked(p string) int64 {
	b, ok := w.balances[p]
	if !ok {
		b = w.initial
		w.balances[p] = b
	}
	return b
}

func (w *fakeWallet) GetBalance(_ context.Context, p string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balanceLocked(p), nil
}

func (w *fakeWallet) Debit(_ context.Context, txID, p string, amount int64) error {
	if w.onDebit != nil {
		w.onDebit()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debitErr != nil {
		return w.debitErr
	}
	if w.applied[txID] {
		return nil
	}
	b := w.balanceLocked(p)
	if b < amount {
		return fmt.Errorf("fake wallet: %w", ErrInsufficientBalance)
	}
	w.balances[p] = b - amount
	w.applied[txID] = true
	return nil
}

func (w *fakeWallet) Credit(_ context.Context, txID, p string, amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.creditCalls++
	if len(w.creditErr) > 0 {
		err := w.creditErr[0]
		w.creditErr = w.creditErr[1:]
		return err
	}
	if w.applied[txID] {
		return nil
	}
	w.balances[p] = w.balanceLocked(p) + amount
	w.credits = append(w.credits, amount)
	w.applied[txID] = true
	if w.lateAcks > 0 {
		w.lateAcks--
		return context.DeadlineExceeded
	}
	return nil
}

func (w *fakeWallet) stats() (calls int, credits []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.creditCalls, append([]int64(nil), w.credits...)
}

func (w *fakeWallet) balance(p string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balanceLocked(p)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               {}

type manualScheduler struct {
	tick  chan time.Time
	after chan time.Time
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tick: make(chan time.Time), after: make(chan time.Time)}
}

func (s *manualScheduler) NewTicker(time.Duration) Ticker       { return &manualTicker{c: s.tick} }
func (s *manualScheduler) After(time.Duration) <-chan time.Time { return s.after }

type testEngine struct {
	*Engine
	wallet *fakeWallet
	events *recorder
}

func newTestEngine(t *testing.T, points ...float64) testEngine {
	t.Helper()

	w := newFakeWallet(1000)
	rec := &recorder{}
	e, err := New(Config{
		TickInterval: testTick,
		GrowthRate:   testGrowth,
		MinStake:     10,
	}, Deps{
		Points:      &fixedPoints{points: points},
		Wallet:      w,
		Broadcaster: rec,
	})
	require.NoError(t, err)
	return testEngine{Engine: e, wallet: w, events: rec}
}

func (te testEngine) tickUntilCrash(t *testing.T) int {
	t.Helper()
	for i := 1; i <= 100000; i++ {
		if te.Tick() == PhaseCrashed {
			return i
		}
	}
	t.Fatal("round never crashed")
	return 0
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{GrowthRate: 0}, Deps{Points: &fixedPoints{points: []float64{2}}, Wallet: newFakeWallet(0)})
	assert.Error(t, err)

	_, err = New(Config{GrowthRate: 1}, Deps{Wallet: newFakeWallet(0)})
	assert.Error(t, err)

	_, err = New(Config{GrowthRate: 1}, Deps{Points: &fixedPoints{points: []float64{2}}})
	assert.Error(t, err)
}

func TestEngine_Lifecycle(t *testing.T) {
	te := newTestEngine(t, 2.0)

	assert.Equal(t, PhaseIdle, te.Snapshot().Phase)
	assert.Equal(t, PhaseIdle, te.Tick(), "tick outside RUNNING is a no-op")

	require.True(t, te.Start())
	assert.False(t, te.Start(), "start while running is a no-op")

	snap := te.Snapshot()
	assert.Equal(t, int64(1), snap.RoundID)
	assert.Equal(t, PhaseRunning, snap.Phase)
	assert.Equal(t, 1.0, snap.Multiplier)
	assert.Zero(t, snap.CrashPoint, "crash point is hidden while running")

	ticks := te.tickUntilCrash(t)
	assert.Equal(t, crash.TicksToReach(2.0, testGrowth, testTick), ticks)

	snap = te.Snapshot()
	assert.Equal(t, PhaseCrashed, snap.Phase)
	assert.Equal(t, 2.0, snap.Multiplier, "multiplier freezes at the crash point")
	assert.Equal(t, 2.0, snap.CrashPoint)

	events := te.events.all()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, EventRoundStarted, events[0].Type)
	assert.Equal(t, EventRoundCrashed, events[len(events)-2].Type)
	assert.Equal(t, EventHistoryUpdated, events[len(events)-1].Type)

	last := 1.0
	for _, ev := range te.events.ofType(EventTick) {
		m := ev.Data.(TickData).Multiplier
		assert.GreaterOrEqual(t, m, last)
		assert.Less(t, m, 2.0)
		last = m
	}

	require.True(t, te.Start())
	assert.Equal(t, int64(2), te.Snapshot().RoundID)
}

func TestEngine_InstantCrash(t *testing.T) {
	te := newTestEngine(t, 1.0)
	require.True(t, te.Start())
	assert.Equal(t, PhaseCrashed, te.Tick())
	assert.Equal(t, 1.0, te.Snapshot().CrashPoint)
}

func TestEngine_DuplicateBet(t *testing.T) {
	te := newTestEngine(t, 5.0)
	require.True(t, te.Start())

	bet, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bet.RoundID)
	assert.Equal(t, int64(100), bet.Stake)

	_, err = te.PlaceBet(context.Background(), "alice", 50, 1)
	assert.ErrorIs(t, err, ErrDuplicateBet)
	_, err = te.PlaceBet(context.Background(), "alice", 5, 0)
	assert.ErrorIs(t, err, ErrDuplicateBet, "the slot is checked before the minimum stake")
	assert.Equal(t, int64(900), te.wallet.balance("alice"), "second bet must not debit")
}

func TestEngine_PlaceBetRejections(t *testing.T) {
	te := newTestEngine(t, 5.0)

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.ErrorIs(t, err, ErrRoundNotAcceptingBets, "idle engine")

	require.True(t, te.Start())

	_, err = te.PlaceBet(context.Background(), "alice", 100, 42)
	assert.ErrorIs(t, err, ErrRoundNotAcceptingBets, "wrong round id")

	_, err = te.PlaceBet(context.Background(), "alice", 5, 0)
	assert.ErrorIs(t, err, ErrStakeTooLow)

	_, err = te.PlaceBet(context.Background(), "alice", 1001, 0)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "InsufficientBalance", Code(err))

	assert.Equal(t, int64(1000), te.wallet.balance("alice"))
	_, ok := te.Bet("alice")
	assert.False(t, ok)

	_, err = te.PlaceBet(context.Background(), "alice", 1000, 0)
	require.NoError(t, err, "rejections release the slot")
	assert.Zero(t, te.wallet.balance("alice"))
}

func TestEngine_BalanceUnavailable(t *testing.T) {
	te := newTestEngine(t, 5.0)
	te.wallet.debitErr = errors.New("connection refused")
	require.True(t, te.Start())

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.ErrorIs(t, err, ErrBalanceUnavailable)
	assert.Equal(t, "BalanceServiceUnavailable", Code(err))

	te.wallet.debitErr = nil
	_, err = te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.NoError(t, err)
}

func TestEngine_RoundCrashesDuringDebit(t *testing.T) {
	te := newTestEngine(t, 1.5)
	require.True(t, te.Start())

	te.wallet.onDebit = func() { te.tickUntilCrash(t) }

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.ErrorIs(t, err, ErrRoundNotAcceptingBets)
	assert.Equal(t, int64(1000), te.wallet.balance("alice"), "stake refunded")

	te.wallet.onDebit = nil
	require.True(t, te.Start())
	_, err = te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.NoError(t, err)
}

func TestEngine_CashOut(t *testing.T) {
	te := newTestEngine(t, 10.0)
	require.True(t, te.Start())

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)

	for i := 0; i < 9; i++ {
		require.Equal(t, PhaseRunning, te.Tick())
	}
	want := te.Snapshot().Multiplier
	wantWin, wantProfit := Payout(100, want)

	res, err := te.CashOut(context.Background(), "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, want, res.Multiplier)
	assert.Equal(t, wantWin, res.WinAmount)
	assert.Equal(t, wantProfit, res.Profit)
	assert.Equal(t, 900+wantWin, te.wallet.balance("alice"))

	ticks := te.events.ofType(EventTick)
	assert.Equal(t, ticks[len(ticks)-1].Data.(TickData).Multiplier, res.Multiplier,
		"payout uses the multiplier participants were shown")

	_, err = te.CashOut(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, ErrNoActiveBet)

	_, err = te.CashOut(context.Background(), "bob", 0)
	assert.ErrorIs(t, err, ErrNoActiveBet)

	stats := te.Snapshot().Stats
	assert.Equal(t, int64(1), stats.CashOuts)
	assert.Equal(t, 100-wantWin, stats.HouseProfit)
}

func TestEngine_SettlementOnCrash(t *testing.T) {
	te := newTestEngine(t, 3.0)
	require.True(t, te.Start())

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	_, err = te.PlaceBet(context.Background(), "bob", 200, 0)
	require.NoError(t, err)

	te.Tick()
	_, err = te.CashOut(context.Background(), "alice", 0)
	require.NoError(t, err)

	te.tickUntilCrash(t)
	te.Tick()

	crashed := te.events.ofType(EventRoundCrashed)
	require.Len(t, crashed, 1, "settlement happens exactly once")
	data := crashed[0].Data.(RoundCrashedData)
	assert.Equal(t, 3.0, data.CrashPoint)
	require.Len(t, data.Settlements, 2)

	byName := map[string]Settlement{}
	for _, s := range data.Settlements {
		byName[s.Participant] = s
	}
	assert.Equal(t, OutcomeWon, byName["alice"].Outcome)
	assert.Equal(t, OutcomeLost, byName["bob"].Outcome)
	assert.Equal(t, int64(-200), byName["bob"].Profit)

	bet, ok := te.Bet("bob")
	require.True(t, ok)
	assert.True(t, bet.Settled)
	assert.Equal(t, int64(-200), bet.Profit)
}

func TestEngine_CashOutAfterCrash(t *testing.T) {
	te := newTestEngine(t, 2.0, 5.0)
	require.True(t, te.Start())

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	te.tickUntilCrash(t)

	_, err = te.CashOut(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, ErrRoundNotRunning)

	require.True(t, te.Start())
	_, err = te.CashOut(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, ErrRoundNotRunning, "stale round id")

	_, err = te.CashOut(context.Background(), "alice", 2)
	assert.ErrorIs(t, err, ErrNoActiveBet, "bets do not carry over")
}

func TestEngine_DisconnectForfeits(t *testing.T) {
	te := newTestEngine(t, 4.0)
	require.True(t, te.Start())

	assert.False(t, te.Disconnect("alice"), "no bet to forfeit")

	_, err := te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	require.True(t, te.Disconnect("alice"))
	assert.False(t, te.Disconnect("alice"))

	_, err = te.CashOut(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, ErrNoActiveBet)
	_, err = te.PlaceBet(context.Background(), "alice", 100, 0)
	assert.ErrorIs(t, err, ErrDuplicateBet, "forfeited bet keeps the slot")

	te.tickUntilCrash(t)
	data := te.events.ofType(EventRoundCrashed)[0].Data.(RoundCrashedData)
	require.Len(t, data.Settlements, 1)
	assert.Equal(t, OutcomeLost, data.Settlements[0].Outcome)
	assert.Equal(t, int64(-100), data.Settlements[0].Profit)

	assert.Equal(t, int64(900), te.wallet.balance("alice"), "forfeited stake is not returned")
	stats := te.Snapshot().Stats
	assert.Equal(t, int64(1), stats.Forfeits)
	assert.Equal(t, int64(100), stats.HouseProfit)
}

func TestEngine_InvalidCrashPointAborts(t *testing.T) {
	te := newTestEngine(t, math.NaN())
	require.True(t, te.Start())

	snap := te.Snapshot()
	assert.Equal(t, PhaseCrashed, snap.Phase)
	assert.Equal(t, 1.0, snap.CrashPoint)
	assert.Equal(t, int64(1), snap.Stats.AbortedRounds)
	assert.Len(t, te.events.ofType(EventRoundCrashed), 1)
}

func TestEngine_HistoryBounded(t *testing.T) {
	te := newTestEngine(t, 1.0)

	for i := 0; i < 51; i++ {
		require.True(t, te.Start())
		require.Equal(t, PhaseCrashed, te.Tick())
	}

	h := te.History()
	require.Len(t, h, DefaultHistorySize)
	assert.Equal(t, int64(51), h[0].RoundID)
	assert.Equal(t, int64(2), h[len(h)-1].RoundID)

	updates := te.events.ofType(EventHistoryUpdated)
	last := updates[len(updates)-1].Data.(HistoryData)
	assert.Len(t, last.Entries, DefaultHistorySize)
}

func TestEngine_ConcurrentBetsAndCashOuts(t *testing.T) {
	w := newFakeWallet(1000)
	e, err := New(Config{TickInterval: time.Millisecond, GrowthRate: 0.001, MinStake: 10}, Deps{
		Points: &fixedPoints{points: []float64{1000}},
		Wallet: w,
	})
	require.NoError(t, err)
	te := testEngine{Engine: e, wallet: w, events: &recorder{}}
	require.True(t, te.Start())

	const players = 64
	stop := make(chan struct{})
	var ticker sync.WaitGroup
	ticker.Add(1)
	go func() {
		defer ticker.Done()
		for {
			select {
			case <-stop:
				return
			default:
				assert.Equal(t, PhaseRunning, te.Tick())
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()

	var wg sync.WaitGroup
	var okMu sync.Mutex
	placed := map[string]int{}
	for i := 0; i < players; i++ {
		name := fmt.Sprintf("p%d", i)
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := te.PlaceBet(context.Background(), name, 100, 0); err == nil {
					okMu.Lock()
					placed[name]++
					okMu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrDuplicateBet)
				}
			}()
		}
	}
	wg.Wait()

	for i := 0; i < players; i++ {
		name := fmt.Sprintf("p%d", i)
		assert.Equal(t, 1, placed[name], name)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = te.CashOut(context.Background(), name, 0)
			}()
		}
	}
	wg.Wait()
	close(stop)
	ticker.Wait()

	var total int64
	for i := 0; i < players; i++ {
		total += te.wallet.balance(fmt.Sprintf("p%d", i))
	}
	stats := te.Snapshot().Stats
	assert.Equal(t, int64(players), stats.Bets)
	assert.Equal(t, int64(players)*1000, total+stats.HouseProfit, "money is conserved")
}

func TestEngine_CreditRetried(t *testing.T) {
	w := newFakeWallet(1000)
	w.creditErr = []error{errors.New("timeout")}
	q := NewQueue(8, nil)
	e, err := New(Config{TickInterval: testTick, GrowthRate: testGrowth}, Deps{
		Points: &fixedPoints{points: []float64{10}},
		Wallet: w,
		Jobs:   q,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, 2)

	require.True(t, e.Start())
	_, err = e.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	e.Tick()
	res, err := e.CashOut(context.Background(), "alice", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return w.balance("alice") == 900+res.WinAmount
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEngine_CashOutSmallGrowthPaysExactly(t *testing.T) {
	w := newFakeWallet(100000)
	e, err := New(Config{TickInterval: 30 * time.Millisecond, GrowthRate: 0.06}, Deps{
		Points: &fixedPoints{points: []float64{10}},
		Wallet: w,
	})
	require.NoError(t, err)
	require.True(t, e.Start())
	_, err = e.PlaceBet(context.Background(), "alice", 10000, 0)
	require.NoError(t, err)
	require.Equal(t, PhaseRunning, e.Tick())

	res, err := e.CashOut(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0018, res.Multiplier, 1e-12)
	assert.Equal(t, int64(10018), res.WinAmount)
	assert.Equal(t, int64(18), res.Profit)
}

func TestEngine_LateCreditAckPaysOnce(t *testing.T) {
	w := newFakeWallet(1000)
	w.lateAcks = 1
	q := NewQueue(8, nil)
	e, err := New(Config{TickInterval: testTick, GrowthRate: testGrowth}, Deps{
		Points: &fixedPoints{points: []float64{10}},
		Wallet: w,
		Jobs:   q,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx, 2)

	require.True(t, e.Start())
	_, err = e.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	e.Tick()
	res, err := e.CashOut(context.Background(), "alice", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		calls, _ := w.stats()
		return calls == 2
	}, 5*time.Second, 20*time.Millisecond, "the timed out credit is retried")

	_, credits := w.stats()
	assert.Equal(t, []int64{res.WinAmount}, credits)
	assert.Equal(t, 900+res.WinAmount, w.balance("alice"))
}

func TestEngine_PersistsAndResumes(t *testing.T) {
	dir := t.TempDir()
	store, err := NewResultsStore(dir)
	require.NoError(t, err)

	e, err := New(Config{TickInterval: testTick, GrowthRate: testGrowth}, Deps{
		Points:  &fixedPoints{points: []float64{1.0}},
		Wallet:  newFakeWallet(0),
		Results: store,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, e.Start())
		e.Tick()
		require.Eventually(t, func() bool {
			return len(store.Recent(0)) == i+1
		}, 2*time.Second, 10*time.Millisecond)
	}

	reopened, err := NewResultsStore(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reopened.LastRoundID())

	e2, err := New(Config{TickInterval: testTick, GrowthRate: testGrowth}, Deps{
		Points:  &fixedPoints{points: []float64{1.0}},
		Wallet:  newFakeWallet(0),
		Results: reopened,
	})
	require.NoError(t, err)
	require.Len(t, e2.History(), 3)
	assert.Equal(t, int64(3), e2.History()[0].RoundID)

	require.True(t, e2.Start())
	assert.Equal(t, int64(4), e2.Snapshot().RoundID, "round ids keep increasing across restarts")
}

func TestEngine_Run(t *testing.T) {
	te := newTestEngine(t, 1.0)
	sched := newManualScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- te.Run(ctx, sched) }()

	require.Eventually(t, func() bool { return te.Phase() == PhaseRunning }, time.Second, 5*time.Millisecond)
	sched.tick <- time.Now()
	require.Eventually(t, func() bool { return te.Phase() == PhaseCrashed }, time.Second, 5*time.Millisecond)

	sched.after <- time.Now()
	require.Eventually(t, func() bool {
		s := te.Snapshot()
		return s.RoundID == 2 && s.Phase == PhaseRunning
	}, time.Second, 5*time.Millisecond)

	sched.tick <- time.Now()
	require.Eventually(t, func() bool { return te.Phase() == PhaseCrashed }, time.Second, 5*time.Millisecond)

	// A manual start during the delay is picked up without waiting.
	require.True(t, te.Start())
	sched.tick <- time.Now()
	require.Eventually(t, func() bool {
		s := te.Snapshot()
		return s.RoundID == 3 && s.Phase == PhaseCrashed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestEngine_RunSettlesLiveRoundOnShutdown(t *testing.T) {
	te := newTestEngine(t, 50.0)
	store, err := NewResultsStore(t.TempDir())
	require.NoError(t, err)
	te.result = store
	sched := newManualScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- te.Run(ctx, sched) }()

	require.Eventually(t, func() bool { return te.Phase() == PhaseRunning }, time.Second, 5*time.Millisecond)
	_, err = te.PlaceBet(context.Background(), "alice", 100, 0)
	require.NoError(t, err)
	sched.tick <- time.Now()

	cancel()
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}

	snap := te.Snapshot()
	assert.Equal(t, PhaseCrashed, snap.Phase)
	assert.Equal(t, int64(1), snap.Stats.AbortedRounds)

	bet, ok := te.Bet("alice")
	require.True(t, ok)
	assert.True(t, bet.Settled)
	assert.Equal(t, int64(-100), bet.Profit)

	crashed := te.events.ofType(EventRoundCrashed)
	require.Len(t, crashed, 1)
	assert.Len(t, crashed[0].Data.(RoundCrashedData).Settlements, 1)

	require.Eventually(t, func() bool {
		res, ok := store.GetByRoundID(1)
		return ok && res.Aborted
	}, 2*time.Second, 10*time.Millisecond)
}
