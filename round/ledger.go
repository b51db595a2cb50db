package round

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeWon  Outcome = "won"
	OutcomeLost Outcome = "lost"
)

// Bet is one participant's stake in one round.
type Bet struct {
	ID          uuid.UUID `json:"betId"`
	Participant string    `json:"participant"`
	RoundID     int64     `json:"roundId"`
	Stake       int64     `json:"stake"`
	PlacedAt    time.Time `json:"placedAt"`
	CashedOut   bool      `json:"cashedOut"`
	Multiplier  float64   `json:"multiplier,omitempty"`
	WinAmount   int64     `json:"winAmount,omitempty"`
	Profit      int64     `json:"profit"`
	// Settled is set once Profit is final.
	Settled   bool `json:"settled"`
	Forfeited bool `json:"forfeited,omitempty"`
}

// Settlement is the final outcome of one bet, as broadcast on crash.
type Settlement struct {
	Participant string  `json:"participant"`
	BetID       string  `json:"betId"`
	Stake       int64   `json:"stake"`
	Outcome     Outcome `json:"outcome"`
	Multiplier  float64 `json:"multiplier,omitempty"`
	WinAmount   int64   `json:"winAmount"`
	Profit      int64   `json:"profit"`
}

// CashOutResult is returned to the participant who cashed out.
type CashOutResult struct {
	RoundID    int64   `json:"roundId"`
	BetID      string  `json:"betId"`
	Multiplier float64 `json:"multiplier"`
	WinAmount  int64   `json:"winAmount"`
	Profit     int64   `json:"profit"`
}

// Payout converts a stake and a multiplier into floor(stake * multiplier)
// using decimal arithmetic, so 100 at 2.3 pays 230 and not 229.
func Payout(stake int64, multiplier float64) (winAmount, profit int64) {
	winAmount = decimal.NewFromInt(stake).
		Mul(decimal.NewFromFloat(multiplier)).
		Floor().
		IntPart()
	return winAmount, winAmount - stake
}

// Ledger holds the bets of the current round. It is not safe for concurrent
// use; Engine serializes every call under its lock.
type Ledger struct {
	roundID int64
	bets    map[string]*Bet
	pending map[string]struct{}
	settled bool
}

func NewLedger() *Ledger {
	return &Ledger{
		bets:    make(map[string]*Bet),
		pending: make(map[string]struct{}),
	}
}

// Reset drops every bet and reservation and opens the ledger for roundID.
func (l *Ledger) Reset(roundID int64) {
	l.roundID = roundID
	l.bets = make(map[string]*Bet)
	l.pending = make(map[string]struct{})
	l.settled = false
}

func (l *Ledger) RoundID() int64 {
	return l.roundID
}

// Has reports whether the participant holds a bet or a reservation.
func (l *Ledger) Has(participant string) bool {
	if _, ok := l.bets[participant]; ok {
		return true
	}
	_, ok := l.pending[participant]
	return ok
}

// Reserve claims the participant's single slot while the stake is debited.
func (l *Ledger) Reserve(participant string) error {
	if l.Has(participant) {
		return ErrDuplicateBet
	}
	l.pending[participant] = struct{}{}
	return nil
}

func (l *Ledger) Release(participant string) {
	delete(l.pending, participant)
}

// Commit turns a reservation into a live bet.
func (l *Ledger) Commit(bet *Bet) {
	delete(l.pending, bet.Participant)
	l.bets[bet.Participant] = bet
}

// CashOut fixes the bet's payout at multiplier.
func (l *Ledger) CashOut(participant string, multiplier float64) (CashOutResult, error) {
	bet, ok := l.bets[participant]
	if !ok || bet.CashedOut || bet.Forfeited || bet.Settled {
		return CashOutResult{}, ErrNoActiveBet
	}
	win, profit := Payout(bet.Stake, multiplier)
	bet.CashedOut = true
	bet.Settled = true
	bet.Multiplier = multiplier
	bet.WinAmount = win
	bet.Profit = profit
	return CashOutResult{
		RoundID:    bet.RoundID,
		BetID:      bet.ID.String(),
		Multiplier: multiplier,
		WinAmount:  win,
		Profit:     profit,
	}, nil
}

// Forfeit marks a live, not cashed out bet as abandoned. The stake stays
// debited and the bet settles as a loss on crash.
func (l *Ledger) Forfeit(participant string) bool {
	bet, ok := l.bets[participant]
	if !ok || bet.CashedOut || bet.Forfeited || bet.Settled {
		return false
	}
	bet.Forfeited = true
	return true
}

// Settle fixes profit = -stake for every bet not cashed out and returns the
// outcome of every bet in placement order. It settles at most once per round;
// later calls return nil.
func (l *Ledger) Settle() []Settlement {
	if l.settled {
		return nil
	}
	l.settled = true
	out := make([]Settlement, 0, len(l.bets))
	for _, bet := range l.sorted() {
		if !bet.Settled {
			bet.Profit = -bet.Stake
			bet.Settled = true
		}
		s := Settlement{
			Participant: bet.Participant,
			BetID:       bet.ID.String(),
			Stake:       bet.Stake,
			Outcome:     OutcomeLost,
			WinAmount:   bet.WinAmount,
			Profit:      bet.Profit,
		}
		if bet.CashedOut {
			s.Outcome = OutcomeWon
			s.Multiplier = bet.Multiplier
		}
		out = append(out, s)
	}
	return out
}

// Get returns a copy of the participant's bet.
func (l *Ledger) Get(participant string) (Bet, bool) {
	bet, ok := l.bets[participant]
	if !ok {
		return Bet{}, false
	}
	return *bet, true
}

// Bets returns copies of all bets in placement order.
func (l *Ledger) Bets() []Bet {
	sorted := l.sorted()
	out := make([]Bet, len(sorted))
	for i, b := range sorted {
		out[i] = *b
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.bets)
}

func (l *Ledger) sorted() []*Bet {
	list := make([]*Bet, 0, len(l.bets))
	for _, b := range l.bets {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].PlacedAt.Equal(list[j].PlacedAt) {
			return list[i].PlacedAt.Before(list[j].PlacedAt)
		}
		return list[i].Participant < list[j].Participant
	})
	return list
}
