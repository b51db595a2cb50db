package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

// Memory is an in-process wallet. Unknown participants start with the
// initial balance. Applied transaction ids are remembered for the life of the
// process.
type Memory struct {
	mu       sync.Mutex
	initial  int64
	balances map[string]int64
	applied  map[string]struct{}
}

func NewMemory(initial int64) *Memory {
	return &Memory{
		initial:  initial,
		balances: make(map[string]int64),
		applied:  make(map[string]struct{}),
	}
}

func (m *Memory) balanceLocked(participant string) int64 {
	b, ok := m.balances[participant]
	if !ok {
		b = m.initial
		m.balances[participant] = b
	}
	return b
}

func (m *Memory) GetBalance(ctx context.Context, participant string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balanceLocked(participant), nil
}

func (m *Memory) Debit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "wallet.Memory.Debit"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := checkMove(txID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applied[txID]; ok {
		return nil
	}
	b := m.balanceLocked(participant)
	if b < amount {
		return fmt.Errorf("%s: %w", op, round.ErrInsufficientBalance)
	}
	m.balances[participant] = b - amount
	m.applied[txID] = struct{}{}
	return nil
}

func (m *Memory) Credit(ctx context.Context, txID, participant string, amount int64) error {
	const op = "wallet.Memory.Credit"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := checkMove(txID, amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.applied[txID]; ok {
		return nil
	}
	m.balances[participant] = m.balanceLocked(participant) + amount
	m.applied[txID] = struct{}{}
	return nil
}
