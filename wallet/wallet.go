// Package wallet holds the balance stores the round engine debits stakes
// from and credits payouts to.
package wallet

import (
	"errors"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrMissingTxID   = errors.New("transaction id is required")
)

func checkMove(txID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if txID == "" {
		return ErrMissingTxID
	}
	return nil
}

var (
	_ round.Wallet = (*Memory)(nil)
	_ round.Wallet = (*Postgres)(nil)
)
