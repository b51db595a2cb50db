package round

import "context"

// Wallet is the external balance store. Every call may fail or time out.
//
// txID identifies one balance movement. A call repeated with a txID the
// wallet has already applied must succeed without moving the balance again,
// so a timed-out request can be retried safely. Debit must return an error
// wrapping ErrInsufficientBalance when the participant cannot cover amount.
type Wallet interface {
	GetBalance(ctx context.Context, participant string) (int64, error)
	Debit(ctx context.Context, txID, participant string, amount int64) error
	Credit(ctx context.Context, txID, participant string, amount int64) error
}

// Transaction ids derived from a bet. One bet moves money at most twice:
// the stake debit and then either a payout or a refund.
func stakeTxID(betID string) string  { return "bet-" + betID }
func payoutTxID(betID string) string { return "win-" + betID }
func refundTxID(betID string) string { return "refund-" + betID }
