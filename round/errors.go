package round

import "errors"

// Error is a request rejection. It never changes round or ledger state.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrRoundNotAcceptingBets = &Error{Code: "RoundNotAcceptingBets", Message: "round is not accepting bets"}
	ErrDuplicateBet          = &Error{Code: "DuplicateBet", Message: "participant already has a bet in this round"}
	ErrStakeTooLow           = &Error{Code: "StakeTooLow", Message: "stake is below the minimum"}
	ErrInsufficientBalance   = &Error{Code: "InsufficientBalance", Message: "insufficient balance"}
	ErrRoundNotRunning       = &Error{Code: "RoundNotRunning", Message: "round is not running"}
	ErrNoActiveBet           = &Error{Code: "NoActiveBet", Message: "no active bet in this round"}
	ErrBalanceUnavailable    = &Error{Code: "BalanceServiceUnavailable", Message: "balance service unavailable"}
)

// Code returns the rejection code carried by err, or "" for other errors.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
