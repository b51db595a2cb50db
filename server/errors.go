package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

// APIError is the standard error response for crash APIs.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errMsg, code string) {
	render.Status(r, status)
	render.JSON(w, r, APIError{
		Error:   errMsg,
		Code:    code,
		Message: errMsg,
	})
}

// statusFor maps an engine rejection to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, round.ErrStakeTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, round.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, round.ErrBalanceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, round.ErrNoActiveBet):
		return http.StatusNotFound
	case errors.Is(err, round.ErrRoundNotAcceptingBets),
		errors.Is(err, round.ErrDuplicateBet),
		errors.Is(err, round.ErrRoundNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeRoundError(w http.ResponseWriter, r *http.Request, err error) {
	code := round.Code(err)
	if code == "" {
		writeError(w, r, http.StatusInternalServerError, "internal error", "INTERNAL")
		return
	}
	writeError(w, r, statusFor(err), err.Error(), code)
}
