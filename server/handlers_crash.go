package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

type BetRequest struct {
	Participant string `json:"participant" validate:"required,max=128"`
	Stake       int64  `json:"stake"`
	// RoundID is optional; 0 targets the current round.
	RoundID int64 `json:"roundId" validate:"gte=0"`
}

type BetResponse struct {
	Status  string `json:"status"`
	RoundID int64  `json:"roundId"`
	BetID   string `json:"betId"`
}

type CashOutRequest struct {
	Participant string `json:"participant" validate:"required,max=128"`
	RoundID     int64  `json:"roundId" validate:"gte=0"`
}

type CashOutResponse struct {
	RoundID    int64   `json:"roundId"`
	BetID      string  `json:"betId"`
	Multiplier float64 `json:"multiplier"`
	WinAmount  int64   `json:"winAmount"`
	Profit     int64   `json:"profit"`
}

// decode reads and validates a JSON body, writing the error response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body", "INVALID_BODY")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error(), "INVALID_BODY")
		return false
	}
	return true
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	const op = "server.placeBet"

	var req BetRequest
	if !s.decode(w, r, &req) {
		return
	}

	bet, err := s.deps.Game.PlaceBet(r.Context(), req.Participant, req.Stake, req.RoundID)
	if err != nil {
		s.log.Debug("bet rejected",
			slog.String("op", op),
			slog.String("participant", req.Participant),
			slog.String("code", round.Code(err)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		writeRoundError(w, r, err)
		return
	}

	render.JSON(w, r, BetResponse{
		Status:  "accepted",
		RoundID: bet.RoundID,
		BetID:   bet.ID.String(),
	})
}

func (s *Server) cashOut(w http.ResponseWriter, r *http.Request) {
	var req CashOutRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Game.CashOut(r.Context(), req.Participant, req.RoundID)
	if err != nil {
		writeRoundError(w, r, err)
		return
	}

	render.JSON(w, r, CashOutResponse{
		RoundID:    res.RoundID,
		BetID:      res.BetID,
		Multiplier: res.Multiplier,
		WinAmount:  res.WinAmount,
		Profit:     res.Profit,
	})
}

// start opens a round by hand; it is a no-op while one is running.
func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	started := s.deps.Game.Start()
	snap := s.deps.Game.Snapshot()
	render.JSON(w, r, map[string]any{
		"started": started,
		"roundId": snap.RoundID,
		"phase":   snap.Phase,
	})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.deps.Game.Snapshot())
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"entries": s.deps.Game.History()})
}

func (s *Server) math(w http.ResponseWriter, r *http.Request) {
	if s.deps.Math == nil {
		writeError(w, r, http.StatusNotFound, "game math not configured", "NOT_FOUND")
		return
	}
	render.JSON(w, r, s.deps.Math)
}

// roundResult returns the persisted outcome of a completed round.
func (s *Server) roundResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roundID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid round id", "INVALID_ROUND_ID")
		return
	}
	if s.deps.Results == nil {
		writeError(w, r, http.StatusNotFound, "round not found", "NOT_FOUND")
		return
	}
	res, ok := s.deps.Results.GetByRoundID(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "round not found", "NOT_FOUND")
		return
	}
	render.JSON(w, r, res)
}
