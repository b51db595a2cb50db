package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
)

// Game is the round engine as seen by the HTTP layer.
type Game interface {
	Start() bool
	PlaceBet(ctx context.Context, participant string, stake int64, roundID int64) (round.Bet, error)
	CashOut(ctx context.Context, participant string, roundID int64) (round.CashOutResult, error)
	Snapshot() round.Snapshot
	History() []round.HistoryEntry
}

type Deps struct {
	Game    Game
	Wallet  round.Wallet
	Results *round.ResultsStore
	Math    *gamemath.CrashMath
	// WS serves GET /ws; nil disables the route.
	WS http.Handler
	// BalanceTimeout bounds GET /rgs/balance.
	BalanceTimeout time.Duration
}

type Server struct {
	log      *slog.Logger
	port     int
	deps     Deps
	validate *validator.Validate
}

func New(log *slog.Logger, port int, deps Deps) *Server {
	if port <= 0 {
		port = 8081
	}
	if deps.BalanceTimeout <= 0 {
		deps.BalanceTimeout = round.DefaultBalanceTimeout
	}
	return &Server{
		log:      log.With(slog.String("component", "server")),
		port:     port,
		deps:     deps,
		validate: validator.New(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/rgs/balance", s.getBalance)

	r.Route("/crash", func(r chi.Router) {
		r.Post("/bet", s.placeBet)
		r.Post("/cashout", s.cashOut)
		r.Post("/start", s.start)
		r.Get("/state", s.state)
		r.Get("/history", s.history)
		r.Get("/math", s.math)
		r.Get("/rounds/{roundID}", s.roundResult)
	})

	if s.deps.WS != nil {
		r.Get("/ws", s.deps.WS.ServeHTTP)
	}
	return r
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	const op = "server.Run"

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("server stopped")
	return nil
}

// requestLogger logs each request once it completes (no body or secrets).
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With(slog.String("component", "middleware/logger"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request completed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok", "service": "crash"})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	const op = "server.getBalance"

	participant := r.URL.Query().Get("participant")
	if participant == "" {
		writeError(w, r, http.StatusBadRequest, "participant required", "INVALID_PARTICIPANT")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.deps.BalanceTimeout)
	defer cancel()

	balance, err := s.deps.Wallet.GetBalance(ctx, participant)
	if err != nil {
		s.log.Warn("balance lookup failed",
			slog.String("op", op),
			slog.String("participant", participant),
			sl.Err(err),
		)
		writeRoundError(w, r, round.ErrBalanceUnavailable)
		return
	}
	render.JSON(w, r, map[string]any{"participant": participant, "balance": balance})
}
