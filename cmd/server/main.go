package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	rgs "github.com/Ashenafi-pixel/gamecrafter-crash-engine"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/config"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/event"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/gamemath"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/lib/logger/sl"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/operator"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/platform"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/server"
	"github.com/Ashenafi-pixel/gamecrafter-crash-engine/wallet"
)

const jobWorkers = 4

func main() {
	// Load .env so DATABASE_URL is set: cwd .env, or project root .env/.env.local
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load("../.env.local")
	cfg := config.Load()

	log := setupLogger(cfg.Env)
	log.Info("starting crash engine", slog.String("env", cfg.Env), slog.String("wallet", cfg.WalletBackend))
	log.Debug("debug messages are enabled")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("crash engine stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("crash engine stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	game, err := config.LoadGame(cfg.CrashConfig)
	if err != nil {
		return err
	}

	mathStore, err := gamemath.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	configured := gamemath.Default(game.ModelID)
	configured.HouseEdge = game.HouseEdge
	configured.MaxMultiplier = game.MaxMultiplier
	configured.GrowthRate = game.GrowthRate
	model, previous, err := mathStore.Sync(configured)
	if err != nil {
		return err
	}
	if previous != nil {
		log.Warn("game math changed by config",
			slog.String("model_id", model.ModelID),
			slog.Int("previous_version", previous.ModelVersion),
			slog.Float64("previous_house_edge", previous.HouseEdge),
			slog.Float64("previous_max_multiplier", previous.MaxMultiplier),
			slog.Float64("previous_growth_rate", previous.GrowthRate),
		)
	}
	log.Info("game math loaded",
		slog.String("model_id", model.ModelID),
		slog.Int("model_version", model.ModelVersion),
		slog.Float64("house_edge", model.HouseEdge),
		slog.Float64("max_multiplier", model.MaxMultiplier),
		slog.Float64("rtp", model.Stats.ComputedRTP),
		slog.Duration("longest_round", time.Duration(model.MaxTicks(game.TickInterval))*game.TickInterval),
	)

	w, closeWallet, err := setupWallet(ctx, cfg, game, log)
	if err != nil {
		return err
	}
	defer closeWallet()

	results, err := round.NewResultsStore(cfg.DataDir)
	if err != nil {
		return err
	}

	hub := event.NewHub(log, nil)
	sinks := []round.Broadcaster{hub}
	var pusherSink *event.Pusher
	if cfg.Pusher.Enabled() {
		client := event.NewPusherClient(cfg.Pusher.AppID, cfg.Pusher.Key, cfg.Pusher.Secret, cfg.Pusher.Cluster)
		pusherSink = event.NewPusher(log, client, cfg.Pusher.Channel)
		sinks = append(sinks, pusherSink)
	}

	jobs := round.NewQueue(0, log)
	engine, err := round.New(round.Config{
		TickInterval:   game.TickInterval,
		GrowthRate:     model.GrowthRate,
		RestartDelay:   game.RestartDelay,
		MinStake:       game.MinStake,
		BalanceTimeout: game.BalanceTimeout,
		HistorySize:    game.HistorySize,
	}, round.Deps{
		Points:      model.Generator(nil),
		Wallet:      w,
		Broadcaster: event.NewBus(sinks...),
		Logger:      log,
		Results:     results,
		Jobs:        jobs,
	})
	if err != nil {
		return err
	}
	hub.SetDisconnector(engine)

	srv := server.New(log, cfg.Port, server.Deps{
		Game:           engine,
		Wallet:         w,
		Results:        results,
		Math:           model,
		WS:             http.HandlerFunc(hub.ServeWS),
		BalanceTimeout: game.BalanceTimeout,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		jobs.Run(ctx, jobWorkers)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	if pusherSink != nil {
		g.Go(func() error {
			pusherSink.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		return engine.Run(ctx, round.IntervalScheduler{})
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})
	return g.Wait()
}

// setupWallet picks the balance store. The returned func releases it.
func setupWallet(ctx context.Context, cfg *config.Config, game config.Game, log *slog.Logger) (round.Wallet, func(), error) {
	const op = "main.setupWallet"

	nop := func() {}
	switch cfg.WalletBackend {
	case config.WalletMemory:
		return wallet.NewMemory(game.InitialBalance), nop, nil
	case config.WalletPostgres:
		pool, err := rgs.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		pg, err := wallet.NewPostgres(pool, game.InitialBalance)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("postgres wallet ready")
		return pg, pool.Close, nil
	case config.WalletPlatform:
		return platform.NewClient(cfg.PlatformURL, cfg.PlatformAPIKey, cfg.Currency), nop, nil
	case config.WalletOperator:
		if cfg.OperatorEndpoint == "" {
			return nil, nil, fmt.Errorf("%s: OPERATOR_ENDPOINT is required", op)
		}
		return operator.NewClient(cfg.OperatorEndpoint, cfg.OperatorSecret, ""), nop, nil
	default:
		return nil, nil, fmt.Errorf("%s: unknown wallet backend %q", op, cfg.WalletBackend)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return log
}
