package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Game holds the crash round parameters.
type Game struct {
	ModelID        string        `yaml:"model_id"`
	HouseEdge      float64       `yaml:"house_edge"`
	MaxMultiplier  float64       `yaml:"max_multiplier"`
	GrowthRate     float64       `yaml:"growth_rate"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	RestartDelay   time.Duration `yaml:"restart_delay"`
	MinStake       int64         `yaml:"min_stake"`
	BalanceTimeout time.Duration `yaml:"balance_timeout"`
	HistorySize    int           `yaml:"history_size"`
	InitialBalance int64         `yaml:"initial_balance"`
}

func DefaultGame() Game {
	return Game{
		ModelID:        "crash_default",
		HouseEdge:      0.01,
		MaxMultiplier:  1000,
		GrowthRate:     0.06,
		TickInterval:   30 * time.Millisecond,
		RestartDelay:   5 * time.Second,
		MinStake:       1,
		BalanceTimeout: 2 * time.Second,
		HistorySize:    50,
		InitialBalance: 10000,
	}
}

// LoadGame reads path over the defaults. An empty path returns the defaults.
func LoadGame(path string) (Game, error) {
	const op = "config.LoadGame"

	g := DefaultGame()
	if path == "" {
		return g, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Game{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Game{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := g.Validate(); err != nil {
		return Game{}, fmt.Errorf("%s: %w", op, err)
	}
	return g, nil
}

func (g Game) Validate() error {
	var errs []error
	if g.ModelID == "" {
		errs = append(errs, errors.New("model_id is required"))
	}
	if g.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if g.RestartDelay < 0 {
		errs = append(errs, errors.New("restart_delay must not be negative"))
	}
	if g.MinStake <= 0 {
		errs = append(errs, errors.New("min_stake must be positive"))
	}
	if g.BalanceTimeout <= 0 {
		errs = append(errs, errors.New("balance_timeout must be positive"))
	}
	if g.HistorySize <= 0 {
		errs = append(errs, errors.New("history_size must be positive"))
	}
	if g.InitialBalance < 0 {
		errs = append(errs, errors.New("initial_balance must not be negative"))
	}
	return errors.Join(errs...)
}
