package config

import (
	"os"
	"strconv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	WalletMemory   = "memory"
	WalletPostgres = "postgres"
	WalletPlatform = "platform"
	WalletOperator = "operator"
)

type Config struct {
	Env            string
	Port           int
	DataDir        string
	DatabaseURL    string
	PlatformURL    string
	PlatformAPIKey string
	Currency       string
	WalletBackend  string
	CrashConfig    string // Path to the game YAML; empty means defaults
	Pusher         PusherConfig

	OperatorEndpoint string
	OperatorSecret   string
}

type PusherConfig struct {
	AppID   string
	Key     string
	Secret  string
	Cluster string
	Channel string
}

// Enabled reports whether enough credentials are set to publish to Pusher.
func (p PusherConfig) Enabled() bool {
	return p.AppID != "" && p.Key != "" && p.Secret != ""
}

func Load() *Config {
	env := getenv("ENV", EnvLocal)

	port := 8081
	// Prefer PORT (Render, Fly.io, Railway, etc.) then RGS_PORT
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	} else if p := os.Getenv("RGS_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	}

	databaseURL := os.Getenv("DATABASE_URL")
	backend := os.Getenv("WALLET_BACKEND")
	if backend == "" {
		backend = WalletMemory
		if databaseURL != "" {
			backend = WalletPostgres
		}
	}

	return &Config{
		Env:            env,
		Port:           port,
		DataDir:        getenv("RGS_DATA_DIR", "data"),
		DatabaseURL:    databaseURL,
		PlatformURL:    getenv("PLATFORM_URL", "http://localhost:3000"),
		PlatformAPIKey: os.Getenv("PLATFORM_API_KEY"),
		Currency:       getenv("CURRENCY", "USD"),
		WalletBackend:  backend,
		CrashConfig:    os.Getenv("CRASH_CONFIG"),
		Pusher: PusherConfig{
			AppID:   os.Getenv("PUSHER_APP_ID"),
			Key:     os.Getenv("PUSHER_KEY"),
			Secret:  os.Getenv("PUSHER_SECRET"),
			Cluster: getenv("PUSHER_CLUSTER", "eu"),
			Channel: getenv("PUSHER_CHANNEL", "crash-channel"),
		},
		OperatorEndpoint: os.Getenv("OPERATOR_ENDPOINT"),
		OperatorSecret:   os.Getenv("OPERATOR_SECRET"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
