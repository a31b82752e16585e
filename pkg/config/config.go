package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the engine core.
type Config struct {
	Port string

	// Fleet
	Symbols       []string
	FleetFile     string
	CycleInterval time.Duration

	// Market data
	UseMockFeed bool
	FeedURL     string

	// Signal worker
	SignalWorkerAddr    string
	SignalWorkerTimeout time.Duration

	// Execution
	ExecutorTimeout time.Duration
	ExecutorRate    float64 // submissions per second allowed by the paper executor

	// Health monitoring
	MonitorInterval  time.Duration
	HeartbeatTimeout time.Duration
	ErrorSpike       int

	// Recovery
	MaxRestartsPerHour int
	BackoffBase        time.Duration

	// Risk policy
	InitialEquity          float64
	MaxDailyLossPct        float64
	MaxConcurrentPositions int
	KellyFraction          float64
	VolTargetAnn           float64
	MaxSymbolRiskPct       float64

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Misc
	Production bool
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the process still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		Symbols:                splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		FleetFile:              getEnv("FLEET_FILE", "engines.yaml"),
		CycleInterval:          getEnvDuration("CYCLE_INTERVAL", 5*time.Second),
		UseMockFeed:            getEnv("USE_MOCK_FEED", "true") == "true",
		FeedURL:                getEnv("FEED_URL", ""),
		SignalWorkerAddr:       getEnv("SIGNAL_WORKER_ADDR", "localhost:50051"),
		SignalWorkerTimeout:    getEnvDuration("SIGNAL_WORKER_TIMEOUT", 2*time.Second),
		ExecutorTimeout:        getEnvDuration("EXECUTOR_TIMEOUT", 5*time.Second),
		ExecutorRate:           getEnvFloat("EXECUTOR_RATE", 10),
		MonitorInterval:        getEnvDuration("MONITOR_INTERVAL", 30*time.Second),
		HeartbeatTimeout:       getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second),
		ErrorSpike:             getEnvInt("ERROR_SPIKE_THRESHOLD", 10),
		MaxRestartsPerHour:     getEnvInt("MAX_RESTARTS_PER_HOUR", 5),
		BackoffBase:            getEnvDuration("RESTART_BACKOFF_BASE", time.Minute),
		InitialEquity:          getEnvFloat("INITIAL_EQUITY", 10000),
		MaxDailyLossPct:        getEnvFloat("MAX_DAILY_LOSS_PCT", 2.0),
		MaxConcurrentPositions: getEnvInt("MAX_CONCURRENT_POSITIONS", 3),
		KellyFraction:          getEnvFloat("KELLY_FRACTION", 0.25),
		VolTargetAnn:           getEnvFloat("VOL_TARGET_ANNUAL", 0.20),
		MaxSymbolRiskPct:       getEnvFloat("MAX_SYMBOL_RISK_PCT", 0.10),
		DBPath:                 getEnv("DB_PATH", "./data/engines.db"),
		JWTSecret:              getEnv("JWT_SECRET", "dev-secret"),
		Production:             getEnv("APP_ENV", "development") == "production",
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
