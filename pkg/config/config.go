package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alim08/treasury_line/pkg/database"
	"github.com/joho/godotenv"
)

// Store backends for bonds and trades.
const (
	StorePostgres = database.BackendPostgres
	StoreMemory   = database.BackendMemory
)

type Config struct {
	RedisURL    string
	HTTPPort    int
	MetricsPort int
	Store       string

	SimInterval  time.Duration
	HighlightTTL time.Duration
	CORSOrigins  []string
	AuthEnabled  bool

	// Simulate runs the market simulator inside the API process.
	Simulate bool
	// AutoExecute moves booked trades straight to EXECUTED.
	AutoExecute bool

	ChartWidth  int
	ChartHeight int

	// FeedURL is the websocket endpoint the curve client subscribes to.
	FeedURL string
	// CurveOut is where the curve client writes its SVG.
	CurveOut string

	// Migrate asks the simulator binary for a one-off schema task
	// instead of running the market: MigrateStatus or MigrateDown.
	Migrate string
}

// Schema tasks accepted by -migrate.
const (
	MigrateStatus = "status"
	MigrateDown   = "down"
)

// Load reads an optional .env file, environment variables and application
// flags (via a local FlagSet), strips out any -test.* flags, and validates
// required fields.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

// LoadClient is Load for processes that only read the websocket feed;
// REDIS_URL is optional.
func LoadClient() (*Config, error) {
	return loadWith(os.Args[1:], false)
}

func load(args []string) (*Config, error) {
	return loadWith(args, true)
}

func loadWith(args []string, requireRedis bool) (*Config, error) {
	// .env is optional; variables already set in the environment win
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	// 1. Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	// 2. Define only the flags this package cares about
	var redisURL, store, feedURL, curveOut, migrate string
	var httpPort, metricsPort int
	fs.StringVar(&redisURL, "redis", os.Getenv("REDIS_URL"), "Redis connection URL")
	fs.IntVar(&httpPort, "port", 8086, "HTTP listen port")
	fs.IntVar(&metricsPort, "metrics-port", 8082, "Metrics server port")
	fs.StringVar(&store, "store", getEnvOrDefault("STORE", StorePostgres), "Storage backend: postgres or memory")
	fs.StringVar(&feedURL, "feed", getEnvOrDefault("FEED_URL", "ws://localhost:8086/ws"), "Market data websocket URL")
	fs.StringVar(&curveOut, "out", getEnvOrDefault("CURVE_OUT", "yield-curve.svg"), "Yield curve SVG output path")
	fs.StringVar(&migrate, "migrate", "", "Schema task to run and exit: status or down")

	// 3. Filter out any -test.* args before parsing
	var appArgs []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	// 4. Populate our Config struct
	cfg := &Config{
		RedisURL:     redisURL,
		HTTPPort:     httpPort,
		MetricsPort:  metricsPort,
		Store:        store,
		FeedURL:      feedURL,
		CurveOut:     curveOut,
		Migrate:      migrate,
		SimInterval:  getDurationEnvOrDefault("SIM_INTERVAL", 2*time.Second),
		HighlightTTL: getDurationEnvOrDefault("HIGHLIGHT_TTL", 500*time.Millisecond),
		CORSOrigins:  splitAndTrim(getEnvOrDefault("CORS_ORIGINS", "http://localhost:4200,http://127.0.0.1:4200"), ","),
		AuthEnabled:  getBoolEnvOrDefault("AUTH_ENABLED", false),
		Simulate:     getBoolEnvOrDefault("SIMULATE", true),
		AutoExecute:  getBoolEnvOrDefault("AUTO_EXECUTE", true),
		ChartWidth:   400,
		ChartHeight:  200,
	}

	// Check for PORT env var (overrides flag/default if set)
	if portEnv := os.Getenv("PORT"); portEnv != "" {
		if portVal, err := strconv.Atoi(portEnv); err == nil {
			cfg.HTTPPort = portVal
		} else {
			return nil, fmt.Errorf("invalid PORT env var: %v", err)
		}
	}

	if w := os.Getenv("CHART_WIDTH"); w != "" {
		v, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("invalid CHART_WIDTH env var: %v", err)
		}
		cfg.ChartWidth = v
	}
	if h := os.Getenv("CHART_HEIGHT"); h != "" {
		v, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("invalid CHART_HEIGHT env var: %v", err)
		}
		cfg.ChartHeight = v
	}

	// 5. Validate required fields
	if requireRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("missing required config: REDIS_URL or -redis")
	}
	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("invalid store %q: want %s or %s", cfg.Store, StorePostgres, StoreMemory)
	}
	if cfg.Migrate != "" && cfg.Migrate != MigrateStatus && cfg.Migrate != MigrateDown {
		return nil, fmt.Errorf("invalid -migrate %q: want %s or %s", cfg.Migrate, MigrateStatus, MigrateDown)
	}
	if cfg.SimInterval <= 0 {
		return nil, fmt.Errorf("SIM_INTERVAL must be positive")
	}

	return cfg, nil
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
