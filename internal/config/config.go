package config

import (
	"os"
	"strconv"
	"time"
)

// Sync queue clear policies, applied after a successful authoritative fetch.
const (
	// ClearPolicyAll resets the pending queue unconditionally, matching the
	// historical behavior (mutations whose replay failed are dropped too).
	ClearPolicyAll = "all"
	// ClearPolicyConfirmed drops only mutations whose individual replay
	// succeeded; failed ones stay queued for the next cycle.
	ClearPolicyConfirmed = "confirmed"
)

// Config holds all application configuration for both binaries.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server (fintrackd)
	Port     int
	LogLevel string
	DataFile string

	// Agent (fintrack-agent)
	AgentPort     int
	RemoteBaseURL string
	StateDir      string
	SyncInterval  time.Duration
	ProbeTTL      time.Duration
	ClearPolicy   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DataFile: getEnv("DATA_FILE", "data/transactions.json"),

		AgentPort:     getEnvInt("AGENT_PORT", 8090),
		RemoteBaseURL: getEnv("REMOTE_API_URL", "http://localhost:8080"),
		StateDir:      getEnv("STATE_DIR", "state"),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		ProbeTTL:      getEnvDuration("PROBE_TTL", 5*time.Second),
		ClearPolicy:   getEnv("SYNC_CLEAR_POLICY", ClearPolicyAll),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
