// Package config loads engine configuration from environment variables.
// Every knob has a production default; a bare environment yields a working
// in-memory deployment with the stub generator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	// Server
	Port     int
	LogLevel string
	LogFmt   string

	// Auth
	APIKeys []string

	// Store
	Store  string // "memory" or "sqlite"
	DBPath string

	// Generation
	Generator      string // "stub", "openai" or "anthropic"
	OpenAIModel    string
	AnthropicModel string
	PersonaFile    string

	// Lifecycle
	ActivationThreshold float64
	MaxMonitoringTurns  int
	MaxSessionTurns     int
	IdleTimeout         time.Duration
	SweepInterval       time.Duration

	// Admission
	MaxConcurrentSessions int
	MessagesPerHour       int

	// Report delivery
	CallbackURL           string
	AllowInsecureCallback bool
	DispatchBaseDelay     time.Duration
	DispatchMaxDelay      time.Duration
	DispatchMaxAttempts   int
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Port:     getInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFmt:   getEnv("LOG_FORMAT", "json"),

		APIKeys: getList("API_KEYS"),

		Store:  getEnv("STORE", "memory"),
		DBPath: getEnv("DB_PATH", "data/intelhive.db"),

		Generator:      getEnv("GENERATOR", "stub"),
		OpenAIModel:    getEnv("OPENAI_MODEL", ""),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", ""),
		PersonaFile:    getEnv("PERSONA_FILE", ""),

		ActivationThreshold: getFloat("ACTIVATION_THRESHOLD", 0.7),
		MaxMonitoringTurns:  getInt("MAX_MONITORING_TURNS", 5),
		MaxSessionTurns:     getInt("MAX_SESSION_TURNS", 60),
		IdleTimeout:         getDuration("IDLE_TIMEOUT", 10*time.Minute),
		SweepInterval:       getDuration("SWEEP_INTERVAL", time.Minute),

		MaxConcurrentSessions: getInt("MAX_CONCURRENT_SESSIONS", 100),
		MessagesPerHour:       getInt("MESSAGES_PER_HOUR", 1000),

		CallbackURL:           getEnv("CALLBACK_URL", ""),
		AllowInsecureCallback: getBool("ALLOW_INSECURE_CALLBACK", false),
		DispatchBaseDelay:     getDuration("DISPATCH_BASE_DELAY", time.Second),
		DispatchMaxDelay:      getDuration("DISPATCH_MAX_DELAY", 2*time.Minute),
		DispatchMaxAttempts:   getInt("DISPATCH_MAX_ATTEMPTS", 6),
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown STORE %q (want memory or sqlite)", c.Store)
	}
	switch c.Generator {
	case "stub", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown GENERATOR %q (want stub, openai or anthropic)", c.Generator)
	}
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS must list at least one credential")
	}
	if c.ActivationThreshold <= 0 || c.ActivationThreshold > 1 {
		return fmt.Errorf("ACTIVATION_THRESHOLD must be in (0, 1], got %g", c.ActivationThreshold)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
