package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "stub", cfg.Generator)
	assert.Equal(t, 0.7, cfg.ActivationThreshold)
	assert.Equal(t, 5, cfg.MaxMonitoringTurns)
	assert.Equal(t, 60, cfg.MaxSessionTurns)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 100, cfg.MaxConcurrentSessions)
	assert.Equal(t, 1000, cfg.MessagesPerHour)
	assert.Equal(t, time.Second, cfg.DispatchBaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.DispatchMaxDelay)
	assert.Equal(t, 6, cfg.DispatchMaxAttempts)
	assert.False(t, cfg.AllowInsecureCallback)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "sqlite")
	t.Setenv("API_KEYS", "key-a, key-b,,key-c")
	t.Setenv("IDLE_TIMEOUT", "30s")
	t.Setenv("ACTIVATION_THRESHOLD", "0.85")
	t.Setenv("ALLOW_INSECURE_CALLBACK", "true")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.APIKeys)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 0.85, cfg.ActivationThreshold)
	assert.True(t, cfg.AllowInsecureCallback)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("IDLE_TIMEOUT", "soon")
	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
}

func TestValidate(t *testing.T) {
	valid := Load()
	valid.APIKeys = []string{"key-a"}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "postgres" }},
		{"unknown generator", func(c *Config) { c.Generator = "llama" }},
		{"no api keys", func(c *Config) { c.APIKeys = nil }},
		{"threshold too high", func(c *Config) { c.ActivationThreshold = 1.5 }},
		{"threshold zero", func(c *Config) { c.ActivationThreshold = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			cfg.APIKeys = []string{"key-a"}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
