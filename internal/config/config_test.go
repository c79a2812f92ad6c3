package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_URI", "postgres://localhost/llmgate")
	t.Setenv("CACHE_BUS_URI", "redis://localhost:6379")
	t.Setenv("ADMIN_KEY", "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.StreamIdleTimeout)
	assert.Equal(t, "cache_invalidation", cfg.CacheBus.Channel)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, "https://api.openai.com", cfg.Providers.OpenAI.BaseURL)
	assert.Equal(t, "https://api.anthropic.com", cfg.Providers.Anthropic.BaseURL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_URI", "postgres://db/llmgate")
	t.Setenv("CACHE_BUS_URI", "redis://bus:6379")
	t.Setenv("ADMIN_KEY", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_TTL_SECONDS", "30")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://fake-upstream:1234")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL())
	assert.True(t, cfg.Providers.OpenAI.Configured())
	assert.Equal(t, "http://fake-upstream:1234", cfg.Providers.OpenAI.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing store", func(c *Config) { c.Store.URI = "" }, "STORE_URI"},
		{"missing bus", func(c *Config) { c.CacheBus.URI = "" }, "CACHE_BUS_URI"},
		{"missing admin key", func(c *Config) { c.Admin.Key = "" }, "ADMIN_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Store.URI = "postgres://localhost/llmgate"
			cfg.CacheBus.URI = "redis://localhost:6379"
			cfg.Admin.Key = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMissingProviders(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.MissingProviders())

	cfg.Providers.OpenAI.APIKey = "sk-test"
	assert.Equal(t, []string{"anthropic"}, cfg.MissingProviders())

	cfg.Providers.Anthropic.APIKey = "sk-ant-test"
	assert.Empty(t, cfg.MissingProviders())
}
