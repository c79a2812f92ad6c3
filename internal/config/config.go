package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	CacheBus  CacheBusConfig  `mapstructure:"cache_bus"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`

	// Upstream timeouts. RequestTimeout bounds unary calls end to end;
	// streams have no overall deadline, only StreamIdleTimeout between
	// upstream events. AdminTimeout bounds admin handlers.
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
	AdminTimeout      time.Duration `mapstructure:"admin_timeout"`
}

type StoreConfig struct {
	URI             string        `mapstructure:"uri"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type CacheBusConfig struct {
	URI     string `mapstructure:"uri"`
	Channel string `mapstructure:"channel"`
}

type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

// ProviderConfig is one upstream family's credentials. An empty APIKey means
// the provider is not configured; requests routed to it fail without an
// upstream call.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

func (p ProviderConfig) Configured() bool {
	return p.APIKey != ""
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `mapstructure:"openai"`
	Anthropic ProviderConfig `mapstructure:"anthropic"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/llmgate")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	// Config file is optional; environment alone is enough.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg = &config
	return cfg, nil
}

// Validate reports fatal configuration problems. Missing provider
// credentials are not fatal: the gateway starts and rejects requests routed
// to the unconfigured family.
func (c *Config) Validate() error {
	if c.Store.URI == "" {
		return fmt.Errorf("STORE_URI is required")
	}
	if c.CacheBus.URI == "" {
		return fmt.Errorf("CACHE_BUS_URI is required")
	}
	if c.Admin.Key == "" {
		return fmt.Errorf("ADMIN_KEY is required")
	}
	return nil
}

// MissingProviders lists upstream families that have no API key configured.
func (c *Config) MissingProviders() []string {
	var missing []string
	if !c.Providers.OpenAI.Configured() {
		missing = append(missing, "openai")
	}
	if !c.Providers.Anthropic.Configured() {
		missing = append(missing, "anthropic")
	}
	return missing
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")
	viper.SetDefault("server.request_timeout", "60s")
	viper.SetDefault("server.stream_idle_timeout", "120s")
	viper.SetDefault("server.admin_timeout", "10s")

	// Store defaults
	viper.SetDefault("store.max_connections", 100)
	viper.SetDefault("store.max_idle_connections", 10)
	viper.SetDefault("store.conn_max_lifetime", "1h")

	// Cache bus defaults
	viper.SetDefault("cache_bus.channel", "cache_invalidation")

	// Cache defaults
	viper.SetDefault("cache.max_entries", 10000)
	viper.SetDefault("cache.ttl_seconds", 300)

	// Provider defaults
	viper.SetDefault("providers.openai.base_url", "https://api.openai.com")
	viper.SetDefault("providers.anthropic.base_url", "https://api.anthropic.com")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output_path", "")

	// CORS defaults
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "anthropic-version"})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 86400)
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.host", "HOST")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.request_timeout", "REQUEST_TIMEOUT")
	viper.BindEnv("server.stream_idle_timeout", "STREAM_IDLE_TIMEOUT")
	viper.BindEnv("server.admin_timeout", "ADMIN_TIMEOUT")

	// Store
	viper.BindEnv("store.uri", "STORE_URI")
	viper.BindEnv("store.database", "STORE_DB")
	viper.BindEnv("store.max_connections", "STORE_MAX_CONNECTIONS")
	viper.BindEnv("store.max_idle_connections", "STORE_MAX_IDLE_CONNECTIONS")

	// Cache bus
	viper.BindEnv("cache_bus.uri", "CACHE_BUS_URI")
	viper.BindEnv("cache_bus.channel", "CACHE_BUS_CHANNEL")

	// Cache
	viper.BindEnv("cache.max_entries", "CACHE_MAX_ENTRIES")
	viper.BindEnv("cache.ttl_seconds", "CACHE_TTL_SECONDS")

	// Admin
	viper.BindEnv("admin.key", "ADMIN_KEY")

	// Providers
	viper.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("providers.openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("providers.anthropic.base_url", "ANTHROPIC_BASE_URL")

	// Logging
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")

	// CORS
	viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
}

func Get() *Config {
	return cfg
}
