package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ID schemes accepted by BuilderConfig.IDScheme.
const (
	IDSchemeULID     = "ulid"
	IDSchemeSequence = "sequence"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Fetch     FetchConfig
	Builder   BuilderConfig
	Output    OutputConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// CORSOrigins lists browser origins allowed to call the API; "*" allows all.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`

	// GlobalRequestsPerSecond caps the whole service; 0 disables the cap.
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"0"`
}

// FetchConfig holds remote document fetching configuration.
type FetchConfig struct {
	Timeout           time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries           int           `envconfig:"FETCH_RETRIES" default:"3"`
	UserAgent         string        `envconfig:"FETCH_USER_AGENT" default:"scrapegoat/1.0"`
	RequestsPerSecond float64       `envconfig:"FETCH_RPS" default:"0"` // 0 = unlimited
}

// BuilderConfig holds document tree building configuration.
type BuilderConfig struct {
	MaxDocumentBytes int64  `envconfig:"MAX_DOCUMENT_BYTES" default:"10485760"`
	IDScheme         string `envconfig:"ID_SCHEME" default:"ulid"`
	SanitizeHTML     bool   `envconfig:"SANITIZE_HTML" default:"false"`
}

// OutputConfig holds result file configuration.
type OutputConfig struct {
	Dir string `envconfig:"OUTPUT_DIR" default:"./outputs"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks values envconfig cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Builder.IDScheme {
	case IDSchemeULID, IDSchemeSequence:
	default:
		return fmt.Errorf("invalid ID_SCHEME %q: want %q or %q", c.Builder.IDScheme, IDSchemeULID, IDSchemeSequence)
	}
	if c.Builder.MaxDocumentBytes <= 0 {
		return fmt.Errorf("invalid MAX_DOCUMENT_BYTES %d: must be positive", c.Builder.MaxDocumentBytes)
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid CORS_ORIGINS entry %q: want * or an http(s) origin", origin)
		}
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("invalid FETCH_RETRIES %d: must not be negative", c.Fetch.Retries)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			Retries:   3,
			UserAgent: "scrapegoat/1.0",
		},
		Builder: BuilderConfig{
			MaxDocumentBytes: 10 << 20,
			IDScheme:         IDSchemeULID,
		},
		Output: OutputConfig{
			Dir: "./outputs",
		},
	}
}
