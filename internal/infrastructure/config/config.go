package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Engine    EngineConfig    `yaml:"engine" toml:"engine"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Frames    FramesConfig    `yaml:"frames" toml:"frames"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host            string   `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS" default:"*" yaml:"allowed_origins" toml:"allowed_origins"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// EngineConfig holds script runtime configuration.
type EngineConfig struct {
	BundlePath  string   `envconfig:"ENGINE_BUNDLE" yaml:"bundle" toml:"bundle"`
	Network     string   `envconfig:"ENGINE_NETWORK" default:"mainnet" yaml:"network" toml:"network"`
	APIURL      string   `envconfig:"ENGINE_API_URL" yaml:"api_url" toml:"api_url"`
	InitMethod  string   `envconfig:"ENGINE_INIT_METHOD" default:"init" yaml:"init_method" toml:"init_method"`
	CallTimeout Duration `envconfig:"ENGINE_CALL_TIMEOUT" default:"30s" yaml:"call_timeout" toml:"call_timeout"`
	InitTimeout Duration `envconfig:"ENGINE_INIT_TIMEOUT" default:"60s" yaml:"init_timeout" toml:"init_timeout"`
}

// StorageConfig holds key/value store configuration. An empty path keeps
// everything in memory.
type StorageConfig struct {
	Path   string `envconfig:"STORAGE_PATH" yaml:"path" toml:"path"`
	Prefix string `envconfig:"STORAGE_PREFIX" default:"walletkit:" yaml:"prefix" toml:"prefix"`
}

// HTTPConfig holds outbound HTTP configuration used by the fetch and event
// stream capabilities.
type HTTPConfig struct {
	Timeout         Duration `envconfig:"HTTP_TIMEOUT" default:"30s" yaml:"timeout" toml:"timeout"`
	RetryMax        int      `envconfig:"HTTP_RETRY_MAX" default:"2" yaml:"retry_max" toml:"retry_max"`
	RequestsPerSec  float64  `envconfig:"HTTP_RPS" default:"20" yaml:"rps" toml:"rps"`
	Burst           int      `envconfig:"HTTP_BURST" default:"40" yaml:"burst" toml:"burst"`
	BreakerFailures uint32   `envconfig:"HTTP_BREAKER_FAILURES" default:"5" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"HTTP_BREAKER_TIMEOUT" default:"30s" yaml:"breaker_timeout" toml:"breaker_timeout"`
	UserAgent       string   `envconfig:"HTTP_USER_AGENT" default:"WalletKitBridge/1.0" yaml:"user_agent" toml:"user_agent"`
}

// FramesConfig holds cross-frame router configuration.
type FramesConfig struct {
	RequestTimeout Duration `envconfig:"FRAMES_REQUEST_TIMEOUT" default:"120s" yaml:"request_timeout" toml:"request_timeout"`
	ProxyEnabled   bool     `envconfig:"FRAMES_PROXY_ENABLED" default:"true" yaml:"proxy_enabled" toml:"proxy_enabled"`
	MaxPageBytes   int64    `envconfig:"FRAMES_MAX_PAGE_BYTES" default:"10485760" yaml:"max_page_bytes" toml:"max_page_bytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"rps" toml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Duration is a time.Duration that decodes from strings like "30s" in
// environment variables and config files alike.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load loads configuration from environment variables, then overlays the
// file named by CONFIG_FILE when set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.Overlay(path); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Overlay merges a YAML or TOML file into cfg. Keys absent from the file
// keep their current values.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Engine: EngineConfig{
			Network:     "mainnet",
			InitMethod:  "init",
			CallTimeout: Duration(30 * time.Second),
			InitTimeout: Duration(60 * time.Second),
		},
		Storage: StorageConfig{
			Prefix: "walletkit:",
		},
		HTTP: HTTPConfig{
			Timeout:         Duration(30 * time.Second),
			RetryMax:        2,
			RequestsPerSec:  20,
			Burst:           40,
			BreakerFailures: 5,
			BreakerTimeout:  Duration(30 * time.Second),
			UserAgent:       "WalletKitBridge/1.0",
		},
		Frames: FramesConfig{
			RequestTimeout: Duration(120 * time.Second),
			ProxyEnabled:   true,
			MaxPageBytes:   10 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
