// Package config loads awardwizard configuration from YAML, environment
// variables and command line flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/livetemplate/awardwizard/internal/security"
)

// FileNames are the config file names LoadFromDir looks for, in order.
var FileNames = []string{"awardwizard.yaml", "awardwizard.yml"}

// Config represents the awardwizard configuration
type Config struct {
	Title   string        `yaml:"title" env:"AWARDWIZARD_TITLE"`
	Server  ServerConfig  `yaml:"server" envPrefix:"AWARDWIZARD_SERVER_"`
	API     APIConfig     `yaml:"api" envPrefix:"AWARDWIZARD_API_"`
	Session SessionConfig `yaml:"session" envPrefix:"AWARDWIZARD_SESSION_"`
	Upload  UploadConfig  `yaml:"upload" envPrefix:"AWARDWIZARD_UPLOAD_"`
	Log     LogConfig     `yaml:"log" envPrefix:"AWARDWIZARD_LOG_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host          string          `yaml:"host" env:"HOST"`
	Port          int             `yaml:"port" env:"PORT"`
	Debug         bool            `yaml:"debug" env:"DEBUG"`
	TemplatesDir  string          `yaml:"templates_dir,omitempty" env:"TEMPLATES_DIR"` // Overrides embedded templates when set
	Watch         bool            `yaml:"watch,omitempty" env:"WATCH"`                 // Reload TemplatesDir on change
	SecureCookies bool            `yaml:"secure_cookies,omitempty" env:"SECURE_COOKIES"`
	RateLimit     RateLimitConfig `yaml:"rate_limit,omitempty" envPrefix:"RATE_LIMIT_"`
}

// RateLimitConfig configures per-IP rate limiting of the served pages.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" env:"RPS"`
	Burst             int     `yaml:"burst,omitempty" env:"BURST"`
	MaxIPs            int     `yaml:"max_ips,omitempty" env:"MAX_IPS"`
}

// APIConfig configures the remote award API.
type APIConfig struct {
	BaseURL          string        `yaml:"base_url" env:"BASE_URL"`
	Timeout          string        `yaml:"timeout,omitempty" env:"TIMEOUT"` // Per-request timeout. Default: none
	NominationsCache string        `yaml:"nominations_cache,omitempty" env:"NOMINATIONS_CACHE"`
	Retry            RetryConfig   `yaml:"retry,omitempty" envPrefix:"RETRY_"`
	Circuit          CircuitConfig `yaml:"circuit,omitempty" envPrefix:"CIRCUIT_"`
}

// RetryConfig configures retries of idempotent reads.
type RetryConfig struct {
	MaxRetries *int   `yaml:"max_retries,omitempty" env:"MAX_RETRIES"` // Default: 3, 0 disables
	BaseDelay  string `yaml:"base_delay,omitempty" env:"BASE_DELAY"`   // Default: 100ms
	MaxDelay   string `yaml:"max_delay,omitempty" env:"MAX_DELAY"`     // Default: 5s
}

// CircuitConfig configures the circuit breaker around the remote API.
type CircuitConfig struct {
	FailureThreshold int    `yaml:"failure_threshold,omitempty" env:"FAILURE_THRESHOLD"` // Default: 5
	Timeout          string `yaml:"timeout,omitempty" env:"TIMEOUT"`                     // Default: 30s
}

// SessionConfig configures where wizard state is persisted.
type SessionConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // "memory", "sqlite" or "postgres"
	DSN     string `yaml:"dsn,omitempty" env:"DSN"`
	TTL     string `yaml:"ttl,omitempty" env:"TTL"` // Idle time after which a session is dropped. Default: 30m
}

// UploadConfig limits file uploads.
type UploadConfig struct {
	MaxBytes int64    `yaml:"max_bytes,omitempty" env:"MAX_BYTES"`
	Accept   []string `yaml:"accept,omitempty" env:"ACCEPT"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"LEVEL"`
	Development bool   `yaml:"development,omitempty" env:"DEVELOPMENT"`
}

// Session backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Alumni Entrepreneur Award",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		API: APIConfig{
			BaseURL: "http://localhost:3000",
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			TTL:     "30m",
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
			Accept:   []string{"application/pdf"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment
// overrides. If the file doesn't exist, the defaults are used.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir looks for awardwizard.yaml or awardwizard.yml in dir.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Load("")
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if err := security.ValidateAPIURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Session.DSN == "" {
			return fmt.Errorf("session.dsn is required for the %s backend", c.Session.Backend)
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Server.Watch && c.Server.TemplatesDir == "" {
		return fmt.Errorf("server.watch requires server.templates_dir")
	}
	return nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetRPS returns the rate limit in requests per second (default: 10)
func (c RateLimitConfig) GetRPS() float64 {
	if c.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RequestsPerSecond
}

// GetBurst returns the burst size (default: 20)
func (c RateLimitConfig) GetBurst() int {
	if c.Burst <= 0 {
		return 20
	}
	return c.Burst
}

// GetMaxIPs returns the number of tracked client IPs (default: 10000)
func (c RateLimitConfig) GetMaxIPs() int {
	if c.MaxIPs <= 0 {
		return 10000
	}
	return c.MaxIPs
}

// GetTimeout returns the per-request timeout. Zero means none.
func (c APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 0)
}

// GetNominationsCacheTTL returns how long nomination lists are cached (default: 30s)
func (c APIConfig) GetNominationsCacheTTL() time.Duration {
	return parseDuration(c.NominationsCache, 30*time.Second)
}

// GetMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c RetryConfig) GetMaxRetries() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return 3
	}
	return *c.MaxRetries
}

// GetBaseDelay returns the base delay (default: 100ms)
func (c RetryConfig) GetBaseDelay() time.Duration {
	return parseDuration(c.BaseDelay, 100*time.Millisecond)
}

// GetMaxDelay returns the max delay (default: 5s)
func (c RetryConfig) GetMaxDelay() time.Duration {
	return parseDuration(c.MaxDelay, 5*time.Second)
}

// GetFailureThreshold returns failures before the circuit opens (default: 5)
func (c CircuitConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return 5
	}
	return c.FailureThreshold
}

// GetTimeout returns how long the circuit stays open (default: 30s)
func (c CircuitConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetTTL returns the session idle TTL (default: 30m)
func (c SessionConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 30*time.Minute)
}

// GetMaxBytes returns the upload size limit (default: 10MB).
func (c UploadConfig) GetMaxBytes() int64 {
	if c.MaxBytes <= 0 {
		return 10 << 20
	}
	return c.MaxBytes
}

// IsAccepted reports whether contentType may be uploaded. An empty
// accept list allows everything.
func (c UploadConfig) IsAccepted(contentType string) bool {
	if len(c.Accept) == 0 {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, a := range c.Accept {
		if strings.EqualFold(a, ct) {
			return true
		}
	}
	return false
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
