// ABOUTME: Configuration loading and parsing for symposium
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete symposium configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Auth         AuthConfig         `yaml:"auth"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Conversation ConversationConfig `yaml:"conversation"`
	Streaming    StreamingConfig    `yaml:"streaming"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables
// token checks entirely.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// GatewayConfig points at the external model-call service.
type GatewayConfig struct {
	URL string `yaml:"url"`
}

// ConversationConfig holds turn-loop defaults applied to new sessions.
type ConversationConfig struct {
	MaxMessages        int     `yaml:"max_messages"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
	ContextWindow      int     `yaml:"context_window"`
	RetryMaxAttempts   int     `yaml:"retry_max_attempts"`

	TurnDelay      time.Duration `yaml:"-"`
	CallTimeout    time.Duration `yaml:"-"`
	RetryBaseDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TurnDelayRaw      string `yaml:"turn_delay"`
	CallTimeoutRaw    string `yaml:"call_timeout"`
	RetryBaseDelayRaw string `yaml:"retry_base_delay"`
}

// StreamingConfig holds push/socket transport configuration.
type StreamingConfig struct {
	PingInterval time.Duration `yaml:"-"`

	PingIntervalRaw string `yaml:"ping_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8270"},
		Database: DatabaseConfig{Path: "symposium.db"},
		Gateway:  GatewayConfig{URL: "http://127.0.0.1:8271/complete"},
		Conversation: ConversationConfig{
			MaxMessages:        50,
			ErrorRateThreshold: 0.5,
			ContextWindow:      20,
			RetryMaxAttempts:   3,
			TurnDelay:          2 * time.Second,
			CallTimeout:        60 * time.Second,
			RetryBaseDelay:     time.Second,
		},
		Streaming: StreamingConfig{PingInterval: 30 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Conversation.ErrorRateThreshold < 0 || c.Conversation.ErrorRateThreshold > 1 {
		return fmt.Errorf("conversation.error_rate_threshold must be between 0 and 1")
	}
	if c.Conversation.RetryMaxAttempts < 0 {
		return fmt.Errorf("conversation.retry_max_attempts must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversation.TurnDelayRaw != "" {
		cfg.Conversation.TurnDelay, err = time.ParseDuration(cfg.Conversation.TurnDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing turn_delay %q: %w", cfg.Conversation.TurnDelayRaw, err)
		}
	}

	if cfg.Conversation.CallTimeoutRaw != "" {
		cfg.Conversation.CallTimeout, err = time.ParseDuration(cfg.Conversation.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Conversation.CallTimeoutRaw, err)
		}
	}

	if cfg.Conversation.RetryBaseDelayRaw != "" {
		cfg.Conversation.RetryBaseDelay, err = time.ParseDuration(cfg.Conversation.RetryBaseDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_base_delay %q: %w", cfg.Conversation.RetryBaseDelayRaw, err)
		}
	}

	if cfg.Streaming.PingIntervalRaw != "" {
		cfg.Streaming.PingInterval, err = time.ParseDuration(cfg.Streaming.PingIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing ping_interval %q: %w", cfg.Streaming.PingIntervalRaw, err)
		}
	}

	return nil
}
