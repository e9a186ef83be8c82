package conn

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the parameters of a Manager.
type Config struct {
	URL       string
	Token     string
	SessionID string
	UserID    string

	MaxReconnectAttempts  int
	InitialReconnectDelay time.Duration
	MaxReconnectDelay     time.Duration
	HeartbeatInterval     time.Duration

	// QueueSize bounds the outbound queue. The oldest message is dropped
	// on overflow.
	QueueSize int

	// LatencyWindow is the number of samples averaged by Stats.
	LatencyWindow int
}

// DefaultConfig returns the default tuning with no endpoint or identity.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts:  10,
		InitialReconnectDelay: time.Second,
		MaxReconnectDelay:     30 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		QueueSize:             1000,
		LatencyWindow:         100,
	}
}

// withDefaults fills zero tuning fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.InitialReconnectDelay == 0 {
		c.InitialReconnectDelay = d.InitialReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.QueueSize == 0 {
		c.QueueSize = d.QueueSize
	}
	if c.LatencyWindow == 0 {
		c.LatencyWindow = d.LatencyWindow
	}
	return c
}

// Validate reports configuration errors. Zero tuning values are valid and
// mean "use the default".
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.SessionID == "" {
		errs = append(errs, errors.New("session id is required"))
	}
	if c.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("max reconnect attempts must be >= 0, got %d", c.MaxReconnectAttempts))
	}
	if c.InitialReconnectDelay < 0 || c.MaxReconnectDelay < 0 || c.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.MaxReconnectDelay > 0 && c.InitialReconnectDelay > c.MaxReconnectDelay {
		errs = append(errs, fmt.Errorf("initial reconnect delay %s exceeds max %s", c.InitialReconnectDelay, c.MaxReconnectDelay))
	}
	if c.QueueSize < 0 || c.LatencyWindow < 0 {
		errs = append(errs, errors.New("queue size and latency window must not be negative"))
	}
	return errors.Join(errs...)
}

// fileConfig is the YAML form of Config. Durations are milliseconds.
type fileConfig struct {
	URL                     string `yaml:"url"`
	Token                   string `yaml:"token,omitempty"`
	SessionID               string `yaml:"session_id"`
	UserID                  string `yaml:"user_id,omitempty"`
	MaxReconnectAttempts    int    `yaml:"max_reconnect_attempts,omitempty"`
	InitialReconnectDelayMS int    `yaml:"initial_reconnect_delay_ms,omitempty"`
	MaxReconnectDelayMS     int    `yaml:"max_reconnect_delay_ms,omitempty"`
	HeartbeatIntervalMS     int    `yaml:"heartbeat_interval_ms,omitempty"`
	QueueSize               int    `yaml:"queue_size,omitempty"`
	LatencyWindow           int    `yaml:"latency_window,omitempty"`
}

// ParseConfig decodes a YAML document into a Config with defaults applied.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse connection config: %w", err)
	}
	cfg := Config{
		URL:                   fc.URL,
		Token:                 fc.Token,
		SessionID:             fc.SessionID,
		UserID:                fc.UserID,
		MaxReconnectAttempts:  fc.MaxReconnectAttempts,
		InitialReconnectDelay: time.Duration(fc.InitialReconnectDelayMS) * time.Millisecond,
		MaxReconnectDelay:     time.Duration(fc.MaxReconnectDelayMS) * time.Millisecond,
		HeartbeatInterval:     time.Duration(fc.HeartbeatIntervalMS) * time.Millisecond,
		QueueSize:             fc.QueueSize,
		LatencyWindow:         fc.LatencyWindow,
	}.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid connection config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML connection config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read connection config: %w", err)
	}
	return ParseConfig(data)
}
