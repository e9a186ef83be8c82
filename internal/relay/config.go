package relay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures a relay Server.
type Config struct {
	// Addr is the listen address for ListenAndServe.
	Addr string `yaml:"addr"`

	// Tokens maps accepted authentication tokens to user ids. An empty map
	// accepts any token and keeps the user id the client claims.
	Tokens map[string]string `yaml:"tokens,omitempty"`

	// Redis enables cross-instance fan-out when Addr is set.
	Redis RedisConfig `yaml:"redis,omitempty"`

	// WriteTimeoutMS bounds one websocket write.
	WriteTimeoutMS int `yaml:"write_timeout_ms,omitempty"`
}

// RedisConfig locates the Redis server used by RedisBroker.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// DefaultConfig returns an open-mode relay on localhost:8080.
func DefaultConfig() Config {
	return Config{
		Addr:           "localhost:8080",
		WriteTimeoutMS: 10000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = d.WriteTimeoutMS
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "coedit"
	}
	return c
}

// WriteTimeout returns the configured write timeout.
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// OpenMode reports whether any token is accepted.
func (c Config) OpenMode() bool {
	return len(c.Tokens) == 0
}

// LoadConfig reads a YAML relay config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read relay config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse relay config: %w", err)
	}
	return cfg.withDefaults(), nil
}
