// Package config loads and validates the playout daemon configuration: the
// channel registry naming each sequencer endpoint, protocol timing knobs,
// and the notification/gateway surfaces.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/c360/playout/errors"
)

// Config is the complete daemon configuration.
type Config struct {
	Platform  PlatformConfig  `yaml:"platform"`
	Channels  []Channel       `yaml:"channels"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	NATS      NATSConfig      `yaml:"nats"`
	Gateway   GatewayConfig   `yaml:"gateway"`
}

// PlatformConfig identifies this playout instance.
type PlatformConfig struct {
	ID          string `yaml:"id"`
	Environment string `yaml:"environment,omitempty"`
}

// Channel is one sequencer endpoint to maintain a connection to.
type Channel struct {
	ID   string `yaml:"id"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Type string `yaml:"type,omitempty"`
}

// Addr returns the dialable host:port for the channel.
func (c Channel) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SequencerConfig carries protocol timing knobs. Zero values take the
// defaults below.
type SequencerConfig struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

// NATSConfig enables publishing state-change notifications to a broker.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// GatewayConfig configures the HTTP/WebSocket surface for UI subscribers.
type GatewayConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

// Default timing values; the 5s reconnect delay and 30s fetch timeout are
// part of the protocol contract with callers.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultFetchTimeout   = 30 * time.Second
	DefaultGatewayPort    = 8090
)

// Load reads the YAML file at path, overlays a .env file (if present) and
// environment variables, applies defaults and validates.
func Load(path string) (*Config, error) {
	// Missing .env is fine; system environment still applies.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "parse yaml")
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PLAYOUT_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("PLAYOUT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("PLAYOUT_PLATFORM_ID"); v != "" {
		c.Platform.ID = v
	}
}

// ApplyDefaults fills zero-valued timing and port fields.
func (c *Config) ApplyDefaults() {
	if c.Sequencer.DialTimeout == 0 {
		c.Sequencer.DialTimeout = DefaultDialTimeout
	}
	if c.Sequencer.ReconnectDelay == 0 {
		c.Sequencer.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Sequencer.FetchTimeout == 0 {
		c.Sequencer.FetchTimeout = DefaultFetchTimeout
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.MetricsPath == "" {
		c.Gateway.MetricsPath = "/metrics"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "playout"
	}
}

// Validate checks the channel registry and platform identity.
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "config", "Validate", "platform.id")
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return errors.WrapFatal(
				fmt.Errorf("channel %d: %w", i, errors.ErrMissingConfig),
				"config", "Validate", "channel id")
		}
		if seen[ch.ID] {
			return errors.WrapFatal(
				fmt.Errorf("duplicate channel id %q: %w", ch.ID, errors.ErrInvalidConfig),
				"config", "Validate", "channel registry")
		}
		seen[ch.ID] = true

		if ch.Host == "" || ch.Port <= 0 || ch.Port > 65535 {
			return errors.WrapFatal(
				fmt.Errorf("channel %q has invalid endpoint %s: %w", ch.ID, ch.Addr(), errors.ErrInvalidConfig),
				"config", "Validate", "channel endpoint")
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.WrapFatal(
			fmt.Errorf("nats enabled without url: %w", errors.ErrMissingConfig),
			"config", "Validate", "nats")
	}
	return nil
}
