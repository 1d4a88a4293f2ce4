// Package config loads daemon and client settings from a YAML file,
// with environment variables taking precedence — the same two-step
// load-then-override shape the teacher's mini-service uses.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DaemonConfig configures a single blockchatd process.
type DaemonConfig struct {
	NetworkPort       uint16          `yaml:"network_port"`
	BootstrapPort     uint16          `yaml:"bootstrap_port"`
	CommandPort       uint16          `yaml:"command_port"`
	BootstrapPeerAddr string          `yaml:"bootstrap_peer_addr"`
	TotalPeers        uint16          `yaml:"total_peers"`
	CentsPerPeer      uint32          `yaml:"cents_per_peer"`
	MetricsAddr       string          `yaml:"metrics_addr"`
	History           bool            `yaml:"history"`
	Logging           LoggingConfig   `yaml:"logging"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	ConnectionsPerSecond float64 `yaml:"connections_per_second"`
	Burst                int     `yaml:"burst"`
}

// LoadDaemon reads a DaemonConfig from path, applying BLOCK_CHAT_*
// environment variable overrides, then validates it.
func LoadDaemon(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DaemonConfig{
		BootstrapPort: 27736,
		NetworkPort:   27737,
		TotalPeers:    5,
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		RateLimit:     RateLimitConfig{ConnectionsPerSecond: 50, Burst: 10},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if v := os.Getenv("BLOCK_CHAT_BOOTSTRAP_PEER_SOCKET"); v != "" {
		cfg.BootstrapPeerAddr = v
	}
	if v := os.Getenv("BLOCK_CHAT_BOOTSTRAP_PORT"); v != "" {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.BootstrapPort = uint16(port)
		}
	}
	if v := os.Getenv("BLOCK_CHAT_NETWORK_PORT"); v != "" {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.NetworkPort = uint16(port)
		}
	}
	if v := os.Getenv("BLOCK_CHAT_NETWORK_SIZE"); v != "" {
		if size, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.TotalPeers = uint16(size)
		}
	}
	if v := os.Getenv("BLOCK_CHAT_DAEMON_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

func (c *DaemonConfig) Validate() error {
	if c.TotalPeers < 2 {
		return fmt.Errorf("total_peers must be at least 2, got %d", c.TotalPeers)
	}
	if c.CentsPerPeer == 0 {
		return fmt.Errorf("cents_per_peer must be non-zero")
	}
	if c.BootstrapPort == 0 {
		return fmt.Errorf("bootstrap_port must be non-zero")
	}
	if c.BootstrapPeerAddr == "" {
		return fmt.Errorf("bootstrap_peer_addr is required")
	}
	return nil
}

// ClientConfig configures the thin CLI client.
type ClientConfig struct {
	DaemonAddr string `yaml:"daemon_addr"`
}

// LoadClient reads a ClientConfig from path, applying the
// BLOCK_CHAT_DAEMON_SOCKET override.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if v := os.Getenv("BLOCK_CHAT_DAEMON_SOCKET"); v != "" {
		cfg.DaemonAddr = v
	}
	if cfg.DaemonAddr == "" {
		return nil, fmt.Errorf("config: daemon_addr is required")
	}
	return &cfg, nil
}
