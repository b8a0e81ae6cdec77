// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package config defines the node's TOML configuration and its
// load/export helpers. Values absent from the file keep their zero
// value; the command line fills in defaults afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/naoina/toml"
)

const (
	// DefaultName is the default node name
	DefaultName = "filament"

	// DefaultBasePath is the default data directory
	DefaultBasePath = "~/.filament"

	// DefaultLogLvl is the default global log level
	DefaultLogLvl = "info"

	// DefaultPort is the default network listening port
	DefaultPort = uint16(7001)

	// DefaultMetricsPort is the default port of the metrics endpoint
	DefaultMetricsPort = uint32(9876)

	// DefaultDegree is the default number of concurrent gossip peers
	DefaultDegree = 4

	// DefaultRefreshPeriod is the default gossip session duration in seconds
	DefaultRefreshPeriod = uint32(60)

	// DefaultStaggerIncrement is the default per-session duration step in seconds
	DefaultStaggerIncrement = uint32(15)

	// DefaultBaseDelay is the default first-failure backoff in seconds
	DefaultBaseDelay = uint32(5)

	// DefaultMaxDelay is the default backoff cap in seconds
	DefaultMaxDelay = uint32(60)
)

// Config is a collection of configurations throughout the system
type Config struct {
	Global  GlobalConfig  `toml:"global,omitempty"`
	Log     LogConfig     `toml:"log,omitempty"`
	Network NetworkConfig `toml:"network,omitempty"`
	Gossip  GossipConfig  `toml:"gossip,omitempty"`
	State   StateConfig   `toml:"state,omitempty"`
}

// GlobalConfig is to marshal/unmarshal toml global config vars
type GlobalConfig struct {
	Name           string `toml:"name,omitempty"`
	BasePath       string `toml:"basepath,omitempty"`
	LogLvl         string `toml:"log,omitempty" validate:"omitempty,oneof=trace debug info warn error crit"`
	PublishMetrics bool   `toml:"publish-metrics,omitempty"`
	MetricsPort    uint32 `toml:"metrics-port,omitempty"`
}

// LogConfig represents the log levels for individual packages.
// An empty value falls back to the global level.
type LogConfig struct {
	NetworkLvl string `toml:"network,omitempty" validate:"omitempty,oneof=trace debug info warn error crit"`
	StateLvl   string `toml:"state,omitempty" validate:"omitempty,oneof=trace debug info warn error crit"`
	GossipLvl  string `toml:"gossip,omitempty" validate:"omitempty,oneof=trace debug info warn error crit"`
}

// NetworkConfig is to marshal/unmarshal toml network config vars
type NetworkConfig struct {
	Port uint16 `toml:"port,omitempty"`

	// Committee is the path to the committee genesis file
	Committee string `toml:"committee,omitempty"`

	// KeyFile is the path to the node key. Empty means the key under
	// the base path, created on first start.
	KeyFile string `toml:"key,omitempty"`

	// RandSeed generates a deterministic node identity when non-zero.
	// For test networks only; zero means load or create a persistent key.
	RandSeed int64 `toml:"rand-seed,omitempty"`
}

// GossipConfig is to marshal/unmarshal toml gossip config vars.
// Durations are in seconds.
type GossipConfig struct {
	Degree           int    `toml:"degree,omitempty" validate:"gte=0"`
	RefreshPeriod    uint32 `toml:"refresh-period,omitempty"`
	StaggerIncrement uint32 `toml:"stagger-increment,omitempty"`
	BaseDelay        uint32 `toml:"base-delay,omitempty"`
	MaxDelay         uint32 `toml:"max-delay,omitempty"`
}

// StateConfig is to marshal/unmarshal toml state config vars
type StateConfig struct {
	// InMemory keeps the database in memory, for ephemeral test nodes
	InMemory bool `toml:"inmemory,omitempty"`
}

// DefaultConfig returns a fully populated configuration
func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Name:        DefaultName,
			BasePath:    DefaultBasePath,
			LogLvl:      DefaultLogLvl,
			MetricsPort: DefaultMetricsPort,
		},
		Network: NetworkConfig{
			Port: DefaultPort,
		},
		Gossip: GossipConfig{
			Degree:           DefaultDegree,
			RefreshPeriod:    DefaultRefreshPeriod,
			StaggerIncrement: DefaultStaggerIncrement,
			BaseDelay:        DefaultBaseDelay,
			MaxDelay:         DefaultMaxDelay,
		},
	}
}

// LoadConfig reads and validates the toml configuration at the given path
func LoadConfig(file string) (*Config, error) {
	fp, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	f, err := os.Open(filepath.Clean(fp))
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	cfg := new(Config)
	if err = toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	if err = validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ExportConfig writes the configuration to the given path as toml
func ExportConfig(cfg *Config, file string) error {
	raw, err := toml.Marshal(*cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(file, raw, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
