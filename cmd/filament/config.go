// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"github.com/ChainSafe/filament/config"
	"github.com/urfave/cli"
)

// createNodeConfig builds the node configuration, starting from the
// defaults, applying the values set in the toml configuration file
// given by --config, and finally the command flags
func createNodeConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()

	tomlCfg := new(config.Config)
	if file := ctx.GlobalString(ConfigFlag.Name); file != "" {
		var err error
		if tomlCfg, err = config.LoadConfig(file); err != nil {
			return nil, err
		}
	}

	setGlobalConfig(ctx, tomlCfg.Global, &cfg.Global)
	setLogConfig(ctx, tomlCfg.Log, &cfg.Log)
	setNetworkConfig(ctx, tomlCfg.Network, &cfg.Network)
	setGossipConfig(ctx, tomlCfg.Gossip, &cfg.Gossip)
	setStateConfig(ctx, tomlCfg.State, &cfg.State)

	return cfg, nil
}

// createExportConfig builds the configuration written by the export
// subcommand. The --config flag names the destination file, so only the
// defaults and the command flags contribute values.
func createExportConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	tomlCfg := new(config.Config)

	setGlobalConfig(ctx, tomlCfg.Global, &cfg.Global)
	setLogConfig(ctx, tomlCfg.Log, &cfg.Log)
	setNetworkConfig(ctx, tomlCfg.Network, &cfg.Network)
	setGossipConfig(ctx, tomlCfg.Gossip, &cfg.Gossip)
	setStateConfig(ctx, tomlCfg.State, &cfg.State)

	return cfg, nil
}

// setGlobalConfig sets the global node configuration from the toml
// configuration and the command flags
func setGlobalConfig(ctx *cli.Context, tomlCfg config.GlobalConfig, cfg *config.GlobalConfig) {
	if tomlCfg.Name != "" {
		cfg.Name = tomlCfg.Name
	}
	if tomlCfg.BasePath != "" {
		cfg.BasePath = tomlCfg.BasePath
	}
	if tomlCfg.LogLvl != "" {
		cfg.LogLvl = tomlCfg.LogLvl
	}
	if tomlCfg.PublishMetrics {
		cfg.PublishMetrics = true
	}
	if tomlCfg.MetricsPort != 0 {
		cfg.MetricsPort = tomlCfg.MetricsPort
	}

	// check --name flag and update node configuration
	if name := ctx.GlobalString(NameFlag.Name); name != "" {
		cfg.Name = name
	}

	// check --basepath flag and update node configuration
	if basepath := ctx.GlobalString(BasePathFlag.Name); basepath != "" {
		cfg.BasePath = basepath
	}

	// check --log flag and update node configuration
	if lvl := ctx.GlobalString(LogFlag.Name); lvl != "" {
		cfg.LogLvl = lvl
	}

	// check --publish-metrics flag and update node configuration
	if ctx.Bool(PublishMetricsFlag.Name) {
		cfg.PublishMetrics = true
	}

	// check --metrics-port flag and update node configuration
	if port := ctx.Uint(MetricsPortFlag.Name); port != 0 {
		cfg.MetricsPort = uint32(port)
	}

	cfg.BasePath = expandDir(cfg.BasePath)

	logger.Debug("global configuration",
		"name", cfg.Name,
		"basepath", cfg.BasePath,
		"log", cfg.LogLvl,
	)
}

// setLogConfig sets the per-package log levels from the toml
// configuration and the command flags
func setLogConfig(ctx *cli.Context, tomlCfg config.LogConfig, cfg *config.LogConfig) {
	if tomlCfg.NetworkLvl != "" {
		cfg.NetworkLvl = tomlCfg.NetworkLvl
	}
	if tomlCfg.StateLvl != "" {
		cfg.StateLvl = tomlCfg.StateLvl
	}
	if tomlCfg.GossipLvl != "" {
		cfg.GossipLvl = tomlCfg.GossipLvl
	}

	// check --log-network flag and update node configuration
	if lvl := ctx.GlobalString(LogNetworkLevelFlag.Name); lvl != "" {
		cfg.NetworkLvl = lvl
	}

	// check --log-state flag and update node configuration
	if lvl := ctx.GlobalString(LogStateLevelFlag.Name); lvl != "" {
		cfg.StateLvl = lvl
	}

	// check --log-gossip flag and update node configuration
	if lvl := ctx.GlobalString(LogGossipLevelFlag.Name); lvl != "" {
		cfg.GossipLvl = lvl
	}
}

// setNetworkConfig sets the network service configuration from the toml
// configuration and the command flags
func setNetworkConfig(ctx *cli.Context, tomlCfg config.NetworkConfig, cfg *config.NetworkConfig) {
	if tomlCfg.Port != 0 {
		cfg.Port = tomlCfg.Port
	}
	if tomlCfg.Committee != "" {
		cfg.Committee = tomlCfg.Committee
	}
	if tomlCfg.KeyFile != "" {
		cfg.KeyFile = tomlCfg.KeyFile
	}
	if tomlCfg.RandSeed != 0 {
		cfg.RandSeed = tomlCfg.RandSeed
	}

	// check --port flag and update node configuration
	if port := ctx.Uint(PortFlag.Name); port != 0 {
		cfg.Port = uint16(port)
	}

	// check --committee flag and update node configuration
	if committee := ctx.String(CommitteeFlag.Name); committee != "" {
		cfg.Committee = committee
	}

	// check --key flag and update node configuration
	if key := ctx.String(KeyFlag.Name); key != "" {
		cfg.KeyFile = key
	}

	// check --rand-seed flag and update node configuration
	if seed := ctx.Int64(RandSeedFlag.Name); seed != 0 {
		cfg.RandSeed = seed
	}

	if cfg.Committee != "" {
		cfg.Committee = expandDir(cfg.Committee)
	}
	if cfg.KeyFile != "" {
		cfg.KeyFile = expandDir(cfg.KeyFile)
	}

	logger.Debug("network configuration",
		"port", cfg.Port,
		"committee", cfg.Committee,
	)
}

// setGossipConfig sets the gossip service configuration from the toml
// configuration and the command flags
func setGossipConfig(ctx *cli.Context, tomlCfg config.GossipConfig, cfg *config.GossipConfig) {
	if tomlCfg.Degree != 0 {
		cfg.Degree = tomlCfg.Degree
	}
	if tomlCfg.RefreshPeriod != 0 {
		cfg.RefreshPeriod = tomlCfg.RefreshPeriod
	}
	if tomlCfg.StaggerIncrement != 0 {
		cfg.StaggerIncrement = tomlCfg.StaggerIncrement
	}
	if tomlCfg.BaseDelay != 0 {
		cfg.BaseDelay = tomlCfg.BaseDelay
	}
	if tomlCfg.MaxDelay != 0 {
		cfg.MaxDelay = tomlCfg.MaxDelay
	}

	// check --degree flag and update node configuration
	if degree := ctx.Uint(DegreeFlag.Name); degree != 0 {
		cfg.Degree = int(degree)
	}

	logger.Debug("gossip configuration",
		"degree", cfg.Degree,
		"refresh-period", cfg.RefreshPeriod,
	)
}

// setStateConfig sets the state service configuration from the toml
// configuration and the command flags
func setStateConfig(ctx *cli.Context, tomlCfg config.StateConfig, cfg *config.StateConfig) {
	if tomlCfg.InMemory {
		cfg.InMemory = true
	}

	// check --inmemory flag and update node configuration
	if ctx.Bool(InMemoryFlag.Name) {
		cfg.InMemory = true
	}
}
