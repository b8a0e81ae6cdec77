// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"github.com/urfave/cli"
)

// Subcommand flags
var (
	// ForceFlag disables all confirm prompts ("Y" to all)
	ForceFlag = cli.BoolFlag{
		Name:  "force",
		Usage: "Disable all confirm prompts (the same as answering \"Y\" to all)",
	}
)

// Global node configuration flags
var (
	// LogFlag cli service settings
	LogFlag = cli.StringFlag{
		Name:  "log",
		Usage: "Global log level. Supports levels crit (silent), error, warn, info, debug and trace",
	}
	LogNetworkLevelFlag = cli.StringFlag{
		Name:  "log-network",
		Usage: "Network package log level. Supports levels crit (silent), error, warn, info, debug and trace",
	}
	LogStateLevelFlag = cli.StringFlag{
		Name:  "log-state",
		Usage: "State package log level. Supports levels crit (silent), error, warn, info, debug and trace",
	}
	LogGossipLevelFlag = cli.StringFlag{
		Name:  "log-gossip",
		Usage: "Gossip package log level. Supports levels crit (silent), error, warn, info, debug and trace",
	}

	// NameFlag node implementation name
	NameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "Node implementation name",
	}
	// ConfigFlag TOML configuration file
	ConfigFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	// BasePathFlag data directory for node
	BasePathFlag = cli.StringFlag{
		Name:  "basepath",
		Usage: "Data directory for the node",
	}

	// PublishMetricsFlag publishes node metrics to prometheus
	PublishMetricsFlag = cli.BoolFlag{
		Name:  "publish-metrics",
		Usage: "Publish node metrics",
	}
	// MetricsPortFlag set metric listen port
	MetricsPortFlag = cli.UintFlag{
		Name:  "metrics-port",
		Usage: "Set metric listening port",
	}
)

// Network service configuration flags
var (
	// PortFlag Set network listening port
	PortFlag = cli.UintFlag{
		Name:  "port",
		Usage: "Set network listening port",
	}
	// CommitteeFlag is the path to the committee genesis file
	CommitteeFlag = cli.StringFlag{
		Name:  "committee",
		Usage: "Path to the committee genesis file",
	}
	// KeyFlag is the path to the node key file
	KeyFlag = cli.StringFlag{
		Name:  "key",
		Usage: "Path to the node key file. Defaults to the key under the base path",
	}
	// RandSeedFlag seeds a deterministic node identity
	RandSeedFlag = cli.Int64Flag{
		Name:  "rand-seed",
		Usage: "Seed a deterministic node identity. For test networks only",
	}
)

// Gossip service configuration flags
var (
	// DegreeFlag number of committee peers to follow concurrently
	DegreeFlag = cli.UintFlag{
		Name:  "degree",
		Usage: "Number of committee peers to follow concurrently",
	}
)

// State service configuration flags
var (
	// InMemoryFlag keeps the transaction database in memory
	InMemoryFlag = cli.BoolFlag{
		Name:  "inmemory",
		Usage: "Keep the transaction database in memory. For test networks only",
	}
)

// flag sets that are shared by multiple commands
var (
	// GlobalFlags are flags that are valid for use with the root command and all subcommands
	GlobalFlags = []cli.Flag{
		LogFlag,
		LogNetworkLevelFlag,
		LogStateLevelFlag,
		LogGossipLevelFlag,
		NameFlag,
		ConfigFlag,
		BasePathFlag,
	}

	// StartupFlags are flags that are valid for use with the root command and the export subcommand
	StartupFlags = []cli.Flag{
		// network flags
		PortFlag,
		CommitteeFlag,
		KeyFlag,
		RandSeedFlag,

		// gossip flags
		DegreeFlag,

		// state flags
		InMemoryFlag,

		// metrics flags
		PublishMetricsFlag,
		MetricsPortFlag,
	}
)

// local flag sets for the root filament command and all subcommands
var (
	// RootFlags are the flags that are valid for use with the root filament command
	RootFlags = append(GlobalFlags, StartupFlags...)

	// InitFlags are flags that are valid for use with the init subcommand
	InitFlags = append([]cli.Flag{
		ForceFlag,
	}, GlobalFlags...)

	// ExportFlags are the flags that are valid for use with the export subcommand
	ExportFlags = append([]cli.Flag{
		ForceFlag,
	}, append(GlobalFlags, StartupFlags...)...)
)

// FixFlagOrder allows various flag order formats (ie, `filament init
// --config config.toml` and `filament --config config.toml init`).
// FixFlagOrder only fixes global flags, all local flags must come after
// the subcommand (ie, `filament --force init` will not recognise
// `--force` but `filament init --force` will work as expected).
func FixFlagOrder(f func(ctx *cli.Context) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		trace := ctx.String(LogFlag.Name) == "trace"

		// loop through all flags (global and local)
		for _, flagName := range ctx.FlagNames() {
			if ctx.GlobalIsSet(flagName) {
				if trace {
					logger.Trace("global flag set", "name", flagName)
				}
			} else if ctx.IsSet(flagName) {
				// local flag set, move the value to the global flag set
				// when a global flag with the same name exists
				if err := ctx.GlobalSet(flagName, ctx.String(flagName)); err == nil {
					if trace {
						logger.Trace("global flag fixed", "name", flagName)
					}
				} else if trace {
					logger.Trace("local flag set", "name", flagName)
				}
			}
		}

		return f(ctx)
	}
}
