// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChainSafe/filament/config"
	"github.com/ChainSafe/filament/config/genesis"
	"github.com/ChainSafe/filament/network"
	"github.com/ChainSafe/filament/node"
	"github.com/libp2p/go-libp2p/core/peer"

	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli"
)

var (
	app    = cli.NewApp()
	logger = log.New("pkg", "cmd")

	// initCommand defines the "init" subcommand (ie, `filament init`)
	initCommand = cli.Command{
		Action:    FixFlagOrder(initAction),
		Name:      "init",
		Usage:     "Initialise node base path, network key and configuration file",
		ArgsUsage: "",
		Flags:     InitFlags,
		Category:  "NODE",
		Description: "The init command initialises the node's base path, generating the persistent network key,\n" +
			"\ta single-member committee genesis template and the configuration file used by subsequent runs.\n" +
			"\tUsage: filament init --basepath ~/.filament\n" +
			"\tThe node identity printed on success is the peer id to register in the committee genesis file.",
	}

	// exportCommand defines the "export" subcommand (ie, `filament export`)
	exportCommand = cli.Command{
		Action:    FixFlagOrder(exportAction),
		Name:      "export",
		Usage:     "Export configuration values to TOML configuration file",
		ArgsUsage: "",
		Flags:     ExportFlags,
		Category:  "CONFIG",
		Description: "The export command exports the merged configuration values from the command flags\n" +
			"\tto a TOML configuration file.\n" +
			"\tUsage: filament export --config config.toml --basepath ~/.filament --port 7001",
	}
)

// init initialises the cli application
func init() {
	app.Action = filamentAction
	app.Name = "filament"
	app.Usage = "Official filament command-line interface"
	app.Author = "ChainSafe Systems 2023"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		initCommand,
		exportCommand,
	}
	app.Flags = RootFlags
}

// main runs the cli application
func main() {
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// filamentAction is the root action for the filament command: it builds
// the node configuration from the defaults, the toml configuration file
// and the command flags, assembles the authority node and starts it
func filamentAction(ctx *cli.Context) error {
	// check for unknown command arguments
	if arguments := ctx.Args(); len(arguments) > 0 {
		return fmt.Errorf("failed to read command argument: %q", arguments[0])
	}

	if err := setupLogger(ctx); err != nil {
		return err
	}

	cfg, err := createNodeConfig(ctx)
	if err != nil {
		logger.Error("failed to create node configuration", "error", err)
		return err
	}

	n, err := node.NewNode(cfg)
	if err != nil {
		logger.Error("failed to create node", "error", err)
		return err
	}

	if err = n.Start(); err != nil {
		logger.Error("failed to start node", "error", err)
		return err
	}

	return nil
}

// initAction is the action for the "init" subcommand: it creates the
// node's base path and persistent network key when they do not already
// exist, seeds a single-member committee genesis template and writes
// the configuration file used by subsequent runs. The logged node
// identity is the peer id committee members register in the committee
// genesis file.
func initAction(ctx *cli.Context) error {
	if err := setupLogger(ctx); err != nil {
		return err
	}

	cfg, err := createNodeConfig(ctx)
	if err != nil {
		logger.Error("failed to create node configuration", "error", err)
		return err
	}

	configPath := filepath.Join(cfg.Global.BasePath, "config.toml")
	if pathExists(configPath) {
		logger.Warn("node configuration file already exists", "config", configPath)
		if frc := ctx.Bool(ForceFlag.Name); !frc {
			if !confirmMessage("Are you sure you want to reinitialise the node? [Y/n]") {
				logger.Warn("exiting without reinitialising the node", "basepath", cfg.Global.BasePath)
				return nil
			}
		}
		logger.Info("reinitialising node...", "basepath", cfg.Global.BasePath)
	}

	if err = os.MkdirAll(cfg.Global.BasePath, 0700); err != nil {
		logger.Error("failed to create node base path", "error", err)
		return err
	}

	// loads the persisted key, generating and saving one on first init
	key, err := network.NodeKey(cfg.Global.BasePath, cfg.Network.RandSeed)
	if err != nil {
		logger.Error("failed to create node key", "error", err)
		return err
	}

	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return fmt.Errorf("deriving node identity: %w", err)
	}

	// a fresh init seeds the committee genesis file with a single-member
	// template holding this node's identity; operators replace it with
	// the full epoch membership. An existing file is never overwritten.
	if cfg.Network.Committee == "" {
		cfg.Network.Committee = filepath.Join(cfg.Global.BasePath, "committee.toml")
	}
	if !pathExists(cfg.Network.Committee) {
		template := &genesis.Genesis{
			Name: cfg.Global.Name,
			Members: []genesis.Member{{
				PeerID:  id.String(),
				Address: fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", cfg.Network.Port),
				Stake:   1,
			}},
		}
		if err = genesis.ExportGenesis(template, cfg.Network.Committee); err != nil {
			logger.Error("failed to write committee genesis template", "error", err)
			return err
		}
		logger.Info("wrote committee genesis template", "committee", cfg.Network.Committee)
	}

	if err = config.ExportConfig(cfg, configPath); err != nil {
		logger.Error("failed to export node configuration", "error", err)
		return err
	}

	logger.Info("node initialised", "id", id, "basepath", cfg.Global.BasePath, "config", configPath)
	return nil
}

// exportAction is the action for the "export" subcommand: it writes the
// merged configuration values from the defaults and the command flags
// to the toml file given by --config
func exportAction(ctx *cli.Context) error {
	if err := setupLogger(ctx); err != nil {
		return err
	}

	// destination of the exported configuration file
	configPath := ctx.GlobalString(ConfigFlag.Name)
	if configPath == "" {
		return fmt.Errorf("export failed: --config not set")
	}

	cfg, err := createExportConfig(ctx)
	if err != nil {
		logger.Error("failed to create node configuration", "error", err)
		return err
	}

	if pathExists(configPath) {
		logger.Warn("configuration file already exists", "config", configPath)
		if frc := ctx.Bool(ForceFlag.Name); !frc {
			if !confirmMessage("Are you sure you want to overwrite the configuration file? [Y/n]") {
				logger.Warn("exiting without exporting the configuration", "config", configPath)
				return nil
			}
		}
	}

	if err = config.ExportConfig(cfg, configPath); err != nil {
		logger.Error("failed to export node configuration", "error", err)
		return err
	}

	logger.Info("configuration exported", "config", configPath)
	return nil
}
