// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChainSafe/filament/config"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a toml configuration file for a test
func writeTestConfig(t *testing.T, raw string) string {
	t.Helper()

	fp := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(fp, []byte(raw), 0600)
	require.NoError(t, err)
	return fp
}

// TestConfigFromFlags tests createNodeConfig using only command flags
func TestConfigFromFlags(t *testing.T) {
	testcases := []struct {
		description string
		flags       []string
		values      []interface{}
		expected    func(cfg *config.Config)
	}{
		{
			"Test filament --name",
			[]string{"name"},
			[]interface{}{"authority-west"},
			func(cfg *config.Config) { cfg.Global.Name = "authority-west" },
		},
		{
			"Test filament --port",
			[]string{"port"},
			[]interface{}{uint(7100)},
			func(cfg *config.Config) { cfg.Network.Port = 7100 },
		},
		{
			"Test filament --committee --key",
			[]string{"committee", "key"},
			[]interface{}{"/tmp/committee.toml", "/tmp/node.key"},
			func(cfg *config.Config) {
				cfg.Network.Committee = "/tmp/committee.toml"
				cfg.Network.KeyFile = "/tmp/node.key"
			},
		},
		{
			"Test filament --degree",
			[]string{"degree"},
			[]interface{}{uint(2)},
			func(cfg *config.Config) { cfg.Gossip.Degree = 2 },
		},
		{
			"Test filament --rand-seed --inmemory",
			[]string{"rand-seed", "inmemory"},
			[]interface{}{int64(7), true},
			func(cfg *config.Config) {
				cfg.Network.RandSeed = 7
				cfg.State.InMemory = true
			},
		},
		{
			"Test filament --log --log-gossip",
			[]string{"log", "log-gossip"},
			[]interface{}{"warn", "trace"},
			func(cfg *config.Config) {
				cfg.Global.LogLvl = "warn"
				cfg.Log.GossipLvl = "trace"
			},
		},
		{
			"Test filament --publish-metrics --metrics-port",
			[]string{"publish-metrics", "metrics-port"},
			[]interface{}{true, uint(9900)},
			func(cfg *config.Config) {
				cfg.Global.PublishMetrics = true
				cfg.Global.MetricsPort = 9900
			},
		},
	}

	for _, c := range testcases {
		c := c
		t.Run(c.description, func(t *testing.T) {
			ctx, err := newTestContext(c.description, c.flags, c.values)
			require.NoError(t, err)

			cfg, err := createNodeConfig(ctx)
			require.NoError(t, err)

			expected := config.DefaultConfig()
			expected.Global.BasePath = expandDir(expected.Global.BasePath)
			c.expected(expected)
			require.Equal(t, expected, cfg)
		})
	}
}

// TestConfigFromFile tests createNodeConfig using a toml configuration
// file, with values absent from the file keeping their defaults
func TestConfigFromFile(t *testing.T) {
	fp := writeTestConfig(t, `[global]
name = "authority-east"
log = "debug"

[network]
port = 7055
committee = "/tmp/committee.toml"

[gossip]
degree = 3
`)

	ctx, err := newTestContext("Test filament --config",
		[]string{"config"}, []interface{}{fp})
	require.NoError(t, err)

	cfg, err := createNodeConfig(ctx)
	require.NoError(t, err)

	expected := config.DefaultConfig()
	expected.Global.BasePath = expandDir(expected.Global.BasePath)
	expected.Global.Name = "authority-east"
	expected.Global.LogLvl = "debug"
	expected.Network.Port = 7055
	expected.Network.Committee = "/tmp/committee.toml"
	expected.Gossip.Degree = 3
	require.Equal(t, expected, cfg)
}

// TestConfigFileAndFlags tests that command flags take precedence over
// the toml configuration file
func TestConfigFileAndFlags(t *testing.T) {
	fp := writeTestConfig(t, `[network]
port = 7055
`)

	ctx, err := newTestContext("Test filament --config --port",
		[]string{"config", "port"}, []interface{}{fp, uint(7200)})
	require.NoError(t, err)

	cfg, err := createNodeConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(7200), cfg.Network.Port)
}

// TestConfigMissingFile tests createNodeConfig with a --config path
// that does not exist
func TestConfigMissingFile(t *testing.T) {
	ctx, err := newTestContext("Test filament --config",
		[]string{"config"}, []interface{}{filepath.Join(t.TempDir(), "missing.toml")})
	require.NoError(t, err)

	_, err = createNodeConfig(ctx)
	require.Error(t, err)
}

// TestCreateExportConfig tests that the export configuration treats
// --config as the destination file rather than a source
func TestCreateExportConfig(t *testing.T) {
	ctx, err := newTestContext("Test filament export --config --name",
		[]string{"config", "name"},
		[]interface{}{filepath.Join(t.TempDir(), "missing.toml"), "authority-west"})
	require.NoError(t, err)

	cfg, err := createExportConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, "authority-west", cfg.Global.Name)
	require.Equal(t, config.DefaultPort, cfg.Network.Port)
}
