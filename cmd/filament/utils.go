// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChainSafe/filament/config"

	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli"
)

const confirmCharacter = "Y"

// setupLogger installs the root log handler at the level given by the
// global --log flag, defaulting to info. The node reinstalls it later
// from the merged configuration, which the file may also set.
func setupLogger(ctx *cli.Context) error {
	lvlStr := ctx.GlobalString(LogFlag.Name)
	if lvlStr == "" {
		lvlStr = config.DefaultLogLvl
	}

	lvl, err := log.LvlFromString(lvlStr)
	if err != nil {
		return fmt.Errorf("parsing global log level: %w", err)
	}

	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	h = log.CallerFileHandler(h)
	log.Root().SetHandler(log.LvlFilterHandler(lvl, h))
	return nil
}

// confirmMessage prompts user to confirm message and returns true if "Y"
func confirmMessage(msg string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println(msg)
	fmt.Print("> ")
	for {
		text, _ := reader.ReadString('\n')
		text = strings.ReplaceAll(text, "\n", "")
		return strings.Compare(confirmCharacter, strings.ToUpper(text)) == 0
	}
}

// expandDir expands a tilde prefix path to a full home path
func expandDir(targetPath string) string {
	if strings.HasPrefix(targetPath, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			targetPath = homeDir + targetPath[1:]
		}
	} else if strings.HasPrefix(targetPath, "./") {
		targetPath, _ = filepath.Abs(targetPath)
	}
	return filepath.Clean(os.ExpandEnv(targetPath))
}

// pathExists returns true if the named file or directory exists
func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
