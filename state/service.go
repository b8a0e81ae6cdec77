// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChainSafe/chaindb"

	log "github.com/ChainSafe/log15"
)

// DefaultDatabaseDir is the directory inside the base path holding the database
const DefaultDatabaseDir = "db"

// Config is the state service configuration
type Config struct {
	BasePath string
	InMemory bool
	LogLvl   log.Lvl
}

// Service manages the database lifecycle for the node's stores
type Service struct {
	db chaindb.Database

	// Transaction is the authority's sequenced transaction log
	Transaction *TransactionState
}

// NewService opens the database under cfg.BasePath and builds the stores
func NewService(cfg *Config) (*Service, error) {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	h = log.CallerFileHandler(h)
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir:  filepath.Join(cfg.BasePath, DefaultDatabaseDir),
		InMemory: cfg.InMemory,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	txState, err := NewTransactionState(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Service{
		db:          db,
		Transaction: txState,
	}, nil
}

// DB exposes the underlying database to the other stores
func (s *Service) DB() chaindb.Database {
	return s.db
}

// Start implements services.Service
func (s *Service) Start() error {
	logger.Info("state service started", "next_sequence", s.Transaction.NextSequence())
	return nil
}

// Stop closes the cache and the database
func (s *Service) Stop() error {
	s.Transaction.cache.Close()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
