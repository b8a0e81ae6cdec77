// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"testing"

	"github.com/ChainSafe/chaindb"
	"github.com/stretchr/testify/require"
)

// NewInMemoryDB creates a database instance for testing
func NewInMemoryDB(t *testing.T) chaindb.Database {
	t.Helper()

	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir:  t.TempDir(),
		InMemory: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// NewTestTransactionState creates a TransactionState over an in-memory database
func NewTestTransactionState(t *testing.T) *TransactionState {
	t.Helper()

	ts, err := NewTransactionState(NewInMemoryDB(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		ts.cache.Close()
	})
	return ts
}
