// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"github.com/ChainSafe/filament/types"
)

// TransactionProvider is the local transaction log the network service
// serves to following peers
type TransactionProvider interface {
	GetTransactionInfo(digest types.Digest) (*types.TransactionInfo, error)
	DigestsFrom(start types.SequenceNumber, limit int) ([]types.SequencedDigest, error)
	NextSequence() types.SequenceNumber
	GetSequencedDigestNotifierChannel() chan types.SequencedDigest
	FreeSequencedDigestNotifierChannel(ch chan types.SequencedDigest)
}
