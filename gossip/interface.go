// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"context"

	"github.com/ChainSafe/filament/network"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// TransactionState is the read side of the local transaction log
type TransactionState interface {
	HasTransaction(digest types.Digest) (bool, error)
}

// Synchronizer ingests certificates fetched from peers on behalf of the
// local authority
type Synchronizer interface {
	SyncCertificate(ctx context.Context, cert *types.Certificate,
		source, destination peer.ID) error
}

// Client is the view of one committee peer a session needs: following its
// digest sequence and fetching what it knows about a digest. Tests stand
// in a scripted in-memory implementation.
type Client interface {
	DigestStream(ctx context.Context, req *network.DigestStreamRequest) (<-chan network.StreamResult, error)
	TransactionInfo(ctx context.Context, req *network.TransactionInfoRequest) (*types.TransactionInfo, error)
}

// ClientSet hands out clients for committee peers
type ClientSet interface {
	Client(id peer.ID) (Client, error)
}
