// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	ma "github.com/multiformats/go-multiaddr"
)

const (
	// connection manager bounds; committee peers are protected and never pruned
	defaultMinPeers = 8
	defaultMaxPeers = 64

	committeeProtectTag = "committee"
)

// host wraps the libp2p host with committee-aware helpers
type host struct {
	ctx      context.Context
	p2pHost  libp2phost.Host
	addrBook map[peer.ID]ma.Multiaddr
}

// newHost creates a host wrapper with a new libp2p host instance
func newHost(ctx context.Context, cfg *Config) (*host, error) {
	addr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("building listen address: %w", err)
	}

	cm, err := connmgr.NewConnManager(defaultMinPeers, defaultMaxPeers,
		connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrs(addr),
		libp2p.Identity(cfg.NodeKey),
		libp2p.DisableRelay(),
		libp2p.ConnectionManager(cm),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}

	addrBook := make(map[peer.ID]ma.Multiaddr, len(cfg.AddressBook))
	for id, maddr := range cfg.AddressBook {
		if id == h.ID() {
			continue
		}
		addrBook[id] = maddr

		h.Peerstore().AddAddrs(id, []ma.Multiaddr{maddr}, peerstore.PermanentAddrTTL)
		h.ConnManager().Protect(id, committeeProtectTag)
	}

	return &host{
		ctx:      ctx,
		p2pHost:  h,
		addrBook: addrBook,
	}, nil
}

// id returns the host id
func (h *host) id() peer.ID {
	return h.p2pHost.ID()
}

// connectCommittee dials every committee member with a known address.
// Failures are expected while peers come up; streams re-dial on demand.
func (h *host) connectCommittee() {
	for id := range h.addrBook {
		info := h.p2pHost.Peerstore().PeerInfo(id)
		if err := h.p2pHost.Connect(h.ctx, info); err != nil {
			logger.Debug("failed to dial committee peer", "peer", id, "err", err)
		}
	}
}

// knowsPeer returns true if the peer is in the committee address book
func (h *host) knowsPeer(id peer.ID) bool {
	_, ok := h.addrBook[id]
	return ok
}

// registerStreamHandler registers the stream handler for the given sub-protocol
func (h *host) registerStreamHandler(pid protocol.ID, handler func(libp2pnetwork.Stream)) {
	h.p2pHost.SetStreamHandler(pid, handler)
}

// newStream opens a new stream to the peer for the given sub-protocol,
// dialing the peer first if there is no connection
func (h *host) newStream(ctx context.Context, p peer.ID, pid protocol.ID) (libp2pnetwork.Stream, error) {
	return h.p2pHost.NewStream(ctx, p, pid)
}

// writeToStream writes one length-prefixed message to the stream
func (h *host) writeToStream(s libp2pnetwork.Stream, msg Message) error {
	return writeFrame(s, msg)
}

// multiaddrs returns the host's public multiaddresses including the peer id
func (h *host) multiaddrs() (multiaddrs []ma.Multiaddr) {
	addrs := h.p2pHost.Addrs()
	for _, addr := range addrs {
		multiaddr, err := ma.NewMultiaddr(fmt.Sprintf("%s/p2p/%s", addr, h.id()))
		if err != nil {
			continue
		}
		multiaddrs = append(multiaddrs, multiaddr)
	}
	return multiaddrs
}

// peerCount returns the number of connected peers
func (h *host) peerCount() int {
	return len(h.p2pHost.Network().Peers())
}

// close shuts the libp2p host down
func (h *host) close() error {
	return h.p2pHost.Close()
}
