// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package node

import (
	"fmt"
	mrand "math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChainSafe/filament/config"
	"github.com/ChainSafe/filament/config/genesis"
	"github.com/ChainSafe/filament/state"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var portQueue = availablePorts()

func availablePorts() chan uint16 {
	// a separate range from the network package tests, so both can run
	// in parallel on one machine
	ports := make(chan uint16, 200)
	for p := uint16(7700); p < 7900; p++ {
		ports <- p
	}
	return ports
}

func availablePort(t *testing.T) uint16 {
	t.Helper()

	p := <-portQueue
	t.Cleanup(func() { portQueue <- p })
	return p
}

// seededPeerID derives the peer ID that NodeKey will produce for the seed
func seededPeerID(t *testing.T, seed int64) peer.ID {
	t.Helper()

	key, _, err := crypto.GenerateEd25519Key(mrand.New(mrand.NewSource(seed))) //nolint
	require.NoError(t, err)

	id, err := peer.IDFromPrivateKey(key)
	require.NoError(t, err)
	return id
}

func writeCommitteeFile(t *testing.T, seeds []int64, ports []uint16) string {
	t.Helper()

	g := &genesis.Genesis{Name: "testnet", ID: "filament-test"}
	for i, seed := range seeds {
		g.Members = append(g.Members, genesis.Member{
			PeerID:  seededPeerID(t, seed).String(),
			Address: fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", ports[i]),
			Stake:   1,
		})
	}

	fp := filepath.Join(t.TempDir(), "committee.toml")
	require.NoError(t, genesis.ExportGenesis(g, fp))
	return fp
}

func newTestConfig(t *testing.T, seed int64, port uint16, committee string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Global.Name = fmt.Sprintf("authority-%d", seed)
	cfg.Global.BasePath = t.TempDir()
	cfg.Global.LogLvl = "error"
	cfg.Network.Port = port
	cfg.Network.RandSeed = seed
	cfg.Network.Committee = committee
	cfg.State.InMemory = true
	return cfg
}

// startTestNode runs the node until the test ends
func startTestNode(t *testing.T, n *Node) {
	t.Helper()

	go n.Start() //nolint:errcheck

	select {
	case <-n.Started():
	case <-time.After(10 * time.Second):
		t.Fatal("node did not start")
	}
	t.Cleanup(n.Stop)
}

func transactionState(t *testing.T, n *Node) *state.TransactionState {
	t.Helper()

	srvc, ok := n.Services.Get(&state.Service{}).(*state.Service)
	require.True(t, ok)
	return srvc.Transaction
}

func TestNewNodeRequiresCommitteeFile(t *testing.T) {
	cfg := newTestConfig(t, 1, availablePort(t), "")

	_, err := NewNode(cfg)
	assert.ErrorContains(t, err, "no committee genesis file")
}

func TestNewNodeRejectsNonMember(t *testing.T) {
	port := availablePort(t)
	committee := writeCommitteeFile(t, []int64{2, 3}, []uint16{port, availablePort(t)})

	cfg := newTestConfig(t, 1, port, committee)

	_, err := NewNode(cfg)
	assert.ErrorContains(t, err, "not a committee member")
}

func TestNewNodeRejectsBadLogLevel(t *testing.T) {
	cfg := newTestConfig(t, 1, availablePort(t), "unused")
	cfg.Global.LogLvl = "loud"

	_, err := NewNode(cfg)
	assert.ErrorContains(t, err, "parsing global log level")
}

func TestNodeStartStop(t *testing.T) {
	portA, portB := availablePort(t), availablePort(t)
	committee := writeCommitteeFile(t, []int64{1, 2}, []uint16{portA, portB})

	n, err := NewNode(newTestConfig(t, 1, portA, committee))
	require.NoError(t, err)

	go func() {
		<-n.Started()
		n.Stop()
	}()

	require.NoError(t, n.Start())
}

func TestTwoNodesDisseminateCertificate(t *testing.T) {
	portA, portB := availablePort(t), availablePort(t)
	committee := writeCommitteeFile(t, []int64{1, 2}, []uint16{portA, portB})

	// B first, so A's follower stream opens on the first try
	nodeB, err := NewNode(newTestConfig(t, 2, portB, committee))
	require.NoError(t, err)
	startTestNode(t, nodeB)

	nodeA, err := NewNode(newTestConfig(t, 1, portA, committee))
	require.NoError(t, err)
	startTestNode(t, nodeA)

	// a tail subscription only carries what arrives after it; give A's
	// stream time to open before the certificate lands at B
	time.Sleep(2 * time.Second)

	// a quorum certificate enters B's sequence; A must learn it by gossip
	cert := &types.Certificate{
		Transaction: types.NewTransaction([]byte("cross-authority payload")),
		Signers:     []peer.ID{seededPeerID(t, 1), seededPeerID(t, 2)},
	}
	_, err = transactionState(t, nodeB).PutCertificate(cert)
	require.NoError(t, err)

	stateA := transactionState(t, nodeA)
	deadline := time.Now().Add(30 * time.Second)
	for {
		known, err := stateA.HasTransaction(cert.Digest())
		require.NoError(t, err)
		if known {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("certificate did not propagate")
		}
		time.Sleep(50 * time.Millisecond)
	}

	info, err := stateA.GetTransactionInfo(cert.Digest())
	require.NoError(t, err)
	require.NotNil(t, info.Certificate)
	assert.Equal(t, cert.Digest(), info.Certificate.Digest())
}
