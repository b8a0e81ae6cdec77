// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"fmt"
	mrand "math/rand"
	"testing"

	"github.com/ChainSafe/filament/state"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/require"

	log "github.com/ChainSafe/log15"
)

const portsAmount = 200

// portQueue is a blocking port queue
type portQueue chan uint16

func (pq portQueue) put(p uint16) {
	pq <- p
}

func (pq portQueue) get() (port uint16) {
	port = <-pq
	return port
}

var availablePorts portQueue

func init() {
	availablePorts = make(chan uint16, portsAmount)
	const startAt = uint16(7500)
	for port := startAt; port < portsAmount+startAt; port++ {
		availablePorts.put(port)
	}
}

// availablePort is test helper function that gets an available port and release the same port after test ends
func availablePort(t *testing.T) uint16 {
	t.Helper()
	port := availablePorts.get()

	t.Cleanup(func() {
		availablePorts.put(port)
	})

	return port
}

func newTestKey(t *testing.T, seed int64) crypto.PrivKey {
	t.Helper()

	key, _, err := crypto.GenerateEd25519Key(mrand.New(mrand.NewSource(seed))) //nolint
	require.NoError(t, err)
	return key
}

func newTestPeerID(t *testing.T, seed int64) peer.ID {
	t.Helper()

	id, err := peer.IDFromPrivateKey(newTestKey(t, seed))
	require.NoError(t, err)
	return id
}

// createTestServices starts count network services on the loopback
// interface, all sharing one committee address book, each backed by its
// own in-memory transaction log
func createTestServices(t *testing.T, count int) []*Service {
	t.Helper()

	keys := make([]crypto.PrivKey, count)
	addrBook := make(map[peer.ID]ma.Multiaddr, count)
	ports := make([]uint16, count)

	for i := range keys {
		keys[i] = newTestKey(t, int64(i)+1)

		id, err := peer.IDFromPrivateKey(keys[i])
		require.NoError(t, err)

		ports[i] = availablePort(t)
		maddr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", ports[i]))
		require.NoError(t, err)
		addrBook[id] = maddr
	}

	srvcs := make([]*Service, count)
	for i := range srvcs {
		cfg := &Config{
			LogLvl:      log.LvlError,
			Port:        ports[i],
			NodeKey:     keys[i],
			AddressBook: addrBook,
			Provider:    state.NewTestTransactionState(t),
		}

		srvc, err := NewService(cfg)
		require.NoError(t, err)

		err = srvc.Start()
		require.NoError(t, err)

		t.Cleanup(func() {
			err := srvc.Stop()
			require.NoError(t, err)
		})

		srvcs[i] = srvc
	}

	return srvcs
}

// transactionLog returns the service's provider as the concrete store so
// tests can feed it certificates
func transactionLog(t *testing.T, s *Service) *state.TransactionState {
	t.Helper()

	ts, ok := s.provider.(*state.TransactionState)
	require.True(t, ok)
	return ts
}
