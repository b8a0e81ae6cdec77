// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"errors"
	"testing"
	"time"

	"github.com/ChainSafe/filament/availability"
	"github.com/ChainSafe/filament/committee"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/ChainSafe/log15"
)

func newTestTracker(cmt *committee.Committee) *availability.Tracker {
	return availability.NewTracker(cmt, availability.Config{
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  200 * time.Millisecond,
	})
}

func createTestService(t *testing.T, cfg *Config) *Service {
	t.Helper()

	if cfg.LogLvl == 0 {
		cfg.LogLvl = log.LvlError
	}
	if cfg.State == nil {
		cfg.State = newFakeState()
	}
	if cfg.Synchronizer == nil {
		cfg.Synchronizer = &fakeSynchronizer{}
	}
	if cfg.Availability == nil {
		cfg.Availability = newTestTracker(cfg.Committee)
	}

	s, err := NewService(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
	})

	return s
}

func TestGossipOffForSingleMember(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1)
	clients := &fakeClientSet{}

	createTestService(t, &Config{
		Self:      ids[0],
		Committee: cmt,
		Clients:   clients,
		Degree:    3,
	})

	// the orchestrator returns before following anyone
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, clients.called())
}

func TestGossipOffForZeroDegree(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1, 1, 1)
	clients := &fakeClientSet{}

	createTestService(t, &Config{
		Self:      ids[0],
		Committee: cmt,
		Clients:   clients,
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, clients.called())
}

func TestOrchestratorFillsTarget(t *testing.T) {
	// five equal authorities put the quorum threshold at 4, so the fill
	// reaches the full target of three peers just as coverage is met
	cmt, ids := newTestCommittee(t, 1, 1, 1, 1, 1)
	self := ids[0]

	clients := &fakeClientSet{
		fallback: func(peer.ID) Client { return &fakeClient{} },
	}

	createTestService(t, &Config{
		Self:             self,
		Committee:        cmt,
		Clients:          clients,
		Degree:           3,
		RefreshPeriod:    10 * time.Second,
		StaggerIncrement: time.Second,
	})

	waitUntil(t, 3*time.Second, func() bool {
		return len(clients.called()) >= 3
	})

	called := clients.called()
	require.GreaterOrEqual(t, len(called), 3)

	seen := make(map[peer.ID]struct{})
	for _, id := range called[:3] {
		assert.NotEqual(t, self, id)
		assert.True(t, cmt.IsMember(id))
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 3, "concurrent sessions must follow distinct peers")
}

func TestEarlyStopOnQuorumCoverage(t *testing.T) {
	// the local authority holds 4 of 7 stake; any single peer pushes the
	// follow set over the quorum threshold of 5
	cmt, ids := newTestCommittee(t, 4, 1, 1, 1)

	clients := &fakeClientSet{
		fallback: func(peer.ID) Client { return &fakeClient{} },
	}

	createTestService(t, &Config{
		Self:             ids[0],
		Committee:        cmt,
		Clients:          clients,
		Degree:           3,
		RefreshPeriod:    10 * time.Second,
		StaggerIncrement: time.Second,
	})

	waitUntil(t, 2*time.Second, func() bool {
		return len(clients.called()) == 1
	})

	// no further sessions are launched while the first one holds
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, clients.called(), 1)
}

func TestFailingPeerRetriedAfterBackoff(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1)

	openErr := errors.New("stream refused")
	clients := &fakeClientSet{
		fallback: func(peer.ID) Client {
			return &fakeClient{openErr: openErr}
		},
	}

	createTestService(t, &Config{
		Self:          ids[0],
		Committee:     cmt,
		Clients:       clients,
		Degree:        1,
		RefreshPeriod: 10 * time.Second,
	})

	// every session fails on open; the availability gate must pace a
	// relaunch rather than hot-loop or give up
	waitUntil(t, 3*time.Second, func() bool {
		return len(clients.called()) >= 2
	})

	for _, id := range clients.called() {
		assert.Equal(t, ids[1], id)
	}
}

func TestPanickingSessionContained(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1)

	clients := &fakeClientSet{
		fallback: func(peer.ID) Client { return panickyClient{} },
	}

	createTestService(t, &Config{
		Self:          ids[0],
		Committee:     cmt,
		Clients:       clients,
		Degree:        1,
		RefreshPeriod: 10 * time.Second,
	})

	// a panicking session surfaces as a failure result; the orchestrator
	// survives it and launches the next one
	waitUntil(t, 3*time.Second, func() bool {
		return len(clients.called()) >= 2
	})
}

func TestNewServiceRejectsIncompleteConfig(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1)

	_, err := NewService(&Config{
		Self:      ids[0],
		Committee: cmt,
	})
	assert.Error(t, err)
}
