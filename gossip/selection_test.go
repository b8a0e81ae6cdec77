// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/ChainSafe/filament/availability"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/ChainSafe/log15"
)

// newSelectionService builds a service without starting the orchestrator,
// so peer selection can be exercised directly
func newSelectionService(t *testing.T, self peer.ID, cfg *Config) *Service {
	t.Helper()

	cfg.LogLvl = log.LvlError
	cfg.Self = self
	if cfg.Clients == nil {
		cfg.Clients = &fakeClientSet{}
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
	t.Cleanup(s.cancel)
	return s
}

func TestSelectSkipsSelfAndActivePeers(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1, 1)
	s := newSelectionService(t, ids[0], &Config{Committee: cmt})

	active := map[peer.ID]struct{}{ids[1]: {}}

	// drawing is stake weighted, so a pass may exhaust its budget without
	// ever sampling the one eligible peer; it must still never hand out
	// the local authority or an already followed peer
	var selections int
	for i := 0; i < 10; i++ {
		id, err := s.selectGossipPeer(context.Background(), active)
		if err != nil {
			require.ErrorIs(t, err, ErrNoEligiblePeers)
			continue
		}
		selections++
		assert.Equal(t, ids[2], id)
	}
	assert.Greater(t, selections, 0)
}

func TestSelectSkipsUncontactablePeers(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1, 1)

	// a backoff window much longer than the test keeps ids[1] out of
	// reach for every pass below
	tracker := availability.NewTracker(cmt, availability.Config{
		BaseDelay: 5 * time.Second,
		MaxDelay:  10 * time.Second,
	})
	s := newSelectionService(t, ids[0], &Config{
		Committee:    cmt,
		Availability: tracker,
	})

	tracker.RecordFailure(ids[1])

	var selections int
	for i := 0; i < 10; i++ {
		id, err := s.selectGossipPeer(context.Background(), map[peer.ID]struct{}{})
		if err != nil {
			require.ErrorIs(t, err, ErrNoEligiblePeers)
			continue
		}
		selections++
		assert.Equal(t, ids[2], id)
	}
	assert.Greater(t, selections, 0)
}

func TestSelectExhaustionReturnsErrNoEligiblePeers(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1)
	s := newSelectionService(t, ids[0], &Config{Committee: cmt})

	// the only other member is already followed
	active := map[peer.ID]struct{}{ids[1]: {}}

	_, err := s.selectGossipPeer(context.Background(), active)
	assert.ErrorIs(t, err, ErrNoEligiblePeers)
}

func TestSelectCancelledContext(t *testing.T) {
	cmt, ids := newTestCommittee(t, 1, 1, 1)
	s := newSelectionService(t, ids[0], &Config{Committee: cmt})

	active := map[peer.ID]struct{}{ids[1]: {}, ids[2]: {}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.selectGossipPeer(ctx, active)
	assert.ErrorIs(t, err, context.Canceled)
}
