// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package availability tracks which committee members are currently worth
// contacting. Failures open an exponentially growing backoff window per
// peer; a success closes it. The tracker is the single owner of this
// state and is safe for concurrent use.
package availability

import (
	"sort"
	"sync"
	"time"

	"github.com/ChainSafe/filament/committee"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// DefaultBaseDelay is the backoff window after the first failure
	DefaultBaseDelay = 5 * time.Second
	// DefaultMaxDelay caps the backoff window regardless of failure count
	DefaultMaxDelay = 60 * time.Second
)

// Config configures a Tracker. Zero values fall back to the defaults.
type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

type peerStatus struct {
	failures     int
	backoffUntil time.Time
}

// Tracker records per-peer contact outcomes for one committee
type Tracker struct {
	mu        sync.RWMutex
	committee *committee.Committee
	peers     map[peer.ID]*peerStatus
	baseDelay time.Duration
	maxDelay  time.Duration

	nowFunc func() time.Time
}

// NewTracker seeds a record for every committee member
func NewTracker(c *committee.Committee, cfg Config) *Tracker {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	peers := make(map[peer.ID]*peerStatus, c.Size())
	for _, id := range c.Authorities() {
		peers[id] = &peerStatus{}
	}

	return &Tracker{
		committee: c,
		peers:     peers,
		baseDelay: cfg.BaseDelay,
		maxDelay:  cfg.MaxDelay,
		nowFunc:   time.Now,
	}
}

// CanContact returns true if the peer is outside any backoff window.
// Unknown peers are never contactable.
func (t *Tracker) CanContact(id peer.ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status, ok := t.peers[id]
	if !ok {
		return false
	}
	return !t.nowFunc().Before(status.backoffUntil)
}

// RecordFailure notes a failed contact. Consecutive failures widen the
// backoff window; the window never shrinks while failures continue.
func (t *Tracker) RecordFailure(id peer.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.peers[id]
	if !ok {
		return
	}

	status.failures++
	delay := t.backoffDelay(status.failures)
	until := t.nowFunc().Add(delay)
	if until.After(status.backoffUntil) {
		status.backoffUntil = until
	}
}

// RecordSuccess notes a successful contact, resetting the peer's window
func (t *Tracker) RecordSuccess(id peer.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	status, ok := t.peers[id]
	if !ok {
		return
	}

	status.failures = 0
	status.backoffUntil = time.Time{}
}

// backoffDelay doubles per consecutive failure up to the cap.
// Caller must hold the lock.
func (t *Tracker) backoffDelay(failures int) time.Duration {
	delay := t.baseDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= t.maxDelay {
			return t.maxDelay
		}
	}

	if delay > t.maxDelay {
		return t.maxDelay
	}
	return delay
}

// MinimumWaitForQuorum returns the earliest instant at which members
// outside their backoff windows hold at least a quorum of stake. If a
// quorum is contactable now, the current time is returned.
func (t *Tracker) MinimumWaitForQuorum() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type expiry struct {
		at     time.Time
		weight uint64
	}

	expiries := make([]expiry, 0, len(t.peers))
	for id, status := range t.peers {
		expiries = append(expiries, expiry{
			at:     status.backoffUntil,
			weight: t.committee.Weight(id),
		})
	}

	sort.Slice(expiries, func(i, j int) bool {
		return expiries[i].at.Before(expiries[j].at)
	})

	now := t.nowFunc()
	threshold := t.committee.QuorumThreshold()

	var covered uint64
	for _, e := range expiries {
		covered += e.weight
		if covered >= threshold {
			if e.at.Before(now) {
				return now
			}
			return e.at
		}
	}

	// quorum unreachable even with every member; wait out the last window
	last := expiries[len(expiries)-1].at
	if last.Before(now) {
		return now
	}
	return last
}
