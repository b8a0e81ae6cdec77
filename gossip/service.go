// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package gossip keeps the local authority following a rotating,
// stake-weighted set of committee peers, pulling every certified
// transaction they advertise into the local sequence.
package gossip

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ChainSafe/filament/availability"
	"github.com/ChainSafe/filament/committee"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/exp/maps"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "gossip")

const (
	// DefaultRefreshPeriod is the base duration of a peer session
	DefaultRefreshPeriod = time.Minute
	// DefaultStaggerIncrement spreads the deadlines of sessions launched in
	// one fill pass, so the follow set rotates gradually instead of all at once
	DefaultStaggerIncrement = 15 * time.Second

	// selectionRetryDelay paces draws while the committee has no usable candidate
	selectionRetryDelay = 10 * time.Millisecond
)

// Config is used to configure the gossip service
type Config struct {
	LogLvl log.Lvl

	Self      peer.ID
	Committee *committee.Committee

	Clients      ClientSet
	State        TransactionState
	Synchronizer Synchronizer
	Availability *availability.Tracker

	Degree           int
	RefreshPeriod    time.Duration
	StaggerIncrement time.Duration
}

// Service is the gossip orchestrator. It owns the follow set: sessions are
// launched to keep it at the target size and replaced as they drain.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	self         peer.ID
	committee    *committee.Committee
	clients      ClientSet
	state        TransactionState
	synchronizer Synchronizer
	availability *availability.Tracker

	degree           int
	refreshPeriod    time.Duration
	staggerIncrement time.Duration

	done chan struct{}
}

// sessionResult is the fan-in record of one completed session
type sessionResult struct {
	peer peer.ID
	err  error
}

// NewService creates a gossip orchestrator from the configuration
func NewService(cfg *Config) (*Service, error) {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	h = log.CallerFileHandler(h)
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	if cfg.Committee == nil || cfg.Clients == nil || cfg.State == nil ||
		cfg.Synchronizer == nil || cfg.Availability == nil {
		return nil, errors.New("gossip config is incomplete")
	}

	// a zero degree means gossip is switched off, so only the durations
	// fall back to defaults here
	if cfg.RefreshPeriod == 0 {
		cfg.RefreshPeriod = DefaultRefreshPeriod
	}
	if cfg.StaggerIncrement == 0 {
		cfg.StaggerIncrement = DefaultStaggerIncrement
	}

	ctx, cancel := context.WithCancel(context.Background()) //nolint

	return &Service{
		ctx:              ctx,
		cancel:           cancel,
		self:             cfg.Self,
		committee:        cfg.Committee,
		clients:          cfg.Clients,
		state:            cfg.State,
		synchronizer:     cfg.Synchronizer,
		availability:     cfg.Availability,
		degree:           cfg.Degree,
		refreshPeriod:    cfg.RefreshPeriod,
		staggerIncrement: cfg.StaggerIncrement,
		done:             make(chan struct{}),
	}, nil
}

// Start launches the orchestrator loop
func (s *Service) Start() error {
	go s.run(s.ctx)
	return nil
}

// Stop cancels the orchestrator and waits for it to settle
func (s *Service) Stop() error {
	s.cancel()
	<-s.done
	return nil
}

// run is the orchestrator loop and the single owner of the follow set.
// Session errors become results on the fan-in channel; nothing that one
// peer does can take the loop down.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	target := s.committee.Size() - 1
	if s.degree < target {
		target = s.degree
	}

	if target <= 0 {
		logger.Info("gossip mechanism off",
			"committee_size", s.committee.Size(), "degree", s.degree)
		return
	}

	logger.Info("gossip mechanism started", "target", target,
		"refresh", s.refreshPeriod, "stagger", s.staggerIncrement)
	defer logger.Info("gossip mechanism stopped")

	active := make(map[peer.ID]struct{}, target)

	// each session goroutine sends exactly one result; with capacity for
	// every concurrent session none of them can block after shutdown
	results := make(chan sessionResult, target)

	for {
		k := 0
		for len(active) < target {
			if !s.sleepUntil(ctx, s.availability.MinimumWaitForQuorum()) {
				return
			}

			peerID, err := s.selectGossipPeer(ctx, active)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				// a pass without candidates is a policy outcome; the
				// availability gate above paces the next attempt
				logger.Debug("no eligible gossip peer this pass", "err", err)
				break
			}

			duration := s.refreshPeriod + time.Duration(k)*s.staggerIncrement
			k++

			active[peerID] = struct{}{}
			s.launchSession(ctx, peerID, duration, results)

			if s.coversQuorum(active) {
				logger.Debug("active follow set covers a quorum", "active", len(active))
				break
			}
		}

		if len(active) == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case res := <-results:
			delete(active, res.peer)
			s.settle(res)
		}
	}
}

// coversQuorum reports whether the follow set plus the local authority
// already holds a quorum of stake, making further fill unnecessary
func (s *Service) coversQuorum(active map[peer.ID]struct{}) bool {
	held := append(maps.Keys(active), s.self)
	return s.committee.StakeOf(held...) >= s.committee.QuorumThreshold()
}

// selectGossipPeer draws stake-weighted candidates until one is usable:
// not the local authority, not already followed, and currently contactable.
// The budget is one draw per committee member.
func (s *Service) selectGossipPeer(ctx context.Context, active map[peer.ID]struct{}) (peer.ID, error) {
	budget := s.committee.Size()
	for i := 0; i < budget; i++ {
		candidate := s.committee.Sample()

		_, following := active[candidate]
		if candidate != s.self && !following && s.availability.CanContact(candidate) {
			return candidate, nil
		}

		if i == budget-1 {
			break
		}
		if err := s.pause(ctx, selectionRetryDelay); err != nil {
			return "", err
		}
	}

	return "", ErrNoEligiblePeers
}

// launchSession runs one peer session in its own goroutine, delivering
// exactly one result on the fan-in channel
func (s *Service) launchSession(ctx context.Context, id peer.ID,
	duration time.Duration, results chan<- sessionResult) {
	logger.Debug("launching gossip session", "peer", id, "duration", duration)
	sessionsLaunched.Inc()
	activeSessions.Inc()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrSessionAborted, r)
			}
			activeSessions.Dec()
			results <- sessionResult{peer: id, err: err}
		}()

		client, cerr := s.clients.Client(id)
		if cerr != nil {
			err = fmt.Errorf("no client for %s: %w", id, cerr)
			return
		}

		session := newPeerSession(id, s.self, client, s.state, s.synchronizer)
		err = session.run(ctx, duration)
	}()
}

// settle feeds one session outcome to the availability tracker
func (s *Service) settle(res sessionResult) {
	switch {
	case res.err == nil:
		s.availability.RecordSuccess(res.peer)
		logger.Debug("gossip peer session ended", "peer", res.peer)
	case errors.Is(res.err, context.Canceled):
		logger.Debug("gossip peer session cancelled", "peer", res.peer)
	default:
		if errors.Is(res.err, ErrByzantineSuspicion) {
			logger.Warn("gossip peer suspected byzantine", "peer", res.peer, "err", res.err)
		}

		s.availability.RecordFailure(res.peer)
		sessionFailures.Inc()
		logger.Error("gossip peer session failed", "peer", res.peer, "err", res.err)
	}
}

// sleepUntil blocks until the given instant, returning false if ctx ended first
func (s *Service) sleepUntil(ctx context.Context, until time.Time) bool {
	wait := time.Until(until)
	if wait <= 0 {
		return ctx.Err() == nil
	}

	if err := s.pause(ctx, wait); err != nil {
		return false
	}
	return true
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
