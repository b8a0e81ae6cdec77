// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package network runs the transport of the dissemination layer: a libp2p
// host serving the digest-stream and transaction-info protocols to the
// committee, plus per-peer clients for the outbound side of both.
package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ChainSafe/filament/state"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "network")

const (
	// summaryInterval is the number of transaction items between batch
	// summaries on a served digest stream
	summaryInterval = 16

	// catchupBatchSize is the number of index entries fetched per scan
	// while a served stream is behind the log
	catchupBatchSize = 256
)

var inboundDigestStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "filament_network",
	Name:      "inbound_digest_streams",
	Help:      "number of digest streams currently being served",
})

// Config is used to configure the network service
type Config struct {
	LogLvl log.Lvl
	Port   uint16

	// NodeKey is the authority's identity key
	NodeKey crypto.PrivKey

	// AddressBook maps every committee member to its declared address
	AddressBook map[peer.ID]ma.Multiaddr

	// Provider is the local transaction log served to peers
	Provider TransactionProvider

	RequestTimeout time.Duration
}

// Service describes a network service
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	host           *host
	provider       TransactionProvider
	requestTimeout time.Duration
}

// NewService creates a network service from the configuration and starts
// listening immediately; protocol handlers are registered before Start.
func NewService(cfg *Config) (*Service, error) {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	h = log.CallerFileHandler(h)
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	if cfg.Provider == nil {
		return nil, errors.New("network config is missing a transaction provider")
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background()) //nolint

	host, err := newHost(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Service{
		ctx:            ctx,
		cancel:         cancel,
		host:           host,
		provider:       cfg.Provider,
		requestTimeout: cfg.RequestTimeout,
	}

	host.registerStreamHandler(digestStreamID, s.handleDigestStream)
	host.registerStreamHandler(transactionInfoID, s.handleTransactionInfo)

	return s, nil
}

// Start dials the committee and logs the listening addresses
func (s *Service) Start() error {
	s.host.connectCommittee()

	logger.Info("network service started",
		"id", s.host.id(),
		"committee_peers", len(s.host.addrBook),
		"addresses", s.host.multiaddrs(),
	)
	return nil
}

// Stop shuts the host down
func (s *Service) Stop() error {
	s.cancel()

	if err := s.host.close(); err != nil {
		return fmt.Errorf("closing host: %w", err)
	}
	return nil
}

// ID returns the host id
func (s *Service) ID() peer.ID {
	return s.host.id()
}

// PeerCount returns the number of currently connected peers
func (s *Service) PeerCount() int {
	return s.host.peerCount()
}

// Client returns a client bound to the given committee peer
func (s *Service) Client(id peer.ID) (*Client, error) {
	if !s.host.knowsPeer(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotCommitteeMember, id)
	}

	return &Client{
		host:           s.host,
		peer:           id,
		requestTimeout: s.requestTimeout,
	}, nil
}

// handleDigestStream serves one inbound digest stream until the requested
// number of transaction items was sent, the peer goes away, or shutdown
func (s *Service) handleDigestStream(stream libp2pnetwork.Stream) {
	remote := stream.Conn().RemotePeer()

	frame, err := readFrame(bufio.NewReader(stream))
	if err != nil {
		logger.Debug("failed to read digest stream request", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}

	req := new(DigestStreamRequest)
	if err := req.Decode(frame); err != nil {
		logger.Warn("malformed digest stream request", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}

	inboundDigestStreams.Inc()
	defer inboundDigestStreams.Dec()

	logger.Debug("serving digest stream", "peer", remote, "request", req.String())
	s.serveDigestStream(stream, req, remote)
}

func (s *Service) serveDigestStream(stream libp2pnetwork.Stream, req *DigestStreamRequest, remote peer.ID) {
	// subscribe before the first scan so nothing falls between the
	// catch-up and live phases
	notifier := s.provider.GetSequencedDigestNotifierChannel()
	defer s.provider.FreeSequencedDigestNotifierChannel(notifier)

	cursor := s.provider.NextSequence()
	if req.Start != nil {
		cursor = *req.Start
	}

	var (
		sent uint64
		span summarySpan
	)
	span.reset(cursor)

	send := func(sd types.SequencedDigest) error {
		if err := writeFrame(stream, &types.StreamItem{Digest: &sd}); err != nil {
			return err
		}
		sent++
		cursor = sd.Seq + 1

		span.add(sd)
		if span.count >= summaryInterval {
			if err := writeFrame(stream, &types.StreamItem{Summary: span.summary(cursor)}); err != nil {
				return err
			}
			span.reset(cursor)
		}
		return nil
	}

	for sent < req.Length {
		limit := catchupBatchSize
		if remaining := req.Length - sent; remaining < uint64(limit) {
			limit = int(remaining)
		}

		batch, err := s.provider.DigestsFrom(cursor, limit)
		if err != nil {
			logger.Warn("failed to read digest range", "peer", remote, "err", err)
			_ = stream.Reset()
			return
		}

		for _, sd := range batch {
			if err := send(sd); err != nil {
				logger.Debug("digest stream closed by peer", "peer", remote, "err", err)
				_ = stream.Reset()
				return
			}
		}

		if sent >= req.Length {
			break
		}

		if len(batch) == limit {
			// the log may still be ahead of the cursor
			continue
		}

		select {
		case <-s.ctx.Done():
			_ = stream.Close()
			return
		case sd := <-notifier:
			if sd.Seq < cursor {
				continue
			}
			if sd.Seq > cursor {
				// missed notifications; the next scan covers the gap
				continue
			}
			if err := send(sd); err != nil {
				logger.Debug("digest stream closed by peer", "peer", remote, "err", err)
				_ = stream.Reset()
				return
			}
		}
	}

	// request fully served; a clean close tells the follower to
	// re-subscribe from its cursor
	_ = stream.Close()
}

// handleTransactionInfo answers one transaction-info request
func (s *Service) handleTransactionInfo(stream libp2pnetwork.Stream) {
	remote := stream.Conn().RemotePeer()

	frame, err := readFrame(bufio.NewReader(stream))
	if err != nil {
		logger.Debug("failed to read transaction-info request", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}

	req := new(TransactionInfoRequest)
	if err := req.Decode(frame); err != nil {
		logger.Warn("malformed transaction-info request", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}

	res := new(TransactionInfoResponse)

	info, err := s.provider.GetTransactionInfo(req.Digest)
	switch {
	case errors.Is(err, state.ErrTransactionNotFound):
		// answer honestly with an empty response; what to make of it
		// is the requester's judgement
	case err != nil:
		logger.Warn("failed to load transaction info", "digest", req.Digest.Short(), "err", err)
		_ = stream.Reset()
		return
	default:
		res.TransactionInfo = *info
	}

	if err := s.host.writeToStream(stream, res); err != nil {
		logger.Debug("failed to write transaction-info response", "peer", remote, "err", err)
		_ = stream.Reset()
		return
	}

	_ = stream.Close()
}

// summarySpan accumulates the transaction items sent since the last
// batch summary on a served stream
type summarySpan struct {
	start types.SequenceNumber
	count uint64
	acc   []byte
}

func (sp *summarySpan) reset(start types.SequenceNumber) {
	sp.start = start
	sp.count = 0
	sp.acc = sp.acc[:0]
}

func (sp *summarySpan) add(sd types.SequencedDigest) {
	sp.count++
	sp.acc = append(sp.acc, sd.Digest[:]...)
}

func (sp *summarySpan) summary(end types.SequenceNumber) *types.BatchSummary {
	return &types.BatchSummary{
		Start:  sp.start,
		End:    end,
		Size:   sp.count,
		Digest: types.NewDigest(sp.acc),
	}
}
