// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"context"
	"fmt"
	"time"

	"github.com/ChainSafe/filament/network"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// streamRequestLength is the number of transaction items requested per
	// digest stream; the peer closes the stream after sending this many and
	// the session re-subscribes from its cursor
	streamRequestLength = 100_000

	// streamReopenDelay separates the clean end of one stream from the
	// next subscription
	streamReopenDelay = 10 * time.Millisecond
)

// peerSession follows one peer's transaction sequence for one staggered
// interval: every advertised digest not yet known locally is fetched and
// handed to the synchronizer.
type peerSession struct {
	peer         peer.ID
	self         peer.ID
	client       Client
	state        TransactionState
	synchronizer Synchronizer

	// cursor is the next sequence to request from the peer. It survives
	// stream reopens within the session and never rewinds; a nil cursor
	// lets the peer start from its current tail.
	cursor *types.SequenceNumber

	summaries uint64
}

func newPeerSession(peerID, self peer.ID, client Client,
	state TransactionState, synchronizer Synchronizer) *peerSession {
	return &peerSession{
		peer:         peerID,
		self:         self,
		client:       client,
		state:        state,
		synchronizer: synchronizer,
	}
}

// run follows the peer until the deadline elapses. Elapsing is the one
// clean way out; everything else that ends the session is an error.
func (ps *peerSession) run(ctx context.Context, duration time.Duration) error {
	// cancelling on return is what unwinds the open stream's goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	results, err := ps.subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				// the peer served the full request; re-subscribe
				// from the cursor after a short pause
				if done, err := ps.reopenWait(ctx, deadline); done {
					return err
				}

				results, err = ps.subscribe(ctx)
				if err != nil {
					return err
				}
				continue
			}

			if res.Err != nil {
				return res.Err
			}

			if err := ps.handleItem(ctx, res.Item); err != nil {
				return err
			}
		}
	}
}

func (ps *peerSession) subscribe(ctx context.Context) (<-chan network.StreamResult, error) {
	req := &network.DigestStreamRequest{
		Start:  ps.cursor,
		Length: streamRequestLength,
	}

	results, err := ps.client.DigestStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", ps.peer, err)
	}

	logger.Debug("following digest stream", "peer", ps.peer, "request", req.String())
	return results, nil
}

// reopenWait sleeps streamReopenDelay. A fired session deadline ends the
// session cleanly; cancellation ends it with ctx's error.
func (ps *peerSession) reopenWait(ctx context.Context, deadline *time.Timer) (done bool, err error) {
	wait := time.NewTimer(streamReopenDelay)
	defer wait.Stop()

	select {
	case <-deadline.C:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	case <-wait.C:
		return false, nil
	}
}

func (ps *peerSession) handleItem(ctx context.Context, item *types.StreamItem) error {
	switch {
	case item == nil:
		return fmt.Errorf("nil stream item from %s", ps.peer)
	case item.Summary != nil:
		ps.summaries++
		logger.Debug("batch summary", "peer", ps.peer,
			"start", item.Summary.Start, "end", item.Summary.End, "size", item.Summary.Size)
		return nil
	case item.Digest != nil:
		return ps.handleDigest(ctx, item.Digest)
	default:
		return fmt.Errorf("empty stream item from %s", ps.peer)
	}
}

func (ps *peerSession) handleDigest(ctx context.Context, sd *types.SequencedDigest) error {
	// the cursor advances whatever the outcome, so a re-subscribe never
	// replays an item the peer already delivered
	defer ps.advance(sd.Seq)

	known, err := ps.state.HasTransaction(sd.Digest)
	if err != nil {
		return fmt.Errorf("checking digest %s: %w", sd.Digest.Short(), err)
	}
	if known {
		return nil
	}

	info, err := ps.client.TransactionInfo(ctx, &network.TransactionInfoRequest{Digest: sd.Digest})
	if err != nil {
		return fmt.Errorf("fetching %s from %s: %w", sd.Digest.Short(), ps.peer, err)
	}

	return ps.processResponse(ctx, sd.Digest, info)
}

// advance moves the cursor to seq+1 unless that would rewind it; a peer
// replaying old sequence numbers cannot drag the session backwards
func (ps *peerSession) advance(seq types.SequenceNumber) {
	next := seq + 1
	if ps.cursor == nil || next > *ps.cursor {
		ps.cursor = &next
	}
}

// processResponse decides what a fetched answer proves. Only a certificate
// is allowed through to the synchronizer; a peer that advertised a digest
// but answers without one cannot substantiate its own stream.
func (ps *peerSession) processResponse(ctx context.Context, digest types.Digest,
	info *types.TransactionInfo) error {
	if info == nil || info.Certificate == nil {
		return fmt.Errorf("%w: %s advertised %s", ErrByzantineSuspicion, ps.peer, digest.Short())
	}

	if err := ps.synchronizer.SyncCertificate(ctx, info.Certificate, ps.peer, ps.self); err != nil {
		return fmt.Errorf("syncing certificate %s: %w", digest.Short(), err)
	}

	certificatesFetched.Inc()
	return nil
}
