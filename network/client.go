// Copyright 2024 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	// DefaultRequestTimeout bounds a single transaction-info round trip
	DefaultRequestTimeout = 10 * time.Second

	// streamResultBuffer is the fan-out buffer between the stream pump
	// and its consumer
	streamResultBuffer = 64
)

// StreamResult is one delivery from an open digest stream. A result with
// Err set is terminal; a channel closed without one means the remote
// ended the stream cleanly.
type StreamResult struct {
	Item *types.StreamItem
	Err  error
}

// Client requests data from a single committee peer. It implements the
// two operations the gossip layer needs and nothing else, so tests can
// stand in a scripted in-memory fake.
type Client struct {
	host           *host
	peer           peer.ID
	requestTimeout time.Duration
}

// Peer returns the authority this client is bound to
func (c *Client) Peer() peer.ID {
	return c.peer
}

// TransactionInfo asks the peer what it knows about a digest. The round
// trip is bounded by the client's request timeout.
func (c *Client) TransactionInfo(ctx context.Context, req *TransactionInfoRequest) (*types.TransactionInfo, error) {
	c.host.p2pHost.ConnManager().Protect(c.peer, "")
	defer c.host.p2pHost.ConnManager().Unprotect(c.peer, "")

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	stream, err := c.host.newStream(ctx, c.peer, req.SubProtocol())
	if err != nil {
		return nil, fmt.Errorf("opening transaction-info stream: %w", err)
	}

	defer func() {
		if err := stream.Close(); err != nil {
			logger.Warn("failed to close stream", "peer", c.peer, "err", err)
		}
	}()

	if err := c.host.writeToStream(stream, req); err != nil {
		return nil, fmt.Errorf("writing transaction-info request: %w", err)
	}

	if err := stream.SetReadDeadline(time.Now().Add(c.requestTimeout)); err != nil {
		logger.Debug("failed to set read deadline", "peer", c.peer, "err", err)
	}

	frame, err := readFrame(bufio.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("reading transaction-info response: %w", err)
	}

	res := new(TransactionInfoResponse)
	if err := res.Decode(frame); err != nil {
		return nil, fmt.Errorf("decoding transaction-info response: %w", err)
	}

	return &res.TransactionInfo, nil
}

// DigestStream opens a digest stream on the peer and pumps its frames
// into the returned channel until the stream errors, the remote closes
// it, or ctx is done.
func (c *Client) DigestStream(ctx context.Context, req *DigestStreamRequest) (<-chan StreamResult, error) {
	stream, err := c.host.newStream(ctx, c.peer, req.SubProtocol())
	if err != nil {
		return nil, fmt.Errorf("opening digest stream: %w", err)
	}

	if err := c.host.writeToStream(stream, req); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("writing digest stream request: %w", err)
	}

	results := make(chan StreamResult, streamResultBuffer)
	pumpDone := make(chan struct{})

	// the pump blocks in Read; resetting the stream on ctx cancellation
	// is what unblocks it
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Reset()
		case <-pumpDone:
		}
	}()

	go func() {
		defer close(results)
		defer close(pumpDone)

		r := bufio.NewReader(stream)
		for {
			frame, err := readFrame(r)
			if err != nil {
				if errors.Is(err, io.EOF) {
					// clean close, end of data
					_ = stream.Close()
					return
				}
				if ctx.Err() != nil {
					return
				}

				select {
				case results <- StreamResult{Err: fmt.Errorf("reading digest stream: %w", err)}:
				case <-ctx.Done():
				}
				_ = stream.Reset()
				return
			}

			item := new(types.StreamItem)
			if err := item.Decode(frame); err != nil {
				select {
				case results <- StreamResult{Err: fmt.Errorf("decoding digest stream item: %w", err)}:
				case <-ctx.Done():
				}
				_ = stream.Reset()
				return
			}

			select {
			case results <- StreamResult{Item: item}:
			case <-ctx.Done():
				_ = stream.Reset()
				return
			}
		}
	}()

	return results, nil
}
