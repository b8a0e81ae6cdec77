// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"context"
	"fmt"
	mrand "math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ChainSafe/filament/committee"
	"github.com/ChainSafe/filament/network"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func newTestPeerID(t *testing.T, seed int64) peer.ID {
	t.Helper()

	key, _, err := crypto.GenerateEd25519Key(mrand.New(mrand.NewSource(seed))) //nolint
	require.NoError(t, err)

	id, err := peer.IDFromPrivateKey(key)
	require.NoError(t, err)
	return id
}

func newTestCommittee(t *testing.T, stakes ...uint64) (*committee.Committee, []peer.ID) {
	t.Helper()

	weights := make(map[peer.ID]uint64, len(stakes))
	ids := make([]peer.ID, len(stakes))
	for i, stake := range stakes {
		ids[i] = newTestPeerID(t, int64(i+1))
		weights[ids[i]] = stake
	}

	c, err := committee.NewCommittee(weights)
	require.NoError(t, err)
	return c, ids
}

func newTestCertificate(payload string) *types.Certificate {
	return &types.Certificate{
		Transaction:        types.NewTransaction([]byte(payload)),
		AggregateSignature: []byte("agg"),
	}
}

func digestItem(seq types.SequenceNumber, digest types.Digest) network.StreamResult {
	return network.StreamResult{
		Item: &types.StreamItem{Digest: &types.SequencedDigest{Seq: seq, Digest: digest}},
	}
}

func summaryItem(start, end types.SequenceNumber, size uint64) network.StreamResult {
	return network.StreamResult{
		Item: &types.StreamItem{Summary: &types.BatchSummary{Start: start, End: end, Size: size}},
	}
}

// waitUntil polls cond every 10ms until it holds or the timeout elapses
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

// streamScript is what one DigestStream call delivers: the scripted
// results, then either a clean close or a stream held open until ctx ends
type streamScript struct {
	results       []network.StreamResult
	closeWhenDone bool
}

// fakeClient is a scripted stand-in for a peer. Each DigestStream call
// consumes the next script; the last script is reused for further calls.
type fakeClient struct {
	mu        sync.Mutex
	scripts   []streamScript
	requests  []network.DigestStreamRequest
	infos     map[types.Digest]*types.TransactionInfo
	infoCalls []types.Digest
	openErr   error
	infoErr   error
}

func (f *fakeClient) DigestStream(ctx context.Context,
	req *network.DigestStreamRequest) (<-chan network.StreamResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)

	if f.openErr != nil {
		err := f.openErr
		f.mu.Unlock()
		return nil, err
	}

	var script streamScript
	if len(f.scripts) > 0 {
		script = f.scripts[0]
		if len(f.scripts) > 1 {
			f.scripts = f.scripts[1:]
		}
	}
	f.mu.Unlock()

	out := make(chan network.StreamResult)
	go func() {
		defer close(out)
		for _, res := range script.results {
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}

		if script.closeWhenDone {
			return
		}
		<-ctx.Done()
	}()

	return out, nil
}

func (f *fakeClient) TransactionInfo(_ context.Context,
	req *network.TransactionInfoRequest) (*types.TransactionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.infoCalls = append(f.infoCalls, req.Digest)
	if f.infoErr != nil {
		return nil, f.infoErr
	}

	if info, ok := f.infos[req.Digest]; ok {
		return info, nil
	}
	return &types.TransactionInfo{}, nil
}

func (f *fakeClient) fetched() []types.Digest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Digest(nil), f.infoCalls...)
}

func (f *fakeClient) subscriptions() []network.DigestStreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]network.DigestStreamRequest(nil), f.requests...)
}

// panickyClient aborts any session that touches it
type panickyClient struct{}

func (panickyClient) DigestStream(context.Context,
	*network.DigestStreamRequest) (<-chan network.StreamResult, error) {
	panic("stream exploded")
}

func (panickyClient) TransactionInfo(context.Context,
	*network.TransactionInfoRequest) (*types.TransactionInfo, error) {
	panic("unreachable")
}

// fakeClientSet records which peers the orchestrator asked for
type fakeClientSet struct {
	mu       sync.Mutex
	clients  map[peer.ID]Client
	fallback func(id peer.ID) Client
	calls    []peer.ID
}

func (f *fakeClientSet) Client(id peer.ID) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, id)
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	if f.fallback != nil {
		return f.fallback(id), nil
	}
	return nil, fmt.Errorf("no client for %s", id)
}

func (f *fakeClientSet) called() []peer.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]peer.ID(nil), f.calls...)
}

// fakeState is an in-memory digest set
type fakeState struct {
	mu    sync.Mutex
	known map[types.Digest]struct{}
	err   error
}

func newFakeState(known ...types.Digest) *fakeState {
	m := make(map[types.Digest]struct{}, len(known))
	for _, d := range known {
		m[d] = struct{}{}
	}
	return &fakeState{known: m}
}

func (f *fakeState) HasTransaction(digest types.Digest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return false, f.err
	}
	_, ok := f.known[digest]
	return ok, nil
}

type syncCall struct {
	digest      types.Digest
	source      peer.ID
	destination peer.ID
}

// fakeSynchronizer records the certificates handed to it
type fakeSynchronizer struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (f *fakeSynchronizer) SyncCertificate(_ context.Context, cert *types.Certificate,
	source, destination peer.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.calls = append(f.calls, syncCall{
		digest:      cert.Digest(),
		source:      source,
		destination: destination,
	})
	return nil
}

func (f *fakeSynchronizer) synced() []syncCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncCall(nil), f.calls...)
}
