// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"testing"

	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestEncodeDigestStreamRequest(t *testing.T) {
	t.Parallel()

	t.Run("with_start_sequence", func(t *testing.T) {
		t.Parallel()

		start := types.SequenceNumber(42)
		req := &DigestStreamRequest{
			Start:  &start,
			Length: DefaultStreamLength,
		}

		enc, err := req.Encode()
		require.NoError(t, err)

		res := new(DigestStreamRequest)
		err = res.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, req, res)
	})

	t.Run("tail_request", func(t *testing.T) {
		t.Parallel()

		req := &DigestStreamRequest{
			Length: 1000,
		}

		enc, err := req.Encode()
		require.NoError(t, err)

		res := new(DigestStreamRequest)
		err = res.Decode(enc)
		require.NoError(t, err)
		require.Nil(t, res.Start)
		require.Equal(t, uint64(1000), res.Length)
	})

	t.Run("rejects_truncated_request", func(t *testing.T) {
		t.Parallel()

		start := types.SequenceNumber(7)
		req := &DigestStreamRequest{Start: &start, Length: 9}

		enc, err := req.Encode()
		require.NoError(t, err)

		res := new(DigestStreamRequest)
		err = res.Decode(enc[:1])
		require.Error(t, err)
	})
}

func TestDigestStreamRequestString(t *testing.T) {
	t.Parallel()

	start := types.SequenceNumber(5)
	req := &DigestStreamRequest{Start: &start, Length: 10}
	require.Equal(t, "DigestStreamRequest start=5 length=10", req.String())

	tail := &DigestStreamRequest{Length: 10}
	require.Equal(t, "DigestStreamRequest start=tail length=10", tail.String())
}

func TestEncodeTransactionInfoRequest(t *testing.T) {
	t.Parallel()

	digest := types.NewDigest([]byte("some transaction"))
	req := &TransactionInfoRequest{Digest: digest}

	enc, err := req.Encode()
	require.NoError(t, err)
	require.Len(t, enc, types.DigestLength)

	res := new(TransactionInfoRequest)
	err = res.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, digest, res.Digest)

	err = res.Decode(enc[:8])
	require.Error(t, err)
}

func TestEncodeTransactionInfoResponse(t *testing.T) {
	t.Parallel()

	tx := types.NewTransaction([]byte("transfer"))
	res := &TransactionInfoResponse{
		TransactionInfo: types.TransactionInfo{
			Certificate: &types.Certificate{
				Transaction: tx,
				Signers:     []peer.ID{newTestPeerID(t, 1)},
			},
		},
	}

	enc, err := res.Encode()
	require.NoError(t, err)

	out := new(TransactionInfoResponse)
	err = out.Decode(enc)
	require.NoError(t, err)
	require.NotNil(t, out.Certificate)
	require.Equal(t, tx.Digest(), out.Certificate.Digest())
}
