// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"bytes"
	"fmt"

	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/protocol"
)

const (
	// digestStreamID is the protocol for following an authority's transaction sequence
	digestStreamID = protocol.ID("/filament/digests/1")
	// transactionInfoID is the protocol for fetching what an authority knows about a digest
	transactionInfoID = protocol.ID("/filament/txinfo/1")
)

// DefaultStreamLength is the number of transaction items a follower asks for
// per digest stream. The serving authority closes the stream after sending
// this many, and the follower re-subscribes from its cursor.
const DefaultStreamLength uint64 = 100_000

// Message must be implemented by all network messages
type Message interface {
	SubProtocol() protocol.ID
	Encode() ([]byte, error)
	Decode(in []byte) error
	String() string
}

var (
	_ Message = (*DigestStreamRequest)(nil)
	_ Message = (*TransactionInfoRequest)(nil)
	_ Message = (*TransactionInfoResponse)(nil)
)

// DigestStreamRequest opens a digest stream. A nil Start leaves the first
// sequence to the serving authority, which streams from its current tail.
// The server closes the stream once Length transaction items were sent.
type DigestStreamRequest struct {
	Start  *types.SequenceNumber
	Length uint64
}

// SubProtocol returns the digest-stream sub-protocol
func (dsr *DigestStreamRequest) SubProtocol() protocol.ID {
	return digestStreamID
}

// String formats a DigestStreamRequest as a string
func (dsr *DigestStreamRequest) String() string {
	start := "tail"
	if dsr.Start != nil {
		start = fmt.Sprintf("%d", *dsr.Start)
	}
	return fmt.Sprintf("DigestStreamRequest start=%s length=%d", start, dsr.Length)
}

// Encode encodes the request
func (dsr *DigestStreamRequest) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}

	if dsr.Start != nil {
		buf.WriteByte(1)
		writeUint64(buf, uint64(*dsr.Start))
	} else {
		buf.WriteByte(0)
	}
	writeUint64(buf, dsr.Length)

	return buf.Bytes(), nil
}

// Decode decodes the request
func (dsr *DigestStreamRequest) Decode(in []byte) error {
	r := bytes.NewReader(in)

	flag, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading start flag: %w", err)
	}

	switch flag {
	case 1:
		start, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("decoding start: %w", err)
		}
		seq := types.SequenceNumber(start)
		dsr.Start = &seq
	case 0:
		dsr.Start = nil
	default:
		return fmt.Errorf("unexpected start flag %d", flag)
	}

	length, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("decoding length: %w", err)
	}
	dsr.Length = length

	return nil
}

// TransactionInfoRequest asks an authority what it knows about a digest
type TransactionInfoRequest struct {
	Digest types.Digest
}

// SubProtocol returns the transaction-info sub-protocol
func (tir *TransactionInfoRequest) SubProtocol() protocol.ID {
	return transactionInfoID
}

// String formats a TransactionInfoRequest as a string
func (tir *TransactionInfoRequest) String() string {
	return fmt.Sprintf("TransactionInfoRequest digest=%s", tir.Digest.Short())
}

// Encode encodes the request
func (tir *TransactionInfoRequest) Encode() ([]byte, error) {
	return tir.Digest.Bytes(), nil
}

// Decode decodes the request
func (tir *TransactionInfoRequest) Decode(in []byte) error {
	digest, err := types.DigestFromBytes(in)
	if err != nil {
		return err
	}
	tir.Digest = digest
	return nil
}

// TransactionInfoResponse answers a TransactionInfoRequest. An authority
// that knows nothing about the digest answers with both fields unset.
type TransactionInfoResponse struct {
	types.TransactionInfo
}

// SubProtocol returns the transaction-info sub-protocol
func (tir *TransactionInfoResponse) SubProtocol() protocol.ID {
	return transactionInfoID
}

// String formats a TransactionInfoResponse as a string
func (tir *TransactionInfoResponse) String() string {
	return fmt.Sprintf("TransactionInfoResponse signed=%t certificate=%t",
		tir.Signed != nil, tir.Certificate != nil)
}
