// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"bytes"
	"errors"
	"fmt"
)

// Stream item tags on the wire
const (
	streamItemSummary byte = iota
	streamItemDigest
)

var (
	// ErrInvalidStreamItem is returned when decoding a frame with an unknown tag
	ErrInvalidStreamItem = errors.New("invalid digest stream item")
)

// SequencedDigest is one entry of an authority's transaction sequence
type SequencedDigest struct {
	Seq    SequenceNumber
	Digest Digest
}

// String formats a SequencedDigest as a string
func (sd *SequencedDigest) String() string {
	return fmt.Sprintf("SequencedDigest seq=%d digest=%s", sd.Seq, sd.Digest.Short())
}

// BatchSummary describes a span of an authority's sequence. Summaries are
// informational; followers count them but do not verify their contents
// against the transaction items.
type BatchSummary struct {
	Start  SequenceNumber
	End    SequenceNumber
	Size   uint64
	Digest Digest
}

// String formats a BatchSummary as a string
func (bs *BatchSummary) String() string {
	return fmt.Sprintf("BatchSummary start=%d end=%d size=%d", bs.Start, bs.End, bs.Size)
}

// StreamItem is one frame of a digest stream. Exactly one of Summary and
// Digest is set.
type StreamItem struct {
	Summary *BatchSummary
	Digest  *SequencedDigest
}

// String formats a StreamItem as a string
func (si *StreamItem) String() string {
	switch {
	case si.Summary != nil:
		return si.Summary.String()
	case si.Digest != nil:
		return si.Digest.String()
	default:
		return "StreamItem empty"
	}
}

// Encode encodes the stream item with a leading tag byte
func (si *StreamItem) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}

	switch {
	case si.Summary != nil:
		buf.WriteByte(streamItemSummary)
		writeUint64(buf, uint64(si.Summary.Start))
		writeUint64(buf, uint64(si.Summary.End))
		writeUint64(buf, si.Summary.Size)
		writeDigest(buf, si.Summary.Digest)
	case si.Digest != nil:
		buf.WriteByte(streamItemDigest)
		writeUint64(buf, uint64(si.Digest.Seq))
		writeDigest(buf, si.Digest.Digest)
	default:
		return nil, ErrInvalidStreamItem
	}

	return buf.Bytes(), nil
}

// Decode decodes the stream item
func (si *StreamItem) Decode(in []byte) error {
	r := bytes.NewReader(in)

	tag, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading stream item tag: %w", err)
	}

	switch tag {
	case streamItemSummary:
		summary := new(BatchSummary)

		start, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("decoding summary start: %w", err)
		}
		end, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("decoding summary end: %w", err)
		}
		size, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("decoding summary size: %w", err)
		}
		digest, err := readDigest(r)
		if err != nil {
			return fmt.Errorf("decoding summary digest: %w", err)
		}

		summary.Start = SequenceNumber(start)
		summary.End = SequenceNumber(end)
		summary.Size = size
		summary.Digest = digest
		si.Summary = summary
		si.Digest = nil
	case streamItemDigest:
		seq, err := readUint64(r)
		if err != nil {
			return fmt.Errorf("decoding item sequence: %w", err)
		}
		digest, err := readDigest(r)
		if err != nil {
			return fmt.Errorf("decoding item digest: %w", err)
		}

		si.Digest = &SequencedDigest{
			Seq:    SequenceNumber(seq),
			Digest: digest,
		}
		si.Summary = nil
	default:
		return fmt.Errorf("%w: tag %d", ErrInvalidStreamItem, tag)
	}

	return nil
}
