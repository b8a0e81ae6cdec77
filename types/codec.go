// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFieldLength bounds variable-length fields so a malformed message
// cannot make the decoder allocate unreasonably.
const maxFieldLength = 1 << 21 // 2 MiB

var (
	errFieldTooLarge  = errors.New("encoded field exceeds maximum length")
	errUnexpectedByte = errors.New("unexpected presence byte")
)

func writeUint64(buf *bytes.Buffer, v uint64) {
	enc := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(enc, v)
	buf.Write(enc[:n])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("reading uvarint: %w", err)
	}
	return v, nil
}

func writeByteSlice(buf *bytes.Buffer, b []byte) {
	writeUint64(buf, uint64(len(b)))
	buf.Write(b)
}

func readByteSlice(r *bytes.Reader) ([]byte, error) {
	length, err := readUint64(r)
	if err != nil {
		return nil, err
	}

	if length > maxFieldLength || length > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: %d", errFieldTooLarge, length)
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeDigest(buf *bytes.Buffer, d Digest) {
	buf.Write(d[:])
}

func readDigest(r *bytes.Reader) (Digest, error) {
	b := make([]byte, DigestLength)
	if _, err := io.ReadFull(r, b); err != nil {
		return EmptyDigest, err
	}
	return DigestFromBytes(b)
}

// writePresence writes a presence byte for an optional field.
func writePresence(buf *bytes.Buffer, present bool) {
	if present {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readPresence(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}

	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", errUnexpectedByte, b)
	}
}
