// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxMessageSize caps a single LEB128-prefixed frame
const maxMessageSize uint64 = 1024 * 1024 // 1 MiB

func uint64ToLEB128(in uint64) []byte {
	out := []byte{}
	for {
		b := uint8(in & 0x7f)
		in >>= 7
		if in != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if in == 0 {
			break
		}
	}
	return out
}

func readLEB128ToUint64(r *bufio.Reader) (uint64, error) {
	var out uint64
	var shift uint
	for {
		if shift > 63 {
			return 0, ErrInvalidLEB128
		}

		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}

		out |= uint64(0x7F&b) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return out, nil
}

// writeFrame writes one length-prefixed encoded message to the writer
func writeFrame(w io.Writer, msg interface{ Encode() ([]byte, error) }) error {
	enc, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	frame := append(uint64ToLEB128(uint64(len(enc))), enc...)
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return nil
}

// readFrame reads one length-prefixed frame from the reader. A clean
// remote close surfaces as io.EOF before any length byte.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := readLEB128ToUint64(r)
	if err != nil {
		return nil, err
	}

	if length == 0 {
		return nil, ErrReceivedEmptyMessage
	}

	if length > maxMessageSize {
		return nil, fmt.Errorf("%w: got %d", ErrMessageTooLarge, length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

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
