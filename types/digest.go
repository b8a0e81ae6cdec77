// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// DigestLength is the expected length of the Digest type
	DigestLength = 32
)

// EmptyDigest is the zero value of the Digest type
var EmptyDigest = Digest{}

// ErrDigestLength is returned when decoding a digest of the wrong size
var ErrDigestLength = errors.New("digest is not 32 bytes")

// Digest is the 256-bit blake2b hash of a transaction payload
type Digest [32]byte

// NewDigest returns the digest of the given payload
func NewDigest(in []byte) Digest {
	return Digest(blake2b.Sum256(in))
}

// DigestFromBytes casts a byte slice to a Digest
func DigestFromBytes(in []byte) (Digest, error) {
	if len(in) != DigestLength {
		return EmptyDigest, fmt.Errorf("%w: got %d", ErrDigestLength, len(in))
	}

	var d Digest
	copy(d[:], in)
	return d, nil
}

// DigestFromHex parses a 0x-prefixed hex string into a Digest
func DigestFromHex(in string) (Digest, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(in, "0x"))
	if err != nil {
		return EmptyDigest, err
	}

	return DigestFromBytes(b)
}

// Bytes returns the digest as a byte slice
func (d Digest) Bytes() []byte { //skipcq: GO-W1029
	b := [32]byte(d)
	return b[:]
}

// IsEmpty returns true if the digest is the zero value
func (d Digest) IsEmpty() bool { //skipcq: GO-W1029
	return d == EmptyDigest
}

// String returns the hex string for the digest
func (d Digest) String() string { //skipcq: GO-W1029
	return fmt.Sprintf("0x%x", d[:])
}

// Short returns the first 4 bytes and the last 4 bytes of the hex string for the digest
func (d Digest) Short() string { //skipcq: GO-W1029
	const nBytes = 4
	return fmt.Sprintf("0x%x...%x", d[:nBytes], d[len(d)-nBytes:])
}
