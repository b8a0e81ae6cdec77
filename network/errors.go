// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package network

import (
	"errors"
)

var (
	// ErrReceivedEmptyMessage is returned when a peer answers with a zero-length frame
	ErrReceivedEmptyMessage = errors.New("received empty message")
	// ErrMessageTooLarge is returned when a frame announces a length above the cap
	ErrMessageTooLarge = errors.New("message size greater than maximum")
	// ErrInvalidLEB128 is returned when a frame length prefix does not fit in 64 bits
	ErrInvalidLEB128 = errors.New("invalid LEB128 integer")
	// ErrNotCommitteeMember is returned when requesting a client for a peer
	// outside the committee address book
	ErrNotCommitteeMember = errors.New("peer is not a committee member")
	// ErrNilStream is returned when reading from an unset stream
	ErrNilStream = errors.New("stream is nil")
)
