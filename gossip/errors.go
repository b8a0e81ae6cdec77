// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"errors"
)

var (
	// ErrByzantineSuspicion is returned when a peer advertised a digest it
	// cannot substantiate with a certificate
	ErrByzantineSuspicion = errors.New("peer cannot substantiate advertised digest")
	// ErrNoEligiblePeers is returned when the selection budget is exhausted
	// without finding a contactable peer
	ErrNoEligiblePeers = errors.New("no eligible gossip peers")
	// ErrSessionAborted is returned when a session goroutine terminated
	// abnormally
	ErrSessionAborted = errors.New("gossip session aborted")
)
