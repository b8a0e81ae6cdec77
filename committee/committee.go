// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package committee holds the stake table of an authority network epoch.
// A Committee is constructed once from configuration and is immutable;
// every component that needs stake arithmetic receives the same value.
package committee

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/exp/maps"
)

var (
	// ErrNoMembers is returned when constructing a committee without members
	ErrNoMembers = errors.New("committee has no members")
	// ErrZeroStake is returned when a member is declared with zero stake
	ErrZeroStake = errors.New("committee member has zero stake")
	// ErrStakeOverflow is returned when the total stake does not fit the sampling arithmetic
	ErrStakeOverflow = errors.New("total stake overflows")
)

// Committee is the stake-weighted membership of one epoch
type Committee struct {
	weights map[peer.ID]uint64
	members []peer.ID
	total   uint64
}

// NewCommittee builds a committee from the given stake weights
func NewCommittee(weights map[peer.ID]uint64) (*Committee, error) {
	if len(weights) == 0 {
		return nil, ErrNoMembers
	}

	var total uint64
	for id, weight := range weights {
		if weight == 0 {
			return nil, fmt.Errorf("%w: %s", ErrZeroStake, id)
		}

		if total > math.MaxInt64-weight {
			return nil, ErrStakeOverflow
		}
		total += weight
	}

	// stable member order makes sampling and iteration deterministic
	// for a given random draw
	members := maps.Keys(weights)
	slices.Sort(members)

	return &Committee{
		weights: maps.Clone(weights),
		members: members,
		total:   total,
	}, nil
}

// Size returns the number of members
func (c *Committee) Size() int {
	return len(c.members)
}

// TotalWeight returns the sum of all members' stake
func (c *Committee) TotalWeight() uint64 {
	return c.total
}

// Weight returns the stake of the given member, 0 for non-members
func (c *Committee) Weight(id peer.ID) uint64 {
	return c.weights[id]
}

// IsMember returns true if the given peer is part of the committee
func (c *Committee) IsMember(id peer.ID) bool {
	_, ok := c.weights[id]
	return ok
}

// Authorities returns the members in stable order
func (c *Committee) Authorities() []peer.ID {
	return slices.Clone(c.members)
}

// QuorumThreshold returns the stake needed for a Byzantine quorum,
// 2f+1 out of 3f+1 by convention
func (c *Committee) QuorumThreshold() uint64 {
	return 2*c.total/3 + 1
}

// StakeOf sums the stake of the given peers; unknown peers contribute nothing
func (c *Committee) StakeOf(ids ...peer.ID) uint64 {
	var sum uint64
	for _, id := range ids {
		sum += c.weights[id]
	}
	return sum
}

// Sample draws a member at random with probability proportional to stake.
// Draws are independent; repeated calls may return the same member.
func (c *Committee) Sample() peer.ID {
	target := uint64(rand.Int63n(int64(c.total))) //nolint:gosec

	var cumulative uint64
	for _, id := range c.members {
		cumulative += c.weights[id]
		if target < cumulative {
			return id
		}
	}

	// unreachable while total equals the sum of weights
	return c.members[len(c.members)-1]
}
