// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package genesis parses the committee genesis file, the static record
// of one epoch's membership: each authority's peer ID, its listening
// address and its stake.
package genesis

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChainSafe/filament/committee"
	"github.com/go-playground/validator/v10"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/naoina/toml"
)

// Member is one committee entry of the genesis file
type Member struct {
	PeerID  string `toml:"peer-id" validate:"required"`
	Address string `toml:"address" validate:"required"`
	Stake   uint64 `toml:"stake" validate:"gt=0"`
}

// Genesis stores the data parsed from the committee genesis file
type Genesis struct {
	Name    string   `toml:"name,omitempty"`
	ID      string   `toml:"id,omitempty"`
	Members []Member `toml:"members" validate:"required,min=1,dive"`
}

// LoadGenesis reads and validates the toml genesis file at the given path
func LoadGenesis(file string) (*Genesis, error) {
	fp, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolving genesis path: %w", err)
	}

	data, err := os.ReadFile(filepath.Clean(fp))
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	g := new(Genesis)
	if err = toml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decoding genesis file: %w", err)
	}

	if err = validator.New().Struct(g); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return g, nil
}

// ExportGenesis writes the genesis to the given path as toml
func ExportGenesis(g *Genesis, file string) error {
	raw, err := toml.Marshal(*g)
	if err != nil {
		return fmt.Errorf("marshalling genesis: %w", err)
	}

	if err := os.WriteFile(file, raw, 0600); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Committee builds the stake table from the member entries
func (g *Genesis) Committee() (*committee.Committee, error) {
	weights := make(map[peer.ID]uint64, len(g.Members))
	for _, m := range g.Members {
		id, err := peer.Decode(m.PeerID)
		if err != nil {
			return nil, fmt.Errorf("decoding peer id %q: %w", m.PeerID, err)
		}

		if _, ok := weights[id]; ok {
			return nil, fmt.Errorf("duplicate committee member %s", id)
		}
		weights[id] = m.Stake
	}
	return committee.NewCommittee(weights)
}

// AddressBook maps each member to its listening address
func (g *Genesis) AddressBook() (map[peer.ID]ma.Multiaddr, error) {
	book := make(map[peer.ID]ma.Multiaddr, len(g.Members))
	for _, m := range g.Members {
		id, err := peer.Decode(m.PeerID)
		if err != nil {
			return nil, fmt.Errorf("decoding peer id %q: %w", m.PeerID, err)
		}

		addr, err := ma.NewMultiaddr(m.Address)
		if err != nil {
			return nil, fmt.Errorf("parsing address for %s: %w", id, err)
		}
		book[id] = addr
	}
	return book, nil
}
