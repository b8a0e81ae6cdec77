// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package syncer accepts certificates learned from other authorities,
// checks them against the committee stake table, and persists them into
// the local sequence.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChainSafe/filament/committee"
	"github.com/ChainSafe/filament/types"
	"github.com/libp2p/go-libp2p/core/peer"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "syncer")

var (
	// ErrWrongDestination is returned when a certificate is routed to an
	// authority other than the local one
	ErrWrongDestination = errors.New("certificate destined for another authority")
	// ErrNilCertificate is returned when there is no certificate to sync
	ErrNilCertificate = errors.New("certificate is nil")
	// ErrDigestMismatch is returned when a certificate's digest does not
	// match its transaction payload
	ErrDigestMismatch = errors.New("certificate digest does not match payload")
	// ErrUnknownSigner is returned when a signer is not a committee member
	ErrUnknownSigner = errors.New("signer is not a committee member")
	// ErrDuplicateSigner is returned when a signer is listed twice
	ErrDuplicateSigner = errors.New("signer listed twice")
	// ErrInsufficientStake is returned when the signers do not reach the
	// quorum threshold
	ErrInsufficientStake = errors.New("signer stake below quorum threshold")
)

// TransactionStore persists validated certificates
type TransactionStore interface {
	PutCertificate(cert *types.Certificate) (types.SequenceNumber, error)
}

// Service validates and persists certificates on behalf of the local authority
type Service struct {
	self      peer.ID
	committee *committee.Committee
	store     TransactionStore
}

// NewService creates a certificate syncer for the local authority
func NewService(self peer.ID, cmt *committee.Committee, store TransactionStore) *Service {
	return &Service{
		self:      self,
		committee: cmt,
		store:     store,
	}
}

// SyncCertificate checks a certificate learned from source and persists it.
// Only the stake accounting is checked here; verifying the aggregate
// signature bytes is the caller's integration point.
func (s *Service) SyncCertificate(ctx context.Context, cert *types.Certificate,
	source, destination peer.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if destination != s.self {
		return fmt.Errorf("%w: %s", ErrWrongDestination, destination)
	}

	if err := s.validate(cert); err != nil {
		return err
	}

	seq, err := s.store.PutCertificate(cert)
	if err != nil {
		return fmt.Errorf("persisting certificate %s: %w", cert.Digest().Short(), err)
	}

	logger.Debug("certificate synced", "digest", cert.Digest().Short(), "seq", seq, "source", source)
	return nil
}

func (s *Service) validate(cert *types.Certificate) error {
	if cert == nil || cert.Transaction == nil {
		return ErrNilCertificate
	}

	if types.NewDigest(cert.Transaction.Data) != cert.Digest() {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, cert.Digest().Short())
	}

	seen := make(map[peer.ID]struct{}, len(cert.Signers))
	for _, signer := range cert.Signers {
		if !s.committee.IsMember(signer) {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, signer)
		}
		if _, ok := seen[signer]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSigner, signer)
		}
		seen[signer] = struct{}{}
	}

	if stake := s.committee.StakeOf(cert.Signers...); stake < s.committee.QuorumThreshold() {
		return fmt.Errorf("%w: %d of %d", ErrInsufficientStake,
			stake, s.committee.QuorumThreshold())
	}

	return nil
}
