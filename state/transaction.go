// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package state persists the authority's transaction log: everything the
// authority knows about a digest, plus the dense local sequence assigned
// to certified transactions.
package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ChainSafe/chaindb"
	"github.com/ChainSafe/filament/types"
	"github.com/dgraph-io/ristretto"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "state")

const (
	transactionPrefix = "tx"
	sequencePrefix    = "seq"
	metadataPrefix    = "meta"

	notifierBufferSize = 128

	cacheNumCounters = 1 << 16
	cacheMaxCost     = 1 << 24
	cacheBufferItems = 64
)

// ErrTransactionNotFound is returned when the log has no record for a digest
var ErrTransactionNotFound = errors.New("transaction not found")

var nextSequenceKey = []byte("next_sequence")

// TransactionState is the sequenced transaction log. Certified transactions
// are assigned consecutive sequence numbers starting at zero; signed-only
// transactions are stored without a sequence until a certificate arrives.
type TransactionState struct {
	mu sync.RWMutex

	txTable   chaindb.Database // digest -> record
	seqTable  chaindb.Database // big-endian sequence -> digest
	metaTable chaindb.Database

	nextSequence types.SequenceNumber

	cache *ristretto.Cache

	notifierLock sync.RWMutex
	notifiers    map[chan types.SequencedDigest]struct{}
}

// NewTransactionState builds a TransactionState over the given database and
// recovers the sequence counter
func NewTransactionState(db chaindb.Database) (*TransactionState, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("creating digest cache: %w", err)
	}

	ts := &TransactionState{
		txTable:   chaindb.NewTable(db, transactionPrefix),
		seqTable:  chaindb.NewTable(db, sequencePrefix),
		metaTable: chaindb.NewTable(db, metadataPrefix),
		cache:     cache,
		notifiers: make(map[chan types.SequencedDigest]struct{}),
	}

	if err := ts.loadNextSequence(); err != nil {
		cache.Close()
		return nil, err
	}
	sequencedTransactions.Set(float64(ts.nextSequence))

	return ts, nil
}

func (ts *TransactionState) loadNextSequence() error {
	enc, err := ts.metaTable.Get(nextSequenceKey)
	if err == nil && len(enc) == 8 {
		ts.nextSequence = types.SequenceNumber(binary.BigEndian.Uint64(enc))
		return nil
	}

	if err != nil && !errors.Is(err, chaindb.ErrKeyNotFound) {
		return fmt.Errorf("loading sequence counter: %w", err)
	}

	// fresh database or torn counter; walk the dense index instead
	var seq types.SequenceNumber
	for {
		has, err := ts.seqTable.Has(sequenceKey(seq))
		if err != nil {
			return fmt.Errorf("recovering sequence counter: %w", err)
		}
		if !has {
			break
		}
		seq++
	}

	ts.nextSequence = seq
	return nil
}

// sequenceKey encodes a sequence number as a big endian uint64
func sequenceKey(seq types.SequenceNumber) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, uint64(seq))
	return enc
}

// NextSequence returns the sequence the next certified transaction will get
func (ts *TransactionState) NextSequence() types.SequenceNumber {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.nextSequence
}

// HasTransaction returns whether the log has any record for the digest
func (ts *TransactionState) HasTransaction(digest types.Digest) (bool, error) {
	if _, ok := ts.cache.Get(digest[:]); ok {
		return true, nil
	}

	has, err := ts.txTable.Has(digest[:])
	if err != nil {
		return false, fmt.Errorf("checking record %s: %w", digest.Short(), err)
	}

	if has {
		ts.cache.Set(digest[:], struct{}{}, 1)
	}
	return has, nil
}

// GetTransactionInfo returns what the log knows about the digest.
// It returns ErrTransactionNotFound when there is no record at all.
func (ts *TransactionState) GetTransactionInfo(digest types.Digest) (*types.TransactionInfo, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rec, err := ts.readRecord(digest)
	if err != nil {
		return nil, err
	}
	return &rec.info, nil
}

// SequenceOf returns the local sequence assigned to the digest, if any
func (ts *TransactionState) SequenceOf(digest types.Digest) (types.SequenceNumber, bool, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	rec, err := ts.readRecord(digest)
	if errors.Is(err, ErrTransactionNotFound) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}

	if rec.seq == nil {
		return 0, false, nil
	}
	return *rec.seq, true, nil
}

// PutSignedTransaction stores a signed transaction. No sequence is assigned;
// only certificates enter the sequenced index.
func (ts *TransactionState) PutSignedTransaction(signed *types.SignedTransaction) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	digest := signed.Digest()

	rec, err := ts.readRecord(digest)
	if errors.Is(err, ErrTransactionNotFound) {
		rec = new(record)
	} else if err != nil {
		return err
	}

	rec.info.Signed = signed
	if err := ts.writeRecord(digest, rec); err != nil {
		return err
	}

	ts.cache.Set(digest[:], struct{}{}, 1)
	return nil
}

// PutCertificate stores a certificate and assigns it the next sequence
// number. Putting a certificate for an already sequenced digest is a no-op
// returning the existing sequence.
func (ts *TransactionState) PutCertificate(cert *types.Certificate) (types.SequenceNumber, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	digest := cert.Digest()

	rec, err := ts.readRecord(digest)
	if errors.Is(err, ErrTransactionNotFound) {
		rec = new(record)
	} else if err != nil {
		return 0, err
	}

	if rec.seq != nil {
		return *rec.seq, nil
	}

	seq := ts.nextSequence
	rec.seq = &seq
	rec.info.Certificate = cert

	if err := ts.writeRecord(digest, rec); err != nil {
		return 0, err
	}

	if err := ts.seqTable.Put(sequenceKey(seq), digest[:]); err != nil {
		return 0, fmt.Errorf("writing sequence index %d: %w", seq, err)
	}

	if err := ts.metaTable.Put(nextSequenceKey, sequenceKey(seq+1)); err != nil {
		return 0, fmt.Errorf("writing sequence counter: %w", err)
	}

	ts.nextSequence = seq + 1
	ts.cache.Set(digest[:], struct{}{}, 1)
	sequencedTransactions.Set(float64(ts.nextSequence))

	logger.Trace("certificate sequenced", "digest", digest.Short(), "seq", seq)
	ts.notifySequenced(types.SequencedDigest{Seq: seq, Digest: digest})
	return seq, nil
}

// DigestsFrom returns up to limit sequenced digests starting at start,
// in sequence order. The index is dense, so the scan reads consecutive keys.
func (ts *TransactionState) DigestsFrom(start types.SequenceNumber, limit int) ([]types.SequencedDigest, error) {
	ts.mu.RLock()
	next := ts.nextSequence
	ts.mu.RUnlock()

	if start >= next || limit <= 0 {
		return nil, nil
	}

	end := next
	if remaining := uint64(end - start); uint64(limit) < remaining {
		end = start + types.SequenceNumber(limit)
	}

	out := make([]types.SequencedDigest, 0, end-start)
	for seq := start; seq < end; seq++ {
		enc, err := ts.seqTable.Get(sequenceKey(seq))
		if err != nil {
			return nil, fmt.Errorf("reading sequence %d: %w", seq, err)
		}

		digest, err := types.DigestFromBytes(enc)
		if err != nil {
			return nil, fmt.Errorf("reading sequence %d: %w", seq, err)
		}

		out = append(out, types.SequencedDigest{Seq: seq, Digest: digest})
	}
	return out, nil
}

// GetSequencedDigestNotifierChannel returns a channel receiving every newly
// sequenced digest. The send is non-blocking; a slow receiver misses
// notifications rather than stalling certification.
func (ts *TransactionState) GetSequencedDigestNotifierChannel() chan types.SequencedDigest {
	ts.notifierLock.Lock()
	defer ts.notifierLock.Unlock()

	ch := make(chan types.SequencedDigest, notifierBufferSize)
	ts.notifiers[ch] = struct{}{}
	return ch
}

// FreeSequencedDigestNotifierChannel unregisters a notifier channel
func (ts *TransactionState) FreeSequencedDigestNotifierChannel(ch chan types.SequencedDigest) {
	ts.notifierLock.Lock()
	defer ts.notifierLock.Unlock()
	delete(ts.notifiers, ch)
}

func (ts *TransactionState) notifySequenced(sd types.SequencedDigest) {
	ts.notifierLock.RLock()
	defer ts.notifierLock.RUnlock()

	for ch := range ts.notifiers {
		select {
		case ch <- sd:
		default:
		}
	}
}

func (ts *TransactionState) readRecord(digest types.Digest) (*record, error) {
	enc, err := ts.txTable.Get(digest[:])
	if errors.Is(err, chaindb.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, digest.Short())
	} else if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", digest.Short(), err)
	}

	rec := new(record)
	if err := rec.decode(enc); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", digest.Short(), err)
	}
	return rec, nil
}

func (ts *TransactionState) writeRecord(digest types.Digest, rec *record) error {
	enc, err := rec.encode()
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", digest.Short(), err)
	}

	if err := ts.txTable.Put(digest[:], enc); err != nil {
		return fmt.Errorf("writing record %s: %w", digest.Short(), err)
	}
	return nil
}

// record is the stored form of a digest's entry: the answer the authority
// gives for the digest plus the sequence assigned at certification time
type record struct {
	seq  *types.SequenceNumber
	info types.TransactionInfo
}

func (r *record) encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	if r.seq != nil {
		buf.WriteByte(1)
		buf.Write(sequenceKey(*r.seq))
	} else {
		buf.WriteByte(0)
	}

	enc, err := r.info.Encode()
	if err != nil {
		return nil, err
	}
	buf.Write(enc)
	return buf.Bytes(), nil
}

func (r *record) decode(in []byte) error {
	if len(in) == 0 {
		return errors.New("empty record")
	}

	switch in[0] {
	case 0:
		r.seq = nil
		in = in[1:]
	case 1:
		if len(in) < 9 {
			return errors.New("record too short for sequence")
		}
		seq := types.SequenceNumber(binary.BigEndian.Uint64(in[1:9]))
		r.seq = &seq
		in = in[9:]
	default:
		return fmt.Errorf("invalid record flag %d", in[0])
	}

	return r.info.Decode(in)
}
