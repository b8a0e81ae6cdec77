// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"bytes"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// SequenceNumber indexes an authority's local sequence of certified transactions.
// Each authority assigns its own sequence numbers; they are not comparable
// across authorities.
type SequenceNumber uint64

// Transaction is an opaque transaction payload. The dissemination layer
// never interprets the payload; it only hashes and moves it.
type Transaction struct {
	Data []byte

	digest Digest
}

// NewTransaction creates a transaction from a payload and computes its digest
func NewTransaction(data []byte) *Transaction {
	return &Transaction{
		Data:   data,
		digest: NewDigest(data),
	}
}

// Digest returns the digest of the transaction payload, computing it on
// first use for transactions built without NewTransaction
func (t *Transaction) Digest() Digest {
	if t.digest.IsEmpty() {
		t.digest = NewDigest(t.Data)
	}
	return t.digest
}

// Encode encodes the transaction
func (t *Transaction) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	writeByteSlice(buf, t.Data)
	return buf.Bytes(), nil
}

// Decode decodes the transaction and recomputes its digest
func (t *Transaction) Decode(in []byte) error {
	r := bytes.NewReader(in)
	return t.decode(r)
}

func (t *Transaction) decode(r *bytes.Reader) error {
	data, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("decoding transaction payload: %w", err)
	}

	t.Data = data
	t.digest = NewDigest(data)
	return nil
}

func (t *Transaction) encode(buf *bytes.Buffer) {
	writeByteSlice(buf, t.Data)
}

// SignedTransaction is a transaction carrying a single authority's signature.
// Signature verification happens above this layer; the bytes are opaque here.
type SignedTransaction struct {
	Transaction *Transaction
	Authority   peer.ID
	Signature   []byte
}

// Digest returns the digest of the inner transaction
func (st *SignedTransaction) Digest() Digest {
	return st.Transaction.Digest()
}

// String formats a SignedTransaction as a string
func (st *SignedTransaction) String() string {
	return fmt.Sprintf("SignedTransaction digest=%s authority=%s", st.Digest().Short(), st.Authority)
}

// Encode encodes the signed transaction
func (st *SignedTransaction) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	st.encode(buf)
	return buf.Bytes(), nil
}

func (st *SignedTransaction) encode(buf *bytes.Buffer) {
	st.Transaction.encode(buf)
	writeByteSlice(buf, []byte(st.Authority))
	writeByteSlice(buf, st.Signature)
}

// Decode decodes the signed transaction
func (st *SignedTransaction) Decode(in []byte) error {
	r := bytes.NewReader(in)
	return st.decode(r)
}

func (st *SignedTransaction) decode(r *bytes.Reader) error {
	tx := new(Transaction)
	if err := tx.decode(r); err != nil {
		return err
	}

	idBytes, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("decoding authority: %w", err)
	}

	id, err := peer.IDFromBytes(idBytes)
	if err != nil {
		return fmt.Errorf("decoding authority: %w", err)
	}

	sig, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	st.Transaction = tx
	st.Authority = id
	st.Signature = sig
	return nil
}

// Certificate is a transaction together with signatures from a quorum of
// authorities. The aggregate signature bytes are opaque to this layer;
// the signer set is what the dissemination layer accounts stake with.
type Certificate struct {
	Transaction        *Transaction
	Signers            []peer.ID
	AggregateSignature []byte
}

// Digest returns the digest of the certified transaction
func (c *Certificate) Digest() Digest {
	return c.Transaction.Digest()
}

// String formats a Certificate as a string
func (c *Certificate) String() string {
	return fmt.Sprintf("Certificate digest=%s signers=%d", c.Digest().Short(), len(c.Signers))
}

// Encode encodes the certificate
func (c *Certificate) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	c.encode(buf)
	return buf.Bytes(), nil
}

func (c *Certificate) encode(buf *bytes.Buffer) {
	c.Transaction.encode(buf)
	writeUint64(buf, uint64(len(c.Signers)))
	for _, signer := range c.Signers {
		writeByteSlice(buf, []byte(signer))
	}
	writeByteSlice(buf, c.AggregateSignature)
}

// Decode decodes the certificate
func (c *Certificate) Decode(in []byte) error {
	r := bytes.NewReader(in)
	return c.decode(r)
}

func (c *Certificate) decode(r *bytes.Reader) error {
	tx := new(Transaction)
	if err := tx.decode(r); err != nil {
		return err
	}

	numSigners, err := readUint64(r)
	if err != nil {
		return fmt.Errorf("decoding signer count: %w", err)
	}

	if numSigners > uint64(r.Len()) {
		return fmt.Errorf("%w: %d signers", errFieldTooLarge, numSigners)
	}

	signers := make([]peer.ID, numSigners)
	for i := range signers {
		idBytes, err := readByteSlice(r)
		if err != nil {
			return fmt.Errorf("decoding signer %d: %w", i, err)
		}

		signers[i], err = peer.IDFromBytes(idBytes)
		if err != nil {
			return fmt.Errorf("decoding signer %d: %w", i, err)
		}
	}

	sig, err := readByteSlice(r)
	if err != nil {
		return fmt.Errorf("decoding aggregate signature: %w", err)
	}

	c.Transaction = tx
	c.Signers = signers
	c.AggregateSignature = sig
	return nil
}

// TransactionInfo is what an authority knows about a digest: a signed
// transaction, a certificate, both, or neither. A peer that advertised a
// digest but answers without a certificate cannot substantiate its stream.
type TransactionInfo struct {
	Signed      *SignedTransaction
	Certificate *Certificate
}

// Encode encodes the transaction info with presence bytes for each field
func (ti *TransactionInfo) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	writePresence(buf, ti.Signed != nil)
	if ti.Signed != nil {
		ti.Signed.encode(buf)
	}
	writePresence(buf, ti.Certificate != nil)
	if ti.Certificate != nil {
		ti.Certificate.encode(buf)
	}
	return buf.Bytes(), nil
}

// Decode decodes the transaction info
func (ti *TransactionInfo) Decode(in []byte) error {
	r := bytes.NewReader(in)

	hasSigned, err := readPresence(r)
	if err != nil {
		return fmt.Errorf("decoding signed presence: %w", err)
	}

	if hasSigned {
		st := new(SignedTransaction)
		if err := st.decode(r); err != nil {
			return err
		}
		ti.Signed = st
	} else {
		ti.Signed = nil
	}

	hasCert, err := readPresence(r)
	if err != nil {
		return fmt.Errorf("decoding certificate presence: %w", err)
	}

	if hasCert {
		cert := new(Certificate)
		if err := cert.decode(r); err != nil {
			return err
		}
		ti.Certificate = cert
	} else {
		ti.Certificate = nil
	}

	return nil
}
