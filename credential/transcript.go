// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// challengeTag is the BIP-340 style tag for Fiat-Shamir challenges.
var challengeTag = []byte("coinjoind/credential/challenge")

// transcript accumulates the public inputs of a proof so that prover and
// verifier derive the same challenge. Every append is length prefixed with a
// label so two different transcripts can never serialize identically.
type transcript struct {
	buf bytes.Buffer
}

// newTranscript starts a transcript for the given protocol label.
func newTranscript(label string) *transcript {
	t := &transcript{}
	t.appendMessage("protocol", []byte(label))

	return t
}

// clone returns an independent copy of the transcript.
func (t *transcript) clone() *transcript {
	c := &transcript{}
	c.buf.Write(t.buf.Bytes())

	return c
}

func (t *transcript) appendMessage(label string, msg []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(label)))
	t.buf.Write(l[:])
	t.buf.WriteString(label)

	binary.BigEndian.PutUint32(l[:], uint32(len(msg)))
	t.buf.Write(l[:])
	t.buf.Write(msg)
}

func (t *transcript) appendPoint(label string, p GroupElement) {
	b := p.Bytes()
	t.appendMessage(label, b[:])
}

func (t *transcript) appendPoints(label string, ps ...GroupElement) {
	for _, p := range ps {
		t.appendPoint(label, p)
	}
}

func (t *transcript) appendScalar(label string, s *Scalar) {
	b := s.Bytes()
	t.appendMessage(label, b[:])
}

func (t *transcript) appendUint64(label string, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	t.appendMessage(label, b[:])
}

// digest returns the hash of everything appended so far.
func (t *transcript) digest() chainhash.Hash {
	return *chainhash.TaggedHash(challengeTag, t.buf.Bytes())
}

// challenge derives the Fiat-Shamir challenge scalar.
func (t *transcript) challenge() Scalar {
	h := t.digest()

	var e Scalar
	e.SetByteSlice(h[:])

	return e
}
