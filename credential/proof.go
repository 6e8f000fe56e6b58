// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// maxProofElements bounds the number of nonces or responses accepted when
// decoding a proof.
const maxProofElements = 1024

var (
	// ErrMalformedProof is returned when proof bytes cannot be decoded.
	ErrMalformedProof = errors.New("malformed proof")

	// errWitnessMismatch is returned when a prover's witness does not
	// satisfy its own statement.
	errWitnessMismatch = errors.New("witness does not satisfy statement")
)

// term is one witness·generator product on the right hand side of an
// equation.
type term struct {
	witness   int
	generator GroupElement
}

// equation states public = Σ witness[i]·generator[i].
type equation struct {
	public GroupElement
	terms  []term
}

// statement is a conjunction of linear relations over a shared witness
// vector.
type statement struct {
	numWitnesses int
	equations    []equation
}

func (s *statement) addEquation(public GroupElement, terms ...term) {
	s.equations = append(s.equations, equation{
		public: public,
		terms:  terms,
	})
}

// commit binds the statement to the transcript.
func (s *statement) commit(t *transcript) {
	t.appendUint64("witnesses", uint64(s.numWitnesses))
	t.appendUint64("equations", uint64(len(s.equations)))
	for _, eq := range s.equations {
		t.appendPoint("public", eq.public)
		t.appendUint64("terms", uint64(len(eq.terms)))
		for _, tm := range eq.terms {
			t.appendUint64("index", uint64(tm.witness))
			t.appendPoint("generator", tm.generator)
		}
	}
}

// evaluate returns Σ values[i]·generator[i] for one equation.
func (eq *equation) evaluate(values []Scalar) GroupElement {
	var acc GroupElement
	for _, tm := range eq.terms {
		acc = acc.Add(tm.generator.Mul(&values[tm.witness]))
	}

	return acc
}

// Proof is a non-interactive proof of knowledge of a witness satisfying a
// statement: one nonce commitment per equation and one response per witness.
type Proof struct {
	Nonces    []GroupElement
	Responses []Scalar
}

// prove produces a proof for the statement using the given witness.
func (s *statement) prove(t *transcript, witness []Scalar,
	rand io.Reader) (*Proof, error) {

	if len(witness) != s.numWitnesses {
		return nil, fmt.Errorf("%w: got %d witnesses, want %d",
			errWitnessMismatch, len(witness), s.numWitnesses)
	}
	for i := range s.equations {
		if !s.equations[i].evaluate(witness).Equal(s.equations[i].public) {
			return nil, fmt.Errorf("%w: equation %d",
				errWitnessMismatch, i)
		}
	}

	nonces := make([]Scalar, s.numWitnesses)
	for i := range nonces {
		k, err := randomScalar(rand)
		if err != nil {
			return nil, err
		}
		nonces[i] = k
	}

	proof := &Proof{
		Nonces:    make([]GroupElement, len(s.equations)),
		Responses: make([]Scalar, s.numWitnesses),
	}
	for i := range s.equations {
		proof.Nonces[i] = s.equations[i].evaluate(nonces)
	}

	e := s.challenge(t, proof.Nonces)
	for i := range witness {
		proof.Responses[i].Mul2(&e, &witness[i]).Add(&nonces[i])
	}

	return proof, nil
}

// verify checks a proof against the statement.
func (s *statement) verify(t *transcript, proof *Proof) bool {
	if proof == nil || len(proof.Nonces) != len(s.equations) ||
		len(proof.Responses) != s.numWitnesses {

		return false
	}

	e := s.challenge(t, proof.Nonces)
	for i := range s.equations {
		eq := &s.equations[i]
		lhs := eq.evaluate(proof.Responses)
		rhs := proof.Nonces[i].Add(eq.public.Mul(&e))
		if !lhs.Equal(rhs) {
			return false
		}
	}

	return true
}

func (s *statement) challenge(t *transcript, nonces []GroupElement) Scalar {
	t = t.clone()
	s.commit(t)
	t.appendPoints("nonce", nonces...)

	return t.challenge()
}

// Bytes serializes the proof as a varint count of nonces, the nonces, a
// varint count of responses and the responses.
func (p *Proof) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(2*wire.MaxVarIntPayload + len(p.Nonces)*GroupElementSize +
		len(p.Responses)*ScalarSize)

	// Writes to a bytes.Buffer never fail.
	_ = wire.WriteVarInt(&buf, 0, uint64(len(p.Nonces)))
	for _, n := range p.Nonces {
		b := n.Bytes()
		buf.Write(b[:])
	}

	_ = wire.WriteVarInt(&buf, 0, uint64(len(p.Responses)))
	for i := range p.Responses {
		b := p.Responses[i].Bytes()
		buf.Write(b[:])
	}

	return buf.Bytes()
}

// ParseProof decodes a proof produced by Bytes. Trailing bytes, non-minimal
// counts and unreduced scalars are rejected.
func ParseProof(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)

	numNonces, err := readCount(r)
	if err != nil {
		return nil, err
	}
	proof := &Proof{Nonces: make([]GroupElement, numNonces)}
	var point [GroupElementSize]byte
	for i := range proof.Nonces {
		if _, err := io.ReadFull(r, point[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
		}
		proof.Nonces[i], err = ParseGroupElement(point[:])
		if err != nil {
			return nil, fmt.Errorf("%w: nonce %d: %v",
				ErrMalformedProof, i, err)
		}
	}

	numResponses, err := readCount(r)
	if err != nil {
		return nil, err
	}
	proof.Responses = make([]Scalar, numResponses)
	var scalar [ScalarSize]byte
	for i := range proof.Responses {
		if _, err := io.ReadFull(r, scalar[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
		}
		proof.Responses[i], err = parseScalar(scalar[:])
		if err != nil {
			return nil, fmt.Errorf("%w: response %d: %v",
				ErrMalformedProof, i, err)
		}
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedProof, r.Len())
	}

	return proof, nil
}

func readCount(r *bytes.Reader) (int, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if n > maxProofElements {
		return 0, fmt.Errorf("%w: %d elements exceeds maximum %d",
			ErrMalformedProof, n, maxProofElements)
	}

	return int(n), nil
}
