// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"fmt"
	"io"
	"math"
	"math/bits"
)

// Client builds credential requests against one issuer and turns responses
// into credentials. A Client is not safe for concurrent use.
type Client struct {
	params         *IssuerParameters
	numCredentials int
	maxAmount      uint64
	rangeBits      int
	rand           io.Reader
}

// NewClient creates a client for the issuer publishing params.
func NewClient(params *IssuerParameters, numCredentials int, maxAmount uint64,
	rand io.Reader) *Client {

	return &Client{
		params:         params,
		numCredentials: numCredentials,
		maxAmount:      maxAmount,
		rangeBits:      bits.Len64(maxAmount),
		rand:           rand,
	}
}

// CreateRequestForZeroAmount builds a request for credentials with attribute
// zero.
func (c *Client) CreateRequestForZeroAmount() (*ZeroCredentialsRequest,
	*ResponseValidation, error) {

	var (
		requested  = make([]IssuanceRequest, c.numCredentials)
		randomness = make([]Scalar, c.numCredentials)
	)
	for j := range requested {
		r, err := randomScalar(c.rand)
		if err != nil {
			return nil, nil, err
		}
		randomness[j] = r
		requested[j] = IssuanceRequest{Ma: Gh.Mul(&r)}
	}

	t := zeroRequestTranscript(c.params, requested)
	proof, err := zeroStatement(requested).prove(t, randomness, c.rand)
	if err != nil {
		return nil, nil, err
	}

	req := &ZeroCredentialsRequest{Requested: requested, Proof: proof}
	validation := &ResponseValidation{
		transcript: t,
		requested:  requested,
		values:     make([]uint64, c.numCredentials),
		randomness: randomness,
	}

	return req, validation, nil
}

// presentWitness holds the prover's side of one presentation.
type presentWitness struct {
	presentation Presentation
	z            GroupElement
	witness      []Scalar
}

func (c *Client) randomize(cred *Credential) (*presentWitness, error) {
	z, err := randomScalar(c.rand)
	if err != nil {
		return nil, err
	}

	var z0 Scalar
	z0.Mul2(&cred.MAC.T, &z).Negate()

	ma := cred.commitment()
	p := Presentation{
		Ca:  Ga.Mul(&z).Add(ma),
		Cx0: Gx0.Mul(&z).Add(cred.U),
		Cx1: Gx1.Mul(&z).Add(cred.U.Mul(&cred.MAC.T)),
		CV:  Gv.Mul(&z).Add(cred.MAC.V),
		S:   Gs.Mul(&cred.Randomness),
	}

	witness := make([]Scalar, presWitnesses)
	witness[presZ] = z
	witness[presZ0] = z0
	witness[presT] = cred.MAC.T
	witness[presA] = scalarFromUint64(cred.Value)
	witness[presR] = cred.Randomness

	return &presentWitness{
		presentation: p,
		z:            c.params.I.Mul(&z),
		witness:      witness,
	}, nil
}

// Present randomizes a credential and proves knowledge of its MAC.
func (c *Client) Present(cred *Credential) (*Presentation, *Proof, error) {
	pw, err := c.randomize(cred)
	if err != nil {
		return nil, nil, err
	}

	proof, err := c.provePresentation(pw)
	if err != nil {
		return nil, nil, err
	}

	return &pw.presentation, proof, nil
}

func (c *Client) provePresentation(pw *presentWitness) (*Proof, error) {
	s := presentationStatement(c.params, &pw.presentation, pw.z)
	t := presentationTranscript(c.params, &pw.presentation)

	return s.prove(t, pw.witness, c.rand)
}

// requestedCredential is the client side opening of one requested
// credential and its range proof witness.
type requestedCredential struct {
	request    IssuanceRequest
	randomness Scalar
	witness    []Scalar
}

func (c *Client) commitWithRangeProof(value uint64) (*requestedCredential,
	error) {

	r, err := randomScalar(c.rand)
	if err != nil {
		return nil, err
	}

	n := c.rangeBits
	var (
		v       = scalarFromUint64(value)
		ma      = Gg.Mul(&v).Add(Gh.Mul(&r))
		bitsArr = make([]GroupElement, n)
		witness = make([]Scalar, 3*n+1)
		delta   = r
	)
	for k := 0; k < n; k++ {
		rb, err := randomScalar(c.rand)
		if err != nil {
			return nil, err
		}

		bit := (value >> uint(k)) & 1
		b := scalarFromUint64(bit)
		bitsArr[k] = Gg.Mul(&b).Add(Gh.Mul(&rb))

		witness[k] = b
		witness[n+k] = rb
		if bit == 0 {
			witness[2*n+k] = rb
		}

		var weighted Scalar
		pow := scalarFromUint64(1 << uint(k))
		weighted.Mul2(&pow, &rb).Negate()
		delta.Add(&weighted)
	}
	witness[3*n] = delta

	return &requestedCredential{
		request: IssuanceRequest{
			Ma:             ma,
			BitCommitments: bitsArr,
		},
		randomness: r,
		witness:    witness,
	}, nil
}

// CreateRequest builds a request presenting the given credentials and asking
// for new credentials with the given amounts. Missing amounts are requested
// as zero. The disclosed delta is the requested sum minus the presented sum.
func (c *Client) CreateRequest(amounts []uint64,
	present []*Credential) (*RealCredentialsRequest, *ResponseValidation,
	error) {

	if len(amounts) > c.numCredentials {
		return nil, nil, fmt.Errorf("%w: %d amounts requested, at most "+
			"%d allowed", ErrInvalidRequest, len(amounts),
			c.numCredentials)
	}
	if len(present) > c.numCredentials {
		return nil, nil, fmt.Errorf("%w: %d credentials presented, at "+
			"most %d allowed", ErrInvalidRequest, len(present),
			c.numCredentials)
	}

	padded := make([]uint64, c.numCredentials)
	copy(padded, amounts)

	var requestedSum, presentedSum uint64
	for _, a := range padded {
		if a > c.maxAmount {
			return nil, nil, fmt.Errorf("%w: %d exceeds maximum %d",
				ErrAmountOutOfRange, a, c.maxAmount)
		}
		requestedSum += a
	}
	for _, cred := range present {
		presentedSum += cred.Value
	}
	if requestedSum > math.MaxInt64 || presentedSum > math.MaxInt64 {
		return nil, nil, fmt.Errorf("%w: sum overflows",
			ErrAmountOutOfRange)
	}
	delta := int64(requestedSum) - int64(presentedSum)

	var (
		presented = make([]Presentation, len(present))
		pws       = make([]*presentWitness, len(present))
		zSum      Scalar
		rDiff     Scalar
	)
	for i, cred := range present {
		pw, err := c.randomize(cred)
		if err != nil {
			return nil, nil, err
		}
		pws[i] = pw
		presented[i] = pw.presentation

		zSum.Add(&pw.witness[presZ])
		rDiff.Add(&cred.Randomness)
	}

	var (
		requested  = make([]IssuanceRequest, c.numCredentials)
		openings   = make([]*requestedCredential, c.numCredentials)
		randomness = make([]Scalar, c.numCredentials)
	)
	for j, a := range padded {
		rc, err := c.commitWithRangeProof(a)
		if err != nil {
			return nil, nil, err
		}
		openings[j] = rc
		requested[j] = rc.request
		randomness[j] = rc.randomness

		var neg Scalar
		neg.NegateVal(&rc.randomness)
		rDiff.Add(&neg)
	}

	req := &RealCredentialsRequest{
		Delta:              delta,
		Presented:          presented,
		PresentationProofs: make([]*Proof, len(present)),
		Requested:          requested,
		RangeProofs:        make([]*Proof, c.numCredentials),
	}

	var err error
	for i, pw := range pws {
		req.PresentationProofs[i], err = c.provePresentation(pw)
		if err != nil {
			return nil, nil, err
		}
	}

	t := realRequestTranscript(c.params, presented, requested)
	for j, rc := range openings {
		s := rangeStatement(rc.request.Ma, rc.request.BitCommitments)
		req.RangeProofs[j], err = s.prove(
			rangeTranscript(t, j), rc.witness, c.rand,
		)
		if err != nil {
			return nil, nil, err
		}
	}

	b := balancePoint(delta, presented, requested)
	req.BalanceProof, err = balanceStatement(b).prove(
		balanceTranscript(t), []Scalar{zSum, rDiff}, c.rand,
	)
	if err != nil {
		return nil, nil, err
	}

	validation := &ResponseValidation{
		transcript: t,
		requested:  requested,
		values:     padded,
		randomness: randomness,
	}

	return req, validation, nil
}

// HandleResponse checks the issuance proof and returns the new credentials
// in request order.
func (c *Client) HandleResponse(resp *CredentialsResponse,
	v *ResponseValidation) ([]*Credential, error) {

	if resp == nil || len(resp.Issued) != len(v.requested) {
		return nil, fmt.Errorf("%w: unexpected number of credentials",
			ErrIssuanceProofInvalid)
	}
	for j := range resp.Issued {
		if resp.Issued[j].U.IsInfinity() {
			return nil, fmt.Errorf("%w: degenerate MAC",
				ErrIssuanceProofInvalid)
		}
	}

	s := issuanceStatement(c.params, v.requested, resp.Issued)
	if !s.verify(issuanceTranscript(v.transcript, resp.Issued), resp.Proof) {
		return nil, ErrIssuanceProofInvalid
	}

	creds := make([]*Credential, len(resp.Issued))
	for j := range resp.Issued {
		creds[j] = &Credential{
			Value:      v.values[j],
			Randomness: v.randomness[j],
			MAC:        resp.Issued[j].MAC,
			U:          resp.Issued[j].U,
		}
	}

	return creds, nil
}
