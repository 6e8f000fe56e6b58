// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"fmt"
	"io"
	"math/bits"
	"sync"
)

// DefaultNumberOfCredentials is the number of credentials issued per request.
const DefaultNumberOfCredentials = 2

// Issuer holds the secret key of one credential type (amount or weight) for
// the lifetime of a round. It is safe for concurrent use.
type Issuer struct {
	sk             *SecretKey
	params         *IssuerParameters
	numCredentials int
	maxAmount      uint64
	rangeBits      int

	randMtx sync.Mutex
	rand    io.Reader

	spent *serialNumberSet

	balanceMtx sync.Mutex
	balance    int64
}

// NewIssuer creates an issuer for credentials with attributes up to
// maxAmount. Randomness for MACs and issuance proofs is drawn from rand.
func NewIssuer(sk *SecretKey, numCredentials int, maxAmount uint64,
	rand io.Reader) *Issuer {

	return &Issuer{
		sk:             sk,
		params:         sk.Parameters(),
		numCredentials: numCredentials,
		maxAmount:      maxAmount,
		rangeBits:      bits.Len64(maxAmount),
		rand:           rand,
		spent:          newSerialNumberSet(),
	}
}

// Parameters returns the public issuer parameters.
func (i *Issuer) Parameters() *IssuerParameters {
	return i.params
}

// NumberOfCredentials returns how many credentials every request must ask
// for.
func (i *Issuer) NumberOfCredentials() int {
	return i.numCredentials
}

// MaxAmount returns the largest attribute value the issuer certifies.
func (i *Issuer) MaxAmount() uint64 {
	return i.maxAmount
}

// RangeProofBits returns the number of bits every range proof decomposes an
// attribute into.
func (i *Issuer) RangeProofBits() int {
	return i.rangeBits
}

// Balance returns the sum of all deltas the issuer has accepted. Positive
// means more value was issued than presented.
func (i *Issuer) Balance() int64 {
	i.balanceMtx.Lock()
	defer i.balanceMtx.Unlock()

	return i.balance
}

// SpentSerialNumbers returns the number of serial numbers recorded so far.
func (i *Issuer) SpentSerialNumbers() int {
	return i.spent.len()
}

// IssueZeroCredentials issues credentials with attribute zero after checking
// the client's proof that every commitment is a multiple of Gh.
func (i *Issuer) IssueZeroCredentials(
	req *ZeroCredentialsRequest) (*CredentialsResponse, error) {

	if req == nil || len(req.Requested) != i.numCredentials {
		return nil, fmt.Errorf("%w: expected %d requested credentials",
			ErrInvalidRequest, i.numCredentials)
	}
	for j := range req.Requested {
		if len(req.Requested[j].BitCommitments) != 0 {
			return nil, fmt.Errorf("%w: zero request with bit "+
				"commitments", ErrInvalidRequest)
		}
	}

	t := zeroRequestTranscript(i.params, req.Requested)
	if !zeroStatement(req.Requested).verify(t, req.Proof) {
		return nil, fmt.Errorf("%w: zero attribute proof",
			ErrRangeProofInvalid)
	}

	return i.issue(t, req.Requested)
}

// VerifiedRequest is a real request whose proofs have been checked but
// whose serial numbers are not yet recorded. It is redeemed with Commit.
type VerifiedRequest struct {
	req     *RealCredentialsRequest
	t       *transcript
	serials []serialNumber
}

// Issue verifies the presentations, range proofs and balance proof of a real
// request, records the presented serial numbers and issues MACs over the
// requested commitments.
func (i *Issuer) Issue(req *RealCredentialsRequest) (*CredentialsResponse,
	error) {

	v, err := i.VerifyRequest(req)
	if err != nil {
		return nil, err
	}

	return i.Commit(v)
}

// VerifyRequest checks a real request without changing the issuer's state.
// A request that passes can be committed later; one that fails leaves its
// presented serial numbers unspent.
func (i *Issuer) VerifyRequest(req *RealCredentialsRequest) (*VerifiedRequest,
	error) {

	if err := i.checkShape(req); err != nil {
		return nil, err
	}

	serials := make([]serialNumber, len(req.Presented))
	seen := make(map[serialNumber]struct{}, len(req.Presented))
	for j := range req.Presented {
		sn := serialNumber(req.Presented[j].SerialNumber())
		if _, ok := seen[sn]; ok {
			return nil, fmt.Errorf("%w: presented twice in request",
				ErrSerialNumberReused)
		}
		if i.spent.contains(sn) {
			return nil, ErrSerialNumberReused
		}
		seen[sn] = struct{}{}
		serials[j] = sn
	}

	for j := range req.Presented {
		if !i.Verify(&req.Presented[j], req.PresentationProofs[j]) {
			return nil, fmt.Errorf("%w: presentation %d",
				ErrCredentialVerificationFailed, j)
		}
	}

	t := realRequestTranscript(i.params, req.Presented, req.Requested)
	for j := range req.Requested {
		s := rangeStatement(
			req.Requested[j].Ma, req.Requested[j].BitCommitments,
		)
		if !s.verify(rangeTranscript(t, j), req.RangeProofs[j]) {
			return nil, fmt.Errorf("%w: credential %d",
				ErrRangeProofInvalid, j)
		}
	}

	b := balancePoint(req.Delta, req.Presented, req.Requested)
	if !balanceStatement(b).verify(balanceTranscript(t), req.BalanceProof) {
		return nil, ErrBalanceProofInvalid
	}

	return &VerifiedRequest{req: req, t: t, serials: serials}, nil
}

// Commit records the serial numbers of a verified request, credits its delta
// and issues the requested MACs. Nothing is recorded when it fails.
func (i *Issuer) Commit(v *VerifiedRequest) (*CredentialsResponse, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil verified request",
			ErrInvalidRequest)
	}

	resp, err := i.issue(v.t, v.req.Requested)
	if err != nil {
		return nil, err
	}

	// Another request presenting the same credential may have been
	// committed since it was verified.
	if !i.spent.insertAll(v.serials) {
		return nil, ErrSerialNumberReused
	}

	i.balanceMtx.Lock()
	i.balance += v.req.Delta
	i.balanceMtx.Unlock()

	log.Tracef("Issued %d credentials for %d presented, delta=%d",
		len(resp.Issued), len(v.req.Presented), v.req.Delta)

	return resp, nil
}

func (i *Issuer) checkShape(req *RealCredentialsRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)

	case len(req.Requested) != i.numCredentials:
		return fmt.Errorf("%w: expected %d requested credentials, got %d",
			ErrInvalidRequest, i.numCredentials, len(req.Requested))

	case len(req.Presented) > i.numCredentials:
		return fmt.Errorf("%w: %d presented credentials exceeds %d",
			ErrInvalidRequest, len(req.Presented), i.numCredentials)

	case len(req.PresentationProofs) != len(req.Presented):
		return fmt.Errorf("%w: %d presentation proofs for %d "+
			"presentations", ErrInvalidRequest,
			len(req.PresentationProofs), len(req.Presented))

	case len(req.RangeProofs) != len(req.Requested):
		return fmt.Errorf("%w: %d range proofs for %d credentials",
			ErrInvalidRequest, len(req.RangeProofs),
			len(req.Requested))
	}

	for j := range req.Requested {
		if len(req.Requested[j].BitCommitments) != i.rangeBits {
			return fmt.Errorf("%w: credential %d has %d bit "+
				"commitments, want %d", ErrInvalidRequest, j,
				len(req.Requested[j].BitCommitments), i.rangeBits)
		}
	}

	return nil
}

// Verify checks that a presented credential carries a MAC made with the
// issuer's key and that proof shows knowledge of its opening.
func (i *Issuer) Verify(p *Presentation, proof *Proof) bool {
	if p == nil || proof == nil {
		return false
	}

	sk := i.sk
	expected := Gw.Mul(&sk.w).
		Add(p.Cx0.Mul(&sk.x0)).
		Add(p.Cx1.Mul(&sk.x1)).
		Add(p.Ca.Mul(&sk.ya))
	z := p.CV.Sub(expected)

	s := presentationStatement(i.params, p, z)

	return s.verify(presentationTranscript(i.params, p), proof)
}

// issue computes a MAC for every requested commitment and proves them.
func (i *Issuer) issue(t *transcript,
	requested []IssuanceRequest) (*CredentialsResponse, error) {

	i.randMtx.Lock()
	defer i.randMtx.Unlock()

	issued := make([]IssuedMAC, len(requested))
	for j := range requested {
		tj, err := randomScalar(i.rand)
		if err != nil {
			return nil, err
		}
		uj, err := randomScalar(i.rand)
		if err != nil {
			return nil, err
		}

		u := baseMul(&uj)
		issued[j] = IssuedMAC{
			MAC: MAC{
				T: tj,
				V: i.sk.computeMAC(&tj, u, requested[j].Ma),
			},
			U: u,
		}
	}

	s := issuanceStatement(i.params, requested, issued)
	proof, err := s.prove(
		issuanceTranscript(t, issued), i.sk.witness(), i.rand,
	)
	if err != nil {
		return nil, err
	}

	return &CredentialsResponse{Issued: issued, Proof: proof}, nil
}
