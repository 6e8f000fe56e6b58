// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

// Credential is a MAC over a committed attribute together with the opening
// of the commitment. It never leaves the client.
type Credential struct {
	// Value is the attribute the credential certifies.
	Value uint64

	// Randomness blinds the attribute commitment Ma = Value·Gg + r·Gh.
	Randomness Scalar

	// MAC is the issuer's algebraic MAC over Ma.
	MAC MAC

	// U is the random point the MAC was computed for.
	U GroupElement
}

// commitment returns Ma for the credential.
func (c *Credential) commitment() GroupElement {
	v := scalarFromUint64(c.Value)
	return Gg.Mul(&v).Add(Gh.Mul(&c.Randomness))
}

// Presentation is a randomized credential shown to the issuer.
type Presentation struct {
	Ca  GroupElement
	Cx0 GroupElement
	Cx1 GroupElement
	CV  GroupElement
	S   GroupElement
}

// SerialNumber returns the encoded serial number of the presented credential.
func (p *Presentation) SerialNumber() [GroupElementSize]byte {
	return p.S.Bytes()
}

func (p *Presentation) commit(t *transcript) {
	t.appendPoint("Ca", p.Ca)
	t.appendPoint("Cx0", p.Cx0)
	t.appendPoint("Cx1", p.Cx1)
	t.appendPoint("CV", p.CV)
	t.appendPoint("S", p.S)
}

// IssuanceRequest asks for a MAC over an attribute commitment. Real requests
// carry one bit commitment per range proof bit, zero requests none.
type IssuanceRequest struct {
	Ma             GroupElement
	BitCommitments []GroupElement
}

// ZeroCredentialsRequest asks for credentials with attribute 0. Its proof
// shows every Ma is a multiple of Gh.
type ZeroCredentialsRequest struct {
	Requested []IssuanceRequest
	Proof     *Proof
}

// RealCredentialsRequest swaps presented credentials for new ones whose
// attributes sum to the presented attributes plus Delta.
type RealCredentialsRequest struct {
	// Delta is the disclosed difference between the requested and the
	// presented attribute sums.
	Delta int64

	Presented          []Presentation
	PresentationProofs []*Proof

	Requested   []IssuanceRequest
	RangeProofs []*Proof

	BalanceProof *Proof
}

// SerialNumbers returns the serial numbers of all presented credentials.
func (r *RealCredentialsRequest) SerialNumbers() [][GroupElementSize]byte {
	sns := make([][GroupElementSize]byte, len(r.Presented))
	for i := range r.Presented {
		sns[i] = r.Presented[i].SerialNumber()
	}

	return sns
}

// IssuedMAC is one MAC of a response with the point it was computed for.
type IssuedMAC struct {
	MAC MAC
	U   GroupElement
}

// CredentialsResponse carries the issued MACs and a proof that all of them
// were computed with the key behind the published issuer parameters.
type CredentialsResponse struct {
	Issued []IssuedMAC
	Proof  *Proof
}

// ResponseValidation is the client state needed to turn a response into
// credentials.
type ResponseValidation struct {
	transcript *transcript
	requested  []IssuanceRequest
	values     []uint64
	randomness []Scalar
}
