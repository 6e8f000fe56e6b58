// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

// Transcript labels.
const (
	labelZeroRequest  = "zero-credentials-request"
	labelRealRequest  = "real-credentials-request"
	labelPresentation = "credential-presentation"
	labelIssuance     = "credential-issuance"
)

// Presentation witness layout.
const (
	presZ = iota
	presZ0
	presT
	presA
	presR
	presWitnesses
)

// Issuance witness layout.
const (
	keyW = iota
	keyWp
	keyX0
	keyX1
	keyYa
	keyWitnesses
)

// presentationStatement proves knowledge of a valid MAC behind p. Z is
// z·I for the prover and CV - (w·Gw + x0·Cx0 + x1·Cx1 + ya·Ca) for the
// issuer; the two agree exactly when the MAC is valid.
func presentationStatement(params *IssuerParameters, p *Presentation,
	z GroupElement) *statement {

	s := &statement{numWitnesses: presWitnesses}
	s.addEquation(z, term{presZ, params.I})
	s.addEquation(p.Cx1,
		term{presT, p.Cx0}, term{presZ0, Gx0}, term{presZ, Gx1})
	s.addEquation(p.S, term{presR, Gs})
	s.addEquation(p.Ca,
		term{presA, Gg}, term{presR, Gh}, term{presZ, Ga})

	return s
}

func presentationTranscript(params *IssuerParameters,
	p *Presentation) *transcript {

	t := newTranscript(labelPresentation)
	params.commit(t)
	p.commit(t)

	return t
}

// rangeStatement proves Ma commits to a value in [0, 2^n) where n is the
// number of bit commitments. The witness is laid out as the n bits, the n
// bit blinding factors, the n values r_k·(1-b_k) and the remaining blinding
// factor of Ma.
func rangeStatement(ma GroupElement, bits []GroupElement) *statement {
	n := len(bits)
	s := &statement{numWitnesses: 3*n + 1}

	acc := ma
	for k, bk := range bits {
		s.addEquation(bk, term{k, Gg}, term{n + k, Gh})
		s.addEquation(bk, term{k, bk}, term{2*n + k, Gh})

		pow := scalarFromUint64(1 << uint(k))
		acc = acc.Sub(bk.Mul(&pow))
	}
	s.addEquation(acc, term{3 * n, Gh})

	return s
}

// balanceStatement proves B = Σz·Ga + Δr·Gh with witness (Σz, Δr).
func balanceStatement(b GroupElement) *statement {
	s := &statement{numWitnesses: 2}
	s.addEquation(b, term{0, Ga}, term{1, Gh})

	return s
}

// balancePoint computes Δ·Gg + ΣCa - ΣMa. It carries no Gg component exactly
// when the requested attributes add up to the presented ones plus Δ.
func balancePoint(delta int64, presented []Presentation,
	requested []IssuanceRequest) GroupElement {

	d := scalarFromInt64(delta)
	b := Gg.Mul(&d)
	for i := range presented {
		b = b.Add(presented[i].Ca)
	}
	for i := range requested {
		b = b.Sub(requested[i].Ma)
	}

	return b
}

// zeroStatement proves every Ma is r_j·Gh.
func zeroStatement(requested []IssuanceRequest) *statement {
	s := &statement{numWitnesses: len(requested)}
	for j := range requested {
		s.addEquation(requested[j].Ma, term{j, Gh})
	}

	return s
}

func zeroRequestTranscript(params *IssuerParameters,
	requested []IssuanceRequest) *transcript {

	t := newTranscript(labelZeroRequest)
	params.commit(t)
	for j := range requested {
		t.appendPoint("Ma", requested[j].Ma)
	}

	return t
}

// realRequestTranscript binds the commitments of a real request. Range and
// balance proofs fork from it so they cannot be lifted into another request.
// The delta is bound through the balance statement.
func realRequestTranscript(params *IssuerParameters,
	presented []Presentation, requested []IssuanceRequest) *transcript {

	t := newTranscript(labelRealRequest)
	params.commit(t)
	for i := range presented {
		presented[i].commit(t)
	}
	for j := range requested {
		t.appendPoint("Ma", requested[j].Ma)
		t.appendPoints("bit", requested[j].BitCommitments...)
	}

	return t
}

func rangeTranscript(request *transcript, index int) *transcript {
	t := request.clone()
	t.appendUint64("range-proof", uint64(index))

	return t
}

func balanceTranscript(request *transcript) *transcript {
	t := request.clone()
	t.appendMessage("balance-proof", nil)

	return t
}

// issuanceStatement proves every V_j = w·Gw + x0·U_j + x1·t_j·U_j + ya·Ma_j
// under the key committed to by params.
func issuanceStatement(params *IssuerParameters, requested []IssuanceRequest,
	issued []IssuedMAC) *statement {

	s := &statement{numWitnesses: keyWitnesses}
	s.addEquation(params.Cw, term{keyW, Gw}, term{keyWp, Gwp})
	s.addEquation(Gv.Sub(params.I),
		term{keyX0, Gx0}, term{keyX1, Gx1}, term{keyYa, Ga})

	for j := range issued {
		tu := issued[j].U.Mul(&issued[j].MAC.T)
		s.addEquation(issued[j].MAC.V,
			term{keyW, Gw},
			term{keyX0, issued[j].U},
			term{keyX1, tu},
			term{keyYa, requested[j].Ma},
		)
	}

	return s
}

func issuanceTranscript(request *transcript, issued []IssuedMAC) *transcript {
	t := request.clone()
	t.appendMessage(labelIssuance, nil)
	for j := range issued {
		t.appendScalar("t", &issued[j].MAC.T)
		t.appendPoint("U", issued[j].U)
	}

	return t
}
