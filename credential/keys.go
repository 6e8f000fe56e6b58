// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SecretKey is the issuer's MAC_GGM key (w, w', x0, x1, ya).
type SecretKey struct {
	w, wp, x0, x1, ya Scalar
}

// NewSecretKey draws a fresh key from rand.
func NewSecretKey(rand io.Reader) (*SecretKey, error) {
	var (
		sk      SecretKey
		targets = []*Scalar{&sk.w, &sk.wp, &sk.x0, &sk.x1, &sk.ya}
	)
	for _, target := range targets {
		s, err := randomScalar(rand)
		if err != nil {
			return nil, fmt.Errorf("unable to generate secret key: %w",
				err)
		}
		*target = s
	}

	return &sk, nil
}

// DeriveSecretKey deterministically derives a key from seed with HKDF-SHA256.
// The info string separates keys of different rounds and credential types
// sharing one seed.
func DeriveSecretKey(seed, info []byte) (*SecretKey, error) {
	return NewSecretKey(hkdf.New(sha256.New, seed, nil, info))
}

// Parameters returns the public issuer parameters for the key.
func (sk *SecretKey) Parameters() *IssuerParameters {
	cw := Gw.Mul(&sk.w).Add(Gwp.Mul(&sk.wp))
	i := Gv.Sub(Gx0.Mul(&sk.x0).Add(Gx1.Mul(&sk.x1)).Add(Ga.Mul(&sk.ya)))

	return &IssuerParameters{Cw: cw, I: i}
}

// witness lays the key out as the witness vector of an issuance proof.
func (sk *SecretKey) witness() []Scalar {
	return []Scalar{sk.w, sk.wp, sk.x0, sk.x1, sk.ya}
}

// IssuerParameters are the public commitments to an issuer's secret key.
type IssuerParameters struct {
	Cw GroupElement
	I  GroupElement
}

func (p *IssuerParameters) commit(t *transcript) {
	t.appendPoint("Cw", p.Cw)
	t.appendPoint("I", p.I)
}

// MAC is an algebraic MAC over one attribute commitment.
type MAC struct {
	T Scalar
	V GroupElement
}

// computeMAC returns V = w·Gw + (x0 + x1·t)·U + ya·Ma.
func (sk *SecretKey) computeMAC(t *Scalar, u, ma GroupElement) GroupElement {
	var coeff Scalar
	coeff.Mul2(&sk.x1, t).Add(&sk.x0)

	return Gw.Mul(&sk.w).Add(u.Mul(&coeff)).Add(ma.Mul(&sk.ya))
}
