// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// GroupElementSize is the serialized size of a group element. The
	// point at infinity is encoded as all zero bytes, every other point in
	// its compressed SEC form.
	GroupElementSize = 33

	// ScalarSize is the serialized size of a scalar.
	ScalarSize = 32
)

var (
	// ErrInvalidGroupElement is returned when bytes do not decode to a
	// point on the curve.
	ErrInvalidGroupElement = errors.New("invalid group element encoding")

	// ErrInvalidScalar is returned when bytes encode a value larger than
	// the group order.
	ErrInvalidScalar = errors.New("invalid scalar encoding")
)

// Scalar is an element of the secp256k1 scalar field.
type Scalar = secp256k1.ModNScalar

// GroupElement is a secp256k1 point kept in affine form. The zero value is
// the point at infinity.
type GroupElement struct {
	p   secp256k1.JacobianPoint
	set bool
}

// newGroupElement wraps the result of a jacobian operation, collapsing it to
// either the point at infinity or an affine point.
func newGroupElement(p *secp256k1.JacobianPoint) GroupElement {
	z := p.Z
	z.Normalize()
	if z.IsZero() {
		return GroupElement{}
	}

	x, y := p.X, p.Y
	x.Normalize()
	y.Normalize()
	if x.IsZero() && y.IsZero() {
		return GroupElement{}
	}

	g := GroupElement{p: *p, set: true}
	g.p.ToAffine()

	return g
}

// IsInfinity reports whether the element is the point at infinity.
func (g GroupElement) IsInfinity() bool {
	return !g.set
}

// Add returns g + o.
func (g GroupElement) Add(o GroupElement) GroupElement {
	switch {
	case !g.set:
		return o
	case !o.set:
		return g
	}

	var r secp256k1.JacobianPoint
	secp256k1.AddNonConst(&g.p, &o.p, &r)

	return newGroupElement(&r)
}

// Neg returns -g.
func (g GroupElement) Neg() GroupElement {
	if !g.set {
		return g
	}

	r := g
	r.p.Y.Negate(1)
	r.p.Y.Normalize()

	return r
}

// Sub returns g - o.
func (g GroupElement) Sub(o GroupElement) GroupElement {
	return g.Add(o.Neg())
}

// Mul returns k·g.
func (g GroupElement) Mul(k *Scalar) GroupElement {
	if !g.set || k.IsZero() {
		return GroupElement{}
	}

	var r secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(k, &g.p, &r)

	return newGroupElement(&r)
}

// Equal reports whether both elements are the same point.
func (g GroupElement) Equal(o GroupElement) bool {
	if g.set != o.set {
		return false
	}
	if !g.set {
		return true
	}

	return g.p.X.Equals(&o.p.X) && g.p.Y.Equals(&o.p.Y)
}

// Bytes returns the 33 byte encoding of the element.
func (g GroupElement) Bytes() [GroupElementSize]byte {
	var b [GroupElementSize]byte
	if !g.set {
		return b
	}

	b[0] = secp256k1.PubKeyFormatCompressedEven
	if g.p.Y.IsOdd() {
		b[0] |= 0x01
	}
	g.p.X.PutBytesUnchecked(b[1:])

	return b
}

// ParseGroupElement decodes a 33 byte group element.
func ParseGroupElement(b []byte) (GroupElement, error) {
	if len(b) != GroupElementSize {
		return GroupElement{}, ErrInvalidGroupElement
	}

	infinity := true
	for _, c := range b {
		if c != 0 {
			infinity = false
			break
		}
	}
	if infinity {
		return GroupElement{}, nil
	}

	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return GroupElement{}, ErrInvalidGroupElement
	}

	var p secp256k1.JacobianPoint
	pub.AsJacobian(&p)

	return GroupElement{p: p, set: true}, nil
}

// baseMul returns k·G where G is the secp256k1 base point.
func baseMul(k *Scalar) GroupElement {
	if k.IsZero() {
		return GroupElement{}
	}

	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &r)

	return newGroupElement(&r)
}

// randomScalar draws a uniformly random non-zero scalar from r.
func randomScalar(r io.Reader) (Scalar, error) {
	var buf [ScalarSize]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Scalar{}, err
		}

		var s Scalar
		overflow := s.SetBytes(&buf)
		if overflow == 0 && !s.IsZero() {
			return s, nil
		}
	}
}

// scalarFromUint64 lifts v into the scalar field.
func scalarFromUint64(v uint64) Scalar {
	var buf [ScalarSize]byte
	binary.BigEndian.PutUint64(buf[ScalarSize-8:], v)

	var s Scalar
	s.SetBytes(&buf)

	return s
}

// scalarFromInt64 lifts v into the scalar field, mapping negative values to
// their additive inverse.
func scalarFromInt64(v int64) Scalar {
	if v >= 0 {
		return scalarFromUint64(uint64(v))
	}

	s := scalarFromUint64(uint64(-v))
	s.Negate()

	return s
}

// parseScalar decodes a 32 byte big endian scalar, rejecting values not
// reduced modulo the group order.
func parseScalar(b []byte) (Scalar, error) {
	var s Scalar
	if len(b) != ScalarSize {
		return s, ErrInvalidScalar
	}
	if overflow := s.SetByteSlice(b); overflow {
		return s, ErrInvalidScalar
	}

	return s, nil
}

// sum returns the sum of the passed scalars.
func sum(scalars ...Scalar) Scalar {
	var total Scalar
	for i := range scalars {
		total.Add(&scalars[i])
	}

	return total
}
