// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// generatorTag domain separates generator derivation from every other tagged
// hash in the package.
var generatorTag = []byte("coinjoind/credential/generator")

// Nothing-up-my-sleeve generators. Nobody knows the discrete log of any of
// them relative to another.
var (
	Gw  = hashToCurve("Gw")
	Gwp = hashToCurve("Gwp")
	Gx0 = hashToCurve("Gx0")
	Gx1 = hashToCurve("Gx1")
	Gv  = hashToCurve("GV")
	Gg  = hashToCurve("Gg")
	Gh  = hashToCurve("Gh")
	Ga  = hashToCurve("Ga")
	Gs  = hashToCurve("Gs")
)

// hashToCurve derives a point by try-and-increment: the tagged hash of the
// label and a counter is used as the x coordinate of an even point until one
// lands on the curve.
func hashToCurve(label string) GroupElement {
	var counter [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h := chainhash.TaggedHash(generatorTag, []byte(label), counter[:])

		var encoded [GroupElementSize]byte
		encoded[0] = secp256k1.PubKeyFormatCompressedEven
		copy(encoded[1:], h[:])

		g, err := ParseGroupElement(encoded[:])
		if err == nil && !g.IsInfinity() {
			return g
		}

		if i == ^uint32(0) {
			panic(fmt.Sprintf("no generator for label %q", label))
		}
	}
}
