// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ownershipTag domain separates ownership commitments.
var ownershipTag = []byte("coinjoind/ownership")

var (
	// ErrOwnershipProofInvalid is returned when an ownership proof does
	// not verify against the output script.
	ErrOwnershipProofInvalid = errors.New("ownership proof invalid")
)

// OwnershipCommitment is the message an input owner signs to register op in
// the round with the given hash.
func OwnershipCommitment(roundHash chainhash.Hash,
	op wire.OutPoint) chainhash.Hash {

	var index [4]byte
	binary.LittleEndian.PutUint32(index[:], op.Index)

	return *chainhash.TaggedHash(
		ownershipTag, roundHash[:], op.Hash[:], index[:],
	)
}

// SignOwnership creates the ownership proof for an output paying to
// pkScript. P2WPKH outputs are proven with a compact recoverable ECDSA
// signature, P2TR outputs with a BIP-340 signature by the output key.
func SignOwnership(key *btcec.PrivateKey, pkScript []byte,
	roundHash chainhash.Hash, op wire.OutPoint) ([]byte, error) {

	msg := OwnershipCommitment(roundHash, op)

	switch {
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return ecdsa.SignCompact(key, msg[:], true), nil

	case txscript.IsPayToTaproot(pkScript):
		sig, err := schnorr.Sign(key, msg[:])
		if err != nil {
			return nil, err
		}
		return sig.Serialize(), nil

	default:
		return nil, errUnsupportedScript
	}
}

// VerifyOwnership checks an ownership proof for the output paying to
// pkScript.
func VerifyOwnership(proof, pkScript []byte, roundHash chainhash.Hash,
	op wire.OutPoint) error {

	msg := OwnershipCommitment(roundHash, op)

	switch {
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		pub, compressed, err := ecdsa.RecoverCompact(proof, msg[:])
		if err != nil || !compressed {
			return ErrOwnershipProofInvalid
		}
		keyHash := btcutil.Hash160(pub.SerializeCompressed())
		if !bytes.Equal(keyHash, pkScript[2:]) {
			return ErrOwnershipProofInvalid
		}
		return nil

	case txscript.IsPayToTaproot(pkScript):
		sig, err := schnorr.ParseSignature(proof)
		if err != nil {
			return ErrOwnershipProofInvalid
		}
		pub, err := schnorr.ParsePubKey(pkScript[2:])
		if err != nil {
			return ErrOwnershipProofInvalid
		}
		if !sig.Verify(msg[:], pub) {
			return ErrOwnershipProofInvalid
		}
		return nil

	default:
		return errUnsupportedScript
	}
}
