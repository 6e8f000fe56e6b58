// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrUtxoNotFound is returned by a UtxoProvider for outpoints that are
	// unknown or spent.
	ErrUtxoNotFound = errors.New("utxo not found")
)

// Utxo is an unspent output as seen by the chain backend.
type Utxo struct {
	TxOut         *wire.TxOut
	Confirmations int64
	Coinbase      bool
}

// UtxoProvider looks up unspent outputs.
type UtxoProvider interface {
	// FetchUtxo returns the unspent output at op, or ErrUtxoNotFound.
	FetchUtxo(ctx context.Context, op wire.OutPoint) (*Utxo, error)
}

// Broadcaster publishes a fully signed transaction.
type Broadcaster interface {
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) error
}

// WitnessVerifier checks the witness of one input of a transaction.
type WitnessVerifier interface {
	// VerifyWitness checks input idx of tx. prevOuts must contain the
	// previous output of every input.
	VerifyWitness(tx *wire.MsgTx, idx int,
		prevOuts map[wire.OutPoint]*wire.TxOut) error
}

// ScriptEngineVerifier is the default WitnessVerifier. It executes the
// input's script with btcd's script engine.
type ScriptEngineVerifier struct {
	// Flags are passed to the script engine. The zero value uses
	// txscript.StandardVerifyFlags.
	Flags txscript.ScriptFlags
}

// A compile time check to ensure ScriptEngineVerifier implements the
// WitnessVerifier interface.
var _ WitnessVerifier = (*ScriptEngineVerifier)(nil)

// VerifyWitness implements WitnessVerifier.
func (v *ScriptEngineVerifier) VerifyWitness(tx *wire.MsgTx, idx int,
	prevOuts map[wire.OutPoint]*wire.TxOut) error {

	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("input index %d out of range", idx)
	}

	prevOut, ok := prevOuts[tx.TxIn[idx].PreviousOutPoint]
	if !ok {
		return fmt.Errorf("missing previous output for input %d", idx)
	}

	flags := v.Flags
	if flags == 0 {
		flags = txscript.StandardVerifyFlags
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	vm, err := txscript.NewEngine(
		prevOut.PkScript, tx, idx, flags, nil, sigHashes,
		prevOut.Value, fetcher,
	)
	if err != nil {
		return err
	}

	return vm.Execute()
}
