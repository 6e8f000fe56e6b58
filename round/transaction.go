// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/btcutil/txsort"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

// enterSigningLocked builds the joint transaction and moves to signing.
func (r *Round) enterSigningLocked() PhaseUpdate {
	tx := wire.NewMsgTx(wire.TxVersion)
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(r.inputs))
	for _, a := range r.alices {
		for op, c := range a.Coins {
			tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
			prevOuts[op] = c.TxOut
		}
	}
	for _, b := range r.bobs {
		tx.AddTxOut(wire.NewTxOut(int64(b.Amount), b.PkScript))
	}
	txsort.InPlaceSort(tx)

	r.tx = tx
	r.prevOuts = prevOuts

	log.Debugf("Round %v unsigned transaction: %v", r.ID,
		newLogClosure(func() string {
			return spew.Sdump(tx)
		}))

	return r.setPhaseLocked(TransactionSigning)
}

// Transaction returns a copy of the joint transaction with the witnesses
// collected so far. It is nil before signing starts.
func (r *Round) Transaction() *wire.MsgTx {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tx == nil {
		return nil
	}

	return r.tx.Copy()
}

// UnsignedPSBT returns the joint transaction as a PSBT with the witness
// UTXO of every input filled in, for signers that work on PSBTs.
func (r *Round) UnsignedPSBT() (*psbt.Packet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tx == nil {
		return nil, roundError(ErrWrongPhase,
			"transaction not built yet", nil)
	}

	unsigned := r.tx.Copy()
	for _, in := range unsigned.TxIn {
		in.Witness = nil
		in.SignatureScript = nil
	}

	packet, err := psbt.NewFromUnsignedTx(unsigned)
	if err != nil {
		return nil, err
	}
	for i, in := range unsigned.TxIn {
		packet.Inputs[i].WitnessUtxo = r.prevOuts[in.PreviousOutPoint]
	}

	return packet, nil
}

// SignTransaction verifies and records an Alice's witnesses. When the last
// input is signed the round ends and the transaction is broadcast.
func (r *Round) SignTransaction(ctx context.Context,
	req *TransactionSignaturesRequest) error {

	r.mu.Lock()
	if err := r.checkPhaseLocked(TransactionSigning); err != nil {
		r.mu.Unlock()
		return err
	}

	alice, ok := r.alices[req.AliceID]
	if !ok {
		r.mu.Unlock()
		return roundError(ErrAliceNotFound,
			fmt.Sprintf("alice %v", req.AliceID), nil)
	}

	indexes := make(map[wire.OutPoint]int, len(r.tx.TxIn))
	for i, in := range r.tx.TxIn {
		indexes[in.PreviousOutPoint] = i
	}

	// Every witness is checked before any is recorded so a rejected
	// request leaves the Alice's inputs as they were.
	coins := make(map[wire.OutPoint]*Coin, len(req.Witnesses))
	for op := range req.Witnesses {
		coin, ok := alice.Coins[op]
		if !ok {
			r.mu.Unlock()
			return roundError(ErrWrongWitness,
				fmt.Sprintf("%v is not an input of alice", op),
				nil)
		}
		if coin.Witness != nil {
			r.mu.Unlock()
			return roundError(ErrAlreadySigned,
				fmt.Sprintf("%v already signed", op), nil)
		}
		coins[op] = coin
	}

	for op, witness := range req.Witnesses {
		idx := indexes[op]
		r.tx.TxIn[idx].Witness = witness
		err := r.cfg.Verifier.VerifyWitness(r.tx, idx, r.prevOuts)
		r.tx.TxIn[idx].Witness = nil
		if err != nil {
			r.mu.Unlock()
			return roundError(ErrWrongWitness,
				fmt.Sprintf("witness for %v", op), err)
		}
	}

	for op, witness := range req.Witnesses {
		r.tx.TxIn[indexes[op]].Witness = witness
		coins[op].Witness = witness
	}

	for _, a := range r.alices {
		if !a.Signed() {
			r.mu.Unlock()
			return nil
		}
	}

	signed := r.tx.Copy()
	update := r.endLocked(Succeeded, nil)
	r.mu.Unlock()

	log.Infof("Round %v succeeded with transaction %v", r.ID,
		signed.TxHash())

	r.notify(update)

	if r.cfg.Broadcaster != nil {
		if err := r.cfg.Broadcaster.PublishTransaction(ctx, signed); err != nil {
			log.Errorf("Unable to broadcast transaction %v of round "+
				"%v: %v", signed.TxHash(), r.ID, err)
		}
	}

	return nil
}

// Summary is the archived record of a round.
type Summary struct {
	ID         chainhash.Hash
	Phase      Phase
	EndState   EndRoundState
	Reason     string
	NumAlices  int
	NumInputs  int
	NumBobs    int
	TotalInput btcutil.Amount
	TxID       chainhash.Hash
	Created    time.Time
	Ended      time.Time
}

// Summary returns the round's current summary.
func (r *Round) Summary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Summary{
		ID:        r.ID,
		Phase:     r.phase,
		EndState:  r.endState,
		NumAlices: len(r.alices),
		NumInputs: len(r.inputs),
		NumBobs:   len(r.bobs),
		Created:   r.created,
		Ended:     r.ended,
	}
	if r.abortReason != nil {
		s.Reason = r.abortReason.Error()
	}
	for _, a := range r.alices {
		s.TotalInput += a.TotalAmount()
	}
	if r.tx != nil {
		s.TxID = r.tx.TxHash()
	}

	return s
}
