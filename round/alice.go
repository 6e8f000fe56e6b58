// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
)

// Coin is a registered input.
type Coin struct {
	OutPoint       wire.OutPoint
	TxOut          *wire.TxOut
	OwnershipProof []byte

	// Weight is the weight the input adds to the transaction once
	// signed.
	Weight int64

	// Witness is set once the owner signed the joint transaction.
	Witness wire.TxWitness
}

// Alice is a participant that registered one or more inputs.
type Alice struct {
	ID    uuid.UUID
	Coins map[wire.OutPoint]*Coin

	ConfirmedConnection bool
	ReadyToSign         bool
}

func newAlice(coins []*Coin) *Alice {
	a := &Alice{
		ID:    uuid.New(),
		Coins: make(map[wire.OutPoint]*Coin, len(coins)),
	}
	for _, c := range coins {
		a.Coins[c.OutPoint] = c
	}

	return a
}

// TotalAmount is the sum of the Alice's input values.
func (a *Alice) TotalAmount() btcutil.Amount {
	var total btcutil.Amount
	for _, c := range a.Coins {
		total += btcutil.Amount(c.TxOut.Value)
	}

	return total
}

// TotalWeight is the sum of the Alice's input weights.
func (a *Alice) TotalWeight() int64 {
	var total int64
	for _, c := range a.Coins {
		total += c.Weight
	}

	return total
}

// Signed reports whether every input of the Alice carries a witness.
func (a *Alice) Signed() bool {
	for _, c := range a.Coins {
		if c.Witness == nil {
			return false
		}
	}

	return true
}

// EffectiveAmount is the value an Alice's amount credentials are worth: her
// input amount minus the mining fee for her inputs.
func EffectiveAmount(p *Parameters, amount btcutil.Amount,
	weight int64) btcutil.Amount {

	return amount - p.FeeForWeight(weight)
}

// WeightAllowance is the value an Alice's weight credentials are worth.
func WeightAllowance(p *Parameters, weight int64) int64 {
	return p.MaxRegistrableWeight - weight
}

// OutputCost is the amount of credential value a Bob presents for an output:
// the output amount plus the mining fee for the output.
func OutputCost(p *Parameters, amount btcutil.Amount,
	weight int64) btcutil.Amount {

	return amount + p.FeeForWeight(weight)
}

// Bob is a registered output. Nothing links it to an Alice.
type Bob struct {
	ID       uuid.UUID
	PkScript []byte
	Amount   btcutil.Amount
}
