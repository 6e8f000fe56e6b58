// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestParametersValidate checks inconsistent parameters are refused.
func TestParametersValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParameters().Validate())

	tests := []struct {
		name   string
		modify func(*Parameters)
	}{
		{"zero min amount", func(p *Parameters) {
			p.MinRegistrableAmount = 0
		}},
		{"max below min amount", func(p *Parameters) {
			p.MaxRegistrableAmount = p.MinRegistrableAmount - 1
		}},
		{"max above supply", func(p *Parameters) {
			p.MaxRegistrableAmount = btcutil.MaxSatoshi + 1
		}},
		{"max below min weight", func(p *Parameters) {
			p.MaxRegistrableWeight = p.MinRegistrableWeight - 1
		}},
		{"no inputs per alice", func(p *Parameters) {
			p.MaxInputCountPerAlice = 0
		}},
		{"max below min inputs", func(p *Parameters) {
			p.MaxInputCount = p.MinInputCount - 1
		}},
		{"negative fee rate", func(p *Parameters) {
			p.FeeRate = -1
		}},
		{"zero timeout", func(p *Parameters) {
			p.OutputRegistrationTimeout = 0
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := DefaultParameters()
			test.modify(p)
			require.ErrorIs(t, p.Validate(), ErrInvalidParameters)
		})
	}
}

// TestScriptWeights checks the weights of the supported script types.
func TestScriptWeights(t *testing.T) {
	t.Parallel()

	_, _, p2wpkh := newKeyScript(t, false)
	_, _, p2tr := newKeyScript(t, true)

	weight, err := InputWeight(p2wpkh)
	require.NoError(t, err)
	require.EqualValues(t, p2wpkhInputWeight, weight)

	weight, err = InputWeight(p2tr)
	require.NoError(t, err)
	require.EqualValues(t, p2trInputWeight, weight)
	require.Less(t, int64(p2trInputWeight), int64(p2wpkhInputWeight))

	weight, err = OutputWeight(p2tr)
	require.NoError(t, err)
	require.EqualValues(t, p2trOutputWeight, weight)

	_, err = InputWeight([]byte{txscript.OP_TRUE})
	require.Error(t, err)
	_, err = OutputWeight(nil)
	require.Error(t, err)
}

// TestFeeAccounting checks an Alice's effective amount and an output's
// cost move the same fee in opposite directions.
func TestFeeAccounting(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		p := DefaultParameters()
		p.FeeRate = btcutil.Amount(
			rapid.Int64Range(0, 1_000_000).Draw(t, "feeRate"),
		)
		amount := btcutil.Amount(
			rapid.Int64Range(0, btcutil.SatoshiPerBitcoin).Draw(
				t, "amount",
			),
		)
		weight := rapid.Int64Range(1, 4000).Draw(t, "weight")

		fee := p.FeeForWeight(weight)
		if fee < 0 {
			t.Fatalf("negative fee %v", fee)
		}
		if EffectiveAmount(p, amount, weight) != amount-fee {
			t.Fatalf("effective amount does not subtract fee")
		}
		if OutputCost(p, amount, weight) != amount+fee {
			t.Fatalf("output cost does not add fee")
		}

		// Rounding the weight up to virtual bytes never lowers the fee.
		if p.FeeForWeight(weight+1) < fee {
			t.Fatalf("fee decreased with weight")
		}
	})
}
