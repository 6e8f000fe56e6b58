// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
)

const (
	// p2wpkhInputWeight is the weight of a P2WPKH input including its
	// witness.
	p2wpkhInputWeight = txsizes.RedeemP2WPKHInputSize*4 +
		txsizes.RedeemP2WPKHInputWitnessWeight

	// p2trInputWeight is the weight of a key path P2TR input including
	// its witness.
	p2trInputWeight = txsizes.RedeemP2TRInputSize*4 +
		txsizes.RedeemP2TRInputWitnessWeight

	// p2wpkhOutputWeight is the weight of a P2WPKH output.
	p2wpkhOutputWeight = txsizes.P2WPKHOutputSize * 4

	// p2trOutputWeight is the weight of a P2TR output.
	p2trOutputWeight = txsizes.P2TROutputSize * 4

	// baseTxWeight is the weight of the transaction fields outside of
	// inputs and outputs: version, locktime, segwit marker and flag, and
	// three byte input and output counts.
	baseTxWeight = (4+4+3+3)*4 + 2
)

var (
	// ErrInvalidParameters is returned when round parameters are
	// inconsistent.
	ErrInvalidParameters = errors.New("invalid round parameters")

	// errUnsupportedScript is returned for script types rounds do not
	// accept.
	errUnsupportedScript = errors.New("unsupported script type")
)

// Parameters bound what a round accepts and how long each phase lasts.
type Parameters struct {
	// MinRegistrableAmount and MaxRegistrableAmount bound the total
	// amount of the inputs one Alice registers.
	MinRegistrableAmount btcutil.Amount
	MaxRegistrableAmount btcutil.Amount

	// MinRegistrableWeight and MaxRegistrableWeight bound the total
	// weight of the inputs one Alice registers. The weight credentials
	// of an Alice are worth MaxRegistrableWeight minus her input weight.
	MinRegistrableWeight int64
	MaxRegistrableWeight int64

	// MaxInputCountPerAlice is the most inputs one Alice may register.
	MaxInputCountPerAlice int

	// MinInputCount is the number of Alices needed to leave input
	// registration early and to survive connection confirmation.
	MinInputCount int

	// MaxInputCount caps the number of registered inputs.
	MaxInputCount int

	// FeeRate is the mining fee rate in satoshis per kilo virtual byte.
	FeeRate btcutil.Amount

	// MinRelayFee is the relay fee used for the dust check.
	MinRelayFee btcutil.Amount

	InputRegistrationTimeout      time.Duration
	ConnectionConfirmationTimeout time.Duration
	OutputRegistrationTimeout     time.Duration
	TransactionSigningTimeout     time.Duration
}

// DefaultParameters returns the parameters rounds use unless configured
// otherwise.
func DefaultParameters() *Parameters {
	return &Parameters{
		MinRegistrableAmount:          5000,
		MaxRegistrableAmount:          43_000 * btcutil.SatoshiPerBitcoin,
		MinRegistrableWeight:          p2trInputWeight,
		MaxRegistrableWeight:          255 * 4,
		MaxInputCountPerAlice:         1,
		MinInputCount:                 21,
		MaxInputCount:                 400,
		FeeRate:                       10_000,
		MinRelayFee:                   txrules.DefaultRelayFeePerKb,
		InputRegistrationTimeout:      time.Hour,
		ConnectionConfirmationTimeout: time.Minute,
		OutputRegistrationTimeout:     time.Minute,
		TransactionSigningTimeout:     time.Minute,
	}
}

// Validate checks the parameters are consistent.
func (p *Parameters) Validate() error {
	switch {
	case p.MinRegistrableAmount <= 0 ||
		p.MaxRegistrableAmount < p.MinRegistrableAmount:

		return fmt.Errorf("%w: amount bounds [%v, %v]",
			ErrInvalidParameters, p.MinRegistrableAmount,
			p.MaxRegistrableAmount)

	case p.MaxRegistrableAmount > btcutil.MaxSatoshi:
		return fmt.Errorf("%w: maximum amount %v exceeds supply",
			ErrInvalidParameters, p.MaxRegistrableAmount)

	case p.MinRegistrableWeight <= 0 ||
		p.MaxRegistrableWeight < p.MinRegistrableWeight:

		return fmt.Errorf("%w: weight bounds [%d, %d]",
			ErrInvalidParameters, p.MinRegistrableWeight,
			p.MaxRegistrableWeight)

	case p.MaxInputCountPerAlice < 1:
		return fmt.Errorf("%w: max inputs per alice %d",
			ErrInvalidParameters, p.MaxInputCountPerAlice)

	case p.MinInputCount < 1 || p.MaxInputCount < p.MinInputCount:
		return fmt.Errorf("%w: input count bounds [%d, %d]",
			ErrInvalidParameters, p.MinInputCount, p.MaxInputCount)

	case p.FeeRate < 0 || p.MinRelayFee < 0:
		return fmt.Errorf("%w: negative fee rate", ErrInvalidParameters)

	case p.InputRegistrationTimeout <= 0 ||
		p.ConnectionConfirmationTimeout <= 0 ||
		p.OutputRegistrationTimeout <= 0 ||
		p.TransactionSigningTimeout <= 0:

		return fmt.Errorf("%w: non-positive phase timeout",
			ErrInvalidParameters)
	}

	return nil
}

// timeout returns the duration of the given phase.
func (p *Parameters) timeout(phase Phase) time.Duration {
	switch phase {
	case InputRegistration:
		return p.InputRegistrationTimeout
	case ConnectionConfirmation:
		return p.ConnectionConfirmationTimeout
	case OutputRegistration:
		return p.OutputRegistrationTimeout
	case TransactionSigning:
		return p.TransactionSigningTimeout
	default:
		return 0
	}
}

// InputWeight returns the weight of spending an output with the given
// script. Only P2WPKH and key path P2TR are supported.
func InputWeight(pkScript []byte) (int64, error) {
	switch {
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return p2wpkhInputWeight, nil
	case txscript.IsPayToTaproot(pkScript):
		return p2trInputWeight, nil
	default:
		return 0, errUnsupportedScript
	}
}

// OutputWeight returns the weight of an output paying to the given script.
// Only P2WPKH and P2TR are supported.
func OutputWeight(pkScript []byte) (int64, error) {
	switch {
	case txscript.IsPayToWitnessPubKeyHash(pkScript):
		return p2wpkhOutputWeight, nil
	case txscript.IsPayToTaproot(pkScript):
		return p2trOutputWeight, nil
	default:
		return 0, errUnsupportedScript
	}
}

// FeeForWeight returns the mining fee owed for the given weight at the
// round's fee rate.
func (p *Parameters) FeeForWeight(weight int64) btcutil.Amount {
	vsize := (weight + 3) / 4
	return txrules.FeeForSerializeSize(p.FeeRate, int(vsize))
}
