// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Phase is a step of the round state machine.
type Phase uint8

const (
	// InputRegistration accepts Alices.
	InputRegistration Phase = iota

	// ConnectionConfirmation issues real credentials to Alices that are
	// still online.
	ConnectionConfirmation

	// OutputRegistration accepts Bobs.
	OutputRegistration

	// TransactionSigning collects witnesses for the joint transaction.
	TransactionSigning

	// Ended is terminal. See EndRoundState for the outcome.
	Ended
)

// String returns the phase as a human readable string.
func (p Phase) String() string {
	switch p {
	case InputRegistration:
		return "InputRegistration"
	case ConnectionConfirmation:
		return "ConnectionConfirmation"
	case OutputRegistration:
		return "OutputRegistration"
	case TransactionSigning:
		return "TransactionSigning"
	case Ended:
		return "Ended"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// EndRoundState is the outcome of an ended round.
type EndRoundState uint8

const (
	// NotEnded is the state of every round that has not ended yet.
	NotEnded EndRoundState = iota

	// Succeeded means the signed transaction was handed to the
	// broadcaster.
	Succeeded

	// Aborted means the round failed. The abort reason is recorded on
	// the round.
	Aborted
)

// String returns the end state as a human readable string.
func (s EndRoundState) String() string {
	switch s {
	case NotEnded:
		return "NotEnded"
	case Succeeded:
		return "Succeeded"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("EndRoundState(%d)", uint8(s))
	}
}

// PhaseUpdate is sent every time a round changes phase.
type PhaseUpdate struct {
	RoundID  chainhash.Hash
	Phase    Phase
	EndState EndRoundState

	// Reason is set when the round aborted.
	Reason error

	// Deadline is when the new phase times out. It is zero for Ended.
	Deadline time.Time
}
