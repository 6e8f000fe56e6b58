// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"errors"
	"fmt"

	"github.com/btcsuite/coinjoind/credential"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrWrongPhase indicates the operation is not allowed in the
	// round's current phase.
	ErrWrongPhase ErrorCode = iota

	// ErrRoundNotFound indicates no round with the requested id exists.
	ErrRoundNotFound

	// ErrInputBanned indicates an input is currently noted or banned.
	ErrInputBanned

	// ErrInputSpent indicates an input is unknown to the chain or
	// already spent.
	ErrInputSpent

	// ErrInputUnconfirmed indicates an input is not yet confirmed.
	ErrInputUnconfirmed

	// ErrAliceAlreadyRegistered indicates an input is already part of
	// the round or listed twice in one request.
	ErrAliceAlreadyRegistered

	// ErrAliceNotFound indicates no Alice with the given id exists.
	ErrAliceNotFound

	// ErrTooManyInputs indicates a request registers more inputs than
	// one Alice may, or the round is full.
	ErrTooManyInputs

	// ErrScriptNotAllowed indicates an input or output script type the
	// round does not accept.
	ErrScriptNotAllowed

	// ErrInvalidProof indicates an ownership proof does not verify.
	ErrInvalidProof

	// ErrNotEnoughFunds indicates the registered amount is below the
	// round minimum.
	ErrNotEnoughFunds

	// ErrTooMuchFunds indicates the registered amount is above the
	// round maximum.
	ErrTooMuchFunds

	// ErrNotEnoughWeight indicates the registered weight is below the
	// round minimum.
	ErrNotEnoughWeight

	// ErrTooMuchWeight indicates the registered weight is above the
	// round maximum.
	ErrTooMuchWeight

	// ErrAmountMismatch indicates a credential request disclosed a delta
	// other than the one the operation requires.
	ErrAmountMismatch

	// ErrRangeProofInvalid indicates a requested credential was not
	// proven to be in range.
	ErrRangeProofInvalid

	// ErrSerialNumberReused indicates a presented credential was already
	// spent.
	ErrSerialNumberReused

	// ErrCredentialVerificationFailed indicates a presented credential
	// does not verify.
	ErrCredentialVerificationFailed

	// ErrInvalidCredentialRequest indicates a malformed credential
	// request.
	ErrInvalidCredentialRequest

	// ErrDustOutput indicates an output below the dust limit.
	ErrDustOutput

	// ErrWrongWitness indicates a witness that does not satisfy its
	// input's script.
	ErrWrongWitness

	// ErrAlreadySigned indicates an input was already signed.
	ErrAlreadySigned

	// ErrQuorumNotReached indicates too few participants remained for
	// the round to continue.
	ErrQuorumNotReached

	// ErrPhaseDeadlineExceeded indicates a phase timed out without the
	// participants completing it.
	ErrPhaseDeadlineExceeded

	// ErrRoundCancelled indicates the round was aborted by its owner.
	ErrRoundCancelled

	// ErrBackend indicates a failure of the chain backend.
	ErrBackend
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrWrongPhase:                   "ErrWrongPhase",
	ErrRoundNotFound:                "ErrRoundNotFound",
	ErrInputBanned:                  "ErrInputBanned",
	ErrInputSpent:                   "ErrInputSpent",
	ErrInputUnconfirmed:             "ErrInputUnconfirmed",
	ErrAliceAlreadyRegistered:       "ErrAliceAlreadyRegistered",
	ErrAliceNotFound:                "ErrAliceNotFound",
	ErrTooManyInputs:                "ErrTooManyInputs",
	ErrScriptNotAllowed:             "ErrScriptNotAllowed",
	ErrInvalidProof:                 "ErrInvalidProof",
	ErrNotEnoughFunds:               "ErrNotEnoughFunds",
	ErrTooMuchFunds:                 "ErrTooMuchFunds",
	ErrNotEnoughWeight:              "ErrNotEnoughWeight",
	ErrTooMuchWeight:                "ErrTooMuchWeight",
	ErrAmountMismatch:               "ErrAmountMismatch",
	ErrRangeProofInvalid:            "ErrRangeProofInvalid",
	ErrSerialNumberReused:           "ErrSerialNumberReused",
	ErrCredentialVerificationFailed: "ErrCredentialVerificationFailed",
	ErrInvalidCredentialRequest:     "ErrInvalidCredentialRequest",
	ErrDustOutput:                   "ErrDustOutput",
	ErrWrongWitness:                 "ErrWrongWitness",
	ErrAlreadySigned:                "ErrAlreadySigned",
	ErrQuorumNotReached:             "ErrQuorumNotReached",
	ErrPhaseDeadlineExceeded:        "ErrPhaseDeadlineExceeded",
	ErrRoundCancelled:               "ErrRoundCancelled",
	ErrBackend:                      "ErrBackend",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Rejection is how a participant should react to an error.
type Rejection uint8

const (
	// RejectionRetry means the request may be fixed and retried in the
	// same round.
	RejectionRetry Rejection = iota

	// RejectionTryLater means the participant should wait and join a
	// later round.
	RejectionTryLater

	// RejectionNewRound means the round is gone or past the relevant
	// phase and the participant must discover a new round.
	RejectionNewRound

	// RejectionFatal means the round failed as a whole.
	RejectionFatal
)

// String returns the rejection kind as a human readable string.
func (r Rejection) String() string {
	switch r {
	case RejectionRetry:
		return "retry"
	case RejectionTryLater:
		return "try later"
	case RejectionNewRound:
		return "new round"
	case RejectionFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Rejection(%d)", uint8(r))
	}
}

// Rejection returns how a participant should react to the error code.
func (e ErrorCode) Rejection() Rejection {
	switch e {
	case ErrWrongPhase, ErrRoundNotFound:
		return RejectionNewRound

	case ErrInputBanned, ErrInputUnconfirmed, ErrTooManyInputs,
		ErrBackend:

		return RejectionTryLater

	case ErrQuorumNotReached, ErrPhaseDeadlineExceeded,
		ErrRoundCancelled:

		return RejectionFatal

	default:
		return RejectionRetry
	}
}

// Error provides a single type for errors that can happen during round
// operation.
type Error struct {
	Code        ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code.String() + ": " + e.Description + ": " +
			e.Err.Error()
	}
	return e.Code.String() + ": " + e.Description
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Rejection returns how a participant should react to the error.
func (e *Error) Rejection() Rejection {
	return e.Code.Rejection()
}

// roundError creates an Error given a set of arguments.
func roundError(c ErrorCode, desc string, err error) *Error {
	return &Error{Code: c, Description: desc, Err: err}
}

// codeError returns a bare error with the given code, usable as an
// errors.Is target.
func codeError(c ErrorCode) *Error {
	return &Error{Code: c}
}

// IsError reports whether err is an *Error with the given code.
func IsError(err error, code ErrorCode) bool {
	return errors.Is(err, codeError(code))
}

// credentialError maps an issuer error to the round's taxonomy.
func credentialError(err error) *Error {
	switch {
	case errors.Is(err, credential.ErrRangeProofInvalid):
		return roundError(ErrRangeProofInvalid,
			"credential range proof invalid", err)

	case errors.Is(err, credential.ErrSerialNumberReused):
		return roundError(ErrSerialNumberReused,
			"credential already spent", err)

	case errors.Is(err, credential.ErrCredentialVerificationFailed):
		return roundError(ErrCredentialVerificationFailed,
			"presented credential does not verify", err)

	case errors.Is(err, credential.ErrBalanceProofInvalid):
		return roundError(ErrAmountMismatch,
			"credentials do not balance the disclosed delta", err)

	default:
		return roundError(ErrInvalidCredentialRequest,
			"malformed credential request", err)
	}
}
