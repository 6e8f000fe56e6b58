// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import "errors"

var (
	// ErrInvalidRequest is returned when a request has the wrong number
	// of credentials, bit commitments or proofs.
	ErrInvalidRequest = errors.New("invalid credentials request")

	// ErrRangeProofInvalid is returned when a requested attribute is not
	// proven to lie in [0, 2^bits).
	ErrRangeProofInvalid = errors.New("range proof invalid")

	// ErrSerialNumberReused is returned when a presented credential has
	// already been spent, or is presented twice in one request.
	ErrSerialNumberReused = errors.New("serial number reused")

	// ErrCredentialVerificationFailed is returned when a presented
	// credential does not carry a valid MAC.
	ErrCredentialVerificationFailed = errors.New(
		"credential verification failed")

	// ErrBalanceProofInvalid is returned when the requested attributes
	// do not add up to the presented ones plus the disclosed delta.
	ErrBalanceProofInvalid = errors.New("balance proof invalid")

	// ErrIssuanceProofInvalid is returned to clients when the issuer's
	// response does not prove the MACs were made with the published key.
	ErrIssuanceProofInvalid = errors.New("issuance proof invalid")

	// ErrAmountOutOfRange is returned to clients asking for an attribute
	// above the issuer's maximum.
	ErrAmountOutOfRange = errors.New("amount out of range")
)
