// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/google/uuid"
)

// InputEntry is one input an Alice registers.
type InputEntry struct {
	OutPoint       wire.OutPoint
	OwnershipProof []byte
}

// InputsRegistrationRequest registers a new Alice.
type InputsRegistrationRequest struct {
	RoundID chainhash.Hash
	Inputs  []InputEntry

	ZeroAmountCredentialRequests *credential.ZeroCredentialsRequest
	ZeroWeightCredentialRequests *credential.ZeroCredentialsRequest
}

// InputsRegistrationResponse carries the new Alice's id and her zero
// credentials.
type InputsRegistrationResponse struct {
	AliceID           uuid.UUID
	AmountCredentials *credential.CredentialsResponse
	WeightCredentials *credential.CredentialsResponse
}

// ConnectionConfirmationRequest swaps an Alice's zero credentials for real
// ones worth her effective amount and weight allowance.
type ConnectionConfirmationRequest struct {
	RoundID chainhash.Hash
	AliceID uuid.UUID

	AmountCredentialRequests *credential.RealCredentialsRequest
	WeightCredentialRequests *credential.RealCredentialsRequest
}

// CredentialsResponses pairs the amount and weight issuer responses.
type CredentialsResponses struct {
	AmountCredentials *credential.CredentialsResponse
	WeightCredentials *credential.CredentialsResponse
}

// OutputRegistrationRequest registers a Bob. The presented credentials must
// cover the output amount plus its fee, and its weight.
type OutputRegistrationRequest struct {
	RoundID  chainhash.Hash
	PkScript []byte
	Amount   btcutil.Amount

	AmountCredentialRequests *credential.RealCredentialsRequest
	WeightCredentialRequests *credential.RealCredentialsRequest
}

// OutputRegistrationResponse carries the Bob id and the credentials for the
// value left over.
type OutputRegistrationResponse struct {
	BobID uuid.UUID
	CredentialsResponses
}

// ReissuanceRequest swaps credentials for new ones of equal total value.
type ReissuanceRequest struct {
	RoundID chainhash.Hash

	AmountCredentialRequests *credential.RealCredentialsRequest
	WeightCredentialRequests *credential.RealCredentialsRequest
}

// ReadyToSignRequest tells the round an Alice registered all her outputs.
type ReadyToSignRequest struct {
	RoundID chainhash.Hash
	AliceID uuid.UUID
}

// TransactionSignaturesRequest carries an Alice's witnesses.
type TransactionSignaturesRequest struct {
	RoundID   chainhash.Hash
	AliceID   uuid.UUID
	Witnesses map[wire.OutPoint]wire.TxWitness
}
