// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// checkPhaseLocked returns ErrWrongPhase unless the round is in one of the
// given phases.
func (r *Round) checkPhaseLocked(phases ...Phase) error {
	for _, p := range phases {
		if r.phase == p {
			return nil
		}
	}

	return roundError(ErrWrongPhase,
		fmt.Sprintf("round %v is in %v", r.ID, r.phase), nil)
}

// precheckInputs runs the checks that need no chain lookups.
func (r *Round) precheckInputs(req *InputsRegistrationRequest) error {
	if len(req.Inputs) == 0 {
		return roundError(ErrTooManyInputs, "no inputs", nil)
	}
	if len(req.Inputs) > r.params.MaxInputCountPerAlice {
		return roundError(ErrTooManyInputs, fmt.Sprintf(
			"%d inputs exceeds %d per alice", len(req.Inputs),
			r.params.MaxInputCountPerAlice), nil)
	}

	seen := make(map[wire.OutPoint]struct{}, len(req.Inputs))
	for _, in := range req.Inputs {
		if _, ok := seen[in.OutPoint]; ok {
			return roundError(ErrAliceAlreadyRegistered,
				fmt.Sprintf("%v listed twice", in.OutPoint), nil)
		}
		seen[in.OutPoint] = struct{}{}

		if r.cfg.Prison.IsPunished(in.OutPoint) {
			return roundError(ErrInputBanned,
				fmt.Sprintf("%v is banned", in.OutPoint), nil)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPhaseLocked(InputRegistration); err != nil {
		return err
	}

	return r.checkCapacityLocked(req)
}

// checkCapacityLocked checks the inputs are new to the round and fit in it.
func (r *Round) checkCapacityLocked(req *InputsRegistrationRequest) error {
	for _, in := range req.Inputs {
		if _, ok := r.inputs[in.OutPoint]; ok {
			return roundError(ErrAliceAlreadyRegistered,
				fmt.Sprintf("%v already registered", in.OutPoint),
				nil)
		}
	}
	if len(r.inputs)+len(req.Inputs) > r.params.MaxInputCount {
		return roundError(ErrTooManyInputs, "round is full", nil)
	}

	return nil
}

// fetchCoins resolves every input in parallel.
func (r *Round) fetchCoins(ctx context.Context,
	inputs []InputEntry) ([]*Coin, error) {

	coins := make([]*Coin, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			utxo, err := r.cfg.Utxos.FetchUtxo(gctx, in.OutPoint)
			switch {
			case errors.Is(err, ErrUtxoNotFound):
				return roundError(ErrInputSpent, fmt.Sprintf(
					"%v is unknown or spent", in.OutPoint), err)

			case err != nil:
				return roundError(ErrBackend, fmt.Sprintf(
					"unable to fetch %v", in.OutPoint), err)

			case utxo.Confirmations < 1:
				return roundError(ErrInputUnconfirmed, fmt.Sprintf(
					"%v is unconfirmed", in.OutPoint), nil)
			}

			weight, err := InputWeight(utxo.TxOut.PkScript)
			if err != nil {
				return roundError(ErrScriptNotAllowed, fmt.Sprintf(
					"%v", in.OutPoint), err)
			}

			err = VerifyOwnership(
				in.OwnershipProof, utxo.TxOut.PkScript, r.Hash,
				in.OutPoint,
			)
			if err != nil {
				return roundError(ErrInvalidProof, fmt.Sprintf(
					"%v", in.OutPoint), err)
			}

			coins[i] = &Coin{
				OutPoint:       in.OutPoint,
				TxOut:          utxo.TxOut,
				OwnershipProof: in.OwnershipProof,
				Weight:         weight,
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return coins, nil
}

// checkBounds checks the totals of a new Alice against the round bounds.
func (r *Round) checkBounds(a *Alice) error {
	var (
		p      = r.params
		amount = a.TotalAmount()
		weight = a.TotalWeight()
	)
	switch {
	case amount < p.MinRegistrableAmount:
		return roundError(ErrNotEnoughFunds, fmt.Sprintf(
			"%v below minimum %v", amount, p.MinRegistrableAmount),
			nil)

	case amount > p.MaxRegistrableAmount:
		return roundError(ErrTooMuchFunds, fmt.Sprintf(
			"%v above maximum %v", amount, p.MaxRegistrableAmount),
			nil)

	case EffectiveAmount(p, amount, weight) <= 0:
		return roundError(ErrNotEnoughFunds, fmt.Sprintf(
			"%v does not cover the input fee", amount), nil)

	case weight < p.MinRegistrableWeight:
		return roundError(ErrNotEnoughWeight, fmt.Sprintf(
			"%d below minimum %d", weight, p.MinRegistrableWeight),
			nil)

	case weight > p.MaxRegistrableWeight:
		return roundError(ErrTooMuchWeight, fmt.Sprintf(
			"%d above maximum %d", weight, p.MaxRegistrableWeight),
			nil)
	}

	return nil
}

// RegisterInput registers a new Alice with the requested inputs and issues
// her zero amount and weight credentials.
func (r *Round) RegisterInput(ctx context.Context,
	req *InputsRegistrationRequest) (*InputsRegistrationResponse, error) {

	if err := r.precheckInputs(req); err != nil {
		return nil, err
	}

	coins, err := r.fetchCoins(ctx, req.Inputs)
	if err != nil {
		return nil, err
	}

	alice := newAlice(coins)
	if err := r.checkBounds(alice); err != nil {
		return nil, err
	}

	r.mu.Lock()

	// The round may have moved on or another request may have won the
	// same input while we were fetching.
	if err := r.checkPhaseLocked(InputRegistration); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if err := r.checkCapacityLocked(req); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	amountResp, err := r.amountIssuer.IssueZeroCredentials(
		req.ZeroAmountCredentialRequests,
	)
	if err != nil {
		r.mu.Unlock()
		return nil, credentialError(err)
	}
	weightResp, err := r.weightIssuer.IssueZeroCredentials(
		req.ZeroWeightCredentialRequests,
	)
	if err != nil {
		r.mu.Unlock()
		return nil, credentialError(err)
	}

	r.alices[alice.ID] = alice
	for op := range alice.Coins {
		r.inputs[op] = alice.ID
	}

	log.Debugf("Round %v registered alice %v with %d inputs worth %v",
		r.ID, alice.ID, len(alice.Coins), alice.TotalAmount())

	updates := r.maybeAdvanceLocked()
	r.mu.Unlock()

	r.notify(updates...)

	return &InputsRegistrationResponse{
		AliceID:           alice.ID,
		AmountCredentials: amountResp,
		WeightCredentials: weightResp,
	}, nil
}

// issuePair checks the disclosed deltas and runs both credential requests.
func (r *Round) issuePair(amountReq, weightReq *credential.RealCredentialsRequest,
	amountDelta, weightDelta int64) (*CredentialsResponses, error) {

	if amountReq == nil || weightReq == nil {
		return nil, roundError(ErrInvalidCredentialRequest,
			"missing credential request", nil)
	}
	if amountReq.Delta != amountDelta {
		return nil, roundError(ErrAmountMismatch, fmt.Sprintf(
			"amount delta %d, expected %d", amountReq.Delta,
			amountDelta), nil)
	}
	if weightReq.Delta != weightDelta {
		return nil, roundError(ErrAmountMismatch, fmt.Sprintf(
			"weight delta %d, expected %d", weightReq.Delta,
			weightDelta), nil)
	}

	// Both requests are verified before either spends its serial numbers
	// so a bad weight request leaves the amount credentials usable.
	amountReady, err := r.amountIssuer.VerifyRequest(amountReq)
	if err != nil {
		return nil, credentialError(err)
	}
	weightReady, err := r.weightIssuer.VerifyRequest(weightReq)
	if err != nil {
		return nil, credentialError(err)
	}

	amountResp, err := r.amountIssuer.Commit(amountReady)
	if err != nil {
		return nil, credentialError(err)
	}
	weightResp, err := r.weightIssuer.Commit(weightReady)
	if err != nil {
		return nil, credentialError(err)
	}

	return &CredentialsResponses{
		AmountCredentials: amountResp,
		WeightCredentials: weightResp,
	}, nil
}

// ConfirmConnection swaps an Alice's zero credentials for credentials worth
// her effective amount and her weight allowance.
func (r *Round) ConfirmConnection(_ context.Context,
	req *ConnectionConfirmationRequest) (*CredentialsResponses, error) {

	r.mu.Lock()
	if err := r.checkPhaseLocked(ConnectionConfirmation); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	alice, ok := r.alices[req.AliceID]
	if !ok {
		r.mu.Unlock()
		return nil, roundError(ErrAliceNotFound,
			fmt.Sprintf("alice %v", req.AliceID), nil)
	}
	if alice.ConfirmedConnection {
		r.mu.Unlock()
		return nil, roundError(ErrAliceAlreadyRegistered,
			"connection already confirmed", nil)
	}

	weight := alice.TotalWeight()
	resp, err := r.issuePair(
		req.AmountCredentialRequests, req.WeightCredentialRequests,
		int64(EffectiveAmount(r.params, alice.TotalAmount(), weight)),
		WeightAllowance(r.params, weight),
	)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	alice.ConfirmedConnection = true
	updates := r.maybeAdvanceLocked()
	r.mu.Unlock()

	r.notify(updates...)

	return resp, nil
}

// RegisterOutput registers a Bob paying amount to pkScript. The presented
// credentials pay for the output and its fee; the response holds
// credentials for the value left over.
func (r *Round) RegisterOutput(_ context.Context,
	req *OutputRegistrationRequest) (*OutputRegistrationResponse, error) {

	weight, err := OutputWeight(req.PkScript)
	if err != nil {
		return nil, roundError(ErrScriptNotAllowed,
			"output script", err)
	}
	if req.Amount <= 0 || req.Amount > btcutil.MaxSatoshi ||
		txrules.IsDustOutput(wire.NewTxOut(int64(req.Amount), req.PkScript),
			r.params.MinRelayFee) {

		return nil, roundError(ErrDustOutput,
			fmt.Sprintf("%v is dust", req.Amount), nil)
	}

	r.mu.Lock()
	if err := r.checkPhaseLocked(OutputRegistration); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	cost := OutputCost(r.params, req.Amount, weight)
	resp, err := r.issuePair(
		req.AmountCredentialRequests, req.WeightCredentialRequests,
		-int64(cost), -weight,
	)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	bob := &Bob{
		ID:       uuid.New(),
		PkScript: req.PkScript,
		Amount:   req.Amount,
	}
	r.bobs = append(r.bobs, bob)

	log.Debugf("Round %v registered bob %v for %v", r.ID, bob.ID,
		bob.Amount)

	updates := r.maybeAdvanceLocked()
	r.mu.Unlock()

	r.notify(updates...)

	return &OutputRegistrationResponse{
		BobID:                bob.ID,
		CredentialsResponses: *resp,
	}, nil
}

// ReissueCredentials swaps credentials for new ones of the same total
// value.
func (r *Round) ReissueCredentials(_ context.Context,
	req *ReissuanceRequest) (*CredentialsResponses, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.checkPhaseLocked(ConnectionConfirmation, OutputRegistration)
	if err != nil {
		return nil, err
	}

	return r.issuePair(
		req.AmountCredentialRequests, req.WeightCredentialRequests, 0, 0,
	)
}

// ReadyToSign records that an Alice registered all her outputs. Once every
// Alice is ready the round moves to signing without waiting for the
// deadline.
func (r *Round) ReadyToSign(_ context.Context, req *ReadyToSignRequest) error {
	r.mu.Lock()
	if err := r.checkPhaseLocked(OutputRegistration); err != nil {
		r.mu.Unlock()
		return err
	}

	alice, ok := r.alices[req.AliceID]
	if !ok {
		r.mu.Unlock()
		return roundError(ErrAliceNotFound,
			fmt.Sprintf("alice %v", req.AliceID), nil)
	}
	alice.ReadyToSign = true

	updates := r.maybeAdvanceLocked()
	r.mu.Unlock()

	r.notify(updates...)

	return nil
}
