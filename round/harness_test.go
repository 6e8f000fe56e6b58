// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const defaultTestTimeout = 5 * time.Second

var testStart = time.Unix(1_700_000_000, 0)

// testParameters returns parameters small enough to keep range proofs short.
func testParameters() *Parameters {
	p := DefaultParameters()
	p.MinRegistrableAmount = 10_000
	p.MaxRegistrableAmount = btcutil.SatoshiPerBitcoin
	p.MaxInputCountPerAlice = 2
	p.MinInputCount = 2
	p.MaxInputCount = 10

	return p
}

// testHarness drives a single round against in-memory dependencies.
type testHarness struct {
	t       *testing.T
	params  *Parameters
	clock   *clock.TestClock
	ticks   chan time.Duration
	prison  *prison.Prison
	utxos   *mockUtxoProvider
	bcast   *mockBroadcaster
	updates chan PhaseUpdate
	round   *Round
}

func newTestHarness(t *testing.T, verifier WitnessVerifier,
	modify func(*Parameters)) *testHarness {

	t.Helper()

	params := testParameters()
	if modify != nil {
		modify(params)
	}

	ticks := make(chan time.Duration, 100)
	testClock := clock.NewTestClockWithTickSignal(testStart, ticks)

	prisonCfg := prison.DefaultConfig()
	prisonCfg.Clock = testClock
	p, err := prison.New(prisonCfg)
	require.NoError(t, err)

	h := &testHarness{
		t:       t,
		params:  params,
		clock:   testClock,
		ticks:   ticks,
		prison:  p,
		utxos:   newMockUtxoProvider(),
		bcast:   &mockBroadcaster{},
		updates: make(chan PhaseUpdate, 32),
	}
	h.bcast.On(
		"PublishTransaction", mock.Anything, mock.Anything,
	).Return(nil).Maybe()

	h.round, err = New(&Config{
		Params:      params,
		Net:         &chaincfg.RegressionNetParams,
		Rand:        rand.Reader,
		Utxos:       h.utxos,
		Broadcaster: h.bcast,
		Verifier:    verifier,
		Prison:      p,
		Clock:       testClock,
		Updates:     h.updates,
	})
	require.NoError(t, err)

	return h
}

// run starts the round's deadline loop and returns a function cancelling
// it.
func (h *testHarness) run() context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.round.Run(ctx)
		close(done)
	}()

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(defaultTestTimeout):
			h.t.Fatalf("round loop did not exit")
		}
	}
	h.t.Cleanup(stop)

	return cancel
}

// expirePhase waits for the loop to wait on the current deadline, then moves
// the clock to it.
func (h *testHarness) expirePhase() {
	h.t.Helper()

	deadline := h.round.Deadline()
	want := deadline.Sub(h.clock.Now())
	for {
		select {
		case d := <-h.ticks:
			if d == want {
				h.clock.SetTime(deadline)
				return
			}

		case <-time.After(defaultTestTimeout):
			h.t.Fatalf("round is not waiting for its deadline")
		}
	}
}

// expectUpdate reads updates until one for the given phase arrives.
func (h *testHarness) expectUpdate(phase Phase) PhaseUpdate {
	h.t.Helper()

	for {
		select {
		case u := <-h.updates:
			require.Equal(h.t, h.round.ID, u.RoundID)
			if u.Phase == phase {
				return u
			}

		case <-time.After(defaultTestTimeout):
			h.t.Fatalf("no update for %v", phase)
		}
	}
}

// drainUpdates returns the phases of all queued updates.
func (h *testHarness) drainUpdates() []Phase {
	var phases []Phase
	for {
		select {
		case u := <-h.updates:
			phases = append(phases, u.Phase)
		default:
			return phases
		}
	}
}

// participant owns one input and the credentials of its Alice.
type participant struct {
	// internalKey signs transaction inputs, ownershipKey signs ownership
	// proofs. They differ for taproot outputs.
	internalKey  *btcec.PrivateKey
	ownershipKey *btcec.PrivateKey
	pkScript     []byte
	op           wire.OutPoint
	amount       btcutil.Amount

	aliceID      uuid.UUID
	amountClient *credential.Client
	weightClient *credential.Client
	amountCreds  []*credential.Credential
	weightCreds  []*credential.Credential
}

func newKeyScript(t *testing.T, taproot bool) (*btcec.PrivateKey,
	*btcec.PrivateKey, []byte) {

	t.Helper()

	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	if taproot {
		outKey := txscript.ComputeTaprootKeyNoScript(key.PubKey())
		pkScript, err := txscript.PayToTaprootScript(outKey)
		require.NoError(t, err)

		return key, txscript.TweakTaprootPrivKey(*key, nil), pkScript
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()),
		&chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return key, key, pkScript
}

// newParticipant creates a participant owning a confirmed output worth
// amount.
func (h *testHarness) newParticipant(amount btcutil.Amount,
	taproot bool) *participant {

	h.t.Helper()

	p := &participant{amount: amount}
	p.internalKey, p.ownershipKey, p.pkScript = newKeyScript(h.t, taproot)

	_, err := rand.Read(p.op.Hash[:])
	require.NoError(h.t, err)

	h.utxos.add(p.op, &Utxo{
		TxOut:         wire.NewTxOut(int64(amount), p.pkScript),
		Confirmations: 6,
	})

	p.amountClient = credential.NewClient(
		h.round.AmountIssuerParameters(),
		credential.DefaultNumberOfCredentials,
		uint64(h.params.MaxRegistrableAmount), rand.Reader,
	)
	p.weightClient = credential.NewClient(
		h.round.WeightIssuerParameters(),
		credential.DefaultNumberOfCredentials,
		uint64(h.params.MaxRegistrableWeight), rand.Reader,
	)

	return p
}

// pendingRegistration is a registration request and what is needed to
// process its response.
type pendingRegistration struct {
	req              *InputsRegistrationRequest
	amountValidation *credential.ResponseValidation
	weightValidation *credential.ResponseValidation
}

func (h *testHarness) registrationRequest(
	p *participant) *pendingRegistration {

	h.t.Helper()

	proof, err := SignOwnership(
		p.ownershipKey, p.pkScript, h.round.Hash, p.op,
	)
	require.NoError(h.t, err)

	zeroAmount, av, err := p.amountClient.CreateRequestForZeroAmount()
	require.NoError(h.t, err)
	zeroWeight, wv, err := p.weightClient.CreateRequestForZeroAmount()
	require.NoError(h.t, err)

	return &pendingRegistration{
		req: &InputsRegistrationRequest{
			RoundID: h.round.ID,
			Inputs: []InputEntry{{
				OutPoint:       p.op,
				OwnershipProof: proof,
			}},
			ZeroAmountCredentialRequests: zeroAmount,
			ZeroWeightCredentialRequests: zeroWeight,
		},
		amountValidation: av,
		weightValidation: wv,
	}
}

func (h *testHarness) handleRegistration(p *participant,
	pending *pendingRegistration, resp *InputsRegistrationResponse) {

	h.t.Helper()

	var err error
	p.aliceID = resp.AliceID
	p.amountCreds, err = p.amountClient.HandleResponse(
		resp.AmountCredentials, pending.amountValidation,
	)
	require.NoError(h.t, err)
	p.weightCreds, err = p.weightClient.HandleResponse(
		resp.WeightCredentials, pending.weightValidation,
	)
	require.NoError(h.t, err)
}

// register registers p as a new Alice.
func (h *testHarness) register(p *participant) error {
	h.t.Helper()

	pending := h.registrationRequest(p)
	resp, err := h.round.RegisterInput(context.Background(), pending.req)
	if err != nil {
		return err
	}
	h.handleRegistration(p, pending, resp)

	return nil
}

// credentialRequests builds a request pair presenting p's credentials and
// asking for the given values.
func (h *testHarness) credentialRequests(p *participant, amount,
	weight uint64) (*credential.RealCredentialsRequest,
	*credential.ResponseValidation, *credential.RealCredentialsRequest,
	*credential.ResponseValidation) {

	h.t.Helper()

	amountReq, av, err := p.amountClient.CreateRequest(
		[]uint64{amount}, p.amountCreds,
	)
	require.NoError(h.t, err)
	weightReq, wv, err := p.weightClient.CreateRequest(
		[]uint64{weight}, p.weightCreds,
	)
	require.NoError(h.t, err)

	return amountReq, av, weightReq, wv
}

func (h *testHarness) handleCredentials(p *participant,
	resp *CredentialsResponses, av, wv *credential.ResponseValidation) {

	h.t.Helper()

	var err error
	p.amountCreds, err = p.amountClient.HandleResponse(
		resp.AmountCredentials, av,
	)
	require.NoError(h.t, err)
	p.weightCreds, err = p.weightClient.HandleResponse(
		resp.WeightCredentials, wv,
	)
	require.NoError(h.t, err)
}

// confirmWith confirms p's connection asking for the given credential
// values.
func (h *testHarness) confirmWith(p *participant, amount,
	weight uint64) error {

	h.t.Helper()

	amountReq, av, weightReq, wv := h.credentialRequests(p, amount, weight)
	resp, err := h.round.ConfirmConnection(
		context.Background(), &ConnectionConfirmationRequest{
			RoundID:                  h.round.ID,
			AliceID:                  p.aliceID,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	if err != nil {
		return err
	}
	h.handleCredentials(p, resp, av, wv)

	return nil
}

// confirm confirms p's connection for her full effective amount and weight
// allowance.
func (h *testHarness) confirm(p *participant) error {
	h.t.Helper()

	weight, err := InputWeight(p.pkScript)
	require.NoError(h.t, err)

	effective := EffectiveAmount(h.params, p.amount, weight)
	allowance := WeightAllowance(h.params, weight)

	return h.confirmWith(p, uint64(effective), uint64(allowance))
}

func credentialSum(creds []*credential.Credential) uint64 {
	var sum uint64
	for _, c := range creds {
		sum += c.Value
	}

	return sum
}

// registerOutput registers an output of amount to pkScript paid for with
// p's credentials.
func (h *testHarness) registerOutput(p *participant, pkScript []byte,
	amount btcutil.Amount) error {

	h.t.Helper()

	weight, err := OutputWeight(pkScript)
	require.NoError(h.t, err)
	cost := uint64(OutputCost(h.params, amount, weight))

	remainingAmount := credentialSum(p.amountCreds) - cost
	remainingWeight := credentialSum(p.weightCreds) - uint64(weight)

	amountReq, av, weightReq, wv := h.credentialRequests(
		p, remainingAmount, remainingWeight,
	)
	resp, err := h.round.RegisterOutput(
		context.Background(), &OutputRegistrationRequest{
			RoundID:                  h.round.ID,
			PkScript:                 pkScript,
			Amount:                   amount,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	if err != nil {
		return err
	}
	h.handleCredentials(p, &resp.CredentialsResponses, av, wv)

	return nil
}

func (h *testHarness) readyToSign(p *participant) error {
	return h.round.ReadyToSign(context.Background(), &ReadyToSignRequest{
		RoundID: h.round.ID,
		AliceID: p.aliceID,
	})
}

// witness signs p's input of the round transaction.
func (h *testHarness) witness(p *participant) wire.TxWitness {
	h.t.Helper()

	tx := h.round.Transaction()
	require.NotNil(h.t, tx)

	prevOuts := h.utxos.prevOuts()
	sigHashes := txscript.NewTxSigHashes(
		tx, txscript.NewMultiPrevOutFetcher(prevOuts),
	)

	idx := -1
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint == p.op {
			idx = i
		}
	}
	require.GreaterOrEqual(h.t, idx, 0)

	var (
		witness wire.TxWitness
		err     error
	)
	if txscript.IsPayToTaproot(p.pkScript) {
		witness, err = txscript.TaprootWitnessSignature(
			tx, sigHashes, idx, int64(p.amount), p.pkScript,
			txscript.SigHashDefault, p.internalKey,
		)
	} else {
		witness, err = txscript.WitnessSignature(
			tx, sigHashes, idx, int64(p.amount), p.pkScript,
			txscript.SigHashAll, p.internalKey, true,
		)
	}
	require.NoError(h.t, err)

	return witness
}

func (h *testHarness) signWith(p *participant, witness wire.TxWitness) error {
	return h.round.SignTransaction(
		context.Background(), &TransactionSignaturesRequest{
			RoundID: h.round.ID,
			AliceID: p.aliceID,
			Witnesses: map[wire.OutPoint]wire.TxWitness{
				p.op: witness,
			},
		},
	)
}

func (h *testHarness) sign(p *participant) error {
	h.t.Helper()

	return h.signWith(p, h.witness(p))
}

// toOutputRegistration registers and confirms every participant and moves
// the round into output registration.
func (h *testHarness) toOutputRegistration(ps ...*participant) {
	h.t.Helper()

	for _, p := range ps {
		require.NoError(h.t, h.register(p))
	}
	require.Equal(h.t, ConnectionConfirmation, h.round.Phase())

	for _, p := range ps {
		require.NoError(h.t, h.confirm(p))
	}
	require.Equal(h.t, OutputRegistration, h.round.Phase())
}

// toSigning moves the round into signing with one output per participant.
func (h *testHarness) toSigning(ps ...*participant) {
	h.t.Helper()

	h.toOutputRegistration(ps...)
	for _, p := range ps {
		_, _, pkScript := newKeyScript(h.t, false)
		require.NoError(h.t, h.registerOutput(p, pkScript, 50_000))
	}
	for _, p := range ps {
		require.NoError(h.t, h.readyToSign(p))
	}
	require.Equal(h.t, TransactionSigning, h.round.Phase())
}
