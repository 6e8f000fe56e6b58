// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestRoundSuccess runs a round with a P2WPKH and a P2TR input through every
// phase and checks the signed transaction.
func TestRoundSuccess(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	carol := h.newParticipant(300_000, true)

	h.toSigning(alice, carol)

	tx := h.round.Transaction()
	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 2)

	packet, err := h.round.UnsignedPSBT()
	require.NoError(t, err)
	for i, in := range packet.UnsignedTx.TxIn {
		prevOut := h.utxos.prevOuts()[in.PreviousOutPoint]
		require.Equal(t, prevOut, packet.Inputs[i].WitnessUtxo)
	}

	var totalOut int64
	for _, out := range tx.TxOut {
		totalOut += out.Value
	}
	require.Less(t, totalOut, int64(alice.amount+carol.amount))

	require.NoError(t, h.sign(alice))
	require.Equal(t, TransactionSigning, h.round.Phase())

	err = h.sign(alice)
	require.True(t, IsError(err, ErrAlreadySigned), err)

	require.NoError(t, h.sign(carol))
	require.Equal(t, Ended, h.round.Phase())
	require.Equal(t, Succeeded, h.round.EndState())
	require.Nil(t, h.round.AbortReason())

	select {
	case <-h.round.Done():
	default:
		t.Fatalf("done channel not closed")
	}

	signed := h.round.Transaction()
	for _, in := range signed.TxIn {
		require.NotEmpty(t, in.Witness)
	}
	h.bcast.AssertNumberOfCalls(t, "PublishTransaction", 1)

	require.Equal(t, []Phase{
		ConnectionConfirmation, OutputRegistration,
		TransactionSigning, Ended,
	}, h.drainUpdates())

	summary := h.round.Summary()
	require.Equal(t, Succeeded, summary.EndState)
	require.Equal(t, 2, summary.NumAlices)
	require.Equal(t, 2, summary.NumInputs)
	require.Equal(t, 2, summary.NumBobs)
	require.Equal(t, alice.amount+carol.amount, summary.TotalInput)
	require.Equal(t, signed.TxHash(), summary.TxID)
	require.Empty(t, summary.Reason)
}

// TestSignTransactionRejectsBadWitness checks a witness that does not
// satisfy the script is refused and can be retried.
func TestSignTransactionRejectsBadWitness(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)
	h.toSigning(alice, bob)

	err := h.signWith(alice, h.witness(bob))
	require.True(t, IsError(err, ErrWrongWitness), err)

	err = h.round.SignTransaction(
		context.Background(), &TransactionSignaturesRequest{
			RoundID: h.round.ID,
			AliceID: alice.aliceID,
			Witnesses: map[wire.OutPoint]wire.TxWitness{
				bob.op: h.witness(bob),
			},
		},
	)
	require.True(t, IsError(err, ErrWrongWitness), err)

	require.NoError(t, h.sign(alice))
	require.Equal(t, TransactionSigning, h.round.Phase())
}

// TestSignTransactionAllOrNothing checks that a request with one bad
// witness records none of the Alice's witnesses.
func TestSignTransactionAllOrNothing(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, acceptAllVerifier{}, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)

	// Give alice a second input locked to the same script.
	var extra wire.OutPoint
	_, err := rand.Read(extra.Hash[:])
	require.NoError(t, err)
	h.utxos.add(extra, &Utxo{
		TxOut:         wire.NewTxOut(int64(alice.amount), alice.pkScript),
		Confirmations: 6,
	})
	extraProof, err := SignOwnership(
		alice.ownershipKey, alice.pkScript, h.round.Hash, extra,
	)
	require.NoError(t, err)

	pending := h.registrationRequest(alice)
	pending.req.Inputs = append(pending.req.Inputs, InputEntry{
		OutPoint:       extra,
		OwnershipProof: extraProof,
	})
	resp, err := h.round.RegisterInput(context.Background(), pending.req)
	require.NoError(t, err)
	h.handleRegistration(alice, pending, resp)
	require.NoError(t, h.register(bob))

	a, ok := h.round.Alice(alice.aliceID)
	require.True(t, ok)
	require.Len(t, a.Coins, 2)
	require.NoError(t, h.confirmWith(alice,
		uint64(EffectiveAmount(h.params, a.TotalAmount(), a.TotalWeight())),
		uint64(WeightAllowance(h.params, a.TotalWeight())),
	))
	require.NoError(t, h.confirm(bob))

	for _, p := range []*participant{alice, bob} {
		_, _, pkScript := newKeyScript(t, false)
		require.NoError(t, h.registerOutput(p, pkScript, 50_000))
		require.NoError(t, h.readyToSign(p))
	}
	require.Equal(t, TransactionSigning, h.round.Phase())

	sign := func(witnesses map[wire.OutPoint]wire.TxWitness) error {
		return h.round.SignTransaction(
			context.Background(), &TransactionSignaturesRequest{
				RoundID:   h.round.ID,
				AliceID:   alice.aliceID,
				Witnesses: witnesses,
			},
		)
	}
	assertUnsigned := func() {
		a, ok := h.round.Alice(alice.aliceID)
		require.True(t, ok)
		for op, c := range a.Coins {
			require.Nil(t, c.Witness, op)
		}
		for _, in := range h.round.Transaction().TxIn {
			require.Empty(t, in.Witness)
		}
	}

	// One witness fails verification.
	err = sign(map[wire.OutPoint]wire.TxWitness{
		alice.op: {{0x01}},
		extra:    {},
	})
	require.True(t, IsError(err, ErrWrongWitness), err)
	assertUnsigned()

	// One outpoint belongs to someone else.
	err = sign(map[wire.OutPoint]wire.TxWitness{
		alice.op: {{0x01}},
		bob.op:   {{0x01}},
	})
	require.True(t, IsError(err, ErrWrongWitness), err)
	assertUnsigned()

	require.NoError(t, sign(map[wire.OutPoint]wire.TxWitness{
		alice.op: {{0x01}},
		extra:    {{0x02}},
	}))
	a, ok = h.round.Alice(alice.aliceID)
	require.True(t, ok)
	require.True(t, a.Signed())
	require.Equal(t, TransactionSigning, h.round.Phase())
}

// TestRoundNoInputsAborts checks an empty round aborts at the input
// registration deadline.
func TestRoundNoInputsAborts(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	h.run()
	h.expirePhase()

	u := h.expectUpdate(Ended)
	require.Equal(t, Aborted, u.EndState)
	require.True(t, IsError(u.Reason, ErrPhaseDeadlineExceeded), u.Reason)
	require.Equal(t, Aborted, h.round.EndState())
}

// TestRoundInputRegistrationTimeout checks a round with fewer Alices than
// the minimum still moves on when input registration times out.
func TestRoundInputRegistrationTimeout(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, func(p *Parameters) {
		p.MinInputCount = 3
	})
	alice := h.newParticipant(200_000, false)
	require.NoError(t, h.register(alice))
	require.Equal(t, InputRegistration, h.round.Phase())

	h.run()
	h.expirePhase()

	u := h.expectUpdate(ConnectionConfirmation)
	require.Equal(t,
		h.clock.Now().Add(h.params.ConnectionConfirmationTimeout),
		u.Deadline,
	)
}

// TestRoundCancel checks cancelling the loop aborts the round.
func TestRoundCancel(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	cancel := h.run()
	cancel()

	u := h.expectUpdate(Ended)
	require.Equal(t, Aborted, u.EndState)
	require.True(t, IsError(u.Reason, ErrRoundCancelled), u.Reason)

	err := h.register(h.newParticipant(200_000, false))
	require.True(t, IsError(err, ErrWrongPhase), err)
}

// TestConnectionConfirmationTimeout checks Alices that do not confirm are
// noted and the round aborts below quorum, releasing the notes.
func TestConnectionConfirmationTimeout(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, func(p *Parameters) {
		p.MinInputCount = 3
	})
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, true)
	require.NoError(t, h.register(alice))
	require.NoError(t, h.register(bob))

	h.run()
	h.expirePhase()
	h.expectUpdate(ConnectionConfirmation)

	require.NoError(t, h.confirm(alice))
	require.Equal(t, ConnectionConfirmation, h.round.Phase())

	h.expirePhase()
	u := h.expectUpdate(Ended)
	require.Equal(t, Aborted, u.EndState)
	require.True(t, IsError(u.Reason, ErrQuorumNotReached), u.Reason)

	// Bob was dropped and noted, but the abort released the note.
	require.False(t, h.prison.IsPunished(bob.op))
	require.False(t, h.prison.IsPunished(alice.op))
	require.Equal(t, 1, h.round.NumAlices())
}

// TestOutputRegistrationTimeout checks a round without outputs aborts and
// one with outputs moves to signing when output registration times out.
func TestOutputRegistrationTimeout(t *testing.T) {
	t.Parallel()

	t.Run("no outputs", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, nil, nil)
		h.toOutputRegistration(
			h.newParticipant(200_000, false),
			h.newParticipant(200_000, false),
		)

		h.run()
		h.expirePhase()

		u := h.expectUpdate(Ended)
		require.Equal(t, Aborted, u.EndState)
		require.True(t,
			IsError(u.Reason, ErrPhaseDeadlineExceeded), u.Reason,
		)
	})

	t.Run("not all ready", func(t *testing.T) {
		t.Parallel()

		h := newTestHarness(t, nil, nil)
		alice := h.newParticipant(200_000, false)
		bob := h.newParticipant(200_000, false)
		h.toOutputRegistration(alice, bob)

		_, _, pkScript := newKeyScript(t, true)
		require.NoError(t, h.registerOutput(alice, pkScript, 60_000))
		require.NoError(t, h.readyToSign(alice))
		require.Equal(t, OutputRegistration, h.round.Phase())

		h.run()
		h.expirePhase()

		h.expectUpdate(TransactionSigning)
		tx := h.round.Transaction()
		require.Len(t, tx.TxIn, 2)
		require.Len(t, tx.TxOut, 1)
	})
}

// TestSigningTimeoutBans checks inputs left unsigned are banned and signed
// ones are not.
func TestSigningTimeoutBans(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, acceptAllVerifier{}, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)
	h.toSigning(alice, bob)

	require.NoError(t, h.signWith(alice, wire.TxWitness{{0x01}}))

	h.run()
	h.expirePhase()

	u := h.expectUpdate(Ended)
	require.Equal(t, Aborted, u.EndState)

	inmate, ok := h.prison.Get(bob.op)
	require.True(t, ok)
	require.Equal(t, prison.Banned, inmate.Punishment)
	require.False(t, h.prison.IsPunished(alice.op))
	h.bcast.AssertNotCalled(t, "PublishTransaction")
}

// TestAbortReleasesNotes checks aborting releases the round's notes but not
// its bans.
func TestAbortReleasesNotes(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)

	var noted, banned wire.OutPoint
	noted.Index, banned.Index = 1, 2
	h.prison.Note(h.round.ID, noted)
	require.NoError(t, h.prison.Ban(h.round.ID, banned))

	h.round.Abort(roundError(ErrRoundCancelled, "test", nil))
	h.round.Abort(roundError(ErrBackend, "ignored", nil))

	require.False(t, h.prison.IsPunished(noted))
	require.True(t, h.prison.IsPunished(banned))
	require.True(t, IsError(h.round.AbortReason(), ErrRoundCancelled))
	require.Equal(t, []Phase{Ended}, h.drainUpdates())
}

// TestRegisterInputErrors checks each input registration rejection.
func TestRegisterInputErrors(t *testing.T) {
	t.Parallel()

	otherKey, err := credential.NewSecretKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name   string
		amount btcutil.Amount
		modify func(*testHarness, *participant, *InputsRegistrationRequest)
		code   ErrorCode
	}{{
		name:   "unknown input",
		amount: 200_000,
		modify: func(_ *testHarness, _ *participant,
			req *InputsRegistrationRequest) {

			req.Inputs[0].OutPoint.Index = 7
		},
		code: ErrInputSpent,
	}, {
		name:   "unconfirmed input",
		amount: 200_000,
		modify: func(h *testHarness, p *participant,
			_ *InputsRegistrationRequest) {

			h.utxos.add(p.op, &Utxo{
				TxOut: wire.NewTxOut(
					int64(p.amount), p.pkScript,
				),
			})
		},
		code: ErrInputUnconfirmed,
	}, {
		name:   "banned input",
		amount: 200_000,
		modify: func(h *testHarness, p *participant,
			_ *InputsRegistrationRequest) {

			require.NoError(t, h.prison.Ban(uuidHash(), p.op))
		},
		code: ErrInputBanned,
	}, {
		name:   "noted input",
		amount: 200_000,
		modify: func(h *testHarness, p *participant,
			_ *InputsRegistrationRequest) {

			h.prison.Note(uuidHash(), p.op)
		},
		code: ErrInputBanned,
	}, {
		name:   "wrong ownership proof",
		amount: 200_000,
		modify: func(h *testHarness, p *participant,
			req *InputsRegistrationRequest) {

			var otherRound [32]byte
			proof, err := SignOwnership(
				p.ownershipKey, p.pkScript, otherRound, p.op,
			)
			require.NoError(t, err)
			req.Inputs[0].OwnershipProof = proof
		},
		code: ErrInvalidProof,
	}, {
		name:   "unsupported script",
		amount: 200_000,
		modify: func(h *testHarness, p *participant,
			_ *InputsRegistrationRequest) {

			addr, err := btcutil.NewAddressPubKeyHash(
				make([]byte, 20), &chaincfg.RegressionNetParams,
			)
			require.NoError(t, err)
			pkScript, err := txscript.PayToAddrScript(addr)
			require.NoError(t, err)
			h.utxos.add(p.op, &Utxo{
				TxOut: wire.NewTxOut(
					int64(p.amount), pkScript,
				),
				Confirmations: 1,
			})
		},
		code: ErrScriptNotAllowed,
	}, {
		name:   "amount below minimum",
		amount: 9_999,
		code:   ErrNotEnoughFunds,
	}, {
		name:   "amount above maximum",
		amount: btcutil.SatoshiPerBitcoin + 1,
		code:   ErrTooMuchFunds,
	}, {
		name:   "too many inputs",
		amount: 200_000,
		modify: func(_ *testHarness, _ *participant,
			req *InputsRegistrationRequest) {

			for i := uint32(1); i <= 2; i++ {
				in := req.Inputs[0]
				in.OutPoint.Index = i
				req.Inputs = append(req.Inputs, in)
			}
		},
		code: ErrTooManyInputs,
	}, {
		name:   "duplicate input",
		amount: 200_000,
		modify: func(_ *testHarness, _ *participant,
			req *InputsRegistrationRequest) {

			req.Inputs = append(req.Inputs, req.Inputs[0])
		},
		code: ErrAliceAlreadyRegistered,
	}, {
		name:   "zero credentials for another issuer",
		amount: 200_000,
		modify: func(h *testHarness, _ *participant,
			req *InputsRegistrationRequest) {

			client := credential.NewClient(
				otherKey.Parameters(),
				credential.DefaultNumberOfCredentials,
				uint64(h.params.MaxRegistrableAmount),
				rand.Reader,
			)
			zero, _, err := client.CreateRequestForZeroAmount()
			require.NoError(t, err)
			req.ZeroAmountCredentialRequests = zero
		},
		code: ErrRangeProofInvalid,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			h := newTestHarness(t, nil, nil)
			p := h.newParticipant(test.amount, false)
			pending := h.registrationRequest(p)
			if test.modify != nil {
				test.modify(h, p, pending.req)
			}

			_, err := h.round.RegisterInput(
				context.Background(), pending.req,
			)
			require.True(t, IsError(err, test.code),
				"want %v, got %v", test.code, err)
			require.Zero(t, h.round.NumAlices())
		})
	}
}

func uuidHash() [32]byte {
	var h [32]byte
	id := uuid.New()
	copy(h[:], id[:])

	return h
}

// TestRegisterInputOncePerOutpoint checks an outpoint can only be registered
// by the first request naming it.
func TestRegisterInputOncePerOutpoint(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		h := newTestHarness(t, nil, func(p *Parameters) {
			p.MinInputCount = 10
		})
		ps := []*participant{
			h.newParticipant(100_000, false),
			h.newParticipant(200_000, true),
			h.newParticipant(300_000, false),
		}

		order := rapid.SliceOfN(
			rapid.IntRange(0, len(ps)-1), 1, 6,
		).Draw(rt, "order")

		registered := make(map[int]bool)
		for _, i := range order {
			err := h.register(ps[i])
			if registered[i] {
				if !IsError(err, ErrAliceAlreadyRegistered) {
					rt.Fatalf("reregistration of %d: %v",
						i, err)
				}
				continue
			}
			if err != nil {
				rt.Fatalf("registration of %d: %v", i, err)
			}
			registered[i] = true
		}

		if h.round.NumAlices() != len(registered) {
			rt.Fatalf("%d alices, want %d", h.round.NumAlices(),
				len(registered))
		}
	})
}

// TestConcurrentRegistration checks only one of many concurrent
// registrations of the same input succeeds.
func TestConcurrentRegistration(t *testing.T) {
	t.Parallel()

	const numRequests = 5

	h := newTestHarness(t, nil, nil)
	p := h.newParticipant(200_000, false)

	pending := make([]*pendingRegistration, numRequests)
	for i := range pending {
		pending[i] = h.registrationRequest(p)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, numRequests)
	)
	for i, reg := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, errs[i] = h.round.RegisterInput(
				context.Background(), reg.req,
			)
		}()
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.True(t, IsError(err, ErrAliceAlreadyRegistered), err)
	}

	require.Equal(t, 1, successes)
	require.Equal(t, 1, h.round.NumAlices())
}

// TestConfirmConnectionErrors checks the connection confirmation
// rejections.
func TestConfirmConnectionErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)

	require.NoError(t, h.register(alice))
	err := h.confirm(alice)
	require.True(t, IsError(err, ErrWrongPhase), err)

	require.NoError(t, h.register(bob))
	require.Equal(t, ConnectionConfirmation, h.round.Phase())

	weight, err := InputWeight(alice.pkScript)
	require.NoError(t, err)
	effective := EffectiveAmount(h.params, alice.amount, weight)
	allowance := WeightAllowance(h.params, weight)

	err = h.confirmWith(alice, uint64(effective)+1, uint64(allowance))
	require.True(t, IsError(err, ErrAmountMismatch), err)

	err = h.confirmWith(alice, uint64(effective), uint64(allowance)-1)
	require.True(t, IsError(err, ErrAmountMismatch), err)

	stranger := *alice
	stranger.aliceID = uuid.New()
	err = h.confirm(&stranger)
	require.True(t, IsError(err, ErrAliceNotFound), err)

	require.NoError(t, h.confirm(alice))
	a, ok := h.round.Alice(alice.aliceID)
	require.True(t, ok)
	require.True(t, a.ConfirmedConnection)

	err = h.confirm(alice)
	require.True(t, IsError(err, ErrAliceAlreadyRegistered), err)
	require.Equal(t, ConnectionConfirmation, h.round.Phase())

	require.NoError(t, h.confirm(bob))
	require.Equal(t, OutputRegistration, h.round.Phase())
}

// TestConfirmConnectionWeightFailureKeepsAmount checks that a rejected
// weight request does not spend the amount credentials presented alongside
// it.
func TestConfirmConnectionWeightFailureKeepsAmount(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)
	require.NoError(t, h.register(alice))
	require.NoError(t, h.register(bob))

	weight, err := InputWeight(alice.pkScript)
	require.NoError(t, err)
	effective := uint64(EffectiveAmount(h.params, alice.amount, weight))
	allowance := uint64(WeightAllowance(h.params, weight))

	amountReq, _, weightReq, _ := h.credentialRequests(
		alice, effective, allowance,
	)
	var one credential.Scalar
	one.SetInt(1)
	weightReq.RangeProofs[0].Responses[0].Add(&one)

	_, err = h.round.ConfirmConnection(
		context.Background(), &ConnectionConfirmationRequest{
			RoundID:                  h.round.ID,
			AliceID:                  alice.aliceID,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	require.True(t, IsError(err, ErrRangeProofInvalid), err)

	a, ok := h.round.Alice(alice.aliceID)
	require.True(t, ok)
	require.False(t, a.ConfirmedConnection)

	// The same amount credentials are still good for a retry.
	require.NoError(t, h.confirm(alice))
	require.NoError(t, h.confirm(bob))
	require.Equal(t, OutputRegistration, h.round.Phase())

	// Output registration shares the issuance path.
	_, _, pkScript := newKeyScript(t, true)
	outWeight, err := OutputWeight(pkScript)
	require.NoError(t, err)
	cost := uint64(OutputCost(h.params, 50_000, outWeight))

	amountReq, _, weightReq, _ = h.credentialRequests(
		alice, credentialSum(alice.amountCreds)-cost,
		credentialSum(alice.weightCreds)-uint64(outWeight),
	)
	weightReq.RangeProofs[1].Responses[0].Add(&one)

	_, err = h.round.RegisterOutput(
		context.Background(), &OutputRegistrationRequest{
			RoundID:                  h.round.ID,
			PkScript:                 pkScript,
			Amount:                   50_000,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	require.True(t, IsError(err, ErrRangeProofInvalid), err)
	require.Zero(t, h.round.NumBobs())

	require.NoError(t, h.registerOutput(alice, pkScript, 50_000))
	require.Equal(t, 1, h.round.NumBobs())
}

// TestRegisterOutputErrors checks the output registration rejections.
func TestRegisterOutputErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)
	h.toOutputRegistration(alice, bob)

	_, _, pkScript := newKeyScript(t, false)

	err := h.registerOutput(alice, pkScript, 100)
	require.True(t, IsError(err, ErrDustOutput), err)

	_, err = h.round.RegisterOutput(
		context.Background(), &OutputRegistrationRequest{
			RoundID:  h.round.ID,
			PkScript: []byte{txscript.OP_TRUE},
			Amount:   50_000,
		},
	)
	require.True(t, IsError(err, ErrScriptNotAllowed), err)

	_, err = h.round.RegisterOutput(
		context.Background(), &OutputRegistrationRequest{
			RoundID:  h.round.ID,
			PkScript: pkScript,
			Amount:   50_000,
		},
	)
	require.True(t, IsError(err, ErrInvalidCredentialRequest), err)

	// Asking to keep everything pays for nothing.
	amountReq, _, weightReq, _ := h.credentialRequests(
		alice, credentialSum(alice.amountCreds),
		credentialSum(alice.weightCreds),
	)
	_, err = h.round.RegisterOutput(
		context.Background(), &OutputRegistrationRequest{
			RoundID:                  h.round.ID,
			PkScript:                 pkScript,
			Amount:                   50_000,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	require.True(t, IsError(err, ErrAmountMismatch), err)

	spent := alice.amountCreds
	spentWeight := alice.weightCreds
	require.NoError(t, h.registerOutput(alice, pkScript, 50_000))
	require.Equal(t, 1, h.round.NumBobs())

	alice.amountCreds, alice.weightCreds = spent, spentWeight
	err = h.registerOutput(alice, pkScript, 50_000)
	require.True(t, IsError(err, ErrSerialNumberReused), err)
	require.Equal(t, 1, h.round.NumBobs())
}

// TestReissueCredentials checks credentials can be split and the originals
// are spent afterwards.
func TestReissueCredentials(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)
	h.toOutputRegistration(alice, bob)

	amountTotal := credentialSum(alice.amountCreds)
	weightTotal := credentialSum(alice.weightCreds)

	amountReq, av, err := alice.amountClient.CreateRequest(
		[]uint64{amountTotal / 2, amountTotal - amountTotal/2},
		alice.amountCreds,
	)
	require.NoError(t, err)
	weightReq, wv, err := alice.weightClient.CreateRequest(
		[]uint64{weightTotal}, alice.weightCreds,
	)
	require.NoError(t, err)

	req := &ReissuanceRequest{
		RoundID:                  h.round.ID,
		AmountCredentialRequests: amountReq,
		WeightCredentialRequests: weightReq,
	}
	resp, err := h.round.ReissueCredentials(context.Background(), req)
	require.NoError(t, err)

	spent := alice.amountCreds
	h.handleCredentials(alice, resp, av, wv)
	require.Len(t, alice.amountCreds, 2)
	require.Equal(t, amountTotal, credentialSum(alice.amountCreds))

	_, err = h.round.ReissueCredentials(context.Background(), req)
	require.True(t, IsError(err, ErrSerialNumberReused), err)

	amountReq, _, err = alice.amountClient.CreateRequest(
		[]uint64{amountTotal + 1}, spent,
	)
	require.NoError(t, err)
	_, err = h.round.ReissueCredentials(
		context.Background(), &ReissuanceRequest{
			RoundID:                  h.round.ID,
			AmountCredentialRequests: amountReq,
			WeightCredentialRequests: weightReq,
		},
	)
	require.True(t, IsError(err, ErrAmountMismatch), err)

	// The split credentials still pay for an output.
	_, _, pkScript := newKeyScript(t, false)
	require.NoError(t, h.registerOutput(alice, pkScript, 50_000))
}

// TestReadyToSignErrors checks ready to sign is only accepted from known
// Alices in output registration.
func TestReadyToSignErrors(t *testing.T) {
	t.Parallel()

	h := newTestHarness(t, nil, nil)
	alice := h.newParticipant(200_000, false)
	bob := h.newParticipant(200_000, false)

	require.NoError(t, h.register(alice))
	err := h.readyToSign(alice)
	require.True(t, IsError(err, ErrWrongPhase), err)

	require.NoError(t, h.register(bob))
	require.NoError(t, h.confirm(alice))
	require.NoError(t, h.confirm(bob))

	stranger := *alice
	stranger.aliceID = uuid.New()
	err = h.readyToSign(&stranger)
	require.True(t, IsError(err, ErrAliceNotFound), err)

	// Everyone ready but no outputs yet keeps the phase open.
	require.NoError(t, h.readyToSign(alice))
	require.NoError(t, h.readyToSign(bob))
	require.Equal(t, OutputRegistration, h.round.Phase())

	_, _, pkScript := newKeyScript(t, false)
	require.NoError(t, h.registerOutput(bob, pkScript, 50_000))
	require.Equal(t, TransactionSigning, h.round.Phase())
}

// TestNewRoundValidation checks New refuses bad configuration.
func TestNewRoundValidation(t *testing.T) {
	t.Parallel()

	params := testParameters()
	params.MinInputCount = 0
	_, err := New(&Config{Params: params})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = New(&Config{Params: testParameters()})
	require.Error(t, err)
}

// TestRoundHashBindsIssuers checks rounds with different issuer keys have
// different hashes.
func TestRoundHashBindsIssuers(t *testing.T) {
	t.Parallel()

	a := newTestHarness(t, nil, nil)
	b := newTestHarness(t, nil, nil)
	require.NotEqual(t, a.round.Hash, b.round.Hash)

	// An ownership proof for one round does not register in another.
	p := a.newParticipant(200_000, false)
	pending := a.registrationRequest(p)
	b.utxos.add(p.op, &Utxo{
		TxOut:         wire.NewTxOut(int64(p.amount), p.pkScript),
		Confirmations: 1,
	})
	_, err := b.round.RegisterInput(context.Background(), pending.req)
	require.True(t, IsError(err, ErrInvalidProof), err)
}
