// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
)

// roundHashTag domain separates round hashes.
var roundHashTag = []byte("coinjoind/round")

// Config holds the dependencies of a round.
type Config struct {
	// Params bound what the round accepts.
	Params *Parameters

	// Net is the network the round's transaction is built for.
	Net *chaincfg.Params

	// AmountKey and WeightKey are the issuer keys. Fresh keys are drawn
	// from Rand when nil.
	AmountKey *credential.SecretKey
	WeightKey *credential.SecretKey

	// Rand is the randomness source for the round id, issuer keys and
	// MACs. Defaults to crypto/rand.
	Rand io.Reader

	// Utxos resolves registered inputs.
	Utxos UtxoProvider

	// Broadcaster receives the signed transaction.
	Broadcaster Broadcaster

	// Verifier checks witnesses. Defaults to ScriptEngineVerifier.
	Verifier WitnessVerifier

	// Prison records noted and banned inputs.
	Prison *prison.Prison

	// Clock drives phase deadlines.
	Clock clock.Clock

	// Updates receives a PhaseUpdate on every phase change. Sends give up
	// once Quit is closed. Nil disables updates.
	Updates chan<- PhaseUpdate
	Quit    <-chan struct{}
}

// Round is one coinjoin attempt. All exported methods are safe for
// concurrent use; one mutex serializes every mutation.
type Round struct {
	// ID is a random identifier for the round.
	ID chainhash.Hash

	// Hash commits to the round's id, network, parameters and issuer
	// parameters. Ownership proofs sign it.
	Hash chainhash.Hash

	cfg          *Config
	params       *Parameters
	amountIssuer *credential.Issuer
	weightIssuer *credential.Issuer
	created      time.Time

	// wake nudges Run to recompute its deadline.
	wake chan struct{}

	// done is closed when the round ends.
	done chan struct{}

	mu          sync.Mutex
	phase       Phase
	endState    EndRoundState
	abortReason error
	deadline    time.Time
	ended       time.Time
	alices      map[uuid.UUID]*Alice
	inputs      map[wire.OutPoint]uuid.UUID
	bobs        []*Bob
	tx          *wire.MsgTx
	prevOuts    map[wire.OutPoint]*wire.TxOut
}

// New creates a round in input registration.
func New(cfg *Config) (*Round, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Utxos == nil || cfg.Prison == nil || cfg.Clock == nil ||
		cfg.Net == nil {

		return nil, errors.New("round config missing utxo provider, " +
			"prison, clock or network")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.Verifier == nil {
		cfg.Verifier = &ScriptEngineVerifier{}
	}

	var id chainhash.Hash
	if _, err := io.ReadFull(cfg.Rand, id[:]); err != nil {
		return nil, fmt.Errorf("unable to generate round id: %w", err)
	}

	amountKey, err := issuerKey(cfg.AmountKey, cfg.Rand)
	if err != nil {
		return nil, err
	}
	weightKey, err := issuerKey(cfg.WeightKey, cfg.Rand)
	if err != nil {
		return nil, err
	}

	p := cfg.Params
	now := cfg.Clock.Now()
	r := &Round{
		ID:     id,
		cfg:    cfg,
		params: p,
		amountIssuer: credential.NewIssuer(
			amountKey, credential.DefaultNumberOfCredentials,
			uint64(p.MaxRegistrableAmount), cfg.Rand,
		),
		weightIssuer: credential.NewIssuer(
			weightKey, credential.DefaultNumberOfCredentials,
			uint64(p.MaxRegistrableWeight), cfg.Rand,
		),
		created:  now,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		phase:    InputRegistration,
		deadline: now.Add(p.InputRegistrationTimeout),
		alices:   make(map[uuid.UUID]*Alice),
		inputs:   make(map[wire.OutPoint]uuid.UUID),
	}
	r.Hash = r.computeHash()

	log.Infof("Created round %v", r.ID)

	return r, nil
}

func issuerKey(key *credential.SecretKey,
	rand io.Reader) (*credential.SecretKey, error) {

	if key != nil {
		return key, nil
	}

	return credential.NewSecretKey(rand)
}

// computeHash commits to everything a participant must agree on before
// signing an ownership proof.
func (r *Round) computeHash() chainhash.Hash {
	var (
		p   = r.params
		buf = make([]byte, 0, 256)
		u64 = func(v uint64) {
			buf = binary.BigEndian.AppendUint64(buf, v)
		}
	)

	buf = append(buf, r.ID[:]...)
	buf = append(buf, r.cfg.Net.Name...)
	u64(uint64(p.MinRegistrableAmount))
	u64(uint64(p.MaxRegistrableAmount))
	u64(uint64(p.MinRegistrableWeight))
	u64(uint64(p.MaxRegistrableWeight))
	u64(uint64(p.MaxInputCountPerAlice))
	u64(uint64(p.MinInputCount))
	u64(uint64(p.MaxInputCount))
	u64(uint64(p.FeeRate))
	u64(uint64(p.MinRelayFee))

	for _, ip := range []*credential.IssuerParameters{
		r.amountIssuer.Parameters(), r.weightIssuer.Parameters(),
	} {
		cw, i := ip.Cw.Bytes(), ip.I.Bytes()
		buf = append(buf, cw[:]...)
		buf = append(buf, i[:]...)
	}

	return *chainhash.TaggedHash(roundHashTag, buf)
}

// Parameters returns the round parameters.
func (r *Round) Parameters() *Parameters {
	return r.params
}

// AmountIssuerParameters returns the public parameters of the amount
// credential issuer.
func (r *Round) AmountIssuerParameters() *credential.IssuerParameters {
	return r.amountIssuer.Parameters()
}

// WeightIssuerParameters returns the public parameters of the weight
// credential issuer.
func (r *Round) WeightIssuerParameters() *credential.IssuerParameters {
	return r.weightIssuer.Parameters()
}

// Created returns when the round was created.
func (r *Round) Created() time.Time {
	return r.created
}

// Done returns a channel closed once the round has ended.
func (r *Round) Done() <-chan struct{} {
	return r.done
}

// Phase returns the current phase.
func (r *Round) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.phase
}

// EndState returns the outcome of the round, NotEnded until it ends.
func (r *Round) EndState() EndRoundState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.endState
}

// AbortReason returns why the round aborted, if it did.
func (r *Round) AbortReason() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.abortReason
}

// Deadline returns when the current phase times out.
func (r *Round) Deadline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deadline
}

// NumAlices returns the number of registered Alices.
func (r *Round) NumAlices() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.alices)
}

// NumBobs returns the number of registered Bobs.
func (r *Round) NumBobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.bobs)
}

// Alice returns a copy of the Alice with the given id.
func (r *Round) Alice(id uuid.UUID) (*Alice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alices[id]
	if !ok {
		return nil, false
	}

	cp := *a
	cp.Coins = make(map[wire.OutPoint]*Coin, len(a.Coins))
	for op, c := range a.Coins {
		coin := *c
		cp.Coins[op] = &coin
	}

	return &cp, true
}

// Run drives the round's deadlines until it ends. Cancelling ctx aborts the
// round.
func (r *Round) Run(ctx context.Context) {
	for {
		r.mu.Lock()
		phase, deadline := r.phase, r.deadline
		r.mu.Unlock()

		if phase == Ended {
			return
		}

		wait := deadline.Sub(r.cfg.Clock.Now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-r.cfg.Clock.TickAfter(wait):
			r.onDeadline(phase)

		case <-r.wake:

		case <-ctx.Done():
			r.Abort(roundError(ErrRoundCancelled,
				"round cancelled", ctx.Err()))
			return
		}
	}
}

// Abort ends the round unless it already ended.
func (r *Round) Abort(reason error) {
	r.mu.Lock()
	if r.phase == Ended {
		r.mu.Unlock()
		return
	}
	update := r.abortLocked(reason, true)
	r.mu.Unlock()

	r.notify(update)
}

// onDeadline applies the timeout policy of the phase that expired. It is a
// no-op if the round moved on in the meantime.
func (r *Round) onDeadline(expired Phase) {
	r.mu.Lock()
	if r.phase != expired || r.cfg.Clock.Now().Before(r.deadline) {
		r.mu.Unlock()
		return
	}

	var updates []PhaseUpdate
	switch r.phase {
	case InputRegistration:
		if len(r.alices) == 0 {
			updates = append(updates, r.abortLocked(roundError(
				ErrPhaseDeadlineExceeded,
				"no inputs registered", nil,
			), true))
			break
		}
		updates = append(updates, r.setPhaseLocked(ConnectionConfirmation))

	case ConnectionConfirmation:
		r.dropUnconfirmedLocked()

		if len(r.alices) < r.params.MinInputCount {
			updates = append(updates, r.abortLocked(roundError(
				ErrQuorumNotReached,
				fmt.Sprintf("%d confirmed alices, need %d",
					len(r.alices), r.params.MinInputCount),
				nil,
			), true))
			break
		}
		updates = append(updates, r.setPhaseLocked(OutputRegistration))

	case OutputRegistration:
		if len(r.bobs) == 0 {
			updates = append(updates, r.abortLocked(roundError(
				ErrPhaseDeadlineExceeded,
				"no outputs registered", nil,
			), true))
			break
		}
		updates = append(updates, r.enterSigningLocked())

	case TransactionSigning:
		updates = append(updates, r.banNonSignersLocked()...)
	}
	r.mu.Unlock()

	r.notify(updates...)
}

// maybeAdvanceLocked applies the early transitions driven by participant
// actions.
func (r *Round) maybeAdvanceLocked() []PhaseUpdate {
	switch r.phase {
	case InputRegistration:
		if len(r.alices) >= r.params.MinInputCount {
			return []PhaseUpdate{
				r.setPhaseLocked(ConnectionConfirmation),
			}
		}

	case ConnectionConfirmation:
		for _, a := range r.alices {
			if !a.ConfirmedConnection {
				return nil
			}
		}
		return []PhaseUpdate{r.setPhaseLocked(OutputRegistration)}

	case OutputRegistration:
		if len(r.bobs) == 0 {
			return nil
		}
		for _, a := range r.alices {
			if !a.ReadyToSign {
				return nil
			}
		}
		return []PhaseUpdate{r.enterSigningLocked()}
	}

	return nil
}

func (r *Round) setPhaseLocked(phase Phase) PhaseUpdate {
	r.phase = phase
	r.deadline = r.cfg.Clock.Now().Add(r.params.timeout(phase))

	log.Infof("Round %v entered %v with %d alices and %d bobs", r.ID,
		phase, len(r.alices), len(r.bobs))

	r.poke()

	return PhaseUpdate{
		RoundID:  r.ID,
		Phase:    phase,
		Deadline: r.deadline,
	}
}

func (r *Round) endLocked(state EndRoundState, reason error) PhaseUpdate {
	r.phase = Ended
	r.endState = state
	r.abortReason = reason
	r.deadline = time.Time{}
	r.ended = r.cfg.Clock.Now()
	close(r.done)

	r.poke()

	return PhaseUpdate{
		RoundID:  r.ID,
		Phase:    Ended,
		EndState: state,
		Reason:   reason,
	}
}

// abortLocked ends the round as aborted and discards Alices that never
// confirmed. If releaseNotes is set the notes the round issued are released.
// Bans always stay.
func (r *Round) abortLocked(reason error, releaseNotes bool) PhaseUpdate {
	for id, a := range r.alices {
		if !a.ConfirmedConnection {
			r.removeAliceLocked(id)
		}
	}
	if releaseNotes {
		r.cfg.Prison.ReleaseRound(r.ID)
	}

	log.Infof("Round %v aborted in %v: %v", r.ID, r.phase, reason)

	return r.endLocked(Aborted, reason)
}

// dropUnconfirmedLocked removes Alices that did not confirm their connection
// in time and notes their inputs.
func (r *Round) dropUnconfirmedLocked() {
	var noted []wire.OutPoint
	for id, a := range r.alices {
		if a.ConfirmedConnection {
			continue
		}
		for op := range a.Coins {
			noted = append(noted, op)
		}
		r.removeAliceLocked(id)
	}

	if len(noted) > 0 {
		r.cfg.Prison.Note(r.ID, noted...)
		log.Infof("Round %v dropped %d unconfirmed inputs", r.ID,
			len(noted))
	}
}

// banNonSignersLocked bans every input of Alices that did not sign and
// aborts the round.
func (r *Round) banNonSignersLocked() []PhaseUpdate {
	var banned []wire.OutPoint
	for _, a := range r.alices {
		if a.Signed() {
			continue
		}
		for op := range a.Coins {
			banned = append(banned, op)
		}
	}

	reason := roundError(ErrPhaseDeadlineExceeded,
		fmt.Sprintf("%d inputs not signed", len(banned)), nil)
	if err := r.cfg.Prison.Ban(r.ID, banned...); err != nil {
		log.Errorf("Round %v unable to ban non-signers: %v", r.ID, err)
	}

	return []PhaseUpdate{r.abortLocked(reason, true)}
}

func (r *Round) removeAliceLocked(id uuid.UUID) {
	a, ok := r.alices[id]
	if !ok {
		return
	}
	for op := range a.Coins {
		delete(r.inputs, op)
	}
	delete(r.alices, id)
}

// poke wakes Run without blocking.
func (r *Round) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// notify delivers updates outside of the round lock.
func (r *Round) notify(updates ...PhaseUpdate) {
	if r.cfg.Updates == nil {
		return
	}

	for _, u := range updates {
		select {
		case r.cfg.Updates <- u:
		case <-r.cfg.Quit:
			return
		}
	}
}
