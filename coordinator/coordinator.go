// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/coinjoind/credential"
	"github.com/btcsuite/coinjoind/prison"
	"github.com/btcsuite/coinjoind/round"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultCadence is how often the coordinator checks its round
	// population.
	DefaultCadence = 10 * time.Second

	// DefaultRoundRetention is how long an ended round stays queryable
	// before it is archived and forgotten.
	DefaultRoundRetention = 10 * time.Minute

	// updateBacklog is the capacity of the channel rounds report phase
	// changes on.
	updateBacklog = 100
)

// ErrAlreadyStarted is returned by Start when called twice.
var ErrAlreadyStarted = errors.New("coordinator already started")

// Config holds the dependencies of a Coordinator.
type Config struct {
	// Params are the parameters of every new round.
	Params *round.Parameters

	// Net is the network the rounds build transactions for.
	Net *chaincfg.Params

	// Utxos resolves registered inputs.
	Utxos round.UtxoProvider

	// Broadcaster receives the signed transactions.
	Broadcaster round.Broadcaster

	// Verifier checks witnesses. Rounds use the script engine when nil.
	Verifier round.WitnessVerifier

	// Prison tracks noted and banned inputs across rounds.
	Prison *prison.Prison

	// Store archives ended rounds. Nothing is archived when nil.
	Store RoundStore

	// Clock drives round deadlines.
	Clock clock.Clock

	// Ticker sets the cadence of the round population check. Defaults to
	// a ticker firing every DefaultCadence.
	Ticker ticker.Ticker

	// IssuerSeed, when set, derives the issuer keys of every round from
	// the seed and the round's sequence number. Fresh random keys are
	// used otherwise.
	IssuerSeed []byte

	// Rand is the randomness source of the rounds. Defaults to
	// crypto/rand.
	Rand io.Reader

	// MinOpenRounds is the number of rounds kept in input registration.
	MinOpenRounds int

	// RoundRetention is how long ended rounds stay in memory.
	RoundRetention time.Duration

	// Registerer receives the coordinator's metrics when set.
	Registerer prometheus.Registerer
}

// Coordinator owns the population of rounds. It creates rounds on a cadence,
// runs each of them in its own goroutine, fans their phase updates out to
// subscribers and archives them once they ended.
type Coordinator struct {
	cfg     *Config
	metrics *metrics

	started    atomic.Bool
	stopOnce   sync.Once
	tickerOnce sync.Once
	seq      atomic.Uint64

	gm      *fn.GoroutineManager
	updates chan round.PhaseUpdate
	quit    chan struct{}
	wg      sync.WaitGroup

	mu         sync.RWMutex
	rounds     map[chainhash.Hash]*round.Round
	clients    map[uint64]*Client
	nextClient uint64
}

// New creates a coordinator. Call Start to begin creating rounds.
func New(cfg *Config) (*Coordinator, error) {
	if cfg.Params == nil {
		cfg.Params = round.DefaultParameters()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Net == nil || cfg.Utxos == nil || cfg.Prison == nil {
		return nil, errors.New("coordinator config missing network, " +
			"utxo provider or prison")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.Ticker == nil {
		cfg.Ticker = ticker.New(DefaultCadence)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.MinOpenRounds <= 0 {
		cfg.MinOpenRounds = 1
	}
	if cfg.RoundRetention <= 0 {
		cfg.RoundRetention = DefaultRoundRetention
	}

	c := &Coordinator{
		cfg:     cfg,
		gm:      fn.NewGoroutineManager(),
		updates: make(chan round.PhaseUpdate, updateBacklog),
		quit:    make(chan struct{}),
		rounds:  make(map[chainhash.Hash]*round.Round),
		clients: make(map[uint64]*Client),
	}

	m, err := newMetrics(cfg.Registerer, c.activeRounds)
	if err != nil {
		return nil, err
	}
	c.metrics = m

	return c, nil
}

// Start creates the first rounds and launches the population loop. The
// rounds and the loop live until ctx is cancelled or Stop is called.
// Cancellation at any point is not an error.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.startDispatcher()

	// A Stop racing with Start shows up as ErrShuttingDown rather than a
	// cancelled context.
	if err := c.populate(ctx); err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrShuttingDown) {
			log.Infof("Coordinator start cancelled: %v", err)
			return nil
		}
		return err
	}

	if !c.gm.Go(ctx, c.populationLoop) {
		log.Infof("Coordinator start cancelled")
		c.stopTicker()
		return nil
	}

	log.Infof("Coordinator started")

	return nil
}

// Stop aborts every active round, waits for all goroutines to exit and
// archives the ended rounds. It is safe to call more than once and
// concurrently with cancellation of Start's context. Archiving is skipped
// when ctx is done.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		log.Infof("Coordinator shutting down")

		// Rounds still send their final updates while the goroutine
		// manager waits on them, so the dispatcher outlives it.
		c.gm.Stop()
		c.stopTicker()

		c.mu.Lock()
		close(c.quit)
		c.mu.Unlock()
		c.wg.Wait()

		c.archive(ctx, func(*round.Round) bool { return true })

		c.mu.Lock()
		for id, client := range c.clients {
			client.close()
			delete(c.clients, id)
		}
		c.mu.Unlock()

		log.Infof("Coordinator stopped")
	})

	return nil
}

// populationLoop tops up the open rounds and retires ended ones on every
// tick.
func (c *Coordinator) populationLoop(ctx context.Context) {
	c.cfg.Ticker.Resume()
	defer c.stopTicker()

	for {
		select {
		case <-c.cfg.Ticker.Ticks():
			if err := c.populate(ctx); err != nil {
				if ctx.Err() != nil ||
					errors.Is(err, ErrShuttingDown) {

					return
				}
				log.Errorf("Unable to create round: %v", err)
			}

			c.archive(ctx, c.expired)

			if _, err := c.cfg.Prison.ReleaseExpired(); err != nil {
				log.Errorf("Unable to release expired "+
					"inmates: %v", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

// stopTicker releases the ticker. Both Stop and the exit of the population
// loop call it.
func (c *Coordinator) stopTicker() {
	c.tickerOnce.Do(c.cfg.Ticker.Stop)
}

// populate creates rounds until MinOpenRounds are in input registration.
func (c *Coordinator) populate(ctx context.Context) error {
	for len(c.OpenRounds()) < c.cfg.MinOpenRounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.createRound(ctx); err != nil {
			return err
		}
	}

	return nil
}

// createRound creates a round and runs it until ctx is cancelled.
func (c *Coordinator) createRound(ctx context.Context) (*round.Round, error) {
	params := *c.cfg.Params
	cfg := &round.Config{
		Params:      &params,
		Net:         c.cfg.Net,
		Rand:        c.cfg.Rand,
		Utxos:       c.cfg.Utxos,
		Broadcaster: c.cfg.Broadcaster,
		Verifier:    c.cfg.Verifier,
		Prison:      c.cfg.Prison,
		Clock:       c.cfg.Clock,
		Updates:     c.updates,
		Quit:        c.quit,
	}

	seq := c.seq.Add(1)
	if len(c.cfg.IssuerSeed) > 0 {
		var err error
		cfg.AmountKey, err = c.deriveKey("amount", seq)
		if err != nil {
			return nil, err
		}
		cfg.WeightKey, err = c.deriveKey("weight", seq)
		if err != nil {
			return nil, err
		}
	}

	r, err := round.New(cfg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rounds[r.ID] = r
	c.mu.Unlock()

	if !c.gm.Go(ctx, r.Run) {
		c.mu.Lock()
		delete(c.rounds, r.ID)
		c.mu.Unlock()

		r.Abort(ErrShuttingDown)
		return nil, ErrShuttingDown
	}

	c.metrics.roundsCreated.Inc()
	c.send(round.PhaseUpdate{
		RoundID:  r.ID,
		Phase:    r.Phase(),
		Deadline: r.Deadline(),
	})

	return r, nil
}

// deriveKey derives the issuer key of kind for the round with sequence
// number seq.
func (c *Coordinator) deriveKey(kind string, seq uint64) (*credential.SecretKey,
	error) {

	info := make([]byte, 0, len(kind)+16)
	info = append(info, "coinjoind/"...)
	info = append(info, kind...)
	info = binary.BigEndian.AppendUint64(info, seq)

	key, err := credential.DeriveSecretKey(c.cfg.IssuerSeed, info)
	if err != nil {
		return nil, fmt.Errorf("unable to derive %s issuer key: %w",
			kind, err)
	}

	return key, nil
}

// expired reports whether r ended longer than the retention period ago.
func (c *Coordinator) expired(r *round.Round) bool {
	s := r.Summary()
	return !s.Ended.IsZero() &&
		c.cfg.Clock.Now().Sub(s.Ended) >= c.cfg.RoundRetention
}

// archive stores and forgets the ended rounds matching filter. Nothing is
// forgotten when ctx is done so the rounds can still be archived later.
func (c *Coordinator) archive(ctx context.Context,
	filter func(*round.Round) bool) {

	c.mu.RLock()
	var ended []*round.Round
	for _, r := range c.rounds {
		if r.Phase() == round.Ended && filter(r) {
			ended = append(ended, r)
		}
	}
	c.mu.RUnlock()

	if len(ended) == 0 {
		return
	}
	if err := ctx.Err(); err != nil {
		log.Warnf("Skipping archive of %d rounds: %v", len(ended), err)
		return
	}

	for _, r := range ended {
		if c.cfg.Store != nil {
			if err := c.cfg.Store.PutSummary(r.Summary()); err != nil {
				log.Errorf("Unable to archive round %v: %v",
					r.ID, err)
				continue
			}
		}

		c.mu.Lock()
		delete(c.rounds, r.ID)
		c.mu.Unlock()

		log.Debugf("Archived round %v", r.ID)
	}
}

// Round returns the round with the given id.
func (c *Coordinator) Round(id chainhash.Hash) (*round.Round, error) {
	c.mu.RLock()
	r, ok := c.rounds[id]
	c.mu.RUnlock()

	if !ok {
		return nil, &round.Error{
			Code:        round.ErrRoundNotFound,
			Description: fmt.Sprintf("round %v not found", id),
		}
	}

	return r, nil
}

// Rounds returns every known round, oldest first.
func (c *Coordinator) Rounds() []*round.Round {
	c.mu.RLock()
	rounds := make([]*round.Round, 0, len(c.rounds))
	for _, r := range c.rounds {
		rounds = append(rounds, r)
	}
	c.mu.RUnlock()

	sort.Slice(rounds, func(i, j int) bool {
		if !rounds[i].Created().Equal(rounds[j].Created()) {
			return rounds[i].Created().Before(rounds[j].Created())
		}
		return rounds[i].ID.String() < rounds[j].ID.String()
	})

	return rounds
}

// OpenRounds returns the rounds accepting input registrations.
func (c *Coordinator) OpenRounds() []*round.Round {
	var open []*round.Round
	for _, r := range c.Rounds() {
		if r.Phase() == round.InputRegistration {
			open = append(open, r)
		}
	}

	return open
}

// activeRounds counts the rounds that have not ended.
func (c *Coordinator) activeRounds() float64 {
	var active int
	for _, r := range c.Rounds() {
		if r.Phase() != round.Ended {
			active++
		}
	}

	return float64(active)
}

// Archive returns the summaries of archived rounds.
func (c *Coordinator) Archive() ([]*round.Summary, error) {
	if c.cfg.Store == nil {
		return nil, nil
	}

	return c.cfg.Store.FetchSummaries()
}

// observe counts participant errors by code.
func (c *Coordinator) observe(err error) error {
	var rerr *round.Error
	if errors.As(err, &rerr) {
		c.metrics.participantErrors.WithLabelValues(
			rerr.Code.String(),
		).Inc()
	}

	return err
}

// RegisterInput forwards an input registration to its round.
func (c *Coordinator) RegisterInput(ctx context.Context,
	req *round.InputsRegistrationRequest) (*round.InputsRegistrationResponse,
	error) {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return nil, c.observe(err)
	}

	resp, err := r.RegisterInput(ctx, req)
	if err != nil {
		return nil, c.observe(err)
	}
	c.metrics.inputsRegistered.Add(float64(len(req.Inputs)))

	return resp, nil
}

// ConfirmConnection forwards a connection confirmation to its round.
func (c *Coordinator) ConfirmConnection(ctx context.Context,
	req *round.ConnectionConfirmationRequest) (*round.CredentialsResponses,
	error) {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return nil, c.observe(err)
	}

	resp, err := r.ConfirmConnection(ctx, req)
	return resp, c.observe(err)
}

// RegisterOutput forwards an output registration to its round.
func (c *Coordinator) RegisterOutput(ctx context.Context,
	req *round.OutputRegistrationRequest) (*round.OutputRegistrationResponse,
	error) {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return nil, c.observe(err)
	}

	resp, err := r.RegisterOutput(ctx, req)
	if err != nil {
		return nil, c.observe(err)
	}
	c.metrics.outputsRegistered.Inc()

	return resp, nil
}

// ReissueCredentials forwards a credential reissuance to its round.
func (c *Coordinator) ReissueCredentials(ctx context.Context,
	req *round.ReissuanceRequest) (*round.CredentialsResponses, error) {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return nil, c.observe(err)
	}

	resp, err := r.ReissueCredentials(ctx, req)
	return resp, c.observe(err)
}

// ReadyToSign forwards a ready to sign notice to its round.
func (c *Coordinator) ReadyToSign(ctx context.Context,
	req *round.ReadyToSignRequest) error {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return c.observe(err)
	}

	return c.observe(r.ReadyToSign(ctx, req))
}

// SignTransaction forwards an Alice's witnesses to her round.
func (c *Coordinator) SignTransaction(ctx context.Context,
	req *round.TransactionSignaturesRequest) error {

	r, err := c.Round(req.RoundID)
	if err != nil {
		return c.observe(err)
	}

	return c.observe(r.SignTransaction(ctx, req))
}
