// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prison

import (
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultNoteDuration is how long an outpoint stays noted after its
	// owner failed to confirm a connection.
	DefaultNoteDuration = 10 * time.Minute

	// DefaultBanDuration is how long an outpoint stays banned after its
	// owner failed to sign.
	DefaultBanDuration = 24 * time.Hour
)

// Punishment is the kind of sanction applied to an outpoint.
type Punishment uint8

const (
	// Noted marks an outpoint whose owner timed out during connection
	// confirmation. Notes are scoped to the round that issued them and
	// are released if that round aborts.
	Noted Punishment = iota + 1

	// Banned marks an outpoint whose owner failed to sign a round's
	// transaction. Bans outlive the round and are persisted.
	Banned
)

// String returns the punishment as a human readable string.
func (p Punishment) String() string {
	switch p {
	case Noted:
		return "noted"
	case Banned:
		return "banned"
	default:
		return fmt.Sprintf("Punishment(%d)", uint8(p))
	}
}

// Inmate is a punished outpoint.
type Inmate struct {
	OutPoint   wire.OutPoint
	Punishment Punishment
	Since      time.Time
	RoundID    chainhash.Hash
}

// Config holds the durations, the clock and the optional store of a Prison.
type Config struct {
	// NoteDuration is how long a note lasts.
	NoteDuration time.Duration

	// BanDuration is how long a ban lasts.
	BanDuration time.Duration

	// Clock is used to stamp and expire punishments.
	Clock clock.Clock

	// Store persists bans. Notes are kept in memory only. A nil store
	// keeps everything in memory.
	Store Store
}

// DefaultConfig returns a memory only configuration with default durations.
func DefaultConfig() *Config {
	return &Config{
		NoteDuration: DefaultNoteDuration,
		BanDuration:  DefaultBanDuration,
		Clock:        clock.NewDefaultClock(),
	}
}

// Prison tracks punished outpoints across rounds. It is safe for concurrent
// use.
type Prison struct {
	cfg *Config

	mu      sync.RWMutex
	inmates map[wire.OutPoint]*Inmate
}

// New creates a prison, loading persisted bans that have not yet expired.
func New(cfg *Config) (*Prison, error) {
	p := &Prison{
		cfg:     cfg,
		inmates: make(map[wire.OutPoint]*Inmate),
	}

	if cfg.Store == nil {
		return p, nil
	}

	stored, err := cfg.Store.FetchInmates()
	if err != nil {
		return nil, fmt.Errorf("unable to load inmates: %w", err)
	}

	var expired int
	for _, inmate := range stored {
		if p.expired(inmate) {
			if err := cfg.Store.DeleteInmate(inmate.OutPoint); err != nil {
				return nil, err
			}
			expired++

			continue
		}
		p.inmates[inmate.OutPoint] = inmate
	}

	log.Infof("Loaded %d banned outpoints (%d expired)",
		len(p.inmates), expired)

	return p, nil
}

func (p *Prison) duration(punishment Punishment) time.Duration {
	if punishment == Banned {
		return p.cfg.BanDuration
	}

	return p.cfg.NoteDuration
}

func (p *Prison) expired(inmate *Inmate) bool {
	until := inmate.Since.Add(p.duration(inmate.Punishment))
	return !p.cfg.Clock.Now().Before(until)
}

// Note marks outpoints whose owner timed out in the given round. Existing
// bans are not downgraded.
func (p *Prison) Note(roundID chainhash.Hash, ops ...wire.OutPoint) {
	now := p.cfg.Clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, op := range ops {
		if cur, ok := p.inmates[op]; ok && cur.Punishment == Banned &&
			!p.expired(cur) {

			continue
		}

		p.inmates[op] = &Inmate{
			OutPoint:   op,
			Punishment: Noted,
			Since:      now,
			RoundID:    roundID,
		}
		log.Debugf("Noted %v for round %v", op, roundID)
	}
}

// Ban marks outpoints whose owner failed to sign in the given round and
// persists them.
func (p *Prison) Ban(roundID chainhash.Hash, ops ...wire.OutPoint) error {
	now := p.cfg.Clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, op := range ops {
		inmate := &Inmate{
			OutPoint:   op,
			Punishment: Banned,
			Since:      now,
			RoundID:    roundID,
		}
		if p.cfg.Store != nil {
			if err := p.cfg.Store.PutInmate(inmate); err != nil {
				return fmt.Errorf("unable to persist ban of %v: %w",
					op, err)
			}
		}
		p.inmates[op] = inmate

		log.Infof("Banned %v for failing to sign round %v", op, roundID)
	}

	return nil
}

// Get returns the current punishment of op, if it has not expired.
func (p *Prison) Get(op wire.OutPoint) (*Inmate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inmate, ok := p.inmates[op]
	if !ok || p.expired(inmate) {
		return nil, false
	}

	cp := *inmate
	return &cp, true
}

// IsPunished reports whether op is currently noted or banned.
func (p *Prison) IsPunished(op wire.OutPoint) bool {
	_, ok := p.Get(op)
	return ok
}

// ReleaseRound releases every note issued by the given round. Bans are kept.
func (p *Prison) ReleaseRound(roundID chainhash.Hash) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var released int
	for op, inmate := range p.inmates {
		if inmate.Punishment == Noted && inmate.RoundID == roundID {
			delete(p.inmates, op)
			released++
		}
	}

	if released > 0 {
		log.Debugf("Released %d notes of round %v", released, roundID)
	}

	return released
}

// Release removes any punishment of op.
func (p *Prison) Release(op wire.OutPoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	inmate, ok := p.inmates[op]
	if !ok {
		return nil
	}
	if inmate.Punishment == Banned && p.cfg.Store != nil {
		if err := p.cfg.Store.DeleteInmate(op); err != nil {
			return err
		}
	}
	delete(p.inmates, op)

	return nil
}

// ReleaseExpired drops every punishment that has run out and returns how
// many were dropped.
func (p *Prison) ReleaseExpired() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var released int
	for op, inmate := range p.inmates {
		if !p.expired(inmate) {
			continue
		}
		if inmate.Punishment == Banned && p.cfg.Store != nil {
			if err := p.cfg.Store.DeleteInmate(op); err != nil {
				return released, err
			}
		}
		delete(p.inmates, op)
		released++
	}

	return released, nil
}

// Counts returns the number of active notes and bans.
func (p *Prison) Counts() (notes, bans int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, inmate := range p.inmates {
		if p.expired(inmate) {
			continue
		}
		switch inmate.Punishment {
		case Noted:
			notes++
		case Banned:
			bans++
		}
	}

	return notes, bans
}
