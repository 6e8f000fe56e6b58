// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/clock"
)

const (
	// DefaultAnonScoreTarget is the anonymity score from which a coin is
	// private.
	DefaultAnonScoreTarget = 5

	// DefaultMaxCombinationSize bounds how many pockets one combination
	// merges.
	DefaultMaxCombinationSize = 6

	// DefaultMaxEnumeratedPockets bounds how many of the best ranked
	// pockets take part in combinations. The rest are only reachable
	// through the all pockets fallback.
	DefaultMaxEnumeratedPockets = 12

	// DefaultMaxIterations is how often a Selector may be asked before it
	// gives up.
	DefaultMaxIterations = 500
)

// Config tunes a Selector.
type Config struct {
	// AnonScoreTarget is the anonymity score from which a coin is private.
	AnonScoreTarget int

	// SemiPrivateThreshold is the anonymity score from which a coin is
	// semi-private.
	SemiPrivateThreshold int

	// MaxCombinationSize bounds the number of pockets in a combination.
	MaxCombinationSize int

	// MaxEnumeratedPockets bounds the number of pockets combined.
	MaxEnumeratedPockets int

	// MaxIterations bounds how often Select may be called.
	MaxIterations int

	// Clock is used to skip banned coins.
	Clock clock.Clock
}

// DefaultConfig returns the default selector configuration.
func DefaultConfig() *Config {
	return &Config{
		AnonScoreTarget:      DefaultAnonScoreTarget,
		SemiPrivateThreshold: DefaultSemiPrivateThreshold,
		MaxCombinationSize:   DefaultMaxCombinationSize,
		MaxEnumeratedPockets: DefaultMaxEnumeratedPockets,
		MaxIterations:        DefaultMaxIterations,
		Clock:                clock.NewDefaultClock(),
	}
}

// Selector picks the coins for one payment, preferring coins whose spending
// reveals the least. A Selector serves a single transaction attempt and is
// not safe for concurrent use.
type Selector struct {
	cfg       *Config
	coins     []*SmartCoin
	recipient Label

	iterations  int
	lastSizeErr error
}

// New creates a selector over the spendable coins among coins for a payment
// to recipient. Duplicate outpoints, coins in a coinjoin and banned coins are
// left out.
func New(coins []*SmartCoin, recipient Label, cfg *Config) *Selector {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	var (
		now       = cfg.Clock.Now()
		seen      = make(map[wire.OutPoint]struct{}, len(coins))
		spendable = make([]*SmartCoin, 0, len(coins))
	)
	for _, c := range coins {
		if _, ok := seen[c.OutPoint]; ok {
			continue
		}
		seen[c.OutPoint] = struct{}{}

		if c.CoinJoinInProgress || c.IsBanned(now) {
			continue
		}
		spendable = append(spendable, c)
	}

	return &Selector{
		cfg:       cfg,
		coins:     spendable,
		recipient: recipient,
	}
}

// Available returns the total amount of the spendable coins.
func (s *Selector) Available() btcutil.Amount {
	return sumCoins(s.coins)
}

// Select returns the coins to spend for target. suggested is the previous
// answer of this selector; when it no longer covers the target the failure
// is remembered and returned once the iteration budget runs out.
func (s *Selector) Select(suggested []*SmartCoin,
	target btcutil.Amount) ([]*SmartCoin, error) {

	available := s.Available()
	if available < target {
		return nil, &InsufficientBalanceError{
			Target:    target,
			Available: available,
		}
	}

	if s.iterations > s.cfg.MaxIterations {
		if s.lastSizeErr != nil {
			return nil, s.lastSizeErr
		}
		return nil, ErrSelectionTimeout
	}

	// The first call has nothing to compare against.
	if s.iterations > 0 {
		if total := sumCoins(suggested); total < target {
			s.lastSizeErr = &TransactionSizeError{
				Target:    target,
				Suggested: total,
			}
		}
	}

	ranked := s.rankPockets(ToPockets(
		s.coins, s.cfg.AnonScoreTarget, s.cfg.SemiPrivateThreshold,
	))
	ranked = s.removeUnnecessaryUnconfirmed(ranked, target)
	best := s.bestCombination(ranked, target)
	selected := selectByScript(best.Coins, target)

	s.iterations++

	log.Debugf("Selected %d coins worth %v for target %v from %d pockets",
		len(selected), sumCoins(selected), target, len(ranked))

	return selected, nil
}

// Score returns the privacy score of spending p to the selector's
// recipient. Lower is better.
func (s *Selector) Score(p *Pocket) float64 {
	switch {
	case !s.recipient.IsEmpty() && s.recipient.Equal(p.Labels):
		return 1

	case p.IsPrivate(s.cfg.AnonScoreTarget):
		return 2

	case p.IsSemiPrivate(s.cfg.AnonScoreTarget,
		s.cfg.SemiPrivateThreshold):

		return 3

	case p.IsUnknown():
		return 7
	}

	var known int
	for _, name := range p.Labels.names {
		if s.recipient.Contains(name) {
			known++
		}
	}
	if known > 0 {
		index := float64(known)/float64(p.Labels.Len()) +
			float64(known)/float64(s.recipient.Len())
		return 4 + (2 - index)
	}

	return 7 - 1/float64(p.Labels.Len())
}

// rankedPocket is a pocket with its score.
type rankedPocket struct {
	pocket *Pocket
	score  float64
	amount btcutil.Amount
}

func (s *Selector) rank(p *Pocket) rankedPocket {
	return rankedPocket{pocket: p, score: s.Score(p), amount: p.Amount()}
}

// rankPockets orders pockets by score, then amount.
func (s *Selector) rankPockets(pockets []*Pocket) []rankedPocket {
	ranked := make([]rankedPocket, len(pockets))
	for i, p := range pockets {
		ranked[i] = s.rank(p)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].amount < ranked[j].amount
	})

	return ranked
}

// removeUnnecessaryUnconfirmed drops the unconfirmed coins of a pocket
// whenever the other pockets together with its confirmed coins still cover
// the target. Pockets are visited from the worst ranked up and each drop is
// accounted for before the next pocket is looked at.
func (s *Selector) removeUnnecessaryUnconfirmed(ranked []rankedPocket,
	target btcutil.Amount) []rankedPocket {

	var total btcutil.Amount
	for _, rp := range ranked {
		total += rp.amount
	}

	for i := len(ranked) - 1; i >= 0; i-- {
		p := ranked[i].pocket
		confirmed := p.ConfirmedCoins()
		if len(confirmed) == len(p.Coins) {
			continue
		}

		others := total - ranked[i].amount
		if others+sumCoins(confirmed) < target {
			continue
		}

		trimmed := &Pocket{
			Labels:                  p.Labels,
			Coins:                   confirmed,
			NumberOfCombinedPockets: p.NumberOfCombinedPockets,
		}
		total = others + sumCoins(confirmed)
		ranked[i] = s.rank(trimmed)
	}

	filtered := ranked[:0]
	for _, rp := range ranked {
		if len(rp.pocket.Coins) > 0 {
			filtered = append(filtered, rp)
		}
	}

	return filtered
}

// combination is a candidate set of pockets.
type combination struct {
	pocket  *Pocket
	score   float64
	amount  btcutil.Amount
	scripts int
}

// better orders combinations by score, amount, coin count and number of
// distinct scripts.
func (c *combination) better(o *combination) bool {
	switch {
	case c.score != o.score:
		return c.score < o.score
	case c.amount != o.amount:
		return c.amount < o.amount
	case len(c.pocket.Coins) != len(o.pocket.Coins):
		return len(c.pocket.Coins) < len(o.pocket.Coins)
	default:
		return c.scripts < o.scripts
	}
}

func newCombination(members []rankedPocket) *combination {
	pockets := make([]*Pocket, len(members))
	var score float64
	for i, m := range members {
		pockets[i] = m.pocket
		score += m.score
	}
	merged := MergePockets(pockets...)

	return &combination{
		pocket:  merged,
		score:   score,
		amount:  merged.Amount(),
		scripts: merged.distinctScripts(),
	}
}

// bestCombination returns the best merge of up to MaxCombinationSize
// pockets among the first MaxEnumeratedPockets ranked pockets that covers
// the target. Merging every pocket is always a candidate.
func (s *Selector) bestCombination(ranked []rankedPocket,
	target btcutil.Amount) *Pocket {

	var best *combination
	consider := func(c *combination) {
		if c.amount < target {
			return
		}
		if best == nil || c.better(best) {
			best = c
		}
	}

	n := len(ranked)
	if n > s.cfg.MaxEnumeratedPockets {
		n = s.cfg.MaxEnumeratedPockets
	}

	members := make([]rankedPocket, 0, s.cfg.MaxCombinationSize)
	for k := 1; k <= s.cfg.MaxCombinationSize && k <= n; k++ {
		forEachCombination(n, k, func(idx []int) {
			var amount btcutil.Amount
			members = members[:0]
			for _, i := range idx {
				members = append(members, ranked[i])
				amount += ranked[i].amount
			}
			if amount < target {
				return
			}
			consider(newCombination(members))
		})
	}

	consider(newCombination(ranked))

	return best.pocket
}

// forEachCombination calls f with every k element subset of [0, n) in
// lexicographic order. f must not keep idx.
func forEachCombination(n, k int, f func(idx []int)) {
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		f(idx)

		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

// scriptGroup is the coins of a pocket paying to one script.
type scriptGroup struct {
	coins  []*SmartCoin
	amount btcutil.Amount
}

// selectByScript groups coins by script, largest group first, and returns
// the cheapest of every single group and every prefix of the groups that
// covers the target, preferring fewer coins on equal amounts. Scripts are
// never spent partially.
func selectByScript(coins []*SmartCoin, target btcutil.Amount) []*SmartCoin {
	var (
		groups   []*scriptGroup
		byScript = make(map[string]*scriptGroup)
	)
	for _, c := range coins {
		g, ok := byScript[string(c.PkScript)]
		if !ok {
			g = &scriptGroup{}
			byScript[string(c.PkScript)] = g
			groups = append(groups, g)
		}
		g.coins = append(g.coins, c)
		g.amount += c.Amount
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].amount > groups[j].amount
	})

	var (
		best       []*SmartCoin
		bestAmount btcutil.Amount
	)
	consider := func(candidate []*SmartCoin, amount btcutil.Amount) {
		switch {
		case amount < target:
			return
		case best == nil, amount < bestAmount,
			amount == bestAmount && len(candidate) < len(best):

			best, bestAmount = candidate, amount
		}
	}

	for _, g := range groups {
		consider(g.coins, g.amount)
	}

	var (
		prefix       []*SmartCoin
		prefixAmount btcutil.Amount
	)
	for _, g := range groups {
		prefix = append(prefix[:len(prefix):len(prefix)], g.coins...)
		prefixAmount += g.amount
		consider(prefix, prefixAmount)
	}

	return append([]*SmartCoin(nil), best...)
}
