// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Pocket is a set of coins that are spent together without telling an
// observer anything new: coins of one cluster, or coins that are private or
// semi-private already.
type Pocket struct {
	Labels Label
	Coins  []*SmartCoin

	// NumberOfCombinedPockets counts the pockets merged into this one.
	NumberOfCombinedPockets int
}

func newPocket(labels Label, coins []*SmartCoin) *Pocket {
	return &Pocket{
		Labels:                  labels,
		Coins:                   coins,
		NumberOfCombinedPockets: 1,
	}
}

// Amount returns the sum of the pocket's coins.
func (p *Pocket) Amount() btcutil.Amount {
	return sumCoins(p.Coins)
}

// ConfirmedCoins returns the pocket's mined coins.
func (p *Pocket) ConfirmedCoins() []*SmartCoin {
	var confirmed []*SmartCoin
	for _, c := range p.Coins {
		if c.Confirmed() {
			confirmed = append(confirmed, c)
		}
	}

	return confirmed
}

// IsPrivate reports whether every coin reached the anonymity score target.
func (p *Pocket) IsPrivate(target int) bool {
	if len(p.Coins) == 0 {
		return false
	}
	for _, c := range p.Coins {
		if !c.IsPrivate(target) {
			return false
		}
	}

	return true
}

// IsSemiPrivate reports whether every coin is semi-private.
func (p *Pocket) IsSemiPrivate(target, threshold int) bool {
	if len(p.Coins) == 0 {
		return false
	}
	for _, c := range p.Coins {
		if !c.IsSemiPrivate(target, threshold) {
			return false
		}
	}

	return true
}

// IsUnknown reports whether nobody is known to be aware of the pocket.
func (p *Pocket) IsUnknown() bool {
	return p.Labels.IsEmpty()
}

// distinctScripts returns the number of different output scripts in the
// pocket.
func (p *Pocket) distinctScripts() int {
	scripts := make(map[string]struct{}, len(p.Coins))
	for _, c := range p.Coins {
		scripts[string(c.PkScript)] = struct{}{}
	}

	return len(scripts)
}

// MergePockets unions the coins and labels of the given pockets.
func MergePockets(pockets ...*Pocket) *Pocket {
	var (
		labels = make([]Label, 0, len(pockets))
		coins  []*SmartCoin
		seen   = make(map[wire.OutPoint]struct{})
		merged int
	)
	for _, p := range pockets {
		labels = append(labels, p.Labels)
		merged += p.NumberOfCombinedPockets
		for _, c := range p.Coins {
			if _, ok := seen[c.OutPoint]; ok {
				continue
			}
			seen[c.OutPoint] = struct{}{}
			coins = append(coins, c)
		}
	}

	return &Pocket{
		Labels:                  MergeLabels(labels...),
		Coins:                   coins,
		NumberOfCombinedPockets: merged,
	}
}

// ToPockets groups coins into pockets. Private coins form one pocket,
// semi-private coins another; every other coin goes to the pocket of its
// cluster's label set, unlabelled coins to the unknown pocket. Pockets come
// out in order of first appearance.
func ToPockets(coins []*SmartCoin, anonScoreTarget,
	semiPrivateThreshold int) []*Pocket {

	var (
		private, semiPrivate []*SmartCoin
		byLabel              = make(map[string]*Pocket)
		labelled             []*Pocket
	)
	for _, c := range coins {
		switch {
		case c.IsPrivate(anonScoreTarget):
			private = append(private, c)

		case c.IsSemiPrivate(anonScoreTarget, semiPrivateThreshold):
			semiPrivate = append(semiPrivate, c)

		default:
			key := c.Cluster.key()
			p, ok := byLabel[key]
			if !ok {
				p = newPocket(c.Cluster, nil)
				byLabel[key] = p
				labelled = append(labelled, p)
			}
			p.Coins = append(p.Coins, c)
		}
	}

	var pockets []*Pocket
	if len(private) > 0 {
		pockets = append(pockets, newPocket(Label{}, private))
	}
	if len(semiPrivate) > 0 {
		pockets = append(pockets, newPocket(Label{}, semiPrivate))
	}

	return append(pockets, labelled...)
}
