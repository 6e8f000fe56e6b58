// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wtxmgr"
)

// DefaultSemiPrivateThreshold is the anonymity score from which a coin that
// is not yet private counts as semi-private.
const DefaultSemiPrivateThreshold = 2

// Label is a set of names of the entities that know about a coin. Names
// compare case insensitively; the zero value is the empty label.
type Label struct {
	names []string
}

// NewLabel creates a label from the given names, dropping blanks and
// duplicates.
func NewLabel(names ...string) Label {
	seen := make(map[string]struct{}, len(names))
	l := Label{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		l.names = append(l.names, name)
	}
	sort.Slice(l.names, func(i, j int) bool {
		return strings.ToLower(l.names[i]) < strings.ToLower(l.names[j])
	})

	return l
}

// ParseLabel parses a comma separated list of names.
func ParseLabel(s string) Label {
	return NewLabel(strings.Split(s, ",")...)
}

// MergeLabels returns the union of the given labels.
func MergeLabels(labels ...Label) Label {
	var names []string
	for _, l := range labels {
		names = append(names, l.names...)
	}

	return NewLabel(names...)
}

// Names returns the names of the label in order.
func (l Label) Names() []string {
	return append([]string(nil), l.names...)
}

// Len returns the number of names.
func (l Label) Len() int {
	return len(l.names)
}

// IsEmpty reports whether the label has no names.
func (l Label) IsEmpty() bool {
	return len(l.names) == 0
}

// Contains reports whether name is part of the label.
func (l Label) Contains(name string) bool {
	for _, n := range l.names {
		if strings.EqualFold(n, name) {
			return true
		}
	}

	return false
}

// Equal reports whether both labels hold the same names.
func (l Label) Equal(other Label) bool {
	if len(l.names) != len(other.names) {
		return false
	}
	for i := range l.names {
		if !strings.EqualFold(l.names[i], other.names[i]) {
			return false
		}
	}

	return true
}

// String returns the names joined by commas.
func (l Label) String() string {
	return strings.Join(l.names, ", ")
}

// key identifies the label in maps.
func (l Label) key() string {
	return strings.ToLower(strings.Join(l.names, "\x00"))
}

// SmartCoin is a wallet output together with the privacy metadata the
// selector ranks it by.
type SmartCoin struct {
	wtxmgr.Credit

	// AnonymityScore is the size of the crowd the coin hides in.
	AnonymityScore int

	// Cluster is the label set of the cluster the coin belongs to.
	Cluster Label

	// BannedUntil is when a coordinator ban on the coin expires.
	BannedUntil time.Time

	// CoinJoinInProgress is set while the coin is registered in a round.
	CoinJoinInProgress bool
}

// Confirmed reports whether the coin is mined.
func (c *SmartCoin) Confirmed() bool {
	return c.Height >= 0
}

// IsPrivate reports whether the coin reached the anonymity score target.
func (c *SmartCoin) IsPrivate(target int) bool {
	return c.AnonymityScore >= target
}

// IsSemiPrivate reports whether the coin has some but not enough anonymity.
func (c *SmartCoin) IsSemiPrivate(target, threshold int) bool {
	return c.AnonymityScore >= threshold && c.AnonymityScore < target
}

// IsBanned reports whether a coordinator ban is in force at now.
func (c *SmartCoin) IsBanned(now time.Time) bool {
	return now.Before(c.BannedUntil)
}

// sumCoins returns the total amount of coins.
func sumCoins(coins []*SmartCoin) btcutil.Amount {
	var total btcutil.Amount
	for _, c := range coins {
		total += c.Amount
	}

	return total
}
