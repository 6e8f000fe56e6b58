// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package credential

import "sync"

// serialNumber is the encoded form of a presented credential's S = r·Gs.
type serialNumber [GroupElementSize]byte

// serialNumberSet records every serial number the issuer has accepted. It
// only grows.
type serialNumberSet struct {
	mu  sync.Mutex
	set map[serialNumber]struct{}
}

func newSerialNumberSet() *serialNumberSet {
	return &serialNumberSet{
		set: make(map[serialNumber]struct{}),
	}
}

func (s *serialNumberSet) contains(sn serialNumber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.set[sn]

	return ok
}

// insertAll adds every serial number or none of them. It returns false if
// any was already present.
func (s *serialNumberSet) insertAll(sns []serialNumber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sn := range sns {
		if _, ok := s.set[sn]; ok {
			return false
		}
	}
	for _, sn := range sns {
		s.set[sn] = struct{}{}
	}

	return true
}

func (s *serialNumberSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.set)
}
