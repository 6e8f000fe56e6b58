// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package round

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/mock"
)

// mockUtxoProvider is an in-memory UtxoProvider.
type mockUtxoProvider struct {
	mu    sync.Mutex
	utxos map[wire.OutPoint]*Utxo
}

func newMockUtxoProvider() *mockUtxoProvider {
	return &mockUtxoProvider{utxos: make(map[wire.OutPoint]*Utxo)}
}

func (m *mockUtxoProvider) add(op wire.OutPoint, utxo *Utxo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.utxos[op] = utxo
}

func (m *mockUtxoProvider) prevOuts() map[wire.OutPoint]*wire.TxOut {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(m.utxos))
	for op, utxo := range m.utxos {
		prevOuts[op] = utxo.TxOut
	}

	return prevOuts
}

// FetchUtxo implements UtxoProvider.
func (m *mockUtxoProvider) FetchUtxo(_ context.Context,
	op wire.OutPoint) (*Utxo, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	utxo, ok := m.utxos[op]
	if !ok {
		return nil, ErrUtxoNotFound
	}

	return utxo, nil
}

// mockBroadcaster records published transactions.
type mockBroadcaster struct {
	mock.Mock
}

// PublishTransaction implements Broadcaster.
func (m *mockBroadcaster) PublishTransaction(ctx context.Context,
	tx *wire.MsgTx) error {

	args := m.Called(ctx, tx)
	return args.Error(0)
}

// acceptAllVerifier is a WitnessVerifier that accepts any non-empty witness.
type acceptAllVerifier struct{}

// VerifyWitness implements WitnessVerifier.
func (acceptAllVerifier) VerifyWitness(tx *wire.MsgTx, idx int,
	_ map[wire.OutPoint]*wire.TxOut) error {

	if len(tx.TxIn[idx].Witness) == 0 {
		return ErrOwnershipProofInvalid
	}

	return nil
}
