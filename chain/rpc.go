// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/coinjoind/round"
)

// rpcBackend is the part of *rpcclient.Client the RPCClient uses.
type rpcBackend interface {
	GetTxOut(txHash *chainhash.Hash, index uint32,
		mempool bool) (*btcjson.GetTxOutResult, error)
	SendRawTransaction(tx *wire.MsgTx,
		allowHighFees bool) (*chainhash.Hash, error)
	GetCurrentNet() (wire.BitcoinNet, error)
	Shutdown()
	WaitForShutdown()
}

// A compile time check to ensure *rpcclient.Client implements rpcBackend.
var _ rpcBackend = (*rpcclient.Client)(nil)

// RPCClient resolves round inputs and broadcasts round transactions through
// a btcd JSON-RPC server.
type RPCClient struct {
	backend     rpcBackend
	chainParams *chaincfg.Params

	// includeMempool makes unconfirmed outputs visible to FetchUtxo.
	includeMempool bool

	stopOnce sync.Once
}

// A compile time check to ensure RPCClient implements the round's chain
// interfaces.
var (
	_ round.UtxoProvider = (*RPCClient)(nil)
	_ round.Broadcaster  = (*RPCClient)(nil)
)

// RPCClientConfig defines the config options used when initializing the RPC
// client.
type RPCClientConfig struct {
	// Conn describes the connection configuration parameters for the
	// client.
	Conn *rpcclient.ConnConfig

	// Chain is the network the server must run on.
	Chain *chaincfg.Params

	// IncludeMempool reports unconfirmed outputs with zero
	// confirmations instead of as unknown.
	IncludeMempool bool
}

// validate checks the required config options are set.
func (r *RPCClientConfig) validate() error {
	if r == nil {
		return errors.New("missing rpc config")
	}

	// Make sure the chain params are configured.
	if r.Chain == nil {
		return errors.New("missing chain params config")
	}

	// Make sure connection config is supplied.
	if r.Conn == nil {
		return errors.New("missing conn config")
	}

	// If disableTLS is false, the remote RPC certificate must be provided
	// in the certs slice.
	if !r.Conn.DisableTLS && r.Conn.Certificates == nil {
		return errors.New("must provide certs when TLS is enabled")
	}

	return nil
}

// NewRPCClientWithConfig creates a client for the server described by cfg.
// Requests are sent as HTTP POSTs, so no connection is held open. Start
// checks the server runs on the configured network.
func NewRPCClientWithConfig(cfg *RPCClientConfig) (*RPCClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Conn.HTTPPostMode = true

	backend, err := rpcclient.New(cfg.Conn, nil)
	if err != nil {
		return nil, err
	}

	return newRPCClient(backend, cfg.Chain, cfg.IncludeMempool), nil
}

func newRPCClient(backend rpcBackend, chainParams *chaincfg.Params,
	includeMempool bool) *RPCClient {

	return &RPCClient{
		backend:        backend,
		chainParams:    chainParams,
		includeMempool: includeMempool,
	}
}

// Start verifies the server is running on the expected network.
func (c *RPCClient) Start() error {
	net, err := c.backend.GetCurrentNet()
	if err != nil {
		return fmt.Errorf("unable to query network: %w", err)
	}
	if net != c.chainParams.Net {
		return fmt.Errorf("mismatched networks: server on %v, "+
			"expected %v", net, c.chainParams.Net)
	}

	log.Infof("Chain backend running on %v", c.chainParams.Name)

	return nil
}

// Stop shuts the client down and waits for in flight requests.
func (c *RPCClient) Stop() {
	c.stopOnce.Do(func() {
		c.backend.Shutdown()
		c.backend.WaitForShutdown()
	})
}

// FetchUtxo returns the unspent output at op.
//
// NOTE: Part of the round.UtxoProvider interface.
func (c *RPCClient) FetchUtxo(ctx context.Context,
	op wire.OutPoint) (*round.Utxo, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := c.backend.GetTxOut(&op.Hash, op.Index, c.includeMempool)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %v: %w", op, err)
	}

	// The server answers with null for spent or unknown outputs.
	if res == nil {
		return nil, round.ErrUtxoNotFound
	}

	pkScript, err := hex.DecodeString(res.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("invalid script of %v: %w", op, err)
	}
	amount, err := btcutil.NewAmount(res.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value of %v: %w", op, err)
	}

	return &round.Utxo{
		TxOut:         wire.NewTxOut(int64(amount), pkScript),
		Confirmations: res.Confirmations,
		Coinbase:      res.Coinbase,
	}, nil
}

// PublishTransaction sends tx to the server. A transaction the server
// already knows about counts as published.
//
// NOTE: Part of the round.Broadcaster interface.
func (c *RPCClient) PublishTransaction(ctx context.Context,
	tx *wire.MsgTx) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	txid, err := c.backend.SendRawTransaction(tx, false)
	if err == nil {
		log.Infof("Published transaction %v", txid)
		return nil
	}

	err = mapRPCErr(err)
	switch {
	case errors.Is(err, ErrTxAlreadyInMempool),
		errors.Is(err, ErrTxAlreadyConfirmed):

		log.Debugf("Transaction %v already known: %v", tx.TxHash(), err)
		return nil
	}

	return fmt.Errorf("unable to publish %v: %w", tx.TxHash(), err)
}
