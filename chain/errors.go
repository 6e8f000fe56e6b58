// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUndefined is wrapped around RPC errors that match no known RPCErr.
var ErrUndefined = errors.New("undefined rpc error")

// RPCErr is a transaction rejection reported by the backend.
type RPCErr uint32

const (
	// ErrTxAlreadyInMempool is returned when the transaction is already
	// in the backend's mempool.
	ErrTxAlreadyInMempool RPCErr = iota

	// ErrTxAlreadyConfirmed is returned when the transaction is already
	// mined.
	ErrTxAlreadyConfirmed

	// ErrMissingInputs is returned when an input is unknown or spent.
	ErrMissingInputs

	// ErrInsufficientFee is returned when the fee is below the relay
	// minimum.
	ErrInsufficientFee

	// ErrDoubleSpend is returned when an input is spent by a mempool
	// transaction.
	ErrDoubleSpend

	// errSentinel marks the end of the defined errors.
	errSentinel
)

// Error implements the error interface.
func (r RPCErr) Error() string {
	switch r {
	case ErrTxAlreadyInMempool:
		return "transaction already in mempool"

	case ErrTxAlreadyConfirmed:
		return "transaction already confirmed"

	case ErrMissingInputs:
		return "missing inputs"

	case ErrInsufficientFee:
		return "insufficient fee"

	case ErrDoubleSpend:
		return "double spend"
	}

	return "unknown error"
}

// btcdErrMap maps btcd's rejection strings to RPCErr values.
var btcdErrMap = map[string]error{
	"already have transaction":                 ErrTxAlreadyInMempool,
	"transaction already exists":               ErrTxAlreadyConfirmed,
	"orphan transaction":                       ErrMissingInputs,
	"min relay fee not met":                    ErrInsufficientFee,
	"insufficient priority":                    ErrInsufficientFee,
	"already spent by transaction in the pool": ErrDoubleSpend,
}

// matchErrStr reports whether err contains match, ignoring case and treating
// dashes as spaces.
func matchErrStr(err error, match string) bool {
	if err == nil {
		return false
	}

	normalize := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "-", " ")
	}

	return strings.Contains(normalize(err.Error()), normalize(match))
}

// mapRPCErr maps an error returned by the backend to an RPCErr, wrapping it
// in ErrUndefined when it matches none.
func mapRPCErr(rpcErr error) error {
	for btcdErr, matchedErr := range btcdErrMap {
		if matchErrStr(rpcErr, btcdErr) {
			return matchedErr
		}
	}

	return fmt.Errorf("%w: %v", ErrUndefined, rpcErr)
}
