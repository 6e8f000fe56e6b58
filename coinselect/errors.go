// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// ErrSelectionTimeout is returned when selection is retried too often
// without a transaction size failure to report.
var ErrSelectionTimeout = errors.New("coin selection timed out")

// InsufficientBalanceError is returned when the spendable coins do not cover
// the target.
type InsufficientBalanceError struct {
	Target    btcutil.Amount
	Available btcutil.Amount
}

// A compile time check to ensure InsufficientBalanceError implements the
// txauthor.InputSourceError interface.
var _ txauthor.InputSourceError = (*InsufficientBalanceError)(nil)

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %v, have %v", e.Target,
		e.Available)
}

// InputSourceError implements txauthor.InputSourceError.
func (e *InsufficientBalanceError) InputSourceError() {}

// TransactionSizeError records that a previous selection no longer covered
// the target once the transaction grew.
type TransactionSizeError struct {
	Target    btcutil.Amount
	Suggested btcutil.Amount
}

// Error implements the error interface.
func (e *TransactionSizeError) Error() string {
	return fmt.Sprintf("transaction size grew past the selection: need "+
		"%v, selected %v", e.Target, e.Suggested)
}
