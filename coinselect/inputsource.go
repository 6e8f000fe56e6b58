// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coinselect

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// InputSource returns a txauthor.InputSource backed by the selector. Every
// call hands the previous answer back to Select, so a transaction that keeps
// outgrowing its inputs eventually fails with a TransactionSizeError.
func (s *Selector) InputSource() txauthor.InputSource {
	var previous []*SmartCoin

	return func(target btcutil.Amount) (btcutil.Amount, []*wire.TxIn,
		[]btcutil.Amount, [][]byte, error) {

		selected, err := s.Select(previous, target)
		if err != nil {
			return 0, nil, nil, nil, err
		}
		previous = selected

		var (
			total   btcutil.Amount
			inputs  = make([]*wire.TxIn, 0, len(selected))
			values  = make([]btcutil.Amount, 0, len(selected))
			scripts = make([][]byte, 0, len(selected))
		)
		for _, c := range selected {
			outPoint := c.OutPoint
			total += c.Amount
			inputs = append(inputs, wire.NewTxIn(&outPoint, nil, nil))
			values = append(values, c.Amount)
			scripts = append(scripts, c.PkScript)
		}

		return total, inputs, values, scripts, nil
	}
}
