// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/coinjoind/round"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// summariesBucket is the top level bucket holding one entry per
	// archived round, keyed by round id.
	summariesBucket = []byte("round-summaries")

	// ErrCorruptSummary is returned when an archived round cannot be
	// decoded.
	ErrCorruptSummary = errors.New("corrupt round summary")
)

// RoundStore archives the summaries of ended rounds.
type RoundStore interface {
	// PutSummary inserts or replaces the summary of a round.
	PutSummary(s *round.Summary) error

	// FetchSummaries returns every archived summary, oldest first.
	FetchSummaries() ([]*round.Summary, error)
}

// DBStore is a RoundStore backed by a walletdb database.
type DBStore struct {
	db walletdb.DB
}

// A compile time check to ensure DBStore implements the RoundStore
// interface.
var _ RoundStore = (*DBStore)(nil)

// NewDBStore creates the summary bucket if needed and returns a store using
// it.
func NewDBStore(db walletdb.DB) (*DBStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(summariesBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create summary bucket: %w", err)
	}

	return &DBStore{db: db}, nil
}

// PutSummary implements RoundStore.
func (s *DBStore) PutSummary(summary *round.Summary) error {
	var value bytes.Buffer
	if err := encodeSummary(&value, summary); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(summariesBucket)
		return bucket.Put(summary.ID[:], value.Bytes())
	})
}

// FetchSummaries implements RoundStore.
func (s *DBStore) FetchSummaries() ([]*round.Summary, error) {
	var summaries []*round.Summary
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(summariesBucket)
		return bucket.ForEach(func(k, v []byte) error {
			if len(k) != chainhash.HashSize {
				return fmt.Errorf("%w: key length %d",
					ErrCorruptSummary, len(k))
			}

			summary := &round.Summary{}
			copy(summary.ID[:], k)
			err := decodeSummary(bytes.NewReader(v), summary)
			if err != nil {
				return fmt.Errorf("%w: %v: %v",
					ErrCorruptSummary, summary.ID, err)
			}
			summaries = append(summaries, summary)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Created.Before(summaries[j].Created)
	})

	return summaries, nil
}

// Summary record tlv types.
const (
	typePhase      tlv.Type = 0
	typeEndState   tlv.Type = 1
	typeReason     tlv.Type = 2
	typeNumAlices  tlv.Type = 3
	typeNumInputs  tlv.Type = 4
	typeNumBobs    tlv.Type = 5
	typeTotalInput tlv.Type = 6
	typeTxID       tlv.Type = 7
	typeCreated    tlv.Type = 8
	typeEnded      tlv.Type = 9
)

// summaryRecord is the flat form of a round.Summary the tlv stream reads
// and writes.
type summaryRecord struct {
	phase      uint8
	endState   uint8
	reason     []byte
	numAlices  uint64
	numInputs  uint64
	numBobs    uint64
	totalInput uint64
	txID       [32]byte
	created    uint64
	ended      uint64
}

func (r *summaryRecord) stream() (*tlv.Stream, error) {
	return tlv.NewStream(
		tlv.MakePrimitiveRecord(typePhase, &r.phase),
		tlv.MakePrimitiveRecord(typeEndState, &r.endState),
		tlv.MakePrimitiveRecord(typeReason, &r.reason),
		tlv.MakePrimitiveRecord(typeNumAlices, &r.numAlices),
		tlv.MakePrimitiveRecord(typeNumInputs, &r.numInputs),
		tlv.MakePrimitiveRecord(typeNumBobs, &r.numBobs),
		tlv.MakePrimitiveRecord(typeTotalInput, &r.totalInput),
		tlv.MakePrimitiveRecord(typeTxID, &r.txID),
		tlv.MakePrimitiveRecord(typeCreated, &r.created),
		tlv.MakePrimitiveRecord(typeEnded, &r.ended),
	)
}

// unixTime converts t to unix seconds, mapping the zero time to zero.
func unixTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix())
}

func fromUnixTime(secs uint64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}

func encodeSummary(w *bytes.Buffer, s *round.Summary) error {
	record := &summaryRecord{
		phase:      uint8(s.Phase),
		endState:   uint8(s.EndState),
		reason:     []byte(s.Reason),
		numAlices:  uint64(s.NumAlices),
		numInputs:  uint64(s.NumInputs),
		numBobs:    uint64(s.NumBobs),
		totalInput: uint64(s.TotalInput),
		txID:       [32]byte(s.TxID),
		created:    unixTime(s.Created),
		ended:      unixTime(s.Ended),
	}
	stream, err := record.stream()
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

func decodeSummary(r *bytes.Reader, s *round.Summary) error {
	record := &summaryRecord{}
	stream, err := record.stream()
	if err != nil {
		return err
	}
	if err := stream.Decode(r); err != nil {
		return err
	}

	s.Phase = round.Phase(record.phase)
	s.EndState = round.EndRoundState(record.endState)
	s.Reason = string(record.reason)
	s.NumAlices = int(record.numAlices)
	s.NumInputs = int(record.numInputs)
	s.NumBobs = int(record.numBobs)
	s.TotalInput = btcutil.Amount(record.totalInput)
	s.TxID = chainhash.Hash(record.txID)
	s.Created = fromUnixTime(record.created)
	s.Ended = fromUnixTime(record.ended)

	return nil
}
