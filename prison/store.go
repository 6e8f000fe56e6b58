// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prison

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	// inmatesBucket is the top level bucket holding one entry per banned
	// outpoint.
	inmatesBucket = []byte("prison-inmates")

	// ErrCorruptRecord is returned when a stored inmate cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt inmate record")
)

// Store persists inmates across coordinator restarts.
type Store interface {
	// PutInmate inserts or replaces the record for the inmate's outpoint.
	PutInmate(inmate *Inmate) error

	// DeleteInmate removes the record for op, if any.
	DeleteInmate(op wire.OutPoint) error

	// FetchInmates returns every stored inmate.
	FetchInmates() ([]*Inmate, error)
}

// DBStore is a Store backed by a walletdb database.
type DBStore struct {
	db walletdb.DB
}

// A compile time check to ensure DBStore implements the Store interface.
var _ Store = (*DBStore)(nil)

// NewDBStore creates the inmate bucket if needed and returns a store using
// it.
func NewDBStore(db walletdb.DB) (*DBStore, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(inmatesBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create inmate bucket: %w", err)
	}

	return &DBStore{db: db}, nil
}

// PutInmate implements Store.
func (s *DBStore) PutInmate(inmate *Inmate) error {
	var value bytes.Buffer
	if err := encodeInmate(&value, inmate); err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(inmatesBucket)
		return bucket.Put(outPointKey(&inmate.OutPoint), value.Bytes())
	})
}

// DeleteInmate implements Store.
func (s *DBStore) DeleteInmate(op wire.OutPoint) error {
	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(inmatesBucket)
		return bucket.Delete(outPointKey(&op))
	})
}

// FetchInmates implements Store.
func (s *DBStore) FetchInmates() ([]*Inmate, error) {
	var inmates []*Inmate
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(inmatesBucket)
		return bucket.ForEach(func(k, v []byte) error {
			op, err := readOutPointKey(k)
			if err != nil {
				return err
			}

			inmate := &Inmate{OutPoint: op}
			if err := decodeInmate(bytes.NewReader(v), inmate); err != nil {
				return fmt.Errorf("%w: %v: %v", ErrCorruptRecord,
					op, err)
			}
			inmates = append(inmates, inmate)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return inmates, nil
}

// outPointKey serializes an outpoint as its hash followed by the big endian
// output index.
func outPointKey(op *wire.OutPoint) []byte {
	k := make([]byte, chainhash.HashSize+4)
	copy(k, op.Hash[:])
	binary.BigEndian.PutUint32(k[chainhash.HashSize:], op.Index)

	return k
}

func readOutPointKey(k []byte) (wire.OutPoint, error) {
	var op wire.OutPoint
	if len(k) != chainhash.HashSize+4 {
		return op, fmt.Errorf("%w: key length %d", ErrCorruptRecord,
			len(k))
	}
	copy(op.Hash[:], k[:chainhash.HashSize])
	op.Index = binary.BigEndian.Uint32(k[chainhash.HashSize:])

	return op, nil
}

// Inmate record tlv types.
const (
	typePunishment tlv.Type = 0
	typeSince      tlv.Type = 1
	typeRoundID    tlv.Type = 2
)

func inmateStream(punishment *uint8, since *uint64,
	roundID *[32]byte) (*tlv.Stream, error) {

	return tlv.NewStream(
		tlv.MakePrimitiveRecord(typePunishment, punishment),
		tlv.MakePrimitiveRecord(typeSince, since),
		tlv.MakePrimitiveRecord(typeRoundID, roundID),
	)
}

func encodeInmate(w *bytes.Buffer, inmate *Inmate) error {
	var (
		punishment = uint8(inmate.Punishment)
		since      = uint64(inmate.Since.Unix())
		roundID    = [32]byte(inmate.RoundID)
	)
	stream, err := inmateStream(&punishment, &since, &roundID)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

func decodeInmate(r *bytes.Reader, inmate *Inmate) error {
	var (
		punishment uint8
		since      uint64
		roundID    [32]byte
	)
	stream, err := inmateStream(&punishment, &since, &roundID)
	if err != nil {
		return err
	}
	if err := stream.Decode(r); err != nil {
		return err
	}

	inmate.Punishment = Punishment(punishment)
	inmate.Since = time.Unix(int64(since), 0)
	inmate.RoundID = chainhash.Hash(roundID)

	return nil
}
