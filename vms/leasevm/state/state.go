// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	safemath "github.com/faas-tech/space-markets-sub007/utils/math"
)

var ErrStateCorrupted = errors.New("state corrupted")

// Key builds a database key from a one byte table tag followed by the given
// parts. Callers only pass fixed width parts so keys of different tables and
// different ids never collide.
func Key(tag byte, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	key = append(key, tag)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

// Uint64 returns the big endian encoding of v.
func Uint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Uint32 returns the big endian encoding of v.
func Uint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// Get reads and decodes the record stored at key into dst.
// database.ErrNotFound is returned unwrapped when the key is absent.
func Get(db database.KeyValueReader, key []byte, dst interface{}) error {
	b, err := db.Get(key)
	if err != nil {
		return err
	}
	if _, err := Codec.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrStateCorrupted, err)
	}
	return nil
}

// Put encodes src and stores it at key.
func Put(db database.KeyValueWriter, key []byte, src interface{}) error {
	b, err := Codec.Marshal(CodecVersion, src)
	if err != nil {
		return err
	}
	return db.Put(key, b)
}

// Has reports whether key is present.
func Has(db database.KeyValueReader, key []byte) (bool, error) {
	return db.Has(key)
}

// Counter returns the value stored at key, or zero when it was never set.
func Counter(db database.KeyValueReader, key []byte) (uint64, error) {
	v, err := database.GetUInt64(db, key)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return v, err
}

// NextID increments the counter stored at key and returns the new value.
// Ids therefore start at 1 and zero is never a valid id.
func NextID(db database.Database, key []byte) (uint64, error) {
	current, err := Counter(db, key)
	if err != nil {
		return 0, err
	}
	next, err := safemath.Add(current, 1)
	if err != nil {
		return 0, err
	}
	if err := database.PutUInt64(db, key, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Amount returns the 256 bit amount stored at key, or zero when absent.
func Amount(db database.KeyValueReader, key []byte) (*uint256.Int, error) {
	b, err := db.Get(key)
	if errors.Is(err, database.ErrNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: amount of %d bytes", ErrStateCorrupted, len(b))
	}
	return new(uint256.Int).SetBytes32(b), nil
}

// PutAmount stores v at key. Zero amounts are deleted so that prefix
// iteration only yields non zero entries.
func PutAmount(db database.KeyValueWriterDeleter, key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return db.Delete(key)
	}
	b := v.Bytes32()
	return db.Put(key, b[:])
}
