// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	safemath "github.com/faas-tech/space-markets-sub007/utils/math"
)

type record struct {
	Name  string `serialize:"true"`
	Count uint32 `serialize:"true"`
}

func TestKey(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte{7}, Key(7))
	require.Equal(
		[]byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 3},
		Key(1, Uint64(2), Uint32(3)),
	)
}

func TestNextID(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	key := Key(0)

	current, err := Counter(db, key)
	require.NoError(err)
	require.Zero(current)

	for want := uint64(1); want <= 3; want++ {
		id, err := NextID(db, key)
		require.NoError(err)
		require.Equal(want, id)
	}

	require.NoError(database.PutUInt64(db, key, math.MaxUint64))
	_, err = NextID(db, key)
	require.ErrorIs(err, safemath.ErrOverflow)
}

func TestRecords(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	key := Key(1, Uint64(9))

	var got record
	require.ErrorIs(Get(db, key, &got), database.ErrNotFound)

	require.NoError(Put(db, key, &record{Name: "alpha", Count: 3}))
	require.NoError(Get(db, key, &got))
	require.Equal(record{Name: "alpha", Count: 3}, got)

	has, err := Has(db, key)
	require.NoError(err)
	require.True(has)

	require.NoError(db.Put(key, []byte{0xff}))
	require.ErrorIs(Get(db, key, &got), ErrStateCorrupted)
}

func TestAmount(t *testing.T) {
	require := require.New(t)
	db := memdb.New()
	key := Key(2)

	v, err := Amount(db, key)
	require.NoError(err)
	require.True(v.IsZero())

	require.NoError(PutAmount(db, key, uint256.NewInt(42)))
	v, err = Amount(db, key)
	require.NoError(err)
	require.Equal(uint64(42), v.Uint64())

	require.NoError(PutAmount(db, key, new(uint256.Int)))
	has, err := db.Has(key)
	require.NoError(err)
	require.False(has)

	require.NoError(db.Put(key, []byte{1, 2}))
	_, err = Amount(db, key)
	require.ErrorIs(err, ErrStateCorrupted)
}
