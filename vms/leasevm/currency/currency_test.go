// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package currency

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
)

var (
	admin = common.HexToAddress("0xa000000000000000000000000000000000000001")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000001")
	usdc  = common.HexToAddress("0x5dc0000000000000000000000000000000000001")
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	require := require.New(t)

	log := events.NewLog(memdb.New(), &mockable.Clock{})
	roles := access.New(memdb.New(), log)
	require.NoError(roles.Initialize(admin))

	m := New(memdb.New(), roles, log)
	require.NoError(m.Register(admin, usdc, "USDC", 6))
	return m
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	m := newManager(t)

	require.ErrorIs(m.Register(admin, usdc, "USDC", 6), ErrTokenExists)
	require.ErrorIs(m.Register(alice, common.HexToAddress("0x01"), "X", 18), access.ErrUnauthorized)
	require.ErrorIs(m.Register(admin, common.Address{}, "X", 18), ErrZeroAddress)
	require.ErrorIs(m.Register(admin, common.HexToAddress("0x01"), "", 18), ErrInvalidSymbol)

	c, err := m.Get(usdc)
	require.NoError(err)
	require.Equal("USDC", c.Symbol)
	require.Equal(uint8(6), c.Decimals)

	_, err = m.Get(common.HexToAddress("0x02"))
	require.ErrorIs(err, ErrUnknownToken)
}

func TestTransferConservesSupply(t *testing.T) {
	require := require.New(t)
	m := newManager(t)

	require.NoError(m.Mint(admin, usdc, alice, uint256.NewInt(1_000)))
	require.ErrorIs(m.Mint(alice, usdc, alice, uint256.NewInt(1)), access.ErrUnauthorized)

	require.NoError(m.Transfer(usdc, alice, bob, uint256.NewInt(300)))
	err := m.Transfer(usdc, bob, alice, uint256.NewInt(301))
	require.ErrorIs(err, ErrInsufficientBalance)

	a, err := m.BalanceOf(usdc, alice)
	require.NoError(err)
	b, err := m.BalanceOf(usdc, bob)
	require.NoError(err)
	supply, err := m.TotalSupply(usdc)
	require.NoError(err)

	require.Equal(uint64(700), a.Uint64())
	require.Equal(uint64(300), b.Uint64())
	require.Equal(supply.Uint64(), new(uint256.Int).Add(a, b).Uint64())
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	require := require.New(t)
	m := newManager(t)

	require.NoError(m.Mint(admin, usdc, alice, uint256.NewInt(500)))
	err := m.TransferFrom(usdc, bob, alice, bob, uint256.NewInt(1))
	require.ErrorIs(err, ErrInsufficientAllowance)

	require.NoError(m.Approve(usdc, alice, bob, uint256.NewInt(200)))
	require.NoError(m.TransferFrom(usdc, bob, alice, bob, uint256.NewInt(150)))

	allowance, err := m.Allowance(usdc, alice, bob)
	require.NoError(err)
	require.Equal(uint64(50), allowance.Uint64())

	err = m.TransferFrom(usdc, bob, alice, bob, uint256.NewInt(51))
	require.ErrorIs(err, ErrInsufficientAllowance)

	balance, err := m.BalanceOf(usdc, bob)
	require.NoError(err)
	require.Equal(uint64(150), balance.Uint64())
}

func TestUnknownToken(t *testing.T) {
	require := require.New(t)
	m := newManager(t)

	unknown := common.HexToAddress("0xdead")
	require.ErrorIs(m.Transfer(unknown, alice, bob, uint256.NewInt(1)), ErrUnknownToken)
	require.ErrorIs(m.Approve(unknown, alice, bob, uint256.NewInt(1)), ErrUnknownToken)
	require.ErrorIs(m.Mint(admin, unknown, bob, uint256.NewInt(1)), ErrUnknownToken)
}
