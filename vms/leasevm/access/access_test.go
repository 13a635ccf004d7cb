// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
)

var (
	admin    = common.HexToAddress("0xad00000000000000000000000000000000000001")
	operator = common.HexToAddress("0x0e00000000000000000000000000000000000002")
)

func newController(t *testing.T) (*Controller, *events.Log) {
	t.Helper()

	log := events.NewLog(memdb.New(), &mockable.Clock{})
	c := New(memdb.New(), log)
	require.NoError(t, c.Initialize(admin))
	return c, log
}

func TestInitialize(t *testing.T) {
	require := require.New(t)
	c, _ := newController(t)

	ok, err := c.HasRole(admin, RoleAdmin)
	require.NoError(err)
	require.True(ok)

	require.ErrorIs(c.Initialize(operator), ErrAlreadyInitialized)
	require.ErrorIs(New(memdb.New(), events.NewLog(memdb.New(), &mockable.Clock{})).Initialize(common.Address{}), ErrZeroAddress)
}

func TestGrantRevoke(t *testing.T) {
	tests := []struct {
		name        string
		caller      common.Address
		role        Role
		account     common.Address
		revoke      bool
		expectedErr error
	}{
		{
			name:    "admin grants registrar",
			caller:  admin,
			role:    RoleRegistrar,
			account: operator,
		},
		{
			name:        "non admin grants",
			caller:      operator,
			role:        RoleRegistrar,
			account:     operator,
			expectedErr: ErrUnauthorized,
		},
		{
			name:        "unknown role",
			caller:      admin,
			role:        Role(9),
			account:     operator,
			expectedErr: ErrUnknownRole,
		},
		{
			name:        "zero account",
			caller:      admin,
			role:        RoleMetadataAdmin,
			expectedErr: ErrZeroAddress,
		},
		{
			name:        "admin revokes itself",
			caller:      admin,
			role:        RoleAdmin,
			account:     admin,
			revoke:      true,
			expectedErr: ErrSelfRevoke,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newController(t)
			var err error
			if test.revoke {
				err = c.Revoke(test.caller, test.role, test.account)
			} else {
				err = c.Grant(test.caller, test.role, test.account)
			}
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestRolesAndEvents(t *testing.T) {
	require := require.New(t)
	c, log := newController(t)

	require.NoError(c.Grant(admin, RoleRegistrar, operator))
	require.NoError(c.Grant(admin, RoleMetadataAdmin, operator))
	// Granting a held role is a no-op and emits nothing.
	require.NoError(c.Grant(admin, RoleRegistrar, operator))

	roles, err := c.Roles(operator)
	require.NoError(err)
	require.Equal([]Role{RoleRegistrar, RoleMetadataAdmin}, roles)

	require.NoError(c.Require(operator, RoleAdmin, RoleMetadataAdmin))
	require.ErrorIs(c.Require(operator, RoleAdmin), ErrUnauthorized)

	require.NoError(c.Revoke(admin, RoleRegistrar, operator))
	ok, err := c.HasRole(operator, RoleRegistrar)
	require.NoError(err)
	require.False(ok)

	last, err := log.Last()
	require.NoError(err)
	require.Equal(uint64(4), last)

	evs, err := log.Range(4, 1)
	require.NoError(err)
	require.Equal(events.RoleRevoked, evs[0].Type)
	var payload events.RolePayload
	require.NoError(evs[0].Decode(&payload))
	require.Equal("registrar", payload.Role)
	require.Equal(operator, payload.Account)
	require.Equal(admin, payload.Sender)
}

func TestParseRole(t *testing.T) {
	require := require.New(t)

	for r := RoleAdmin; r <= maxRole; r++ {
		parsed, err := ParseRole(r.String())
		require.NoError(err)
		require.Equal(r, parsed)
	}
	_, err := ParseRole("owner")
	require.ErrorIs(err, ErrUnknownRole)
}
