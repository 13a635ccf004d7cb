// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
)

var (
	admin     = common.HexToAddress("0xa000000000000000000000000000000000000001")
	registrar = common.HexToAddress("0x4e60000000000000000000000000000000000001")
	issuer    = common.HexToAddress("0x1550000000000000000000000000000000000001")
	stranger  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	self      = common.HexToAddress("0x4e61000000000000000000000000000000000001")

	schema = crypto.Keccak256Hash([]byte("satellite-schema-v1"))
)

type roleAuthority struct {
	roles *access.Controller
}

func (a roleAuthority) CanWrite(caller common.Address, _ metadata.Namespace) (bool, error) {
	return a.roles.HasRole(caller, access.RoleAdmin)
}

type env struct {
	registry *Registry
	tokens   *fractional.Manager
	log      *events.Log
}

func newEnv(t *testing.T) *env {
	t.Helper()
	require := require.New(t)

	clock := &mockable.Clock{}
	log := events.NewLog(memdb.New(), clock)
	roles := access.New(memdb.New(), log)
	require.NoError(roles.Initialize(admin))
	require.NoError(roles.Grant(admin, access.RoleRegistrar, registrar))

	meta := metadata.New(memdb.New(), log)
	meta.SetAuthority(roleAuthority{roles: roles})
	ledger := currency.New(memdb.New(), roles, log)
	tokens := fractional.New(memdb.New(), self, ledger, meta, log, clock.Unix)
	return &env{
		registry: New(memdb.New(), roles, tokens, meta, log, clock.Unix),
		tokens:   tokens,
		log:      log,
	}
}

func (e *env) args(typeID uint64) *RegisterAssetArgs {
	return &RegisterAssetArgs{
		TypeID:         typeID,
		Name:           "Satellite Alpha",
		Symbol:         "SATA",
		TotalSupply:    uint256.NewInt(1_000),
		Admin:          admin,
		TokenRecipient: issuer,
		Metadata:       []metadata.Entry{{Key: "orbit", Value: "LEO"}},
	}
}

func TestCreateAssetType(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	_, err := e.registry.CreateAssetType(stranger, "Satellite", schema, nil, nil)
	require.ErrorIs(err, access.ErrUnauthorized)

	_, err = e.registry.CreateAssetType(admin, "", schema, nil, nil)
	require.ErrorIs(err, ErrInvalidName)

	_, err = e.registry.CreateAssetType(admin, "Satellite", common.Hash{}, nil, nil)
	require.ErrorIs(err, ErrZeroSchemaHash)

	_, err = e.registry.CreateAssetType(admin, "Satellite", schema, []string{"a", "a"}, nil)
	require.ErrorIs(err, ErrInvalidLeaseKeys)

	id, err := e.registry.CreateAssetType(admin, "Satellite", schema, []string{"purpose"}, []metadata.Entry{
		{Key: "category", Value: "space"},
	})
	require.NoError(err)
	require.Equal(uint64(1), id)

	typ, err := e.registry.GetAssetType(id)
	require.NoError(err)
	require.Equal("Satellite", typ.Name)
	require.Equal(schema, typ.SchemaHash)
	require.Equal([]string{"purpose"}, typ.RequiredLeaseKeys)

	v, found, err := e.registry.GetAssetTypeMetadata(id, "category")
	require.NoError(err)
	require.True(found)
	require.Equal("space", v)

	next, err := e.registry.CreateAssetType(admin, "Orbital Station", schema, nil, nil)
	require.NoError(err)
	require.Equal(uint64(2), next)
}

func TestRegisterAsset(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	typeID, err := e.registry.CreateAssetType(admin, "Satellite", schema, nil, nil)
	require.NoError(err)

	_, _, err = e.registry.RegisterAsset(admin, e.args(typeID))
	require.ErrorIs(err, access.ErrUnauthorized)

	_, _, err = e.registry.RegisterAsset(registrar, e.args(typeID+1))
	require.ErrorIs(err, ErrAssetTypeNotFound)

	zero := e.args(typeID)
	zero.TotalSupply = new(uint256.Int)
	_, _, err = e.registry.RegisterAsset(registrar, zero)
	require.ErrorIs(err, fractional.ErrZeroSupply)

	id, token, err := e.registry.RegisterAsset(registrar, e.args(typeID))
	require.NoError(err)
	require.Equal(uint64(1), id)
	require.Equal(e.tokens.AddressOf(id), token)

	asset, err := e.registry.GetAsset(id)
	require.NoError(err)
	require.True(asset.Exists)
	require.Equal(issuer, asset.Issuer)
	require.Equal(registrar, asset.Registrar)
	require.Equal(token, asset.Token)

	balance, err := e.tokens.BalanceOf(token, issuer)
	require.NoError(err)
	require.Equal(uint64(1_000), balance.Uint64())

	v, found, err := e.registry.GetAssetMetadata(id, "orbit")
	require.NoError(err)
	require.True(found)
	require.Equal("LEO", v)

	exists, err := e.registry.AssetExists(id + 1)
	require.NoError(err)
	require.False(exists)

	_, err = e.registry.GetAsset(id + 1)
	require.ErrorIs(err, ErrAssetNotFound)
}

func TestAssetMetadataWrites(t *testing.T) {
	require := require.New(t)
	e := newEnv(t)

	typeID, err := e.registry.CreateAssetType(admin, "Satellite", schema, nil, nil)
	require.NoError(err)
	id, _, err := e.registry.RegisterAsset(registrar, e.args(typeID))
	require.NoError(err)

	err = e.registry.SetAssetMetadata(issuer, id, []metadata.Entry{{Key: "orbit", Value: "GEO"}})
	require.ErrorIs(err, access.ErrUnauthorized)

	require.NoError(e.registry.SetAssetMetadata(admin, id, []metadata.Entry{{Key: "orbit", Value: "GEO"}}))
	v, _, err := e.registry.GetAssetMetadata(id, "orbit")
	require.NoError(err)
	require.Equal("GEO", v)

	err = e.registry.SetAssetMetadata(admin, id+1, []metadata.Entry{{Key: "orbit", Value: "GEO"}})
	require.ErrorIs(err, ErrAssetNotFound)
}
