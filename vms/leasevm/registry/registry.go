// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry records asset types and the asset instances registered
// against them.
package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagType byte = iota
	tagAsset
	tagTypeCount
	tagAssetCount
)

const (
	MaxNameLength     = 128
	MaxSymbolLength   = 16
	MaxRequiredKeys   = 64
	maxRequiredKeyLen = metadata.MaxKeyLength
)

var (
	ErrAssetTypeNotFound = errors.New("asset type not found")
	ErrAssetNotFound     = errors.New("asset not found")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrZeroSchemaHash    = errors.New("schema hash is zero")
	ErrInvalidLeaseKeys  = errors.New("invalid required lease keys")
	ErrZeroAddress       = errors.New("zero address")

	typeCountKey  = state.Key(tagTypeCount)
	assetCountKey = state.Key(tagAssetCount)
)

// AssetType is a class of leasable asset. SchemaHash and RequiredLeaseKeys
// never change after creation.
type AssetType struct {
	ID                uint64         `serialize:"true" json:"id"`
	Name              string         `serialize:"true" json:"name"`
	SchemaHash        common.Hash    `serialize:"true" json:"schemaHash"`
	RequiredLeaseKeys []string       `serialize:"true" json:"requiredLeaseKeys"`
	Creator           common.Address `serialize:"true" json:"creator"`
	CreatedAt         uint64         `serialize:"true" json:"createdAt"`
}

// Asset is a registered asset instance.
type Asset struct {
	ID           uint64         `serialize:"true" json:"id"`
	TypeID       uint64         `serialize:"true" json:"typeId"`
	Issuer       common.Address `serialize:"true" json:"issuer"`
	Registrar    common.Address `serialize:"true" json:"registrar"`
	Token        common.Address `serialize:"true" json:"token"`
	Admin        common.Address `serialize:"true" json:"admin"`
	UpgradeAdmin common.Address `serialize:"true" json:"upgradeAdmin"`
	Name         string         `serialize:"true" json:"name"`
	Symbol       string         `serialize:"true" json:"symbol"`
	Exists       bool           `serialize:"true" json:"exists"`
	RegisteredAt uint64         `serialize:"true" json:"registeredAt"`
}

// RegisterAssetArgs are the arguments of RegisterAsset. The whole supply is
// minted to TokenRecipient, which is recorded as the asset issuer.
type RegisterAssetArgs struct {
	TypeID         uint64
	Name           string
	Symbol         string
	TotalSupply    *uint256.Int
	Admin          common.Address
	UpgradeAdmin   common.Address
	TokenRecipient common.Address
	Metadata       []metadata.Entry
}

type Registry struct {
	db     database.Database
	roles  *access.Controller
	tokens *fractional.Manager
	meta   *metadata.Store
	emit   events.Emitter
	now    func() uint64
}

func New(
	db database.Database,
	roles *access.Controller,
	tokens *fractional.Manager,
	meta *metadata.Store,
	emit events.Emitter,
	now func() uint64,
) *Registry {
	return &Registry{
		db:     db,
		roles:  roles,
		tokens: tokens,
		meta:   meta,
		emit:   emit,
		now:    now,
	}
}

// CreateAssetType registers a new asset type and returns its id.
func (r *Registry) CreateAssetType(
	caller common.Address,
	name string,
	schemaHash common.Hash,
	requiredLeaseKeys []string,
	initial []metadata.Entry,
) (uint64, error) {
	if err := r.roles.Require(caller, access.RoleAdmin); err != nil {
		return 0, err
	}
	if name == "" || len(name) > MaxNameLength {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if schemaHash == (common.Hash{}) {
		return 0, ErrZeroSchemaHash
	}
	if err := validateLeaseKeys(requiredLeaseKeys); err != nil {
		return 0, err
	}

	id, err := state.NextID(r.db, typeCountKey)
	if err != nil {
		return 0, err
	}
	t := &AssetType{
		ID:                id,
		Name:              name,
		SchemaHash:        schemaHash,
		RequiredLeaseKeys: append([]string(nil), requiredLeaseKeys...),
		Creator:           caller,
		CreatedAt:         r.now(),
	}
	if err := state.Put(r.db, typeKey(id), t); err != nil {
		return 0, err
	}
	if err := r.meta.Seed(metadata.AssetType(id), initial); err != nil {
		return 0, err
	}
	return id, r.emit.Emit(events.AssetTypeCreated, &events.AssetTypeCreatedPayload{
		TypeID:            id,
		Name:              name,
		SchemaHash:        schemaHash,
		RequiredLeaseKeys: t.RequiredLeaseKeys,
	})
}

func validateLeaseKeys(keys []string) error {
	if len(keys) > MaxRequiredKeys {
		return fmt.Errorf("%w: %d keys", ErrInvalidLeaseKeys, len(keys))
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" || len(k) > maxRequiredKeyLen {
			return fmt.Errorf("%w: %q", ErrInvalidLeaseKeys, k)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: duplicate %q", ErrInvalidLeaseKeys, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// RegisterAsset registers an asset instance, deploys its fractional token and
// mints the full supply to the token recipient.
func (r *Registry) RegisterAsset(caller common.Address, args *RegisterAssetArgs) (uint64, common.Address, error) {
	if err := r.roles.Require(caller, access.RoleRegistrar); err != nil {
		return 0, common.Address{}, err
	}
	if args.Name == "" || len(args.Name) > MaxNameLength {
		return 0, common.Address{}, fmt.Errorf("%w: %q", ErrInvalidName, args.Name)
	}
	if args.Symbol == "" || len(args.Symbol) > MaxSymbolLength {
		return 0, common.Address{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, args.Symbol)
	}
	if args.TotalSupply == nil || args.TotalSupply.IsZero() {
		return 0, common.Address{}, fractional.ErrZeroSupply
	}
	if args.TokenRecipient == (common.Address{}) || args.Admin == (common.Address{}) {
		return 0, common.Address{}, ErrZeroAddress
	}
	if _, err := r.GetAssetType(args.TypeID); err != nil {
		return 0, common.Address{}, err
	}
	if err := metadata.ValidateEntries(args.Metadata); err != nil {
		return 0, common.Address{}, err
	}

	id, err := state.NextID(r.db, assetCountKey)
	if err != nil {
		return 0, common.Address{}, err
	}
	token, err := r.tokens.Deploy(id, args.Name, args.Symbol, args.TotalSupply, args.Admin, args.TokenRecipient)
	if err != nil {
		return 0, common.Address{}, err
	}
	asset := &Asset{
		ID:           id,
		TypeID:       args.TypeID,
		Issuer:       args.TokenRecipient,
		Registrar:    caller,
		Token:        token,
		Admin:        args.Admin,
		UpgradeAdmin: args.UpgradeAdmin,
		Name:         args.Name,
		Symbol:       args.Symbol,
		Exists:       true,
		RegisteredAt: r.now(),
	}
	if err := state.Put(r.db, assetKey(id), asset); err != nil {
		return 0, common.Address{}, err
	}
	if err := r.meta.Seed(metadata.Asset(id), args.Metadata); err != nil {
		return 0, common.Address{}, err
	}
	return id, token, r.emit.Emit(events.AssetRegistered, &events.AssetRegisteredPayload{
		AssetID:     id,
		TypeID:      args.TypeID,
		Token:       token,
		Issuer:      args.TokenRecipient,
		Name:        args.Name,
		Symbol:      args.Symbol,
		TotalSupply: args.TotalSupply.Dec(),
	})
}

func (r *Registry) GetAssetType(id uint64) (*AssetType, error) {
	t := &AssetType{}
	err := state.Get(r.db, typeKey(id), t)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrAssetTypeNotFound, id)
	}
	return t, err
}

func (r *Registry) AssetTypeExists(id uint64) (bool, error) {
	return r.db.Has(typeKey(id))
}

func (r *Registry) AssetTypeCount() (uint64, error) {
	return state.Counter(r.db, typeCountKey)
}

// GetAsset returns the asset with the given id.
func (r *Registry) GetAsset(id uint64) (*Asset, error) {
	a := &Asset{}
	err := state.Get(r.db, assetKey(id), a)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, id)
	}
	return a, err
}

// AssetExists reports whether id was registered. A missing asset is not an
// error.
func (r *Registry) AssetExists(id uint64) (bool, error) {
	return r.db.Has(assetKey(id))
}

func (r *Registry) AssetCount() (uint64, error) {
	return state.Counter(r.db, assetCountKey)
}

func (r *Registry) SetAssetMetadata(caller common.Address, id uint64, entries []metadata.Entry) error {
	if _, err := r.GetAsset(id); err != nil {
		return err
	}
	return r.meta.SetMetadata(caller, metadata.Asset(id), entries)
}

func (r *Registry) GetAssetMetadata(id uint64, key string) (string, bool, error) {
	if _, err := r.GetAsset(id); err != nil {
		return "", false, err
	}
	return r.meta.GetMetadata(metadata.Asset(id), key)
}

func (r *Registry) SetAssetTypeMetadata(caller common.Address, id uint64, entries []metadata.Entry) error {
	if _, err := r.GetAssetType(id); err != nil {
		return err
	}
	return r.meta.SetMetadata(caller, metadata.AssetType(id), entries)
}

func (r *Registry) GetAssetTypeMetadata(id uint64, key string) (string, bool, error) {
	if _, err := r.GetAssetType(id); err != nil {
		return "", false, err
	}
	return r.meta.GetMetadata(metadata.AssetType(id), key)
}

func typeKey(id uint64) []byte {
	return state.Key(tagType, state.Uint64(id))
}

func assetKey(id uint64) []byte {
	return state.Key(tagAsset, state.Uint64(id))
}
