// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stack binds the lease VM components to one database.
package stack

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/config"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/marketplace"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
)

var (
	accessPrefix   = []byte("access")
	eventsPrefix   = []byte("events")
	metaPrefix     = []byte("meta")
	currencyPrefix = []byte("currency")
	tokenPrefix    = []byte("token")
	registryPrefix = []byte("registry")
	leasePrefix    = []byte("lease")
	marketPrefix   = []byte("market")
)

// Addresses are the well known accounts of a deployment.
type Addresses struct {
	Registry    common.Address `json:"registry"`
	Factory     common.Address `json:"factory"`
	Marketplace common.Address `json:"marketplace"`
}

// DeriveAddresses returns the accounts of the deployment named in c.
func DeriveAddresses(c config.Config) Addresses {
	derive := func(label string) common.Address {
		return common.BytesToAddress(crypto.Keccak256([]byte(c.Deployment), []byte{0}, []byte(label))[12:])
	}
	return Addresses{
		Registry:    derive("registry"),
		Factory:     derive("lease-factory"),
		Marketplace: derive("marketplace"),
	}
}

// Stack is the set of components bound to one database. Every component
// writes through the same database, so a call over all of them commits or
// aborts as a unit.
type Stack struct {
	Addresses Addresses

	Events      *events.Log
	Roles       *access.Controller
	Metadata    *metadata.Store
	Currency    *currency.Manager
	Tokens      *fractional.Manager
	Registry    *registry.Registry
	Leases      *lease.Factory
	Marketplace *marketplace.Marketplace
}

// NewStack wires every component over db.
func NewStack(db database.Database, c config.Config, clock *mockable.Clock) (*Stack, error) {
	addrs := DeriveAddresses(c)
	now := clock.Unix

	log := events.NewLog(prefixdb.New(eventsPrefix, db), clock)
	roles := access.New(prefixdb.New(accessPrefix, db), log)
	meta := metadata.New(prefixdb.New(metaPrefix, db), log)
	ledger := currency.New(prefixdb.New(currencyPrefix, db), roles, log)
	tokens := fractional.New(prefixdb.New(tokenPrefix, db), addrs.Registry, ledger, meta, log, now)
	reg := registry.New(prefixdb.New(registryPrefix, db), roles, tokens, meta, log, now)

	domain := lease.Domain{
		ChainID:           new(big.Int).SetUint64(c.NetworkID),
		VerifyingContract: addrs.Factory,
	}
	factory, err := lease.New(prefixdb.New(leasePrefix, db), domain, reg, ledger, meta, log, now)
	if err != nil {
		return nil, err
	}
	market, err := marketplace.New(
		prefixdb.New(marketPrefix, db),
		addrs.Marketplace,
		c.DistributionMode,
		factory,
		reg,
		tokens,
		ledger,
		log,
		now,
	)
	if err != nil {
		return nil, err
	}
	meta.SetAuthority(&namespaceAuthority{
		roles:    roles,
		registry: reg,
		tokens:   tokens,
	})
	return &Stack{
		Addresses:   addrs,
		Events:      log,
		Roles:       roles,
		Metadata:    meta,
		Currency:    ledger,
		Tokens:      tokens,
		Registry:    reg,
		Leases:      factory,
		Marketplace: market,
	}, nil
}

// namespaceAuthority admits administrators to entity metadata and the token
// admin to token metadata.
type namespaceAuthority struct {
	roles    *access.Controller
	registry *registry.Registry
	tokens   *fractional.Manager
}

func (a *namespaceAuthority) CanWrite(caller common.Address, ns metadata.Namespace) (bool, error) {
	if ns.Kind == metadata.KindToken {
		asset, err := a.registry.GetAsset(ns.ID)
		if err != nil {
			return false, err
		}
		return a.tokens.IsAdmin(asset.Token, caller)
	}
	for _, role := range []access.Role{access.RoleAdmin, access.RoleMetadataAdmin} {
		ok, err := a.roles.HasRole(caller, role)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
