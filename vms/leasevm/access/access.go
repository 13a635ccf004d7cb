// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package access implements the role capability map consulted at the start of
// every privileged call.
package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagRoles byte = iota
	tagInitialized
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAlreadyInitialized = errors.New("access control already initialized")
	ErrUnknownRole        = errors.New("unknown role")
	ErrZeroAddress        = errors.New("zero address")
	ErrSelfRevoke         = errors.New("admin cannot revoke its own admin role")

	initializedKey = state.Key(tagInitialized)
)

// Role is a capability that can be granted to an address.
type Role uint8

const (
	// RoleAdmin manages roles, asset types, currencies and entity metadata.
	RoleAdmin Role = iota + 1
	// RoleRegistrar registers asset instances.
	RoleRegistrar
	// RoleMetadataAdmin annotates asset types, assets and leases.
	RoleMetadataAdmin

	maxRole = RoleMetadataAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleRegistrar:
		return "registrar"
	case RoleMetadataAdmin:
		return "metadata_admin"
	default:
		return "unknown"
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r := RoleAdmin; r <= maxRole; r++ {
		if strings.EqualFold(r.String(), s) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) bit() uint64 {
	return 1 << uint(r)
}

func (r Role) valid() bool {
	return r >= RoleAdmin && r <= maxRole
}

// Controller stores the address -> role set map.
type Controller struct {
	db   database.Database
	emit events.Emitter
}

func New(db database.Database, emit events.Emitter) *Controller {
	return &Controller{
		db:   db,
		emit: emit,
	}
}

// Initialize grants the admin role to admin. It can only succeed once.
func (c *Controller) Initialize(admin common.Address) error {
	if admin == (common.Address{}) {
		return ErrZeroAddress
	}
	done, err := c.db.Has(initializedKey)
	if err != nil {
		return err
	}
	if done {
		return ErrAlreadyInitialized
	}
	if err := c.db.Put(initializedKey, []byte{1}); err != nil {
		return err
	}
	return c.set(admin, RoleAdmin, true, common.Address{})
}

// HasRole reports whether account holds role.
func (c *Controller) HasRole(account common.Address, role Role) (bool, error) {
	mask, err := c.mask(account)
	if err != nil {
		return false, err
	}
	return mask&role.bit() != 0, nil
}

// Require returns ErrUnauthorized unless account holds at least one of roles.
func (c *Controller) Require(account common.Address, roles ...Role) error {
	mask, err := c.mask(account)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if mask&r.bit() != 0 {
			return nil
		}
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, account, strings.Join(names, "|"))
}

// Roles returns every role held by account.
func (c *Controller) Roles(account common.Address) ([]Role, error) {
	mask, err := c.mask(account)
	if err != nil {
		return nil, err
	}
	var roles []Role
	for r := RoleAdmin; r <= maxRole; r++ {
		if mask&r.bit() != 0 {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// Grant gives role to account. Only admins may grant.
func (c *Controller) Grant(caller common.Address, role Role, account common.Address) error {
	if err := c.Require(caller, RoleAdmin); err != nil {
		return err
	}
	if !role.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, role)
	}
	if account == (common.Address{}) {
		return ErrZeroAddress
	}
	return c.set(account, role, true, caller)
}

// Revoke removes role from account. Only admins may revoke, and an admin can
// not remove its own admin role.
func (c *Controller) Revoke(caller common.Address, role Role, account common.Address) error {
	if err := c.Require(caller, RoleAdmin); err != nil {
		return err
	}
	if !role.valid() {
		return fmt.Errorf("%w: %d", ErrUnknownRole, role)
	}
	if role == RoleAdmin && caller == account {
		return ErrSelfRevoke
	}
	return c.set(account, role, false, caller)
}

func (c *Controller) set(account common.Address, role Role, granted bool, sender common.Address) error {
	mask, err := c.mask(account)
	if err != nil {
		return err
	}
	next := mask &^ role.bit()
	typ := events.RoleRevoked
	if granted {
		next = mask | role.bit()
		typ = events.RoleGranted
	}
	if next == mask {
		return nil
	}
	if err := database.PutUInt64(c.db, state.Key(tagRoles, account.Bytes()), next); err != nil {
		return err
	}
	return c.emit.Emit(typ, &events.RolePayload{
		Role:    role.String(),
		Account: account,
		Sender:  sender,
	})
}

func (c *Controller) mask(account common.Address) (uint64, error) {
	return state.Counter(c.db, state.Key(tagRoles, account.Bytes()))
}
