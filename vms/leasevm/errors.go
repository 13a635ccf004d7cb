// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leasevm

import (
	"errors"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/marketplace"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
)

// Class groups rejection reasons so callers can decide how to react.
type Class string

const (
	ClassNone          Class = "ok"
	ClassAuthorization Class = "authorization"
	ClassState         Class = "state"
	ClassIntegrity     Class = "integrity"
	ClassFunds         Class = "funds"
	ClassInternal      Class = "internal"
)

var classes = []struct {
	class Class
	errs  []error
}{
	{
		class: ClassAuthorization,
		errs: []error{
			access.ErrUnauthorized,
		},
	},
	{
		class: ClassFunds,
		errs: []error{
			currency.ErrInsufficientBalance,
			currency.ErrInsufficientAllowance,
			fractional.ErrInsufficientBalance,
			fractional.ErrInsufficientAllowance,
		},
	},
	{
		class: ClassState,
		errs: []error{
			registry.ErrAssetTypeNotFound,
			registry.ErrAssetNotFound,
			fractional.ErrTokenNotFound,
			fractional.ErrSnapshotNotFound,
			fractional.ErrRoundNotFound,
			fractional.ErrAlreadyClaimed,
			fractional.ErrNothingToClaim,
			lease.ErrLeaseNotFound,
			lease.ErrIntentExpired,
			lease.ErrIntentReplayed,
			marketplace.ErrOfferNotFound,
			marketplace.ErrOfferClosed,
			marketplace.ErrBidNotFound,
			marketplace.ErrBidInactive,
			marketplace.ErrTooManyBids,
			metadata.ErrKeyNotFound,
			currency.ErrUnknownToken,
			currency.ErrTokenExists,
			fractional.ErrTokenExists,
			access.ErrAlreadyInitialized,
		},
	},
	{
		class: ClassIntegrity,
		errs: []error{
			lease.ErrInvalidSignature,
			lease.ErrMalleable,
			lease.ErrSignerMismatch,
			lease.ErrSchemaMismatch,
			lease.ErrMissingLeaseKey,
			lease.ErrUnsupportedTermsVersion,
			lease.ErrInvalidTimeWindow,
			lease.ErrSameParty,
			lease.ErrZeroAddress,
			marketplace.ErrZeroAmount,
			marketplace.ErrLesseeNotEmpty,
			fractional.ErrZeroSupply,
			fractional.ErrZeroAmount,
			fractional.ErrZeroAddress,
			registry.ErrInvalidName,
			registry.ErrInvalidSymbol,
			registry.ErrZeroSchemaHash,
			registry.ErrInvalidLeaseKeys,
			registry.ErrZeroAddress,
			metadata.ErrEmptyKey,
			metadata.ErrKeyTooLong,
			metadata.ErrValueTooLong,
			metadata.ErrTooManyEntries,
			metadata.ErrNoEntries,
			currency.ErrZeroAddress,
			currency.ErrInvalidSymbol,
			currency.ErrSupplyOverflow,
			access.ErrUnknownRole,
			access.ErrZeroAddress,
			access.ErrSelfRevoke,
			metadata.ErrInvalidKind,
			events.ErrInvalidRange,
			marketplace.ErrInvalidLimit,
		},
	},
}

// Classify maps err to its rejection class. Authorization wins over the
// more specific reasons it is wrapped with.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassInternal
}
