// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leasevm implements an asset leasing VM.
//
// The VM keeps a registry of leasable assets, each backed by a fractional
// ownership token, mints lease certificates from intents signed by both
// parties and runs a marketplace where lessees escrow bids and the accepted
// escrow is paid out to the owners of the asset.
//
// Every state changing call runs inside one versioned database transaction
// and is either committed as a whole or discarded.
package leasevm

import (
	"github.com/luxfi/log"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/config"
)

// VMID is the unique identifier for the lease VM.
var VMID = [32]byte{'l', 'e', 'a', 's', 'e', 'v', 'm'}

// Factory creates new lease VM instances.
type Factory struct {
	config.Config
}

// New returns an uninitialized VM carrying the factory config.
func (f *Factory) New(logger log.Logger) (interface{}, error) {
	return New(f.Config, logger), nil
}
