// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var errInvalidGenesis = errors.New("invalid genesis")

// Genesis is the initial state of a deployment.
type Genesis struct {
	Admin          common.Address    `json:"admin"`
	Registrars     []common.Address  `json:"registrars"`
	MetadataAdmins []common.Address  `json:"metadataAdmins"`
	Currencies     []GenesisCurrency `json:"currencies"`
}

// GenesisCurrency registers a payment token and its initial balances.
type GenesisCurrency struct {
	Address     common.Address      `json:"address"`
	Symbol      string              `json:"symbol"`
	Decimals    uint8               `json:"decimals"`
	Allocations []GenesisAllocation `json:"allocations"`
}

// GenesisAllocation credits Amount, a base 10 string, to To.
type GenesisAllocation struct {
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

// ParseGenesis decodes and checks genesis bytes.
func ParseGenesis(b []byte) (*Genesis, error) {
	g := &Genesis{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	if g.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: admin must be set", errInvalidGenesis)
	}
	for _, c := range g.Currencies {
		for _, a := range c.Allocations {
			if _, err := a.Value(); err != nil {
				return nil, fmt.Errorf("%w: %s allocation to %s: %w", errInvalidGenesis, c.Symbol, a.To, err)
			}
		}
	}
	return g, nil
}

// Value parses Amount.
func (a GenesisAllocation) Value() (*uint256.Int, error) {
	return uint256.FromDecimal(a.Amount)
}
