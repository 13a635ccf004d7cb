// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package currency is a multi token fungible ledger holding the stablecoins
// used for rent, deposits, bid escrow and revenue rounds.
package currency

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagCurrency byte = iota
	tagBalance
	tagAllowance
)

const MaxSymbolLength = 16

var (
	ErrUnknownToken          = errors.New("unknown payment token")
	ErrTokenExists           = errors.New("payment token already registered")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
	ErrSupplyOverflow        = errors.New("total supply overflow")
)

// Currency describes a registered payment token.
type Currency struct {
	Address     common.Address `serialize:"true" json:"address"`
	Symbol      string         `serialize:"true" json:"symbol"`
	Decimals    uint8          `serialize:"true" json:"decimals"`
	TotalSupply uint256.Int    `serialize:"true" json:"totalSupply"`
}

// Ledger is the subset of the currency ledger used by settlement code.
type Ledger interface {
	IsRegistered(token common.Address) (bool, error)
	BalanceOf(token, holder common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error
}

var _ Ledger = (*Manager)(nil)

type Manager struct {
	db    database.Database
	roles *access.Controller
	emit  events.Emitter
}

func New(db database.Database, roles *access.Controller, emit events.Emitter) *Manager {
	return &Manager{
		db:    db,
		roles: roles,
		emit:  emit,
	}
}

// Register adds a payment token. Only admins may register tokens.
func (m *Manager) Register(caller, token common.Address, symbol string, decimals uint8) error {
	if err := m.roles.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	if token == (common.Address{}) {
		return ErrZeroAddress
	}
	if symbol == "" || len(symbol) > MaxSymbolLength {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	exists, err := m.IsRegistered(token)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, token)
	}
	c := &Currency{
		Address:  token,
		Symbol:   symbol,
		Decimals: decimals,
	}
	if err := state.Put(m.db, currencyKey(token), c); err != nil {
		return err
	}
	return m.emit.Emit(events.CurrencyRegistered, &events.CurrencyRegisteredPayload{
		Token:    token,
		Symbol:   symbol,
		Decimals: decimals,
	})
}

func (m *Manager) IsRegistered(token common.Address) (bool, error) {
	return m.db.Has(currencyKey(token))
}

func (m *Manager) Get(token common.Address) (*Currency, error) {
	c := &Currency{}
	err := state.Get(m.db, currencyKey(token), c)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return c, err
}

// Mint credits amount of token to to. Only admins may mint.
func (m *Manager) Mint(caller, token, to common.Address, amount *uint256.Int) error {
	if err := m.roles.Require(caller, access.RoleAdmin); err != nil {
		return err
	}
	return m.mint(token, to, amount)
}

// MintGenesis credits amount without a role check. It is only used while
// applying the genesis allocations.
func (m *Manager) MintGenesis(token, to common.Address, amount *uint256.Int) error {
	return m.mint(token, to, amount)
}

func (m *Manager) mint(token, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c, err := m.Get(token)
	if err != nil {
		return err
	}
	if _, overflow := c.TotalSupply.AddOverflow(&c.TotalSupply, amount); overflow {
		return ErrSupplyOverflow
	}
	if err := m.credit(token, to, amount); err != nil {
		return err
	}
	if err := state.Put(m.db, currencyKey(token), c); err != nil {
		return err
	}
	return m.emit.Emit(events.CurrencyTransfer, &events.TransferPayload{
		Token:  token,
		To:     to,
		Amount: amount.Dec(),
	})
}

func (m *Manager) TotalSupply(token common.Address) (*uint256.Int, error) {
	c, err := m.Get(token)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&c.TotalSupply), nil
}

func (m *Manager) BalanceOf(token, holder common.Address) (*uint256.Int, error) {
	return state.Amount(m.db, balanceKey(token, holder))
}

func (m *Manager) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	return state.Amount(m.db, allowanceKey(token, owner, spender))
}

// Transfer moves amount of token from from to to. The caller is the sender.
func (m *Manager) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := m.Get(token); err != nil {
		return err
	}
	if err := m.debit(token, from, amount); err != nil {
		return err
	}
	if err := m.credit(token, to, amount); err != nil {
		return err
	}
	return m.emit.Emit(events.CurrencyTransfer, &events.TransferPayload{
		Token:  token,
		From:   from,
		To:     to,
		Amount: amount.Dec(),
	})
}

// Approve sets the amount spender may pull from owner.
func (m *Manager) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := m.Get(token); err != nil {
		return err
	}
	if err := state.PutAmount(m.db, allowanceKey(token, owner, spender), amount); err != nil {
		return err
	}
	return m.emit.Emit(events.CurrencyApproval, &events.ApprovalPayload{
		Token:   token,
		Owner:   owner,
		Spender: spender,
		Amount:  amount.Dec(),
	})
}

// TransferFrom moves amount from from to to using spender's allowance.
func (m *Manager) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	key := allowanceKey(token, from, spender)
	allowance, err := state.Amount(m.db, key)
	if err != nil {
		return err
	}
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allowed %s, need %s", ErrInsufficientAllowance, spender, allowance.Dec(), amount.Dec())
	}
	if err := m.Transfer(token, from, to, amount); err != nil {
		return err
	}
	return state.PutAmount(m.db, key, allowance.Sub(allowance, amount))
}

func (m *Manager) debit(token, holder common.Address, amount *uint256.Int) error {
	key := balanceKey(token, holder)
	balance, err := state.Amount(m.db, key)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, holder, balance.Dec(), amount.Dec())
	}
	return state.PutAmount(m.db, key, balance.Sub(balance, amount))
}

func (m *Manager) credit(token, holder common.Address, amount *uint256.Int) error {
	key := balanceKey(token, holder)
	balance, err := state.Amount(m.db, key)
	if err != nil {
		return err
	}
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return ErrSupplyOverflow
	}
	return state.PutAmount(m.db, key, balance)
}

func currencyKey(token common.Address) []byte {
	return state.Key(tagCurrency, token.Bytes())
}

func balanceKey(token, holder common.Address) []byte {
	return state.Key(tagBalance, token.Bytes(), holder.Bytes())
}

func allowanceKey(token, owner, spender common.Address) []byte {
	return state.Key(tagAllowance, token.Bytes(), owner.Bytes(), spender.Bytes())
}
