// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fractional implements the per asset fractional ownership tokens.
//
// A token is a transferable balance ledger with a fixed supply minted once at
// deployment. Balances can be frozen into snapshots, and revenue rounds pay a
// pool of payment currency out pro rata to a snapshot.
package fractional

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagInfo byte = iota
	tagBalance
	tagAllowance
	tagSnapshotBalance
	tagSnapshotSupply
	tagRound
	tagClaim
)

var (
	ErrTokenNotFound         = errors.New("token not found")
	ErrTokenExists           = errors.New("token already deployed")
	ErrZeroSupply            = errors.New("total supply must be positive")
	ErrZeroAddress           = errors.New("zero address")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrSnapshotNotFound      = errors.New("snapshot not found")
	ErrRoundNotFound         = errors.New("revenue round not found")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrAlreadyClaimed        = errors.New("revenue already claimed")
	ErrNothingToClaim        = errors.New("nothing to claim")
)

// Info is the immutable description of a deployed token plus its counters.
type Info struct {
	Address     common.Address `serialize:"true" json:"address"`
	AssetID     uint64         `serialize:"true" json:"assetId"`
	Name        string         `serialize:"true" json:"name"`
	Symbol      string         `serialize:"true" json:"symbol"`
	TotalSupply uint256.Int    `serialize:"true" json:"totalSupply"`
	Admin       common.Address `serialize:"true" json:"admin"`
	Snapshots   uint64         `serialize:"true" json:"snapshots"`
	Rounds      uint64         `serialize:"true" json:"rounds"`
}

// Round is a revenue distribution against a snapshot.
type Round struct {
	ID           uint64         `serialize:"true" json:"id"`
	SnapshotID   uint64         `serialize:"true" json:"snapshotId"`
	PaymentToken common.Address `serialize:"true" json:"paymentToken"`
	Amount       uint256.Int    `serialize:"true" json:"amount"`
	Claimed      uint256.Int    `serialize:"true" json:"claimed"`
	Funder       common.Address `serialize:"true" json:"funder"`
	OpenedAt     uint64         `serialize:"true" json:"openedAt"`
}

// Holder is a non zero balance entry.
type Holder struct {
	Address common.Address
	Balance *uint256.Int
}

type Manager struct {
	db       database.Database
	deployer common.Address
	ledger   currency.Ledger
	meta     *metadata.Store
	emit     events.Emitter
	now      func() uint64
}

// New returns a token manager. Token addresses are derived from deployer.
func New(
	db database.Database,
	deployer common.Address,
	ledger currency.Ledger,
	meta *metadata.Store,
	emit events.Emitter,
	now func() uint64,
) *Manager {
	return &Manager{
		db:       db,
		deployer: deployer,
		ledger:   ledger,
		meta:     meta,
		emit:     emit,
		now:      now,
	}
}

// AddressOf returns the address the token of assetID is deployed at.
func (m *Manager) AddressOf(assetID uint64) common.Address {
	return crypto.CreateAddress(m.deployer, assetID)
}

// Deploy creates the token of assetID and mints supply to recipient.
func (m *Manager) Deploy(
	assetID uint64,
	name string,
	symbol string,
	supply *uint256.Int,
	admin common.Address,
	recipient common.Address,
) (common.Address, error) {
	if supply.IsZero() {
		return common.Address{}, ErrZeroSupply
	}
	if recipient == (common.Address{}) || admin == (common.Address{}) {
		return common.Address{}, ErrZeroAddress
	}
	addr := m.AddressOf(assetID)
	exists, err := m.db.Has(infoKey(addr))
	if err != nil {
		return common.Address{}, err
	}
	if exists {
		return common.Address{}, fmt.Errorf("%w: %s", ErrTokenExists, addr)
	}
	info := &Info{
		Address:     addr,
		AssetID:     assetID,
		Name:        name,
		Symbol:      symbol,
		TotalSupply: *supply,
		Admin:       admin,
	}
	if err := state.Put(m.db, infoKey(addr), info); err != nil {
		return common.Address{}, err
	}
	if err := state.PutAmount(m.db, balanceKey(addr, recipient), supply); err != nil {
		return common.Address{}, err
	}
	return addr, m.emit.Emit(events.TokenTransfer, &events.TransferPayload{
		Token:  addr,
		To:     recipient,
		Amount: supply.Dec(),
	})
}

func (m *Manager) Info(token common.Address) (*Info, error) {
	info := &Info{}
	err := state.Get(m.db, infoKey(token), info)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}
	return info, err
}

func (m *Manager) TotalSupply(token common.Address) (*uint256.Int, error) {
	info, err := m.Info(token)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&info.TotalSupply), nil
}

func (m *Manager) BalanceOf(token, holder common.Address) (*uint256.Int, error) {
	return state.Amount(m.db, balanceKey(token, holder))
}

func (m *Manager) Allowance(token, owner, spender common.Address) (*uint256.Int, error) {
	return state.Amount(m.db, allowanceKey(token, owner, spender))
}

// Transfer moves amount from from to to.
func (m *Manager) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := m.Info(token); err != nil {
		return err
	}
	fromKey := balanceKey(token, from)
	fromBalance, err := state.Amount(m.db, fromKey)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from, fromBalance.Dec(), amount.Dec())
	}
	if err := state.PutAmount(m.db, fromKey, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toKey := balanceKey(token, to)
	toBalance, err := state.Amount(m.db, toKey)
	if err != nil {
		return err
	}
	// Cannot overflow, balances are bounded by the fixed total supply.
	if err := state.PutAmount(m.db, toKey, toBalance.Add(toBalance, amount)); err != nil {
		return err
	}
	return m.emit.Emit(events.TokenTransfer, &events.TransferPayload{
		Token:  token,
		From:   from,
		To:     to,
		Amount: amount.Dec(),
	})
}

func (m *Manager) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	if spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, err := m.Info(token); err != nil {
		return err
	}
	if err := state.PutAmount(m.db, allowanceKey(token, owner, spender), amount); err != nil {
		return err
	}
	return m.emit.Emit(events.TokenApproval, &events.ApprovalPayload{
		Token:   token,
		Owner:   owner,
		Spender: spender,
		Amount:  amount.Dec(),
	})
}

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

// Holders returns every address with a non zero balance, ordered by address.
func (m *Manager) Holders(token common.Address) ([]Holder, error) {
	if _, err := m.Info(token); err != nil {
		return nil, err
	}
	return m.iterateHolders(state.Key(tagBalance, token.Bytes()))
}

func (m *Manager) iterateHolders(prefix []byte) ([]Holder, error) {
	it := m.db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	var holders []Holder
	for it.Next() {
		key := it.Key()
		value := it.Value()
		if len(key) != len(prefix)+common.AddressLength || len(value) != 32 {
			return nil, fmt.Errorf("%w: malformed balance entry", state.ErrStateCorrupted)
		}
		holders = append(holders, Holder{
			Address: common.BytesToAddress(key[len(prefix):]),
			Balance: new(uint256.Int).SetBytes32(value),
		})
	}
	return holders, it.Error()
}

// SetMetadata writes token metadata. The namespace authority restricts
// writes to the token admin.
func (m *Manager) SetMetadata(caller, token common.Address, entries []metadata.Entry) error {
	info, err := m.Info(token)
	if err != nil {
		return err
	}
	return m.meta.SetMetadata(caller, metadata.Token(info.AssetID), entries)
}

func (m *Manager) GetMetadata(token common.Address, key string) (string, bool, error) {
	info, err := m.Info(token)
	if err != nil {
		return "", false, err
	}
	return m.meta.GetMetadata(metadata.Token(info.AssetID), key)
}

// IsAdmin reports whether account administers token.
func (m *Manager) IsAdmin(token, account common.Address) (bool, error) {
	info, err := m.Info(token)
	if err != nil {
		return false, err
	}
	return info.Admin == account, nil
}

func (m *Manager) requireAdmin(token, caller common.Address) (*Info, error) {
	info, err := m.Info(token)
	if err != nil {
		return nil, err
	}
	if info.Admin != caller {
		return nil, fmt.Errorf("%w: %s is not the admin of %s", access.ErrUnauthorized, caller, token)
	}
	return info, nil
}

func infoKey(token common.Address) []byte {
	return state.Key(tagInfo, token.Bytes())
}

func balanceKey(token, holder common.Address) []byte {
	return state.Key(tagBalance, token.Bytes(), holder.Bytes())
}

func allowanceKey(token, owner, spender common.Address) []byte {
	return state.Key(tagAllowance, token.Bytes(), owner.Bytes(), spender.Bytes())
}
