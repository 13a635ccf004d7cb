// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fractional

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	safemath "github.com/faas-tech/space-markets-sub007/utils/math"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

// Snapshot freezes the current balances of token. Only the token admin may
// call it.
func (m *Manager) Snapshot(caller, token common.Address) (uint64, error) {
	info, err := m.requireAdmin(token, caller)
	if err != nil {
		return 0, err
	}
	return m.snapshot(info)
}

// TakeSnapshot freezes the current balances of token on behalf of the engine.
func (m *Manager) TakeSnapshot(token common.Address) (uint64, error) {
	info, err := m.Info(token)
	if err != nil {
		return 0, err
	}
	return m.snapshot(info)
}

func (m *Manager) snapshot(info *Info) (uint64, error) {
	holders, err := m.Holders(info.Address)
	if err != nil {
		return 0, err
	}
	id := info.Snapshots + 1
	for _, h := range holders {
		if err := state.PutAmount(m.db, snapshotBalanceKey(info.Address, id, h.Address), h.Balance); err != nil {
			return 0, err
		}
	}
	if err := state.PutAmount(m.db, snapshotSupplyKey(info.Address, id), &info.TotalSupply); err != nil {
		return 0, err
	}
	info.Snapshots = id
	if err := state.Put(m.db, infoKey(info.Address), info); err != nil {
		return 0, err
	}
	return id, m.emit.Emit(events.SnapshotTaken, &events.SnapshotPayload{
		Token:       info.Address,
		SnapshotID:  id,
		TotalSupply: info.TotalSupply.Dec(),
	})
}

// CurrentSnapshotID returns the id of the latest snapshot, zero if none.
func (m *Manager) CurrentSnapshotID(token common.Address) (uint64, error) {
	info, err := m.Info(token)
	if err != nil {
		return 0, err
	}
	return info.Snapshots, nil
}

func (m *Manager) BalanceOfAt(token common.Address, snapshotID uint64, holder common.Address) (*uint256.Int, error) {
	if err := m.checkSnapshot(token, snapshotID); err != nil {
		return nil, err
	}
	return state.Amount(m.db, snapshotBalanceKey(token, snapshotID, holder))
}

func (m *Manager) TotalSupplyAt(token common.Address, snapshotID uint64) (*uint256.Int, error) {
	if err := m.checkSnapshot(token, snapshotID); err != nil {
		return nil, err
	}
	return state.Amount(m.db, snapshotSupplyKey(token, snapshotID))
}

func (m *Manager) checkSnapshot(token common.Address, snapshotID uint64) error {
	info, err := m.Info(token)
	if err != nil {
		return err
	}
	if snapshotID == 0 || snapshotID > info.Snapshots {
		return fmt.Errorf("%w: %d of %s", ErrSnapshotNotFound, snapshotID, token)
	}
	return nil
}

// HoldersAt returns the non zero balances frozen in snapshotID, ordered by
// address.
func (m *Manager) HoldersAt(token common.Address, snapshotID uint64) ([]Holder, error) {
	if err := m.checkSnapshot(token, snapshotID); err != nil {
		return nil, err
	}
	prefix := state.Key(tagSnapshotBalance, token.Bytes(), state.Uint64(snapshotID))
	return m.iterateHolders(prefix)
}

// OpenRevenueRound pulls amount of paymentToken from caller into the token
// account and opens a claim window against snapshotID. The caller must have
// approved the token address as spender.
func (m *Manager) OpenRevenueRound(
	caller common.Address,
	token common.Address,
	snapshotID uint64,
	paymentToken common.Address,
	amount *uint256.Int,
) (uint64, error) {
	if amount.IsZero() {
		return 0, ErrZeroAmount
	}
	if err := m.checkSnapshot(token, snapshotID); err != nil {
		return 0, err
	}
	if err := m.ledger.TransferFrom(paymentToken, token, caller, token, amount); err != nil {
		return 0, err
	}

	info, err := m.Info(token)
	if err != nil {
		return 0, err
	}
	round := &Round{
		ID:           info.Rounds + 1,
		SnapshotID:   snapshotID,
		PaymentToken: paymentToken,
		Amount:       *amount,
		Funder:       caller,
		OpenedAt:     m.now(),
	}
	if err := state.Put(m.db, roundKey(token, round.ID), round); err != nil {
		return 0, err
	}
	info.Rounds = round.ID
	if err := state.Put(m.db, infoKey(token), info); err != nil {
		return 0, err
	}
	return round.ID, m.emit.Emit(events.RevenueRoundOpened, &events.RevenueRoundPayload{
		Token:        token,
		RoundID:      round.ID,
		SnapshotID:   snapshotID,
		PaymentToken: paymentToken,
		Amount:       amount.Dec(),
		Funder:       caller,
	})
}

func (m *Manager) GetRound(token common.Address, roundID uint64) (*Round, error) {
	round := &Round{}
	err := state.Get(m.db, roundKey(token, roundID), round)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d of %s", ErrRoundNotFound, roundID, token)
	}
	return round, err
}

// HasClaimed reports whether holder already claimed roundID.
func (m *Manager) HasClaimed(token common.Address, roundID uint64, holder common.Address) (bool, error) {
	return m.db.Has(claimKey(token, roundID, holder))
}

// Claimable returns what holder would receive from roundID, zero once
// claimed.
func (m *Manager) Claimable(token common.Address, roundID uint64, holder common.Address) (*uint256.Int, error) {
	round, err := m.GetRound(token, roundID)
	if err != nil {
		return nil, err
	}
	claimed, err := m.HasClaimed(token, roundID, holder)
	if err != nil {
		return nil, err
	}
	if claimed {
		return new(uint256.Int), nil
	}
	return m.entitlement(token, round, holder)
}

func (m *Manager) entitlement(token common.Address, round *Round, holder common.Address) (*uint256.Int, error) {
	balance, err := m.BalanceOfAt(token, round.SnapshotID, holder)
	if err != nil {
		return nil, err
	}
	total, err := m.TotalSupplyAt(token, round.SnapshotID)
	if err != nil {
		return nil, err
	}
	return safemath.Share(&round.Amount, balance, total), nil
}

// ClaimRevenue pays caller its share of roundID. Each holder can claim a
// round once.
func (m *Manager) ClaimRevenue(caller, token common.Address, roundID uint64) (*uint256.Int, error) {
	round, err := m.GetRound(token, roundID)
	if err != nil {
		return nil, err
	}
	claimed, err := m.HasClaimed(token, roundID, caller)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, fmt.Errorf("%w: round %d by %s", ErrAlreadyClaimed, roundID, caller)
	}
	share, err := m.entitlement(token, round, caller)
	if err != nil {
		return nil, err
	}
	if share.IsZero() {
		return nil, fmt.Errorf("%w: round %d by %s", ErrNothingToClaim, roundID, caller)
	}
	if err := m.db.Put(claimKey(token, roundID, caller), []byte{1}); err != nil {
		return nil, err
	}
	claimedTotal, err := safemath.AddAmount(&round.Claimed, share)
	if err != nil || claimedTotal.Gt(&round.Amount) {
		return nil, fmt.Errorf("%w: round %d over claimed", state.ErrStateCorrupted, roundID)
	}
	round.Claimed = *claimedTotal
	if err := state.Put(m.db, roundKey(token, roundID), round); err != nil {
		return nil, err
	}
	if err := m.ledger.Transfer(round.PaymentToken, token, caller, share); err != nil {
		return nil, err
	}
	return share, m.emit.Emit(events.RevenueClaimed, &events.RevenueClaimPayload{
		Token:   token,
		RoundID: roundID,
		Holder:  caller,
		Amount:  share.Dec(),
	})
}

func snapshotBalanceKey(token common.Address, id uint64, holder common.Address) []byte {
	return state.Key(tagSnapshotBalance, token.Bytes(), state.Uint64(id), holder.Bytes())
}

func snapshotSupplyKey(token common.Address, id uint64) []byte {
	return state.Key(tagSnapshotSupply, token.Bytes(), state.Uint64(id))
}

func roundKey(token common.Address, id uint64) []byte {
	return state.Key(tagRound, token.Bytes(), state.Uint64(id))
}

func claimKey(token common.Address, id uint64, holder common.Address) []byte {
	return state.Key(tagClaim, token.Bytes(), state.Uint64(id), holder.Bytes())
}
