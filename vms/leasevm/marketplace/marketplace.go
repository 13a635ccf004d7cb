// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package marketplace matches lessors and lessees. Lessors post offers,
// lessees bid with escrowed funds and a signature over the completed intent,
// and accepting a bid mints the lease, pays the fractional holders and
// refunds every other bid in one step.
package marketplace

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	safemath "github.com/faas-tech/space-markets-sub007/utils/math"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagOffer byte = iota
	tagBid
	tagOpen
	tagCount
)

var (
	ErrOfferNotFound  = errors.New("offer not found")
	ErrOfferClosed    = errors.New("offer is closed")
	ErrBidNotFound    = errors.New("bid not found")
	ErrBidInactive    = errors.New("bid is not active")
	ErrZeroAmount     = errors.New("escrow amount must be positive")
	ErrLesseeNotEmpty = errors.New("offer intent must leave the lessee empty")
	ErrNotController  = errors.New("caller does not control the asset")
	ErrNotLessor      = errors.New("caller is not the offer lessor")
	ErrNotBidder      = errors.New("caller is not the bidder")
	ErrInvalidMode    = errors.New("invalid distribution mode")
	ErrTooManyBids    = errors.New("too many bids on offer")
	ErrInvalidLimit   = errors.New("invalid limit")

	errEscrowUnderflow = errors.New("escrow distribution exceeds bid amount")

	countKey = state.Key(tagCount)
)

// MaxBids bounds the bids an offer accepts, which bounds the refund work of
// a single acceptance.
const MaxBids = 256

// DistributionMode selects whose balances an accepted escrow is split over.
type DistributionMode string

const (
	// DistributeCurrent splits over balances at acceptance time.
	DistributeCurrent DistributionMode = "current"
	// DistributeOfferSnapshot splits over a snapshot taken when the offer
	// was posted, so buying in after the offer earns nothing from it.
	DistributeOfferSnapshot DistributionMode = "offer-snapshot"
)

func (d DistributionMode) Valid() error {
	switch d {
	case DistributeCurrent, DistributeOfferSnapshot:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, d)
	}
}

// Offer is a posted lease offer. Intent is the full template signed by both
// parties once a bidder fills in the lessee.
type Offer struct {
	ID          uint64         `serialize:"true" json:"id"`
	AssetID     uint64         `serialize:"true" json:"assetId"`
	Lessor      common.Address `serialize:"true" json:"lessor"`
	Intent      lease.Intent   `serialize:"true" json:"intent"`
	Open        bool           `serialize:"true" json:"open"`
	Bids        uint32         `serialize:"true" json:"bids"`
	Accepted    bool           `serialize:"true" json:"accepted"`
	AcceptedBid uint32         `serialize:"true" json:"acceptedBid"`
	LeaseID     uint64         `serialize:"true" json:"leaseId"`
	SnapshotID  uint64         `serialize:"true" json:"snapshotId"`
	PostedAt    uint64         `serialize:"true" json:"postedAt"`
}

// Bid is an escrowed bid on an offer.
type Bid struct {
	OfferID   uint64         `serialize:"true" json:"offerId"`
	Index     uint32         `serialize:"true" json:"index"`
	Bidder    common.Address `serialize:"true" json:"bidder"`
	Amount    uint256.Int    `serialize:"true" json:"amount"`
	Signature []byte         `serialize:"true" json:"signature"`
	Active    bool           `serialize:"true" json:"active"`
	Accepted  bool           `serialize:"true" json:"accepted"`
	Refunded  bool           `serialize:"true" json:"refunded"`
	PlacedAt  uint64         `serialize:"true" json:"placedAt"`
}

// Marketplace holds escrow at its own address in the currency ledger.
type Marketplace struct {
	db      database.Database
	address common.Address
	mode    DistributionMode
	factory *lease.Factory
	assets  *registry.Registry
	tokens  *fractional.Manager
	ledger  currency.Ledger
	emit    events.Emitter
	now     func() uint64
}

func New(
	db database.Database,
	address common.Address,
	mode DistributionMode,
	factory *lease.Factory,
	assets *registry.Registry,
	tokens *fractional.Manager,
	ledger currency.Ledger,
	emit events.Emitter,
	now func() uint64,
) (*Marketplace, error) {
	if err := mode.Valid(); err != nil {
		return nil, err
	}
	return &Marketplace{
		db:      db,
		address: address,
		mode:    mode,
		factory: factory,
		assets:  assets,
		tokens:  tokens,
		ledger:  ledger,
		emit:    emit,
		now:     now,
	}, nil
}

// Address is the escrow custody address. Bidders approve it as spender.
func (m *Marketplace) Address() common.Address {
	return m.address
}

// PostLeaseOffer opens an offer for the asset named in intent. The caller
// must be the lessor and control the asset.
func (m *Marketplace) PostLeaseOffer(caller common.Address, intent *lease.Intent) (uint64, error) {
	if intent.Lease.Lessor != caller {
		return 0, fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotLessor)
	}
	if intent.Lease.Lessee != (common.Address{}) {
		return 0, ErrLesseeNotEmpty
	}
	asset, err := m.factory.Validate(intent, false)
	if err != nil {
		return 0, err
	}
	if err := m.requireControl(caller, asset); err != nil {
		return 0, err
	}

	id, err := state.NextID(m.db, countKey)
	if err != nil {
		return 0, err
	}
	offer := &Offer{
		ID:       id,
		AssetID:  asset.ID,
		Lessor:   caller,
		Intent:   *intent,
		Open:     true,
		PostedAt: m.now(),
	}
	if m.mode == DistributeOfferSnapshot {
		offer.SnapshotID, err = m.tokens.TakeSnapshot(asset.Token)
		if err != nil {
			return 0, err
		}
	}
	if err := m.putOffer(offer); err != nil {
		return 0, err
	}
	if err := m.db.Put(openKey(id), []byte{1}); err != nil {
		return 0, err
	}
	return id, m.emit.Emit(events.LeaseOfferPosted, &events.OfferPayload{
		OfferID:    id,
		AssetID:    asset.ID,
		Lessor:     caller,
		SnapshotID: offer.SnapshotID,
	})
}

// requireControl admits the asset issuer and any holder of more than half of
// the supply.
func (m *Marketplace) requireControl(caller common.Address, asset *registry.Asset) error {
	if caller == asset.Issuer {
		return nil
	}
	balance, err := m.tokens.BalanceOf(asset.Token, caller)
	if err != nil {
		return err
	}
	supply, err := m.tokens.TotalSupply(asset.Token)
	if err != nil {
		return err
	}
	doubled, overflow := new(uint256.Int).MulOverflow(balance, uint256.NewInt(2))
	if overflow || doubled.Gt(supply) {
		return nil
	}
	return fmt.Errorf("%w: %w: asset %d", access.ErrUnauthorized, ErrNotController, asset.ID)
}

// BidIntent returns the intent of offer completed with lessee. This is what
// a bidder signs.
func BidIntent(offer *Offer, lessee common.Address) *lease.Intent {
	intent := offer.Intent
	intent.Lease.Lessee = lessee
	return &intent
}

// PlaceLeaseBid escrows amount from caller against an open offer. The
// signature must be the caller's over the offer intent with the caller as
// lessee.
func (m *Marketplace) PlaceLeaseBid(caller common.Address, offerID uint64, lesseeSig []byte, amount *uint256.Int) (uint32, error) {
	offer, err := m.openOffer(offerID)
	if err != nil {
		return 0, err
	}
	if amount.IsZero() {
		return 0, ErrZeroAmount
	}
	if caller == offer.Lessor {
		return 0, lease.ErrSameParty
	}
	if offer.Bids >= MaxBids {
		return 0, fmt.Errorf("%w: %d", ErrTooManyBids, offer.Bids)
	}
	intent := BidIntent(offer, caller)
	if now := m.now(); intent.Deadline < now {
		return 0, fmt.Errorf("%w: deadline=%d now=%d", lease.ErrIntentExpired, intent.Deadline, now)
	}
	digest, err := m.factory.HashLeaseIntent(intent)
	if err != nil {
		return 0, err
	}
	if err := m.factory.Verify(digest, lesseeSig, caller); err != nil {
		return 0, err
	}
	paymentToken := offer.Intent.Lease.PaymentToken
	if err := m.ledger.TransferFrom(paymentToken, m.address, caller, m.address, amount); err != nil {
		return 0, err
	}

	bid := &Bid{
		OfferID:   offerID,
		Index:     offer.Bids,
		Bidder:    caller,
		Amount:    *amount,
		Signature: append([]byte(nil), lesseeSig...),
		Active:    true,
		PlacedAt:  m.now(),
	}
	offer.Bids++
	if err := m.putBid(bid); err != nil {
		return 0, err
	}
	if err := m.putOffer(offer); err != nil {
		return 0, err
	}
	return bid.Index, m.emit.Emit(events.BidPlaced, &events.BidPayload{
		OfferID:  offerID,
		BidIndex: bid.Index,
		Bidder:   caller,
		Amount:   amount.Dec(),
	})
}

// AcceptLeaseBid mints the lease for bidIndex, closes the offer, distributes
// the accepted escrow and refunds every other active bid. Any failure leaves
// nothing changed once the enclosing call is aborted.
func (m *Marketplace) AcceptLeaseBid(caller common.Address, offerID uint64, bidIndex uint32, lessorSig []byte) (uint64, error) {
	offer, err := m.openOffer(offerID)
	if err != nil {
		return 0, err
	}
	if caller != offer.Lessor {
		return 0, fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotLessor)
	}
	bid, err := m.GetBid(offerID, bidIndex)
	if err != nil {
		return 0, err
	}
	if !bid.Active {
		return 0, fmt.Errorf("%w: offer %d bid %d", ErrBidInactive, offerID, bidIndex)
	}

	leaseID, err := m.factory.MintLease(BidIntent(offer, bid.Bidder), lessorSig, bid.Signature)
	if err != nil {
		return 0, err
	}

	offer.Open = false
	offer.Accepted = true
	offer.AcceptedBid = bidIndex
	offer.LeaseID = leaseID
	if err := m.putOffer(offer); err != nil {
		return 0, err
	}
	if err := m.db.Delete(openKey(offerID)); err != nil {
		return 0, err
	}
	bid.Active = false
	bid.Accepted = true
	if err := m.putBid(bid); err != nil {
		return 0, err
	}

	if err := m.distribute(offer, &bid.Amount); err != nil {
		return 0, err
	}
	if err := m.refundActive(offer); err != nil {
		return 0, err
	}
	return leaseID, m.emit.Emit(events.BidAccepted, &events.BidAcceptedPayload{
		OfferID:  offerID,
		BidIndex: bidIndex,
		Bidder:   bid.Bidder,
		LeaseID:  leaseID,
		Amount:   bid.Amount.Dec(),
	})
}

// distribute splits amount pro rata over the fractional holders of the
// offer's asset. Truncation dust goes to the lessor.
func (m *Marketplace) distribute(offer *Offer, amount *uint256.Int) error {
	asset, err := m.assets.GetAsset(offer.AssetID)
	if err != nil {
		return err
	}
	var (
		holders []fractional.Holder
		total   *uint256.Int
	)
	if offer.SnapshotID != 0 {
		holders, err = m.tokens.HoldersAt(asset.Token, offer.SnapshotID)
		if err != nil {
			return err
		}
		total, err = m.tokens.TotalSupplyAt(asset.Token, offer.SnapshotID)
	} else {
		holders, err = m.tokens.Holders(asset.Token)
		if err != nil {
			return err
		}
		total, err = m.tokens.TotalSupply(asset.Token)
	}
	if err != nil {
		return err
	}

	paymentToken := offer.Intent.Lease.PaymentToken
	remaining := new(uint256.Int).Set(amount)
	for _, h := range holders {
		share := safemath.Share(amount, h.Balance, total)
		if share.IsZero() {
			continue
		}
		remaining, err = safemath.SubAmount(remaining, share)
		if err != nil {
			return fmt.Errorf("%w: %w", errEscrowUnderflow, err)
		}
		if err := m.pay(offer, paymentToken, h.Address, share); err != nil {
			return err
		}
	}
	if remaining.IsZero() {
		return nil
	}
	return m.pay(offer, paymentToken, offer.Lessor, remaining)
}

func (m *Marketplace) pay(offer *Offer, paymentToken, to common.Address, amount *uint256.Int) error {
	if err := m.ledger.Transfer(paymentToken, m.address, to, amount); err != nil {
		return err
	}
	return m.emit.Emit(events.EscrowDistributed, &events.DistributionPayload{
		OfferID:    offer.ID,
		AssetID:    offer.AssetID,
		Holder:     to,
		Amount:     amount.Dec(),
		SnapshotID: offer.SnapshotID,
	})
}

func (m *Marketplace) refundActive(offer *Offer) error {
	for i := uint32(0); i < offer.Bids; i++ {
		bid, err := m.GetBid(offer.ID, i)
		if err != nil {
			return err
		}
		if !bid.Active {
			continue
		}
		if err := m.refund(offer, bid); err != nil {
			return err
		}
	}
	return nil
}

// refund returns the escrow of an active bid. The bid is deactivated before
// funds move, so each bid is refunded at most once.
func (m *Marketplace) refund(offer *Offer, bid *Bid) error {
	if !bid.Active || bid.Refunded {
		return fmt.Errorf("%w: offer %d bid %d", ErrBidInactive, bid.OfferID, bid.Index)
	}
	bid.Active = false
	bid.Refunded = true
	if err := m.putBid(bid); err != nil {
		return err
	}
	if err := m.ledger.Transfer(offer.Intent.Lease.PaymentToken, m.address, bid.Bidder, &bid.Amount); err != nil {
		return err
	}
	return m.emit.Emit(events.BidRefunded, &events.BidPayload{
		OfferID:  bid.OfferID,
		BidIndex: bid.Index,
		Bidder:   bid.Bidder,
		Amount:   bid.Amount.Dec(),
	})
}

// WithdrawLeaseBid refunds an active bid on an open offer to its bidder.
func (m *Marketplace) WithdrawLeaseBid(caller common.Address, offerID uint64, bidIndex uint32) error {
	offer, err := m.openOffer(offerID)
	if err != nil {
		return err
	}
	bid, err := m.GetBid(offerID, bidIndex)
	if err != nil {
		return err
	}
	if bid.Bidder != caller {
		return fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotBidder)
	}
	if err := m.refund(offer, bid); err != nil {
		return err
	}
	return m.emit.Emit(events.BidWithdrawn, &events.BidPayload{
		OfferID:  offerID,
		BidIndex: bidIndex,
		Bidder:   caller,
		Amount:   bid.Amount.Dec(),
	})
}

// CancelLeaseOffer closes an open offer without a lease and refunds every
// active bid.
func (m *Marketplace) CancelLeaseOffer(caller common.Address, offerID uint64) error {
	offer, err := m.openOffer(offerID)
	if err != nil {
		return err
	}
	if caller != offer.Lessor {
		return fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotLessor)
	}
	offer.Open = false
	if err := m.putOffer(offer); err != nil {
		return err
	}
	if err := m.db.Delete(openKey(offerID)); err != nil {
		return err
	}
	if err := m.refundActive(offer); err != nil {
		return err
	}
	return m.emit.Emit(events.LeaseOfferCancelled, &events.OfferPayload{
		OfferID: offerID,
		AssetID: offer.AssetID,
		Lessor:  caller,
	})
}

func (m *Marketplace) GetOffer(id uint64) (*Offer, error) {
	offer := &Offer{}
	err := state.Get(m.db, offerKey(id), offer)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrOfferNotFound, id)
	}
	return offer, err
}

func (m *Marketplace) openOffer(id uint64) (*Offer, error) {
	offer, err := m.GetOffer(id)
	if err != nil {
		return nil, err
	}
	if !offer.Open {
		return nil, fmt.Errorf("%w: %d", ErrOfferClosed, id)
	}
	return offer, nil
}

func (m *Marketplace) GetBid(offerID uint64, index uint32) (*Bid, error) {
	bid := &Bid{}
	err := state.Get(m.db, bidKey(offerID, index), bid)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: offer %d bid %d", ErrBidNotFound, offerID, index)
	}
	return bid, err
}

// GetBids returns every bid of an offer in placement order.
func (m *Marketplace) GetBids(offerID uint64) ([]*Bid, error) {
	offer, err := m.GetOffer(offerID)
	if err != nil {
		return nil, err
	}
	bids := make([]*Bid, 0, offer.Bids)
	for i := uint32(0); i < offer.Bids; i++ {
		bid, err := m.GetBid(offerID, i)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, nil
}

func (m *Marketplace) OfferCount() (uint64, error) {
	return state.Counter(m.db, countKey)
}

func (m *Marketplace) putOffer(offer *Offer) error {
	return state.Put(m.db, offerKey(offer.ID), offer)
}

func (m *Marketplace) putBid(bid *Bid) error {
	return state.Put(m.db, bidKey(bid.OfferID, bid.Index), bid)
}

func offerKey(id uint64) []byte {
	return state.Key(tagOffer, state.Uint64(id))
}

func bidKey(offerID uint64, index uint32) []byte {
	return state.Key(tagBid, state.Uint64(offerID), state.Uint32(index))
}

func openKey(id uint64) []byte {
	return state.Key(tagOpen, state.Uint64(id))
}
