// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package marketplace

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
)

var (
	admin     = common.HexToAddress("0xa000000000000000000000000000000000000001")
	registrar = common.HexToAddress("0x4e60000000000000000000000000000000000001")
	holder    = common.HexToAddress("0x4010000000000000000000000000000000000001")
	usdc      = common.HexToAddress("0x5dc0000000000000000000000000000000000001")
	deployer  = common.HexToAddress("0x4e61000000000000000000000000000000000001")
	custody   = common.HexToAddress("0x3a4c000000000000000000000000000000000001")

	schema = crypto.Keccak256Hash([]byte("satellite-schema-v1"))
	domain = lease.Domain{
		ChainID:           big.NewInt(96369),
		VerifyingContract: common.HexToAddress("0xfac7000000000000000000000000000000000001"),
	}
	now = time.Unix(1_700_000_000, 0)
)

type roleAuthority struct {
	roles *access.Controller
}

func (a roleAuthority) CanWrite(caller common.Address, _ metadata.Namespace) (bool, error) {
	return a.roles.HasRole(caller, access.RoleAdmin)
}

type env struct {
	market  *Marketplace
	factory *lease.Factory
	tokens  *fractional.Manager
	ledger  *currency.Manager
	token   common.Address
	assetID uint64
	issuer  *ecdsa.PrivateKey
}

func newEnv(t *testing.T, mode DistributionMode) *env {
	t.Helper()
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(now)
	log := events.NewLog(memdb.New(), clock)
	roles := access.New(memdb.New(), log)
	require.NoError(roles.Initialize(admin))
	require.NoError(roles.Grant(admin, access.RoleRegistrar, registrar))

	meta := metadata.New(memdb.New(), log)
	meta.SetAuthority(roleAuthority{roles: roles})
	ledger := currency.New(memdb.New(), roles, log)
	require.NoError(ledger.Register(admin, usdc, "USDC", 6))
	tokens := fractional.New(memdb.New(), deployer, ledger, meta, log, clock.Unix)
	reg := registry.New(memdb.New(), roles, tokens, meta, log, clock.Unix)
	factory, err := lease.New(memdb.New(), domain, reg, ledger, meta, log, clock.Unix)
	require.NoError(err)
	market, err := New(memdb.New(), custody, mode, factory, reg, tokens, ledger, log, clock.Unix)
	require.NoError(err)

	issuer, err := crypto.GenerateKey()
	require.NoError(err)
	typeID, err := reg.CreateAssetType(admin, "Satellite", schema, []string{"purpose"}, nil)
	require.NoError(err)
	assetID, token, err := reg.RegisterAsset(registrar, &registry.RegisterAssetArgs{
		TypeID:         typeID,
		Name:           "Satellite Alpha",
		Symbol:         "SATA",
		TotalSupply:    uint256.NewInt(1_000),
		Admin:          admin,
		TokenRecipient: crypto.PubkeyToAddress(issuer.PublicKey),
	})
	require.NoError(err)

	return &env{
		market:  market,
		factory: factory,
		tokens:  tokens,
		ledger:  ledger,
		token:   token,
		assetID: assetID,
		issuer:  issuer,
	}
}

func (e *env) lessor() common.Address {
	return crypto.PubkeyToAddress(e.issuer.PublicKey)
}

func (e *env) intent(rent uint64) *lease.Intent {
	return &lease.Intent{
		Deadline:            uint64(now.Add(time.Hour).Unix()),
		AssetTypeSchemaHash: schema,
		Lease: lease.Lease{
			Terms: lease.Terms{
				Lessor:       e.lessor(),
				AssetID:      *uint256.NewInt(e.assetID),
				PaymentToken: usdc,
				RentAmount:   *uint256.NewInt(rent),
				RentPeriod:   *uint256.NewInt(3600),
				StartTime:    uint64(now.Unix()),
				EndTime:      uint64(now.Add(24 * time.Hour).Unix()),
				TermsVersion: lease.TermsVersion,
			},
			Metadata: []metadata.Entry{{Key: "purpose", Value: "Commercial Use"}},
		},
	}
}

type bidder struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func (e *env) newBidder(t *testing.T, funds uint64) bidder {
	t.Helper()
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(e.ledger.Mint(admin, usdc, addr, uint256.NewInt(funds)))
	require.NoError(e.ledger.Approve(usdc, addr, custody, uint256.NewInt(funds)))
	return bidder{key: key, addr: addr}
}

func (e *env) bid(t *testing.T, offerID uint64, b bidder, amount uint64) uint32 {
	t.Helper()
	require := require.New(t)

	offer, err := e.market.GetOffer(offerID)
	require.NoError(err)
	sig, err := lease.SignIntent(domain, BidIntent(offer, b.addr), b.key)
	require.NoError(err)
	index, err := e.market.PlaceLeaseBid(b.addr, offerID, sig, uint256.NewInt(amount))
	require.NoError(err)
	return index
}

func (e *env) lessorSig(t *testing.T, offerID uint64, index uint32) []byte {
	t.Helper()
	require := require.New(t)

	offer, err := e.market.GetOffer(offerID)
	require.NoError(err)
	bid, err := e.market.GetBid(offerID, index)
	require.NoError(err)
	sig, err := lease.SignIntent(domain, BidIntent(offer, bid.Bidder), e.issuer)
	require.NoError(err)
	return sig
}

func (e *env) balance(t *testing.T, addr common.Address) uint64 {
	t.Helper()
	b, err := e.ledger.BalanceOf(usdc, addr)
	require.NoError(t, err)
	return b.Uint64()
}

func TestPostLeaseOffer(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	stranger := e.intent(100)
	stranger.Lease.Lessor = holder
	_, err := e.market.PostLeaseOffer(holder, stranger)
	require.ErrorIs(err, access.ErrUnauthorized)

	wrongCaller := e.intent(100)
	_, err = e.market.PostLeaseOffer(holder, wrongCaller)
	require.ErrorIs(err, ErrNotLessor)

	filled := e.intent(100)
	filled.Lease.Lessee = holder
	_, err = e.market.PostLeaseOffer(e.lessor(), filled)
	require.ErrorIs(err, ErrLesseeNotEmpty)

	badSchema := e.intent(100)
	badSchema.AssetTypeSchemaHash = common.Hash{1}
	_, err = e.market.PostLeaseOffer(e.lessor(), badSchema)
	require.ErrorIs(err, lease.ErrSchemaMismatch)

	id, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)
	offer, err := e.market.GetOffer(id)
	require.NoError(err)
	require.True(offer.Open)
	require.Equal(e.assetID, offer.AssetID)
	require.Zero(offer.SnapshotID)

	// A majority holder controls the asset too.
	require.NoError(e.tokens.Transfer(e.token, e.lessor(), holder, uint256.NewInt(501)))
	majority := e.intent(100)
	majority.Lease.Lessor = holder
	_, err = e.market.PostLeaseOffer(holder, majority)
	require.NoError(err)
}

func TestPlaceLeaseBid(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)
	offer, err := e.market.GetOffer(offerID)
	require.NoError(err)

	alice := e.newBidder(t, 1_000)
	bob := e.newBidder(t, 1_000)

	aliceSig, err := lease.SignIntent(domain, BidIntent(offer, alice.addr), alice.key)
	require.NoError(err)

	_, err = e.market.PlaceLeaseBid(bob.addr, offerID, aliceSig, uint256.NewInt(10))
	require.ErrorIs(err, lease.ErrSignerMismatch)

	_, err = e.market.PlaceLeaseBid(alice.addr, offerID, aliceSig, new(uint256.Int))
	require.ErrorIs(err, ErrZeroAmount)

	_, err = e.market.PlaceLeaseBid(alice.addr, offerID, aliceSig, uint256.NewInt(1_001))
	require.ErrorIs(err, currency.ErrInsufficientAllowance)

	_, err = e.market.PlaceLeaseBid(alice.addr, offerID+1, aliceSig, uint256.NewInt(10))
	require.ErrorIs(err, ErrOfferNotFound)

	index, err := e.market.PlaceLeaseBid(alice.addr, offerID, aliceSig, uint256.NewInt(10))
	require.NoError(err)
	require.Zero(index)

	require.Equal(uint64(990), e.balance(t, alice.addr))
	require.Equal(uint64(10), e.balance(t, custody))

	bid, err := e.market.GetBid(offerID, index)
	require.NoError(err)
	require.True(bid.Active)
	require.Equal(alice.addr, bid.Bidder)
}

func TestBidExclusivity(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	require.NoError(e.tokens.Transfer(e.token, e.lessor(), holder, uint256.NewInt(200)))
	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)

	bidders := []bidder{
		e.newBidder(t, 1_000),
		e.newBidder(t, 1_000),
		e.newBidder(t, 1_000),
	}
	amounts := []uint64{300, 500, 400}
	for i, b := range bidders {
		require.Equal(uint32(i), e.bid(t, offerID, b, amounts[i]))
	}
	require.Equal(uint64(1_200), e.balance(t, custody))

	leaseID, err := e.market.AcceptLeaseBid(e.lessor(), offerID, 1, e.lessorSig(t, offerID, 1))
	require.NoError(err)

	owner, err := e.factory.OwnerOf(leaseID)
	require.NoError(err)
	require.Equal(bidders[1].addr, owner)

	bids, err := e.market.GetBids(offerID)
	require.NoError(err)
	require.Len(bids, 3)
	for i, bid := range bids {
		require.False(bid.Active, "bid %d", i)
		require.Equal(i == 1, bid.Accepted, "bid %d", i)
		require.Equal(i != 1, bid.Refunded, "bid %d", i)
	}

	require.Equal(uint64(1_000), e.balance(t, bidders[0].addr))
	require.Equal(uint64(500), e.balance(t, bidders[1].addr))
	require.Equal(uint64(1_000), e.balance(t, bidders[2].addr))
	require.Equal(uint64(400), e.balance(t, e.lessor()))
	require.Equal(uint64(100), e.balance(t, holder))
	require.Zero(e.balance(t, custody))

	_, err = e.market.AcceptLeaseBid(e.lessor(), offerID, 0, e.lessorSig(t, offerID, 0))
	require.ErrorIs(err, ErrOfferClosed)

	require.ErrorIs(e.market.WithdrawLeaseBid(bidders[0].addr, offerID, 0), ErrOfferClosed)

	offer, err := e.market.GetOffer(offerID)
	require.NoError(err)
	require.False(offer.Open)
	require.True(offer.Accepted)
	require.Equal(uint32(1), offer.AcceptedBid)
	require.Equal(leaseID, offer.LeaseID)
}

func TestAcceptLeaseBidRejections(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)
	alice := e.newBidder(t, 100)
	e.bid(t, offerID, alice, 100)
	sig := e.lessorSig(t, offerID, 0)

	_, err = e.market.AcceptLeaseBid(alice.addr, offerID, 0, sig)
	require.ErrorIs(err, access.ErrUnauthorized)

	_, err = e.market.AcceptLeaseBid(e.lessor(), offerID, 1, sig)
	require.ErrorIs(err, ErrBidNotFound)

	require.NoError(e.market.WithdrawLeaseBid(alice.addr, offerID, 0))
	require.Equal(uint64(100), e.balance(t, alice.addr))
	require.ErrorIs(e.market.WithdrawLeaseBid(alice.addr, offerID, 0), ErrBidInactive)

	_, err = e.market.AcceptLeaseBid(e.lessor(), offerID, 0, sig)
	require.ErrorIs(err, ErrBidInactive)
}

func TestCancelLeaseOffer(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)
	alice := e.newBidder(t, 100)
	bob := e.newBidder(t, 100)
	e.bid(t, offerID, alice, 60)
	e.bid(t, offerID, bob, 70)

	require.ErrorIs(e.market.WithdrawLeaseBid(alice.addr, offerID, 1), access.ErrUnauthorized)
	require.ErrorIs(e.market.CancelLeaseOffer(alice.addr, offerID), access.ErrUnauthorized)
	require.NoError(e.market.CancelLeaseOffer(e.lessor(), offerID))

	require.Equal(uint64(100), e.balance(t, alice.addr))
	require.Equal(uint64(100), e.balance(t, bob.addr))
	require.Zero(e.balance(t, custody))

	_, err = e.market.PlaceLeaseBid(alice.addr, offerID, nil, uint256.NewInt(1))
	require.ErrorIs(err, ErrOfferClosed)
	require.ErrorIs(e.market.CancelLeaseOffer(e.lessor(), offerID), ErrOfferClosed)
}

func TestOfferSnapshotDistribution(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeOfferSnapshot)

	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)
	offer, err := e.market.GetOffer(offerID)
	require.NoError(err)
	require.NotZero(offer.SnapshotID)

	// Buying in after the offer was posted earns nothing from it.
	require.NoError(e.tokens.Transfer(e.token, e.lessor(), holder, uint256.NewInt(500)))

	alice := e.newBidder(t, 1_000)
	e.bid(t, offerID, alice, 1_000)
	_, err = e.market.AcceptLeaseBid(e.lessor(), offerID, 0, e.lessorSig(t, offerID, 0))
	require.NoError(err)

	require.Equal(uint64(1_000), e.balance(t, e.lessor()))
	require.Zero(e.balance(t, holder))
}

func TestDistributionDustGoesToLessor(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	require.NoError(e.tokens.Transfer(e.token, e.lessor(), holder, uint256.NewInt(333)))
	offerID, err := e.market.PostLeaseOffer(e.lessor(), e.intent(100))
	require.NoError(err)

	alice := e.newBidder(t, 10)
	e.bid(t, offerID, alice, 10)
	_, err = e.market.AcceptLeaseBid(e.lessor(), offerID, 0, e.lessorSig(t, offerID, 0))
	require.NoError(err)

	// floor(10*333/1000) = 3 and floor(10*667/1000) = 6, the remaining 1
	// goes to the lessor.
	require.Equal(uint64(3), e.balance(t, holder))
	require.Equal(uint64(7), e.balance(t, e.lessor()))
	require.Zero(e.balance(t, custody))
}

func TestOpenOffers(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, DistributeCurrent)

	var ids []uint64
	for _, rent := range []uint64{300, 100, 200, 100} {
		id, err := e.market.PostLeaseOffer(e.lessor(), e.intent(rent))
		require.NoError(err)
		ids = append(ids, id)
	}
	require.NoError(e.market.CancelLeaseOffer(e.lessor(), ids[2]))

	offers, err := e.market.OpenOffers(10)
	require.NoError(err)
	got := make([]uint64, len(offers))
	for i, o := range offers {
		got[i] = o.ID
	}
	require.Equal([]uint64{ids[1], ids[3], ids[0]}, got)

	offers, err = e.market.OpenOffers(2)
	require.NoError(err)
	require.Len(offers, 2)
	require.Equal(ids[1], offers[0].ID)
	require.Equal(ids[3], offers[1].ID)

	_, err = e.market.OpenOffers(0)
	require.ErrorIs(err, ErrInvalidLimit)

	count, err := e.market.OfferCount()
	require.NoError(err)
	require.Equal(uint64(4), count)
}
