// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lease implements the lease factory: the canonical lease intent, its
// EIP-712 digest, dual signature verification and the lease certificates
// minted from verified intents.
package lease

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/cache"
	"github.com/luxfi/cache/lru"
	"github.com/luxfi/database"

	golanglru "github.com/hashicorp/golang-lru"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/currency"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagRecord byte = iota
	tagOwner
	tagApproved
	tagDigest
	tagCount
)

const (
	DefaultRecordCacheSize    = 1024
	DefaultSignatureCacheSize = 4096
)

var (
	ErrLeaseNotFound           = errors.New("lease not found")
	ErrZeroAddress             = errors.New("zero address")
	ErrSameParty               = errors.New("lessor and lessee are the same address")
	ErrInvalidTimeWindow       = errors.New("start time must be before end time")
	ErrUnsupportedTermsVersion = errors.New("unsupported terms version")
	ErrIntentExpired           = errors.New("lease intent deadline passed")
	ErrSchemaMismatch          = errors.New("asset type schema hash mismatch")
	ErrMissingLeaseKey         = errors.New("required lease metadata key missing")
	ErrIntentReplayed          = errors.New("lease intent already consumed")
	ErrSignerMismatch          = errors.New("signature does not recover to the expected signer")
	ErrNotOwner                = errors.New("caller is not the lease owner")
	ErrNotApproved             = errors.New("caller is neither owner nor approved")

	countKey = state.Key(tagCount)
)

// Record is the immutable core of a minted lease.
type Record struct {
	ID       uint64      `serialize:"true" json:"id"`
	AssetID  uint64      `serialize:"true" json:"assetId"`
	Terms    Terms       `serialize:"true" json:"terms"`
	Digest   common.Hash `serialize:"true" json:"digest"`
	MintedAt uint64      `serialize:"true" json:"mintedAt"`
}

// Certificate is a minted lease together with its current ownership.
type Certificate struct {
	Record
	Owner    common.Address   `json:"owner"`
	Approved common.Address   `json:"approved"`
	Metadata []metadata.Entry `json:"metadata"`
}

// Assets is the registry view the factory validates intents against.
type Assets interface {
	GetAsset(id uint64) (*registry.Asset, error)
	GetAssetType(id uint64) (*registry.AssetType, error)
}

type Factory struct {
	db     database.Database
	domain Domain
	assets Assets
	ledger currency.Ledger
	meta   *metadata.Store
	emit   events.Emitter
	now    func() uint64

	records cache.Cacher[uint64, *Record]
	signers *golanglru.Cache
}

func New(
	db database.Database,
	domain Domain,
	assets Assets,
	ledger currency.Ledger,
	meta *metadata.Store,
	emit events.Emitter,
	now func() uint64,
) (*Factory, error) {
	signers, err := golanglru.New(DefaultSignatureCacheSize)
	if err != nil {
		return nil, err
	}
	return &Factory{
		db:      db,
		domain:  domain,
		assets:  assets,
		ledger:  ledger,
		meta:    meta,
		emit:    emit,
		now:     now,
		records: lru.NewCache[uint64, *Record](DefaultRecordCacheSize),
		signers: signers,
	}, nil
}

// Domain returns the signing domain of this factory.
func (f *Factory) Domain() Domain {
	return f.domain
}

// HashLeaseIntent returns the digest both parties sign.
func (f *Factory) HashLeaseIntent(intent *Intent) (common.Hash, error) {
	return HashIntent(f.domain, intent)
}

// Validate checks everything about intent except signatures and replay.
// Posted offers leave the lessee empty, so requireLessee is false for them.
func (f *Factory) Validate(intent *Intent, requireLessee bool) (*registry.Asset, error) {
	l := &intent.Lease
	switch {
	case l.Lessor == (common.Address{}):
		return nil, fmt.Errorf("%w: lessor", ErrZeroAddress)
	case requireLessee && l.Lessee == (common.Address{}):
		return nil, fmt.Errorf("%w: lessee", ErrZeroAddress)
	case l.Lessor == l.Lessee:
		return nil, ErrSameParty
	case l.PaymentToken == (common.Address{}):
		return nil, fmt.Errorf("%w: payment token", ErrZeroAddress)
	case l.StartTime >= l.EndTime:
		return nil, fmt.Errorf("%w: start=%d end=%d", ErrInvalidTimeWindow, l.StartTime, l.EndTime)
	}
	if err := metadata.ValidateEntries(l.Metadata); err != nil {
		return nil, err
	}
	if l.TermsVersion != TermsVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTermsVersion, l.TermsVersion)
	}
	if now := f.now(); intent.Deadline < now {
		return nil, fmt.Errorf("%w: deadline=%d now=%d", ErrIntentExpired, intent.Deadline, now)
	}
	if !l.AssetID.IsUint64() {
		return nil, fmt.Errorf("%w: %s", registry.ErrAssetNotFound, l.AssetID.Dec())
	}
	asset, err := f.assets.GetAsset(l.AssetID.Uint64())
	if err != nil {
		return nil, err
	}
	typ, err := f.assets.GetAssetType(asset.TypeID)
	if err != nil {
		return nil, err
	}
	if typ.SchemaHash != intent.AssetTypeSchemaHash {
		return nil, fmt.Errorf("%w: asset type %d", ErrSchemaMismatch, typ.ID)
	}
	present := make(map[string]struct{}, len(l.Metadata))
	for _, e := range l.Metadata {
		present[e.Key] = struct{}{}
	}
	for _, k := range typ.RequiredLeaseKeys {
		if _, ok := present[k]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingLeaseKey, k)
		}
	}
	registered, err := f.ledger.IsRegistered(l.PaymentToken)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", currency.ErrUnknownToken, l.PaymentToken)
	}
	return asset, nil
}

// Verify checks that sig over digest was produced by expected.
func (f *Factory) Verify(digest common.Hash, sig []byte, expected common.Address) error {
	signer, err := f.recover(digest, sig)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: got %s, want %s", ErrSignerMismatch, signer, expected)
	}
	return nil
}

func (f *Factory) recover(digest common.Hash, sig []byte) (common.Address, error) {
	key := string(digest.Bytes()) + string(sig)
	if cached, ok := f.signers.Get(key); ok {
		return cached.(common.Address), nil
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return common.Address{}, err
	}
	f.signers.Add(key, signer)
	return signer, nil
}

// MintLease verifies both signatures over the digest of intent and mints a
// lease certificate owned by the lessee.
func (f *Factory) MintLease(intent *Intent, lessorSig, lesseeSig []byte) (uint64, error) {
	asset, err := f.Validate(intent, true)
	if err != nil {
		return 0, err
	}
	digest, err := f.HashLeaseIntent(intent)
	if err != nil {
		return 0, err
	}
	consumed, err := f.db.Has(digestKey(digest))
	if err != nil {
		return 0, err
	}
	if consumed {
		return 0, fmt.Errorf("%w: %s", ErrIntentReplayed, digest)
	}
	l := &intent.Lease
	if err := f.Verify(digest, lessorSig, l.Lessor); err != nil {
		return 0, fmt.Errorf("lessor: %w", err)
	}
	if err := f.Verify(digest, lesseeSig, l.Lessee); err != nil {
		return 0, fmt.Errorf("lessee: %w", err)
	}

	id, err := state.NextID(f.db, countKey)
	if err != nil {
		return 0, err
	}
	record := &Record{
		ID:       id,
		AssetID:  asset.ID,
		Terms:    l.Terms,
		Digest:   digest,
		MintedAt: f.now(),
	}
	if err := state.Put(f.db, recordKey(id), record); err != nil {
		return 0, err
	}
	if err := f.db.Put(ownerKey(id), l.Lessee.Bytes()); err != nil {
		return 0, err
	}
	if err := f.db.Put(digestKey(digest), state.Uint64(id)); err != nil {
		return 0, err
	}
	if err := f.meta.Seed(metadata.Lease(id), l.Metadata); err != nil {
		return 0, err
	}
	return id, f.emit.Emit(events.LeaseMinted, &events.LeaseMintedPayload{
		LeaseID: id,
		AssetID: asset.ID,
		Lessor:  l.Lessor,
		Lessee:  l.Lessee,
		Digest:  digest,
	})
}

// IsConsumed reports whether digest was already used to mint a lease.
func (f *Factory) IsConsumed(digest common.Hash) (bool, error) {
	return f.db.Has(digestKey(digest))
}

// Flush drops cached records. It must be called whenever uncommitted writes
// are discarded.
func (f *Factory) Flush() {
	f.records.Flush()
}

// GetRecord returns the immutable part of lease id.
func (f *Factory) GetRecord(id uint64) (*Record, error) {
	if r, ok := f.records.Get(id); ok {
		return r, nil
	}
	r := &Record{}
	err := state.Get(f.db, recordKey(id), r)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrLeaseNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	f.records.Put(id, r)
	return r, nil
}

// GetLease returns the certificate of lease id including its metadata.
func (f *Factory) GetLease(id uint64) (*Certificate, error) {
	r, err := f.GetRecord(id)
	if err != nil {
		return nil, err
	}
	owner, err := f.OwnerOf(id)
	if err != nil {
		return nil, err
	}
	approved, err := f.GetApproved(id)
	if err != nil {
		return nil, err
	}
	entries, err := f.meta.GetAllMetadata(metadata.Lease(id))
	if err != nil {
		return nil, err
	}
	return &Certificate{
		Record:   *r,
		Owner:    owner,
		Approved: approved,
		Metadata: entries,
	}, nil
}

func (f *Factory) LeaseExists(id uint64) (bool, error) {
	return f.db.Has(recordKey(id))
}

func (f *Factory) LeaseCount() (uint64, error) {
	return state.Counter(f.db, countKey)
}

// IsLeaseActive reports whether lease id is minted and now lies within its
// term. An unknown lease is simply inactive.
func (f *Factory) IsLeaseActive(id uint64, now uint64) (bool, error) {
	r, err := f.GetRecord(id)
	if errors.Is(err, ErrLeaseNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.Terms.StartTime <= now && now <= r.Terms.EndTime, nil
}

func (f *Factory) OwnerOf(id uint64) (common.Address, error) {
	b, err := f.db.Get(ownerKey(id))
	if errors.Is(err, database.ErrNotFound) {
		return common.Address{}, fmt.Errorf("%w: %d", ErrLeaseNotFound, id)
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

func (f *Factory) GetApproved(id uint64) (common.Address, error) {
	b, err := f.db.Get(approvedKey(id))
	if errors.Is(err, database.ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// Approve lets approved transfer lease id once. The zero address clears the
// approval.
func (f *Factory) Approve(caller common.Address, id uint64, approved common.Address) error {
	owner, err := f.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotOwner)
	}
	if approved == (common.Address{}) {
		err = f.db.Delete(approvedKey(id))
	} else {
		err = f.db.Put(approvedKey(id), approved.Bytes())
	}
	if err != nil {
		return err
	}
	return f.emit.Emit(events.LeaseApproval, &events.LeaseApprovalPayload{
		LeaseID:  id,
		Owner:    owner,
		Approved: approved,
	})
}

// TransferFrom moves ownership of lease id. The terms never change.
func (f *Factory) TransferFrom(caller, from, to common.Address, id uint64) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	owner, err := f.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != from {
		return fmt.Errorf("%w: %s does not own lease %d", ErrNotOwner, from, id)
	}
	if caller != owner {
		approved, err := f.GetApproved(id)
		if err != nil {
			return err
		}
		if approved != caller {
			return fmt.Errorf("%w: %w", access.ErrUnauthorized, ErrNotApproved)
		}
	}
	if err := f.db.Delete(approvedKey(id)); err != nil {
		return err
	}
	if err := f.db.Put(ownerKey(id), to.Bytes()); err != nil {
		return err
	}
	return f.emit.Emit(events.LeaseTransferred, &events.LeaseTransferPayload{
		LeaseID: id,
		From:    from,
		To:      to,
	})
}

// SetLeaseMetadata annotates lease id. The namespace authority only admits
// administrators, never the lessor or lessee.
func (f *Factory) SetLeaseMetadata(caller common.Address, id uint64, entries []metadata.Entry) error {
	if _, err := f.GetRecord(id); err != nil {
		return err
	}
	return f.meta.SetMetadata(caller, metadata.Lease(id), entries)
}

func (f *Factory) GetLeaseMetadata(id uint64, key string) (string, bool, error) {
	if _, err := f.GetRecord(id); err != nil {
		return "", false, err
	}
	return f.meta.GetMetadata(metadata.Lease(id), key)
}

func recordKey(id uint64) []byte {
	return state.Key(tagRecord, state.Uint64(id))
}

func ownerKey(id uint64) []byte {
	return state.Key(tagOwner, state.Uint64(id))
}

func approvedKey(id uint64) []byte {
	return state.Key(tagApproved, state.Uint64(id))
}

func digestKey(digest common.Hash) []byte {
	return state.Key(tagDigest, digest.Bytes())
}
