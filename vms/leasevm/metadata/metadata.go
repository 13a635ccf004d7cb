// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metadata implements the entity scoped key/value store shared by
// asset types, assets, fractional tokens and leases.
//
// Every entity owns a namespace backed by its own prefixed database. Writes to
// one namespace can never be observed through another one, even when both use
// the same key.
package metadata

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	MaxKeyLength   = 256
	MaxValueLength = 4096
	MaxEntries     = 256

	tagValue    byte = 'v'
	tagIndex    byte = 'i'
	tagPosition byte = 'p'
	tagCount    byte = 'c'
)

var (
	ErrEmptyKey       = errors.New("metadata key is empty")
	ErrKeyTooLong     = errors.New("metadata key too long")
	ErrValueTooLong   = errors.New("metadata value too long")
	ErrTooManyEntries = errors.New("too many metadata entries")
	ErrKeyNotFound    = errors.New("metadata key not found")
	ErrInvalidKind    = errors.New("invalid metadata namespace kind")
	ErrNoEntries      = errors.New("no metadata entries")

	errNoAuthority = errors.New("metadata authority not configured")

	countKey = state.Key(tagCount)
)

// Kind identifies the type of entity owning a namespace.
type Kind uint8

const (
	KindAssetType Kind = iota + 1
	KindAsset
	KindToken
	KindLease
)

func (k Kind) String() string {
	switch k {
	case KindAssetType:
		return "asset_type"
	case KindAsset:
		return "asset"
	case KindToken:
		return "token"
	case KindLease:
		return "lease"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindAssetType; k <= KindLease; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Namespace is the identity of one isolated key space.
type Namespace struct {
	Kind Kind
	ID   uint64
}

func AssetType(id uint64) Namespace { return Namespace{Kind: KindAssetType, ID: id} }
func Asset(id uint64) Namespace     { return Namespace{Kind: KindAsset, ID: id} }
func Token(assetID uint64) Namespace {
	return Namespace{Kind: KindToken, ID: assetID}
}
func Lease(id uint64) Namespace { return Namespace{Kind: KindLease, ID: id} }

func (n Namespace) String() string {
	return fmt.Sprintf("%s/%d", n.Kind, n.ID)
}

func (n Namespace) prefix() []byte {
	return state.Key(byte(n.Kind), state.Uint64(n.ID))
}

// Entry is a single key/value pair.
type Entry struct {
	Key   string `serialize:"true" json:"key"`
	Value string `serialize:"true" json:"value"`
}

// Authority decides who may write a namespace.
type Authority interface {
	CanWrite(caller common.Address, ns Namespace) (bool, error)
}

// Store is the metadata store.
type Store struct {
	db   database.Database
	auth Authority
	emit events.Emitter
}

func New(db database.Database, emit events.Emitter) *Store {
	return &Store{
		db:   db,
		emit: emit,
	}
}

// SetAuthority installs the namespace owner check used by SetMetadata and
// RemoveMetadata.
func (s *Store) SetAuthority(auth Authority) {
	s.auth = auth
}

// ValidateEntries checks entries without writing them.
func ValidateEntries(entries []Entry) error {
	if len(entries) > MaxEntries {
		return fmt.Errorf("%w: %d > %d", ErrTooManyEntries, len(entries), MaxEntries)
	}
	for _, e := range entries {
		switch {
		case e.Key == "":
			return ErrEmptyKey
		case len(e.Key) > MaxKeyLength:
			return fmt.Errorf("%w: %q", ErrKeyTooLong, e.Key)
		case len(e.Value) > MaxValueLength:
			return fmt.Errorf("%w: key %q", ErrValueTooLong, e.Key)
		}
	}
	return nil
}

// SetMetadata inserts or overwrites entries in ns on behalf of caller.
func (s *Store) SetMetadata(caller common.Address, ns Namespace, entries []Entry) error {
	if len(entries) == 0 {
		return ErrNoEntries
	}
	if err := s.authorize(caller, ns); err != nil {
		return err
	}
	return s.Seed(ns, entries)
}

// Seed writes entries without an ownership check. It is used when the owning
// entity is created.
func (s *Store) Seed(ns Namespace, entries []Entry) error {
	if ns.Kind < KindAssetType || ns.Kind > KindLease {
		return ErrInvalidKind
	}
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	db := s.namespace(ns)
	count, err := state.Counter(db, countKey)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		valueKey := state.Key(tagValue, []byte(e.Key))
		exists, err := db.Has(valueKey)
		if err != nil {
			return err
		}
		if !exists {
			if err := db.Put(state.Key(tagIndex, state.Uint64(count)), []byte(e.Key)); err != nil {
				return err
			}
			if err := database.PutUInt64(db, state.Key(tagPosition, []byte(e.Key)), count); err != nil {
				return err
			}
			count++
		}
		if err := db.Put(valueKey, []byte(e.Value)); err != nil {
			return err
		}
		keys = append(keys, e.Key)
	}
	if err := database.PutUInt64(db, countKey, count); err != nil {
		return err
	}
	return s.emit.Emit(events.MetadataUpdated, &events.MetadataPayload{
		Namespace: ns.String(),
		Keys:      keys,
	})
}

// RemoveMetadata deletes key from ns on behalf of caller. The last inserted
// key takes the removed key's position.
func (s *Store) RemoveMetadata(caller common.Address, ns Namespace, key string) error {
	if err := s.authorize(caller, ns); err != nil {
		return err
	}
	db := s.namespace(ns)
	posKey := state.Key(tagPosition, []byte(key))
	pos, err := database.GetUInt64(db, posKey)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %q in %s", ErrKeyNotFound, key, ns)
	}
	if err != nil {
		return err
	}
	count, err := state.Counter(db, countKey)
	if err != nil {
		return err
	}
	if count == 0 {
		return state.ErrStateCorrupted
	}
	last := count - 1
	if pos != last {
		lastKey, err := db.Get(state.Key(tagIndex, state.Uint64(last)))
		if err != nil {
			return err
		}
		if err := db.Put(state.Key(tagIndex, state.Uint64(pos)), lastKey); err != nil {
			return err
		}
		if err := database.PutUInt64(db, state.Key(tagPosition, lastKey), pos); err != nil {
			return err
		}
	}
	for _, k := range [][]byte{
		state.Key(tagIndex, state.Uint64(last)),
		posKey,
		state.Key(tagValue, []byte(key)),
	} {
		if err := db.Delete(k); err != nil {
			return err
		}
	}
	if err := database.PutUInt64(db, countKey, last); err != nil {
		return err
	}
	return s.emit.Emit(events.MetadataRemoved, &events.MetadataPayload{
		Namespace: ns.String(),
		Keys:      []string{key},
	})
}

// GetMetadata returns the value of key in ns. A missing key is reported with
// found == false and no error.
func (s *Store) GetMetadata(ns Namespace, key string) (string, bool, error) {
	v, err := s.namespace(ns).Get(state.Key(tagValue, []byte(key)))
	if errors.Is(err, database.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// GetMetadataCount returns the number of keys in ns.
func (s *Store) GetMetadataCount(ns Namespace) (uint64, error) {
	return state.Counter(s.namespace(ns), countKey)
}

// GetAllKeys returns the keys of ns in insertion order, with removals
// back-filled by the most recent key.
func (s *Store) GetAllKeys(ns Namespace) ([]string, error) {
	db := s.namespace(ns)
	count, err := state.Counter(db, countKey)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		k, err := db.Get(state.Key(tagIndex, state.Uint64(i)))
		if err != nil {
			return nil, fmt.Errorf("failed to load key %d of %s: %w", i, ns, err)
		}
		keys = append(keys, string(k))
	}
	return keys, nil
}

// GetAllMetadata returns every entry of ns in key order.
func (s *Store) GetAllMetadata(ns Namespace) ([]Entry, error) {
	keys, err := s.GetAllKeys(ns)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		v, _, err := s.GetMetadata(ns, k)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: k, Value: v})
	}
	return entries, nil
}

func (s *Store) authorize(caller common.Address, ns Namespace) error {
	if s.auth == nil {
		return errNoAuthority
	}
	ok, err := s.auth.CanWrite(caller, ns)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not write %s", access.ErrUnauthorized, caller, ns)
	}
	return nil
}

func (s *Store) namespace(ns Namespace) database.Database {
	return prefixdb.New(ns.prefix(), s.db)
}
