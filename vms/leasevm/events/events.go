// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events records an ordered log of every state transition of the
// lease VM and fans committed events out to external sinks.
//
// Events are appended to the same database as the state they describe, so an
// aborted call drops its events together with its writes. Sinks only ever see
// events that were committed.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	tagEvent byte = iota
	tagSeq
)

// MaxRange bounds the number of events returned by a single Range call.
const MaxRange = 1024

var (
	ErrInvalidRange = errors.New("invalid event range")

	seqKey = state.Key(tagSeq)
)

// Type names a state transition.
type Type string

const (
	RoleGranted         Type = "role_granted"
	RoleRevoked         Type = "role_revoked"
	CurrencyRegistered  Type = "currency_registered"
	CurrencyTransfer    Type = "currency_transfer"
	CurrencyApproval    Type = "currency_approval"
	MetadataUpdated     Type = "metadata_updated"
	MetadataRemoved     Type = "metadata_removed"
	AssetTypeCreated    Type = "asset_type_created"
	AssetRegistered     Type = "asset_registered"
	TokenTransfer       Type = "token_transfer"
	TokenApproval       Type = "token_approval"
	SnapshotTaken       Type = "snapshot_taken"
	RevenueRoundOpened  Type = "revenue_round_opened"
	RevenueClaimed      Type = "revenue_claimed"
	LeaseMinted         Type = "lease_minted"
	LeaseTransferred    Type = "lease_transferred"
	LeaseApproval       Type = "lease_approval"
	LeaseOfferPosted    Type = "lease_offer_posted"
	LeaseOfferCancelled Type = "lease_offer_cancelled"
	BidPlaced           Type = "bid_placed"
	BidWithdrawn        Type = "bid_withdrawn"
	BidRefunded         Type = "bid_refunded"
	BidAccepted         Type = "bid_accepted"
	EscrowDistributed   Type = "escrow_distributed"
)

// Event is a single persisted state transition.
type Event struct {
	Seq  uint64 `serialize:"true" json:"seq"`
	ID   ids.ID `serialize:"true" json:"id"`
	Type Type   `serialize:"true" json:"type"`
	Time uint64 `serialize:"true" json:"time"`
	Data []byte `serialize:"true" json:"-"`
}

// MarshalJSON renders Data as an embedded JSON document rather than base64.
func (e Event) MarshalJSON() ([]byte, error) {
	type event Event
	return json.Marshal(struct {
		event
		Data json.RawMessage `json:"data"`
	}{event: event(e), Data: json.RawMessage(e.Data)})
}

// Decode unmarshals the event payload into dst.
func (e *Event) Decode(dst interface{}) error {
	return json.Unmarshal(e.Data, dst)
}

// Emitter is implemented by anything that records events.
type Emitter interface {
	Emit(typ Type, payload interface{}) error
}

// Sink receives committed events in order.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
	Close() error
}

// Log is the persisted, ordered event log.
type Log struct {
	db    database.Database
	clock *mockable.Clock
}

// NewLog returns a log stored in db.
func NewLog(db database.Database, clock *mockable.Clock) *Log {
	return &Log{
		db:    db,
		clock: clock,
	}
}

// Emit appends an event with the next sequence number.
func (l *Log) Emit(typ Type, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", typ, err)
	}
	seq, err := state.NextID(l.db, seqKey)
	if err != nil {
		return err
	}

	h := sha256.New()
	h.Write(state.Uint64(seq))
	h.Write([]byte(typ))
	h.Write(data)
	var id ids.ID
	copy(id[:], h.Sum(nil))

	ev := &Event{
		Seq:  seq,
		ID:   id,
		Type: typ,
		Time: l.clock.Unix(),
		Data: data,
	}
	return state.Put(l.db, state.Key(tagEvent, state.Uint64(seq)), ev)
}

// Last returns the sequence number of the newest event, zero if none.
func (l *Log) Last() (uint64, error) {
	return state.Counter(l.db, seqKey)
}

// Range returns up to limit events starting at sequence number from.
func (l *Log) Range(from uint64, limit int) ([]Event, error) {
	if from == 0 || limit <= 0 || limit > MaxRange {
		return nil, fmt.Errorf("%w: from=%d limit=%d", ErrInvalidRange, from, limit)
	}
	last, err := l.Last()
	if err != nil {
		return nil, err
	}

	var out []Event
	for seq := from; seq <= last && len(out) < limit; seq++ {
		var ev Event
		if err := state.Get(l.db, state.Key(tagEvent, state.Uint64(seq)), &ev); err != nil {
			return nil, fmt.Errorf("failed to load event %d: %w", seq, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
