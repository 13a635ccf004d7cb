// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package marketplace

import (
	"encoding/binary"
	"fmt"

	"github.com/google/btree"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/state"
)

const (
	MaxOpenOffers = 1024
	bookDegree    = 8
)

func lessOffer(a, b *Offer) bool {
	ra, rb := &a.Intent.Lease.RentAmount, &b.Intent.Lease.RentAmount
	if !ra.Eq(rb) {
		return ra.Lt(rb)
	}
	return a.ID < b.ID
}

// OpenOffers returns up to limit open offers, cheapest rent first with ties
// broken by offer id.
func (m *Marketplace) OpenOffers(limit int) ([]*Offer, error) {
	if limit <= 0 || limit > MaxOpenOffers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	prefix := state.Key(tagOpen)
	it := m.db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	book := btree.NewG[*Offer](bookDegree, lessOffer)
	for it.Next() {
		key := it.Key()
		if len(key) != len(prefix)+8 {
			return nil, fmt.Errorf("%w: malformed open offer key", state.ErrStateCorrupted)
		}
		offer, err := m.GetOffer(binary.BigEndian.Uint64(key[len(prefix):]))
		if err != nil {
			return nil, err
		}
		book.ReplaceOrInsert(offer)
		if book.Len() > limit {
			book.DeleteMax()
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	offers := make([]*Offer, 0, book.Len())
	book.Ascend(func(o *Offer) bool {
		offers = append(offers, o)
		return true
	})
	return offers, nil
}
