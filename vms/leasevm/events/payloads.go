// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import "github.com/ethereum/go-ethereum/common"

// Amounts are rendered as base 10 strings so indexers never lose precision.

type RolePayload struct {
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
	Sender  common.Address `json:"sender"`
}

type CurrencyRegisteredPayload struct {
	Token    common.Address `json:"token"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

type TransferPayload struct {
	Token  common.Address `json:"token"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

type ApprovalPayload struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

type MetadataPayload struct {
	Namespace string   `json:"namespace"`
	Keys      []string `json:"keys"`
}

type AssetTypeCreatedPayload struct {
	TypeID            uint64      `json:"typeId"`
	Name              string      `json:"name"`
	SchemaHash        common.Hash `json:"schemaHash"`
	RequiredLeaseKeys []string    `json:"requiredLeaseKeys"`
}

type AssetRegisteredPayload struct {
	AssetID     uint64         `json:"assetId"`
	TypeID      uint64         `json:"typeId"`
	Token       common.Address `json:"token"`
	Issuer      common.Address `json:"issuer"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	TotalSupply string         `json:"totalSupply"`
}

type SnapshotPayload struct {
	Token       common.Address `json:"token"`
	SnapshotID  uint64         `json:"snapshotId"`
	TotalSupply string         `json:"totalSupply"`
}

type RevenueRoundPayload struct {
	Token        common.Address `json:"token"`
	RoundID      uint64         `json:"roundId"`
	SnapshotID   uint64         `json:"snapshotId"`
	PaymentToken common.Address `json:"paymentToken"`
	Amount       string         `json:"amount"`
	Funder       common.Address `json:"funder"`
}

type RevenueClaimPayload struct {
	Token   common.Address `json:"token"`
	RoundID uint64         `json:"roundId"`
	Holder  common.Address `json:"holder"`
	Amount  string         `json:"amount"`
}

type LeaseMintedPayload struct {
	LeaseID uint64         `json:"leaseId"`
	AssetID uint64         `json:"assetId"`
	Lessor  common.Address `json:"lessor"`
	Lessee  common.Address `json:"lessee"`
	Digest  common.Hash    `json:"digest"`
}

type LeaseTransferPayload struct {
	LeaseID uint64         `json:"leaseId"`
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
}

type LeaseApprovalPayload struct {
	LeaseID  uint64         `json:"leaseId"`
	Owner    common.Address `json:"owner"`
	Approved common.Address `json:"approved"`
}

type OfferPayload struct {
	OfferID    uint64         `json:"offerId"`
	AssetID    uint64         `json:"assetId"`
	Lessor     common.Address `json:"lessor"`
	SnapshotID uint64         `json:"snapshotId,omitempty"`
}

type BidPayload struct {
	OfferID  uint64         `json:"offerId"`
	BidIndex uint32         `json:"bidIndex"`
	Bidder   common.Address `json:"bidder"`
	Amount   string         `json:"amount"`
}

type BidAcceptedPayload struct {
	OfferID  uint64         `json:"offerId"`
	BidIndex uint32         `json:"bidIndex"`
	Bidder   common.Address `json:"bidder"`
	LeaseID  uint64         `json:"leaseId"`
	Amount   string         `json:"amount"`
}

type DistributionPayload struct {
	OfferID    uint64         `json:"offerId"`
	AssetID    uint64         `json:"assetId"`
	Holder     common.Address `json:"holder"`
	Amount     string         `json:"amount"`
	SnapshotID uint64         `json:"snapshotId,omitempty"`
}
