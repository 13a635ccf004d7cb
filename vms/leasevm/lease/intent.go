// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lease

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
)

const (
	DomainName    = "LeaseFactory"
	DomainVersion = "1"

	// TermsVersion is the only intent shape this factory accepts. It is
	// part of the signed digest, so intents of different shapes never
	// collide.
	TermsVersion uint16 = 1

	SignatureLength = crypto.SignatureLength
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalleable        = errors.New("signature s value not in lower half of curve order")

	// Types is the published EIP-712 type set of a lease intent.
	Types = apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"LeaseIntent": {
			{Name: "deadline", Type: "uint64"},
			{Name: "assetTypeSchemaHash", Type: "bytes32"},
			{Name: "lease", Type: "Lease"},
		},
		"Lease": {
			{Name: "lessor", Type: "address"},
			{Name: "lessee", Type: "address"},
			{Name: "assetId", Type: "uint256"},
			{Name: "paymentToken", Type: "address"},
			{Name: "rentAmount", Type: "uint256"},
			{Name: "rentPeriod", Type: "uint256"},
			{Name: "securityDeposit", Type: "uint256"},
			{Name: "startTime", Type: "uint64"},
			{Name: "endTime", Type: "uint64"},
			{Name: "legalDocHash", Type: "bytes32"},
			{Name: "termsVersion", Type: "uint16"},
			{Name: "metadata", Type: "Metadata[]"},
		},
		"Metadata": {
			{Name: "key", Type: "string"},
			{Name: "value", Type: "string"},
		},
	}
)

// Terms is the fixed shape part of a lease body.
type Terms struct {
	Lessor          common.Address `serialize:"true" json:"lessor"`
	Lessee          common.Address `serialize:"true" json:"lessee"`
	AssetID         uint256.Int    `serialize:"true" json:"assetId"`
	PaymentToken    common.Address `serialize:"true" json:"paymentToken"`
	RentAmount      uint256.Int    `serialize:"true" json:"rentAmount"`
	RentPeriod      uint256.Int    `serialize:"true" json:"rentPeriod"`
	SecurityDeposit uint256.Int    `serialize:"true" json:"securityDeposit"`
	StartTime       uint64         `serialize:"true" json:"startTime"`
	EndTime         uint64         `serialize:"true" json:"endTime"`
	LegalDocHash    common.Hash    `serialize:"true" json:"legalDocHash"`
	TermsVersion    uint16         `serialize:"true" json:"termsVersion"`
}

// Lease is a full lease body: the fixed terms plus per lease metadata.
type Lease struct {
	Terms    `serialize:"true"`
	Metadata []metadata.Entry `serialize:"true" json:"metadata"`
}

// Intent is a proposed lease. Its digest is what both parties sign.
type Intent struct {
	Deadline            uint64      `serialize:"true" json:"deadline"`
	AssetTypeSchemaHash common.Hash `serialize:"true" json:"assetTypeSchemaHash"`
	Lease               Lease       `serialize:"true" json:"lease"`
}

// Domain separates digests of different deployments.
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// TypedData returns the EIP-712 document a wallet signs for intent.
func TypedData(domain Domain, intent *Intent) apitypes.TypedData {
	chainID := new(big.Int)
	if domain.ChainID != nil {
		chainID.Set(domain.ChainID)
	}
	l := &intent.Lease
	entries := make([]interface{}, len(l.Metadata))
	for i, e := range l.Metadata {
		entries[i] = map[string]interface{}{
			"key":   e.Key,
			"value": e.Value,
		}
	}
	return apitypes.TypedData{
		Types:       Types,
		PrimaryType: "LeaseIntent",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"deadline":            new(big.Int).SetUint64(intent.Deadline),
			"assetTypeSchemaHash": intent.AssetTypeSchemaHash.Hex(),
			"lease": map[string]interface{}{
				"lessor":          l.Lessor.Hex(),
				"lessee":          l.Lessee.Hex(),
				"assetId":         l.AssetID.ToBig(),
				"paymentToken":    l.PaymentToken.Hex(),
				"rentAmount":      l.RentAmount.ToBig(),
				"rentPeriod":      l.RentPeriod.ToBig(),
				"securityDeposit": l.SecurityDeposit.ToBig(),
				"startTime":       new(big.Int).SetUint64(l.StartTime),
				"endTime":         new(big.Int).SetUint64(l.EndTime),
				"legalDocHash":    l.LegalDocHash.Hex(),
				"termsVersion":    new(big.Int).SetUint64(uint64(l.TermsVersion)),
				"metadata":        entries,
			},
		},
	}
}

// HashIntent returns the EIP-712 digest of intent under domain.
func HashIntent(domain Domain, intent *Intent) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(TypedData(domain, intent))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash lease intent: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// SignIntent signs the digest of intent with key. The recovery id is
// returned in the 27/28 form wallets produce.
func SignIntent(domain Domain, intent *Intent, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := HashIntent(domain, intent)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced sig over digest. Both the
// 0/1 and 27/28 recovery id forms are accepted; high s values are rejected.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	v := normalized[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	normalized[crypto.RecoveryIDOffset] = v

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		if crypto.ValidateSignatureValues(v, r, s, false) {
			return common.Address{}, ErrMalleable
		}
		return common.Address{}, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
