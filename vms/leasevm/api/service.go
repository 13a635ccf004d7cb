// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the lease VM over JSON-RPC.
//
// State changing methods take the acting account in From. The service is
// meant to sit behind a gateway that authenticates the account; lease
// intents are the exception, their authority comes from the signatures they
// carry.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"github.com/faas-tech/space-markets-sub007/utils/json"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/access"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/fractional"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/marketplace"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/metadata"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/registry"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/stack"
)

var ErrInvalidRequest = errors.New("invalid request")

// VM is the engine the service runs calls against.
type VM interface {
	Execute(op string, fn func(*stack.Stack) error) error
	View(fn func(*stack.Stack) error) error
	Now() uint64
	MaxEvents() int
}

type Service struct {
	vm VM
}

func NewService(vm VM) *Service {
	return &Service{vm: vm}
}

type EmptyArgs struct{}

type SuccessReply struct {
	Success bool `json:"success"`
}

type IDReply struct {
	ID json.Uint64 `json:"id"`
}

type AmountReply struct {
	Amount *uint256.Int `json:"amount"`
}

type FromArgs struct {
	From common.Address `json:"from"`
}

func requireAmount(a *uint256.Int) error {
	if a == nil {
		return fmt.Errorf("%w: amount required", ErrInvalidRequest)
	}
	return nil
}

// Deployment

type AddressesReply struct {
	stack.Addresses
	Time json.Uint64 `json:"time"`
}

// GetAddresses returns the well known accounts of the deployment.
func (s *Service) GetAddresses(_ *http.Request, _ *EmptyArgs, reply *AddressesReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		reply.Addresses = st.Addresses
		reply.Time = json.Uint64(s.vm.Now())
		return nil
	})
}

// Roles

type RoleArgs struct {
	FromArgs
	Role    string         `json:"role"`
	Account common.Address `json:"account"`
}

func (s *Service) GrantRole(_ *http.Request, args *RoleArgs, reply *SuccessReply) error {
	role, err := access.ParseRole(args.Role)
	if err != nil {
		return err
	}
	err = s.vm.Execute("grantRole", func(st *stack.Stack) error {
		return st.Roles.Grant(args.From, role, args.Account)
	})
	reply.Success = err == nil
	return err
}

func (s *Service) RevokeRole(_ *http.Request, args *RoleArgs, reply *SuccessReply) error {
	role, err := access.ParseRole(args.Role)
	if err != nil {
		return err
	}
	err = s.vm.Execute("revokeRole", func(st *stack.Stack) error {
		return st.Roles.Revoke(args.From, role, args.Account)
	})
	reply.Success = err == nil
	return err
}

type AccountArgs struct {
	Account common.Address `json:"account"`
}

type RolesReply struct {
	Roles []string `json:"roles"`
}

func (s *Service) GetRoles(_ *http.Request, args *AccountArgs, reply *RolesReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		roles, err := st.Roles.Roles(args.Account)
		if err != nil {
			return err
		}
		reply.Roles = make([]string, len(roles))
		for i, r := range roles {
			reply.Roles[i] = r.String()
		}
		return nil
	})
}

// Payment currencies

type RegisterCurrencyArgs struct {
	FromArgs
	Token    common.Address `json:"token"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

func (s *Service) RegisterCurrency(_ *http.Request, args *RegisterCurrencyArgs, reply *SuccessReply) error {
	err := s.vm.Execute("registerCurrency", func(st *stack.Stack) error {
		return st.Currency.Register(args.From, args.Token, args.Symbol, args.Decimals)
	})
	reply.Success = err == nil
	return err
}

type CurrencyTransferArgs struct {
	FromArgs
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

// MintCurrency credits newly issued currency to To.
func (s *Service) MintCurrency(_ *http.Request, args *CurrencyTransferArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("mintCurrency", func(st *stack.Stack) error {
		return st.Currency.Mint(args.From, args.Token, args.To, args.Amount)
	})
	reply.Success = err == nil
	return err
}

func (s *Service) TransferCurrency(_ *http.Request, args *CurrencyTransferArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("transferCurrency", func(st *stack.Stack) error {
		return st.Currency.Transfer(args.Token, args.From, args.To, args.Amount)
	})
	reply.Success = err == nil
	return err
}

type ApproveArgs struct {
	FromArgs
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *uint256.Int   `json:"amount"`
}

func (s *Service) ApproveCurrency(_ *http.Request, args *ApproveArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("approveCurrency", func(st *stack.Stack) error {
		return st.Currency.Approve(args.Token, args.From, args.Spender, args.Amount)
	})
	reply.Success = err == nil
	return err
}

type BalanceArgs struct {
	Token   common.Address `json:"token"`
	Account common.Address `json:"account"`
}

func (s *Service) GetCurrencyBalance(_ *http.Request, args *BalanceArgs, reply *AmountReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Currency.BalanceOf(args.Token, args.Account)
		return err
	})
}

type AllowanceArgs struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
}

func (s *Service) GetCurrencyAllowance(_ *http.Request, args *AllowanceArgs, reply *AmountReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Currency.Allowance(args.Token, args.Owner, args.Spender)
		return err
	})
}

// Asset registry

type CreateAssetTypeArgs struct {
	FromArgs
	Name              string           `json:"name"`
	SchemaHash        common.Hash      `json:"schemaHash"`
	RequiredLeaseKeys []string         `json:"requiredLeaseKeys"`
	Metadata          []metadata.Entry `json:"metadata"`
}

func (s *Service) CreateAssetType(_ *http.Request, args *CreateAssetTypeArgs, reply *IDReply) error {
	return s.vm.Execute("createAssetType", func(st *stack.Stack) error {
		id, err := st.Registry.CreateAssetType(args.From, args.Name, args.SchemaHash, args.RequiredLeaseKeys, args.Metadata)
		reply.ID = json.Uint64(id)
		return err
	})
}

type RegisterAssetArgs struct {
	FromArgs
	TypeID         json.Uint64      `json:"typeId"`
	Name           string           `json:"name"`
	Symbol         string           `json:"symbol"`
	TotalSupply    *uint256.Int     `json:"totalSupply"`
	Admin          common.Address   `json:"admin"`
	UpgradeAdmin   common.Address   `json:"upgradeAdmin"`
	TokenRecipient common.Address   `json:"tokenRecipient"`
	Metadata       []metadata.Entry `json:"metadata"`
}

type RegisterAssetReply struct {
	ID    json.Uint64    `json:"id"`
	Token common.Address `json:"token"`
}

func (s *Service) RegisterAsset(_ *http.Request, args *RegisterAssetArgs, reply *RegisterAssetReply) error {
	supply := args.TotalSupply
	if supply == nil {
		supply = new(uint256.Int)
	}
	return s.vm.Execute("registerAsset", func(st *stack.Stack) error {
		id, token, err := st.Registry.RegisterAsset(args.From, &registry.RegisterAssetArgs{
			TypeID:         uint64(args.TypeID),
			Name:           args.Name,
			Symbol:         args.Symbol,
			TotalSupply:    supply,
			Admin:          args.Admin,
			UpgradeAdmin:   args.UpgradeAdmin,
			TokenRecipient: args.TokenRecipient,
			Metadata:       args.Metadata,
		})
		reply.ID = json.Uint64(id)
		reply.Token = token
		return err
	})
}

type IDArgs struct {
	ID json.Uint64 `json:"id"`
}

func (s *Service) GetAssetType(_ *http.Request, args *IDArgs, reply *registry.AssetType) error {
	return s.vm.View(func(st *stack.Stack) error {
		t, err := st.Registry.GetAssetType(uint64(args.ID))
		if err != nil {
			return err
		}
		*reply = *t
		return nil
	})
}

func (s *Service) GetAsset(_ *http.Request, args *IDArgs, reply *registry.Asset) error {
	return s.vm.View(func(st *stack.Stack) error {
		a, err := st.Registry.GetAsset(uint64(args.ID))
		if err != nil {
			return err
		}
		*reply = *a
		return nil
	})
}

type ExistsReply struct {
	Exists bool `json:"exists"`
}

func (s *Service) AssetTypeExists(_ *http.Request, args *IDArgs, reply *ExistsReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Exists, err = st.Registry.AssetTypeExists(uint64(args.ID))
		return err
	})
}

func (s *Service) AssetExists(_ *http.Request, args *IDArgs, reply *ExistsReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Exists, err = st.Registry.AssetExists(uint64(args.ID))
		return err
	})
}

type CountsReply struct {
	AssetTypes json.Uint64 `json:"assetTypes"`
	Assets     json.Uint64 `json:"assets"`
	Leases     json.Uint64 `json:"leases"`
	Offers     json.Uint64 `json:"offers"`
}

func (s *Service) GetCounts(_ *http.Request, _ *EmptyArgs, reply *CountsReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		types, err := st.Registry.AssetTypeCount()
		if err != nil {
			return err
		}
		assets, err := st.Registry.AssetCount()
		if err != nil {
			return err
		}
		leases, err := st.Leases.LeaseCount()
		if err != nil {
			return err
		}
		offers, err := st.Marketplace.OfferCount()
		if err != nil {
			return err
		}
		reply.AssetTypes = json.Uint64(types)
		reply.Assets = json.Uint64(assets)
		reply.Leases = json.Uint64(leases)
		reply.Offers = json.Uint64(offers)
		return nil
	})
}

// Metadata

type NamespaceArgs struct {
	Kind string      `json:"kind"`
	ID   json.Uint64 `json:"id"`
}

func (a NamespaceArgs) namespace() (metadata.Namespace, error) {
	kind, err := metadata.ParseKind(a.Kind)
	if err != nil {
		return metadata.Namespace{}, err
	}
	return metadata.Namespace{Kind: kind, ID: uint64(a.ID)}, nil
}

type SetMetadataArgs struct {
	FromArgs
	NamespaceArgs
	Entries []metadata.Entry `json:"entries"`
}

// SetMetadata writes entries to the namespace of an asset type, asset,
// token or lease.
func (s *Service) SetMetadata(_ *http.Request, args *SetMetadataArgs, reply *SuccessReply) error {
	ns, err := args.namespace()
	if err != nil {
		return err
	}
	err = s.vm.Execute("setMetadata", func(st *stack.Stack) error {
		if err := requireEntity(st, ns); err != nil {
			return err
		}
		return st.Metadata.SetMetadata(args.From, ns, args.Entries)
	})
	reply.Success = err == nil
	return err
}

type RemoveMetadataArgs struct {
	FromArgs
	NamespaceArgs
	Key string `json:"key"`
}

func (s *Service) RemoveMetadata(_ *http.Request, args *RemoveMetadataArgs, reply *SuccessReply) error {
	ns, err := args.namespace()
	if err != nil {
		return err
	}
	err = s.vm.Execute("removeMetadata", func(st *stack.Stack) error {
		return st.Metadata.RemoveMetadata(args.From, ns, args.Key)
	})
	reply.Success = err == nil
	return err
}

type GetMetadataArgs struct {
	NamespaceArgs
	Key string `json:"key"`
}

type GetMetadataReply struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

func (s *Service) GetMetadata(_ *http.Request, args *GetMetadataArgs, reply *GetMetadataReply) error {
	ns, err := args.namespace()
	if err != nil {
		return err
	}
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Value, reply.Found, err = st.Metadata.GetMetadata(ns, args.Key)
		return err
	})
}

type AllMetadataReply struct {
	Entries []metadata.Entry `json:"entries"`
}

func (s *Service) GetAllMetadata(_ *http.Request, args *NamespaceArgs, reply *AllMetadataReply) error {
	ns, err := args.namespace()
	if err != nil {
		return err
	}
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Entries, err = st.Metadata.GetAllMetadata(ns)
		return err
	})
}

type MetadataKeysReply struct {
	Keys  []string    `json:"keys"`
	Count json.Uint64 `json:"count"`
}

// GetMetadataKeys returns the keys of a namespace in insertion order.
func (s *Service) GetMetadataKeys(_ *http.Request, args *NamespaceArgs, reply *MetadataKeysReply) error {
	ns, err := args.namespace()
	if err != nil {
		return err
	}
	return s.vm.View(func(st *stack.Stack) error {
		count, err := st.Metadata.GetMetadataCount(ns)
		if err != nil {
			return err
		}
		reply.Keys, err = st.Metadata.GetAllKeys(ns)
		reply.Count = json.Uint64(count)
		return err
	})
}

// requireEntity rejects writes to namespaces of entities that do not exist.
func requireEntity(st *stack.Stack, ns metadata.Namespace) error {
	var err error
	switch ns.Kind {
	case metadata.KindAssetType:
		_, err = st.Registry.GetAssetType(ns.ID)
	case metadata.KindAsset, metadata.KindToken:
		_, err = st.Registry.GetAsset(ns.ID)
	case metadata.KindLease:
		_, err = st.Leases.GetRecord(ns.ID)
	}
	return err
}

// Fractional tokens

type TokenTransferArgs struct {
	FromArgs
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (s *Service) TransferToken(_ *http.Request, args *TokenTransferArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("transferToken", func(st *stack.Stack) error {
		return st.Tokens.Transfer(args.Token, args.From, args.To, args.Amount)
	})
	reply.Success = err == nil
	return err
}

func (s *Service) ApproveToken(_ *http.Request, args *ApproveArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("approveToken", func(st *stack.Stack) error {
		return st.Tokens.Approve(args.Token, args.From, args.Spender, args.Amount)
	})
	reply.Success = err == nil
	return err
}

type TokenTransferFromArgs struct {
	FromArgs
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (s *Service) TransferTokenFrom(_ *http.Request, args *TokenTransferFromArgs, reply *SuccessReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	err := s.vm.Execute("transferTokenFrom", func(st *stack.Stack) error {
		return st.Tokens.TransferFrom(args.Token, args.From, args.Owner, args.To, args.Amount)
	})
	reply.Success = err == nil
	return err
}

func (s *Service) GetTokenBalance(_ *http.Request, args *BalanceArgs, reply *AmountReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Tokens.BalanceOf(args.Token, args.Account)
		return err
	})
}

func (s *Service) GetTokenAllowance(_ *http.Request, args *AllowanceArgs, reply *AmountReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Tokens.Allowance(args.Token, args.Owner, args.Spender)
		return err
	})
}

type TokenArgs struct {
	Token common.Address `json:"token"`
}

func (s *Service) GetTokenInfo(_ *http.Request, args *TokenArgs, reply *fractional.Info) error {
	return s.vm.View(func(st *stack.Stack) error {
		info, err := st.Tokens.Info(args.Token)
		if err != nil {
			return err
		}
		*reply = *info
		return nil
	})
}

// GetCurrentSnapshot returns the id of the newest snapshot of a token, zero
// if none was taken.
func (s *Service) GetCurrentSnapshot(_ *http.Request, args *TokenArgs, reply *IDReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		id, err := st.Tokens.CurrentSnapshotID(args.Token)
		reply.ID = json.Uint64(id)
		return err
	})
}

type HoldersArgs struct {
	Token common.Address `json:"token"`
	// SnapshotID selects a snapshot. Zero means current balances.
	SnapshotID json.Uint64 `json:"snapshotId"`
}

type HoldersReply struct {
	Holders  []common.Address `json:"holders"`
	Balances []*uint256.Int   `json:"balances"`
}

func (s *Service) GetHolders(_ *http.Request, args *HoldersArgs, reply *HoldersReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var (
			holders []fractional.Holder
			err     error
		)
		if args.SnapshotID == 0 {
			holders, err = st.Tokens.Holders(args.Token)
		} else {
			holders, err = st.Tokens.HoldersAt(args.Token, uint64(args.SnapshotID))
		}
		if err != nil {
			return err
		}
		reply.Holders = make([]common.Address, len(holders))
		reply.Balances = make([]*uint256.Int, len(holders))
		for i, h := range holders {
			reply.Holders[i] = h.Address
			reply.Balances[i] = h.Balance
		}
		return nil
	})
}

type TokenCallArgs struct {
	FromArgs
	Token common.Address `json:"token"`
}

// Snapshot records the current balances of a token.
func (s *Service) Snapshot(_ *http.Request, args *TokenCallArgs, reply *IDReply) error {
	return s.vm.Execute("snapshot", func(st *stack.Stack) error {
		id, err := st.Tokens.Snapshot(args.From, args.Token)
		reply.ID = json.Uint64(id)
		return err
	})
}

type OpenRevenueRoundArgs struct {
	FromArgs
	Token        common.Address `json:"token"`
	SnapshotID   json.Uint64    `json:"snapshotId"`
	PaymentToken common.Address `json:"paymentToken"`
	Amount       *uint256.Int   `json:"amount"`
}

func (s *Service) OpenRevenueRound(_ *http.Request, args *OpenRevenueRoundArgs, reply *IDReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	return s.vm.Execute("openRevenueRound", func(st *stack.Stack) error {
		id, err := st.Tokens.OpenRevenueRound(args.From, args.Token, uint64(args.SnapshotID), args.PaymentToken, args.Amount)
		reply.ID = json.Uint64(id)
		return err
	})
}

type RoundArgs struct {
	FromArgs
	Token   common.Address `json:"token"`
	RoundID json.Uint64    `json:"roundId"`
}

func (s *Service) ClaimRevenue(_ *http.Request, args *RoundArgs, reply *AmountReply) error {
	return s.vm.Execute("claimRevenue", func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Tokens.ClaimRevenue(args.From, args.Token, uint64(args.RoundID))
		return err
	})
}

// GetClaimable reports what From could claim from a round right now.
func (s *Service) GetClaimable(_ *http.Request, args *RoundArgs, reply *AmountReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Amount, err = st.Tokens.Claimable(args.Token, uint64(args.RoundID), args.From)
		return err
	})
}

func (s *Service) GetRound(_ *http.Request, args *RoundArgs, reply *fractional.Round) error {
	return s.vm.View(func(st *stack.Stack) error {
		r, err := st.Tokens.GetRound(args.Token, uint64(args.RoundID))
		if err != nil {
			return err
		}
		*reply = *r
		return nil
	})
}

// Leases

type IntentArgs struct {
	Intent lease.Intent `json:"intent"`
}

type TypedDataReply struct {
	TypedData apitypes.TypedData `json:"typedData"`
	Digest    common.Hash        `json:"digest"`
}

// GetTypedData returns the EIP-712 document and digest both parties sign.
func (s *Service) GetTypedData(_ *http.Request, args *IntentArgs, reply *TypedDataReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		digest, err := st.Leases.HashLeaseIntent(&args.Intent)
		if err != nil {
			return err
		}
		reply.TypedData = lease.TypedData(st.Leases.Domain(), &args.Intent)
		reply.Digest = digest
		return nil
	})
}

type ConsumedReply struct {
	Digest   common.Hash `json:"digest"`
	Consumed bool        `json:"consumed"`
}

// IsIntentConsumed reports whether an intent was already used to mint a lease.
func (s *Service) IsIntentConsumed(_ *http.Request, args *IntentArgs, reply *ConsumedReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		digest, err := st.Leases.HashLeaseIntent(&args.Intent)
		if err != nil {
			return err
		}
		reply.Digest = digest
		reply.Consumed, err = st.Leases.IsConsumed(digest)
		return err
	})
}

type MintLeaseArgs struct {
	Intent    lease.Intent  `json:"intent"`
	LessorSig hexutil.Bytes `json:"lessorSig"`
	LesseeSig hexutil.Bytes `json:"lesseeSig"`
}

// MintLease mints a lease from an intent signed by both parties. Anyone may
// submit it.
func (s *Service) MintLease(_ *http.Request, args *MintLeaseArgs, reply *IDReply) error {
	return s.vm.Execute("mintLease", func(st *stack.Stack) error {
		id, err := st.Leases.MintLease(&args.Intent, args.LessorSig, args.LesseeSig)
		reply.ID = json.Uint64(id)
		return err
	})
}

func (s *Service) GetLease(_ *http.Request, args *IDArgs, reply *lease.Certificate) error {
	return s.vm.View(func(st *stack.Stack) error {
		c, err := st.Leases.GetLease(uint64(args.ID))
		if err != nil {
			return err
		}
		*reply = *c
		return nil
	})
}

type ActiveReply struct {
	Active bool `json:"active"`
}

// IsLeaseActive reports whether the current time falls inside the lease term.
func (s *Service) IsLeaseActive(_ *http.Request, args *IDArgs, reply *ActiveReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Active, err = st.Leases.IsLeaseActive(uint64(args.ID), s.vm.Now())
		return err
	})
}

type TransferLeaseArgs struct {
	FromArgs
	Owner   common.Address `json:"owner"`
	To      common.Address `json:"to"`
	LeaseID json.Uint64    `json:"leaseId"`
}

func (s *Service) TransferLease(_ *http.Request, args *TransferLeaseArgs, reply *SuccessReply) error {
	err := s.vm.Execute("transferLease", func(st *stack.Stack) error {
		return st.Leases.TransferFrom(args.From, args.Owner, args.To, uint64(args.LeaseID))
	})
	reply.Success = err == nil
	return err
}

type ApproveLeaseArgs struct {
	FromArgs
	Approved common.Address `json:"approved"`
	LeaseID  json.Uint64    `json:"leaseId"`
}

func (s *Service) ApproveLease(_ *http.Request, args *ApproveLeaseArgs, reply *SuccessReply) error {
	err := s.vm.Execute("approveLease", func(st *stack.Stack) error {
		return st.Leases.Approve(args.From, uint64(args.LeaseID), args.Approved)
	})
	reply.Success = err == nil
	return err
}

// Marketplace

type PostLeaseOfferArgs struct {
	FromArgs
	Intent lease.Intent `json:"intent"`
}

func (s *Service) PostLeaseOffer(_ *http.Request, args *PostLeaseOfferArgs, reply *IDReply) error {
	return s.vm.Execute("postLeaseOffer", func(st *stack.Stack) error {
		id, err := st.Marketplace.PostLeaseOffer(args.From, &args.Intent)
		reply.ID = json.Uint64(id)
		return err
	})
}

type BidTypedDataArgs struct {
	OfferID json.Uint64    `json:"offerId"`
	Lessee  common.Address `json:"lessee"`
}

// GetBidTypedData returns the document a bidder signs to bid on an offer.
func (s *Service) GetBidTypedData(_ *http.Request, args *BidTypedDataArgs, reply *TypedDataReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		offer, err := st.Marketplace.GetOffer(uint64(args.OfferID))
		if err != nil {
			return err
		}
		intent := marketplace.BidIntent(offer, args.Lessee)
		digest, err := st.Leases.HashLeaseIntent(intent)
		if err != nil {
			return err
		}
		reply.TypedData = lease.TypedData(st.Leases.Domain(), intent)
		reply.Digest = digest
		return nil
	})
}

type PlaceLeaseBidArgs struct {
	FromArgs
	OfferID   json.Uint64   `json:"offerId"`
	LesseeSig hexutil.Bytes `json:"lesseeSig"`
	Amount    *uint256.Int  `json:"amount"`
}

type BidIndexReply struct {
	Index json.Uint32 `json:"index"`
}

func (s *Service) PlaceLeaseBid(_ *http.Request, args *PlaceLeaseBidArgs, reply *BidIndexReply) error {
	if err := requireAmount(args.Amount); err != nil {
		return err
	}
	return s.vm.Execute("placeLeaseBid", func(st *stack.Stack) error {
		idx, err := st.Marketplace.PlaceLeaseBid(args.From, uint64(args.OfferID), args.LesseeSig, args.Amount)
		reply.Index = json.Uint32(idx)
		return err
	})
}

type AcceptLeaseBidArgs struct {
	FromArgs
	OfferID   json.Uint64   `json:"offerId"`
	BidIndex  json.Uint32   `json:"bidIndex"`
	LessorSig hexutil.Bytes `json:"lessorSig"`
}

type AcceptLeaseBidReply struct {
	LeaseID json.Uint64 `json:"leaseId"`
}

func (s *Service) AcceptLeaseBid(_ *http.Request, args *AcceptLeaseBidArgs, reply *AcceptLeaseBidReply) error {
	return s.vm.Execute("acceptLeaseBid", func(st *stack.Stack) error {
		id, err := st.Marketplace.AcceptLeaseBid(args.From, uint64(args.OfferID), uint32(args.BidIndex), args.LessorSig)
		reply.LeaseID = json.Uint64(id)
		return err
	})
}

type BidArgs struct {
	FromArgs
	OfferID  json.Uint64 `json:"offerId"`
	BidIndex json.Uint32 `json:"bidIndex"`
}

func (s *Service) WithdrawLeaseBid(_ *http.Request, args *BidArgs, reply *SuccessReply) error {
	err := s.vm.Execute("withdrawLeaseBid", func(st *stack.Stack) error {
		return st.Marketplace.WithdrawLeaseBid(args.From, uint64(args.OfferID), uint32(args.BidIndex))
	})
	reply.Success = err == nil
	return err
}

type OfferCallArgs struct {
	FromArgs
	OfferID json.Uint64 `json:"offerId"`
}

func (s *Service) CancelLeaseOffer(_ *http.Request, args *OfferCallArgs, reply *SuccessReply) error {
	err := s.vm.Execute("cancelLeaseOffer", func(st *stack.Stack) error {
		return st.Marketplace.CancelLeaseOffer(args.From, uint64(args.OfferID))
	})
	reply.Success = err == nil
	return err
}

type OfferReply struct {
	Offer *marketplace.Offer `json:"offer"`
	Bids  []*marketplace.Bid `json:"bids"`
}

// GetOffer returns an offer together with all of its bids.
func (s *Service) GetOffer(_ *http.Request, args *IDArgs, reply *OfferReply) error {
	return s.vm.View(func(st *stack.Stack) error {
		offer, err := st.Marketplace.GetOffer(uint64(args.ID))
		if err != nil {
			return err
		}
		bids, err := st.Marketplace.GetBids(offer.ID)
		if err != nil {
			return err
		}
		reply.Offer = offer
		reply.Bids = bids
		return nil
	})
}

type ListArgs struct {
	Limit int `json:"limit"`
}

type OffersReply struct {
	Offers []*marketplace.Offer `json:"offers"`
}

// ListOpenOffers returns open offers, cheapest rent first.
func (s *Service) ListOpenOffers(_ *http.Request, args *ListArgs, reply *OffersReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = marketplace.MaxOpenOffers
	}
	return s.vm.View(func(st *stack.Stack) error {
		var err error
		reply.Offers, err = st.Marketplace.OpenOffers(limit)
		return err
	})
}

// Events

type GetEventsArgs struct {
	From  json.Uint64 `json:"from"`
	Limit int         `json:"limit"`
}

type GetEventsReply struct {
	Events []events.Event `json:"events"`
	Last   json.Uint64    `json:"last"`
}

// GetEvents pages through the event log starting at sequence number From.
func (s *Service) GetEvents(_ *http.Request, args *GetEventsArgs, reply *GetEventsReply) error {
	from := uint64(args.From)
	if from == 0 {
		from = 1
	}
	limit := args.Limit
	if n := s.vm.MaxEvents(); limit <= 0 || limit > n {
		limit = n
	}
	return s.vm.View(func(st *stack.Stack) error {
		last, err := st.Events.Last()
		if err != nil {
			return err
		}
		reply.Last = json.Uint64(last)
		if from > last {
			reply.Events = []events.Event{}
			return nil
		}
		reply.Events, err = st.Events.Range(from, limit)
		return err
	})
}
