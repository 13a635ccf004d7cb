// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package intent hashes and signs lease intents off-line.
package intent

import (
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "intent",
		Short: "Hashes and signs lease intents",
	}
	c.AddCommand(hashCommand(), signCommand())
	return c
}

func hashCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "hash",
		Short: "Prints the EIP-712 document and digest of an intent",
		RunE:  hashFunc,
	}
	AddFlags(c.Flags())
	return c
}

func signCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "sign",
		Short: "Signs the digest of an intent",
		RunE:  signFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	AddKeyFlag(flags)
	return c
}

type hashOutput struct {
	TypedData apitypes.TypedData `json:"typedData"`
	Digest    common.Hash        `json:"digest"`
}

func hashFunc(c *cobra.Command, _ []string) error {
	cfg, err := ParseFlags(c.Flags())
	if err != nil {
		return err
	}
	digest, err := lease.HashIntent(cfg.Domain, cfg.Intent)
	if err != nil {
		return err
	}
	return write(&hashOutput{
		TypedData: lease.TypedData(cfg.Domain, cfg.Intent),
		Digest:    digest,
	})
}

type signOutput struct {
	Digest    common.Hash    `json:"digest"`
	Signer    common.Address `json:"signer"`
	Signature hexutil.Bytes  `json:"signature"`
}

func signFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	cfg, err := ParseFlags(flags)
	if err != nil {
		return err
	}
	key, err := ParseKey(flags)
	if err != nil {
		return err
	}
	digest, err := lease.HashIntent(cfg.Domain, cfg.Intent)
	if err != nil {
		return err
	}
	sig, err := lease.SignIntent(cfg.Domain, cfg.Intent, key)
	if err != nil {
		return err
	}
	return write(&signOutput{
		Digest:    digest,
		Signer:    crypto.PubkeyToAddress(key.PublicKey),
		Signature: sig,
	})
}

func write(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
