// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package intent

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/config"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/lease"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/stack"
)

const (
	FileKey       = "file"
	NetworkIDKey  = "network-id"
	DeploymentKey = "deployment"
	KeyKey        = "private-key"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultConfig()
	flags.String(FileKey, "-", "JSON file holding the lease intent, - for stdin")
	flags.Uint64(NetworkIDKey, defaults.NetworkID, "Chain id of the signing domain")
	flags.String(DeploymentKey, defaults.Deployment, "Deployment whose lease factory verifies the intent")
}

func AddKeyFlag(flags *pflag.FlagSet) {
	flags.String(KeyKey, "", "Hex encoded secp256k1 private key (required)")
}

type Config struct {
	Domain lease.Domain
	Intent *lease.Intent
}

func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	networkID, err := flags.GetUint64(NetworkIDKey)
	if err != nil {
		return nil, err
	}
	deployment, err := flags.GetString(DeploymentKey)
	if err != nil {
		return nil, err
	}
	file, err := flags.GetString(FileKey)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if file == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read intent: %w", err)
	}
	intent := &lease.Intent{}
	if err := json.Unmarshal(raw, intent); err != nil {
		return nil, fmt.Errorf("failed to parse intent: %w", err)
	}

	c := config.DefaultConfig()
	c.NetworkID = networkID
	c.Deployment = deployment
	return &Config{
		Domain: lease.Domain{
			ChainID:           new(big.Int).SetUint64(networkID),
			VerifyingContract: stack.DeriveAddresses(c).Factory,
		},
		Intent: intent,
	}, nil
}

func ParseKey(flags *pflag.FlagSet) (*ecdsa.PrivateKey, error) {
	hexKey, err := flags.GetString(KeyKey)
	if err != nil {
		return nil, err
	}
	if hexKey == "" {
		return nil, fmt.Errorf("--%s is required", KeyKey)
	}
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}
