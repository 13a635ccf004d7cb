// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const (
	HTTPAddrKey        = "http-addr"
	DataDirKey         = "data-dir"
	ConfigFileKey      = "config-file"
	GenesisFileKey     = "genesis-file"
	ShutdownTimeoutKey = "shutdown-timeout"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(HTTPAddrKey, "127.0.0.1:9650", "Address the HTTP server listens on")
	flags.String(DataDirKey, "", "Directory of the state database. Empty keeps state in memory")
	flags.String(ConfigFileKey, "", "JSON file with the VM config")
	flags.String(GenesisFileKey, "", "JSON file with the genesis, applied once per database")
	flags.Duration(ShutdownTimeoutKey, 10*time.Second, "Time allowed for in flight requests on shutdown")
}

type Config struct {
	HTTPAddr        string
	DataDir         string
	ConfigBytes     []byte
	GenesisBytes    []byte
	ShutdownTimeout time.Duration
}

// ParseFlags reads flags already parsed by cobra.
func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	httpAddr, err := flags.GetString(HTTPAddrKey)
	if err != nil {
		return nil, err
	}
	dataDir, err := flags.GetString(DataDirKey)
	if err != nil {
		return nil, err
	}
	configBytes, err := readOptional(flags, ConfigFileKey)
	if err != nil {
		return nil, err
	}
	genesisBytes, err := readOptional(flags, GenesisFileKey)
	if err != nil {
		return nil, err
	}
	timeout, err := flags.GetDuration(ShutdownTimeoutKey)
	if err != nil {
		return nil, err
	}
	return &Config{
		HTTPAddr:        httpAddr,
		DataDir:         dataDir,
		ConfigBytes:     configBytes,
		GenesisBytes:    genesisBytes,
		ShutdownTimeout: timeout,
	}, nil
}

func readOptional(flags *pflag.FlagSet, key string) ([]byte, error) {
	path, err := flags.GetString(key)
	if err != nil || path == "" {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s: %w", key, err)
	}
	return b, nil
}
