// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration and genesis types for the lease VM.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
	"github.com/faas-tech/space-markets-sub007/vms/leasevm/marketplace"
)

var errInvalidConfig = errors.New("invalid config")

// Config contains configuration parameters for the lease VM.
type Config struct {
	// NetworkID is the chainId of the EIP-712 signing domain.
	NetworkID uint64 `json:"networkId"`
	// Deployment seeds the addresses of the registry, lease factory and
	// marketplace. Two deployments with different values never share
	// digests or token addresses.
	Deployment string `json:"deployment"`

	// DistributionMode selects the balances accepted escrow is split over,
	// "current" or "offer-snapshot".
	DistributionMode marketplace.DistributionMode `json:"distributionMode"`

	// MaxEventRange bounds a single GetEvents request.
	MaxEventRange int `json:"maxEventRange"`

	// Kafka enables publishing of committed events. Nil disables it.
	Kafka *events.KafkaConfig `json:"kafka,omitempty"`
	// SinkTimeout bounds a single delivery of a batch of events to a sink.
	SinkTimeout time.Duration `json:"sinkTimeout"`
	// SinkRetryInterval is the wait before a sink that failed is handed the
	// same events again.
	SinkRetryInterval time.Duration `json:"sinkRetryInterval"`
}

// DefaultConfig returns the default configuration for the lease VM.
func DefaultConfig() Config {
	return Config{
		NetworkID:         96369,
		Deployment:        "leasevm",
		DistributionMode:  marketplace.DistributeCurrent,
		MaxEventRange:     events.MaxRange,
		SinkTimeout:       5 * time.Second,
		SinkRetryInterval: time.Second,
	}
}

// Parse overlays the JSON in b on the defaults.
func Parse(b []byte) (Config, error) {
	c := DefaultConfig()
	if len(b) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, c.Verify()
}

// Verify reports the first invalid field.
func (c Config) Verify() error {
	switch {
	case c.NetworkID == 0:
		return fmt.Errorf("%w: networkId must be set", errInvalidConfig)
	case c.Deployment == "":
		return fmt.Errorf("%w: deployment must be set", errInvalidConfig)
	case c.MaxEventRange <= 0 || c.MaxEventRange > events.MaxRange:
		return fmt.Errorf("%w: maxEventRange must be in [1, %d]", errInvalidConfig, events.MaxRange)
	case c.Kafka != nil && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == ""):
		return fmt.Errorf("%w: kafka needs brokers and a topic", errInvalidConfig)
	case c.SinkTimeout <= 0 || c.SinkRetryInterval <= 0:
		return fmt.Errorf("%w: sinkTimeout and sinkRetryInterval must be positive", errInvalidConfig)
	}
	return c.DistributionMode.Valid()
}
