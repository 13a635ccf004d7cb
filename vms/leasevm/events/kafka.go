// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("no kafka brokers configured")

// partitionKey pins every event to one partition so consumers observe the
// same total order the log assigned.
var partitionKey = []byte("leasevm")

// KafkaConfig configures the Kafka event sink.
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	BatchTimeout time.Duration `json:"batchTimeout"`
}

// KafkaSink publishes committed events to a Kafka topic.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink returns a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           batchTimeout,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish implements Sink.
func (k *KafkaSink) Publish(ctx context.Context, evs []Event) error {
	msgs, err := kafkaMessages(evs)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

// Close implements Sink.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func kafkaMessages(evs []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		value, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   partitionKey,
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
				{Key: "id", Value: []byte(ev.ID.String())},
			},
		})
	}
	return msgs, nil
}
