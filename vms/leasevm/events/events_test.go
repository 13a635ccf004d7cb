// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database/memdb"
	"github.com/stretchr/testify/require"

	"github.com/faas-tech/space-markets-sub007/utils/timer/mockable"
)

func TestLogOrder(t *testing.T) {
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	log := NewLog(memdb.New(), clock)

	last, err := log.Last()
	require.NoError(err)
	require.Zero(last)

	token := common.HexToAddress("0x5dc0000000000000000000000000000000000005")
	for i := 0; i < 5; i++ {
		require.NoError(log.Emit(CurrencyTransfer, &TransferPayload{Token: token, Amount: "1"}))
		clock.Advance(time.Second)
	}

	evs, err := log.Range(2, 2)
	require.NoError(err)
	require.Len(evs, 2)
	require.Equal(uint64(2), evs[0].Seq)
	require.Equal(uint64(3), evs[1].Seq)
	require.Equal(uint64(1_700_000_001), evs[0].Time)
	require.NotEqual(evs[0].ID, evs[1].ID)

	tail, err := log.Range(4, MaxRange)
	require.NoError(err)
	require.Len(tail, 2)

	_, err = log.Range(0, 1)
	require.ErrorIs(err, ErrInvalidRange)
	_, err = log.Range(1, MaxRange+1)
	require.ErrorIs(err, ErrInvalidRange)
}

func TestEventJSON(t *testing.T) {
	require := require.New(t)

	log := NewLog(memdb.New(), &mockable.Clock{})
	require.NoError(log.Emit(MetadataUpdated, &MetadataPayload{Namespace: "asset/1", Keys: []string{"orbit"}}))
	evs, err := log.Range(1, 1)
	require.NoError(err)

	b, err := json.Marshal(evs[0])
	require.NoError(err)

	var decoded struct {
		Seq  uint64          `json:"seq"`
		Type Type            `json:"type"`
		Data MetadataPayload `json:"data"`
	}
	require.NoError(json.Unmarshal(b, &decoded))
	require.Equal(uint64(1), decoded.Seq)
	require.Equal(MetadataUpdated, decoded.Type)
	require.Equal([]string{"orbit"}, decoded.Data.Keys)
}

func TestKafkaMessages(t *testing.T) {
	require := require.New(t)

	log := NewLog(memdb.New(), &mockable.Clock{})
	require.NoError(log.Emit(LeaseOfferPosted, &OfferPayload{OfferID: 7}))
	evs, err := log.Range(1, 1)
	require.NoError(err)

	msgs, err := kafkaMessages(evs)
	require.NoError(err)
	require.Len(msgs, 1)
	require.Equal(partitionKey, msgs[0].Key)
	require.Equal("type", msgs[0].Headers[0].Key)
	require.Equal([]byte(LeaseOfferPosted), msgs[0].Headers[0].Value)

	_, err = NewKafkaSink(KafkaConfig{Topic: "leases"})
	require.ErrorIs(err, errNoBrokers)
}
