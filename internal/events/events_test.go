package events_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/events"
	"inventory-ledger/internal/logger"
)

func lowStock(key string) core.Event {
	return core.Event{
		ID:         gofakeit.UUID(),
		Type:       core.EventLowStock,
		OccurredAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Key:        key,
		Payload: core.LowStockPayload{
			Level:  core.StockLevel{ProductID: "SAND", WarehouseID: "MAIN", Available: decimal.NewFromInt(3)},
			Alerts: []core.Alert{core.AlertLow},
		},
	}
}

func expectType(want core.EventType) mocks.ValueChecker {
	return func(val []byte) error {
		var got struct {
			Type core.EventType `json:"type"`
		}
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != want {
			return fmt.Errorf("type %q, want %q", got.Type, want)
		}
		return nil
	}
}

func TestKafkaPublisher_SendsEveryEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectType(core.EventLowStock))
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(expectType(core.EventLotQuarantined))

	p := events.NewKafkaPublisher(sp, "inventory.events")
	err := p.Publish(context.Background(),
		lowStock("SAND@MAIN"),
		core.Event{ID: gofakeit.UUID(), Type: core.EventLotQuarantined, Key: "lot-1", Payload: core.LotPayload{Reason: "damp"}},
	)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_ReportsDeliveryFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := events.NewKafkaPublisher(sp, "inventory.events")
	err := p.Publish(context.Background(), lowStock("SAND@MAIN"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "inventory.events")
	require.NoError(t, p.Close())
}

func TestLogPublisher_LogsEachEvent(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	p := events.NewLogPublisher(logger.New(zap.New(obs)))

	require.NoError(t, p.Publish(context.Background(), lowStock("A@MAIN"), lowStock("B@MAIN")))

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "A@MAIN", entries[0].ContextMap()["key"])
	assert.Equal(t, string(core.EventLowStock), entries[1].ContextMap()["type"])
}

func TestSchemas_CoverEveryEventType(t *testing.T) {
	schemas, err := events.Schemas()
	require.NoError(t, err)
	require.Len(t, schemas, len(core.EventTypes))

	s := schemas[core.EventLowStock]
	assert.Equal(t, string(core.EventLowStock), s.Title)
	assert.Contains(t, s.Required, "payload")

	typ, ok := s.Properties.Get("type")
	require.True(t, ok)
	assert.Equal(t, string(core.EventLowStock), typ.Const)

	payload, ok := s.Properties.Get("payload")
	require.True(t, ok)
	level, ok := payload.Properties.Get("level")
	require.True(t, ok)
	available, ok := level.Properties.Get("available")
	require.True(t, ok)
	assert.Equal(t, "string", available.Type)

	_, err = events.Schema("inventory.unknown")
	assert.Error(t, err)
}
