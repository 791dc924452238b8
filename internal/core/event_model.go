package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventLowStock                        EventType = "inventory.low_stock"
	EventLotQuarantined                  EventType = "inventory.lot_quarantined"
	EventLotReleased                     EventType = "inventory.lot_released"
	EventReplenishmentSuggestionCritical EventType = "replenishment.suggestion_critical"
)

// EventTypes lists every event the engine emits.
var EventTypes = []EventType{
	EventLowStock,
	EventLotQuarantined,
	EventLotReleased,
	EventReplenishmentSuggestionCritical,
}

// Event is an outbound domain notification. Payload is a snapshot of the
// entity at the time the event was raised.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Key partitions the event stream, e.g. the pair or lot id.
	Key     string `json:"key"`
	Payload any    `json:"payload"`
}

// LowStockPayload is the body of an inventory.low_stock event.
type LowStockPayload struct {
	Level  StockLevel `json:"level"`
	Alerts []Alert    `json:"alerts"`
}

// LotPayload is the body of lot quarantine and release events.
type LotPayload struct {
	Lot    Lot    `json:"lot"`
	Reason string `json:"reason,omitempty"`
}

func newEvent(t EventType, at time.Time, key string, payload any) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: at, Key: key, Payload: payload}
}

// EventPublisher delivers committed events. Delivery happens after the
// scope that raised them commits.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// EventPublisherFunc adapts a function to EventPublisher.
type EventPublisherFunc func(ctx context.Context, events ...Event) error

func (f EventPublisherFunc) Publish(ctx context.Context, events ...Event) error {
	return f(ctx, events...)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }
