package events

import (
	"context"

	"inventory-ledger/internal/core"
	"inventory-ledger/internal/logger"
)

// LogPublisher writes events to a logger. It is the publisher of the CLI
// when no brokers are configured.
type LogPublisher struct {
	log *logger.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher logs to l, or to the package logger when l is nil.
func NewLogPublisher(l *logger.Logger) *LogPublisher {
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(ctx context.Context, events ...core.Event) error {
	l := p.log
	if l == nil {
		l = logger.L()
	}
	for _, e := range events {
		l.Info(ctx, "event",
			logger.String("id", e.ID),
			logger.String("type", string(e.Type)),
			logger.String("key", e.Key),
			logger.Any("payload", e.Payload))
	}
	return nil
}
