package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerAddsActorFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core)).With(String("op", "test"))

	ctx := WithActor(context.Background(), "clerk-7")
	l.Info(ctx, "lot received", Int("lots", 2))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "clerk-7", fields["actor"])
	assert.Equal(t, "test", fields["op"])
	assert.EqualValues(t, 2, fields["lots"])
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init("loud", true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "parse level")
}
