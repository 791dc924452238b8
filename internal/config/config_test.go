package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-ledger/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "LOG_LEVEL", "KAFKA_BROKERS", "ENGINE_MAX_RETRIES"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, uint64(5), cfg.Engine.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.RetryBase)
	assert.Equal(t, 2*time.Second, cfg.Database.LockTimeout)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "inventory.events", cfg.Kafka.Topic)
}

func TestLoad_DotenvAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KAFKA_BROKERS=k1:9092,k2:9092\nDB_LOCK_TIMEOUT=500ms\n"), 0o600))
	t.Setenv("LOG_LEVEL", "debug")
	t.Cleanup(func() {
		os.Unsetenv("KAFKA_BROKERS")
		os.Unsetenv("DB_LOCK_TIMEOUT")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 500*time.Millisecond, cfg.Database.LockTimeout)

	pc := cfg.Kafka.ProducerConfig()
	assert.True(t, pc.Producer.Return.Successes)
	require.NoError(t, pc.Validate())
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	t.Setenv("ENGINE_MAX_RETRIES", "many")
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
