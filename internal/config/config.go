// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/IBM/sarama"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Database struct {
	URL         string        `env:"DATABASE_URL"`
	MaxConns    int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	LockTimeout time.Duration `env:"DB_LOCK_TIMEOUT" envDefault:"2s"`
}

type Logger struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	JSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Engine tunes conflict retries of atomic scopes.
type Engine struct {
	MaxRetries uint64        `env:"ENGINE_MAX_RETRIES" envDefault:"5"`
	RetryBase  time.Duration `env:"ENGINE_RETRY_BASE" envDefault:"10ms"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_EVENTS_TOPIC" envDefault:"inventory.events"`
}

// Enabled reports whether events should go to Kafka rather than the log.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// ProducerConfig is the sarama configuration of the event producer. Events
// are keyed by pair or lot, so the hash partitioner keeps each key ordered.
func (k Kafka) ProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V4_0_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

type OpenAI struct {
	APIKey string `env:"OPENAI_API_KEY"`
	Model  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

type Config struct {
	Database Database
	Logger   Logger
	Engine   Engine
	Kafka    Kafka
	OpenAI   OpenAI
	SeedFile string `env:"SEED_FILE" envDefault:"seed.toml"`
}

// Load reads .env files (the default ".env" when none are named) and then
// parses the environment. A missing .env file is not an error.
func Load(dotenv ...string) (Config, error) {
	const op = "config.Load"

	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%s: load .env: %w", op, err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}
