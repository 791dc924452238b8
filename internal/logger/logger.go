package logger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = zap.DebugLevel
	LevelInfo  = zap.InfoLevel
	LevelWarn  = zap.WarnLevel
	LevelError = zap.ErrorLevel
)

var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Duration = zap.Duration
	Bool     = zap.Bool
	ErrorF   = zap.Error
	Any      = zap.Any
	Strings  = zap.Strings
	Stringer = zap.Stringer
)

type (
	Field = zap.Field
)

// Logger is a context-aware wrapper around a zap logger.
type Logger struct {
	z *zap.Logger
}

var (
	mu     sync.RWMutex
	global = &Logger{z: zap.NewNop()}
)

// Init replaces the package logger. Until Init is called every call is discarded.
func Init(level string, asJSON bool) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("logger: parse level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !asJSON {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("logger: build: %w", err)
	}

	mu.Lock()
	global = &Logger{z: z}
	mu.Unlock()
	return nil
}

// New wraps an existing zap logger. Tests use it with zaptest or observer cores.
func New(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// L returns the package logger.
func L() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered entries.
func Sync() error {
	return L().z.Sync()
}

// With returns a child of the package logger carrying fields.
func With(fields ...Field) *Logger {
	return L().With(fields...)
}

func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.z.Debug(msg, append(fields, contextFields(ctx)...)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.z.Info(msg, append(fields, contextFields(ctx)...)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.z.Warn(msg, append(fields, contextFields(ctx)...)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.z.Error(msg, append(fields, contextFields(ctx)...)...)
}

func Debug(ctx context.Context, msg string, fields ...Field) { L().Debug(ctx, msg, fields...) }
func Info(ctx context.Context, msg string, fields ...Field)  { L().Info(ctx, msg, fields...) }
func Warn(ctx context.Context, msg string, fields ...Field)  { L().Warn(ctx, msg, fields...) }
func Error(ctx context.Context, msg string, fields ...Field) { L().Error(ctx, msg, fields...) }

type ctxKey struct{}

// WithActor tags every entry logged with ctx with the acting identity.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func contextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}
	if actor, ok := ctx.Value(ctxKey{}).(string); ok && actor != "" {
		return []Field{zap.String("actor", actor)}
	}
	return nil
}
