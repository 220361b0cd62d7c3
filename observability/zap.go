package observability

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	z *zap.Logger
}

// NewZap wraps z.
func NewZap(z *zap.Logger) *ZapLogger { return &ZapLogger{z: z} }

// NewZapFromLevel builds a zap logger. format is "json" (production
// encoder) or "console" (development encoder).
func NewZapFromLevel(level, format string) (*ZapLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZap(z), nil
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, zapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, zapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, zapFields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, zapFields(fields)...) }

func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(zapFields(fields)...)}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error { return l.z.Sync() }

// Zap returns the wrapped logger.
func (l *ZapLogger) Zap() *zap.Logger { return l.z }

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			out = append(out, zap.String(f.Key(), v))
		case int:
			out = append(out, zap.Int(f.Key(), v))
		case int64:
			out = append(out, zap.Int64(f.Key(), v))
		case float64:
			out = append(out, zap.Float64(f.Key(), v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key(), v))
		case error:
			out = append(out, zap.NamedError(f.Key(), v))
		default:
			out = append(out, zap.Any(f.Key(), v))
		}
	}
	return out
}
