// Package zaplogger adapts zap to the observability.Logger port.
package zaplogger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Zhima-Mochi/cafeshop/internal/observability"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Syncer is implemented by loggers that buffer output.
type Syncer interface {
	Sync() error
}

// Options configures New. The zero value logs JSON at info level to stdout.
type Options struct {
	Level string
	// File, when set, receives a copy of every entry. Parent directories are created.
	File   string
	Fields []observability.Field
}

// New builds a JSON production logger.
func New(opts Options) (observability.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil

	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("zaplogger: level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("zaplogger: log dir: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.InitialFields = make(map[string]any, len(opts.Fields))
	for _, f := range opts.Fields {
		cfg.InitialFields[f.Key] = f.Value
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("zaplogger: build: %w", err)
	}
	return Wrap(l), nil
}

// Wrap adapts an existing zap logger; nil yields a no-op logger.
func Wrap(l *zap.Logger) observability.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{l: l}
}

type zapLogger struct{ l *zap.Logger }

func (z zapLogger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return z
	}
	return zapLogger{l: z.l.With(convert(fields)...)}
}

func (z zapLogger) Debug(msg string, fields ...observability.Field) { z.log(zapcore.DebugLevel, msg, fields) }
func (z zapLogger) Info(msg string, fields ...observability.Field)  { z.log(zapcore.InfoLevel, msg, fields) }
func (z zapLogger) Warn(msg string, fields ...observability.Field)  { z.log(zapcore.WarnLevel, msg, fields) }
func (z zapLogger) Error(msg string, fields ...observability.Field) { z.log(zapcore.ErrorLevel, msg, fields) }

func (z zapLogger) log(lvl zapcore.Level, msg string, fields []observability.Field) {
	if ce := z.l.Check(lvl, msg); ce != nil {
		ce.Write(convert(fields)...)
	}
}

func (z zapLogger) Sync() error { return z.l.Sync() }

func convert(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, len(fs))
	for i, f := range fs {
		if err, ok := f.Value.(error); ok {
			out[i] = zap.NamedError(f.Key, err)
			continue
		}
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
