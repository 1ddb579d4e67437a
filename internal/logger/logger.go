package logger

import (
	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is a structured, leveled logger. keysAndValues are treated as
// key-value pairs (e.g., "key1", value1, "key2", value2).
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Fatal(msg string, keysAndValues ...any)
	// With returns a new logger with the given key-value pair.
	With(key string, value any) Logger
	// NewSystem returns a new logger with the given name.
	NewSystem(name string) Logger
}

// Setup configures the process-wide log level ("debug", "info", ...).
// Unknown levels fall back to info.
func Setup(level string) {
	if level == "" {
		level = "info"
	}
	lvl, err := golog.Parse(level)
	if err != nil {
		lvl = golog.LevelInfo
	}
	golog.SetupLogging(golog.Config{
		Level:  lvl,
		Stderr: true,
	})
}

// New returns a named logger backed by go-log.
func New(name string) Logger {
	return &zapLogger{
		lg: golog.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{lg: zap.NewNop().Sugar(), nop: true}
}

type zapLogger struct {
	lg                  *zap.SugaredLogger
	commonKeysAndValues []any
	nop                 bool
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) { l.lg.Debugw(msg, keysAndValues...) }
func (l *zapLogger) Info(msg string, keysAndValues ...any)  { l.lg.Infow(msg, keysAndValues...) }
func (l *zapLogger) Warn(msg string, keysAndValues ...any)  { l.lg.Warnw(msg, keysAndValues...) }
func (l *zapLogger) Error(msg string, keysAndValues ...any) { l.lg.Errorw(msg, keysAndValues...) }
func (l *zapLogger) Fatal(msg string, keysAndValues ...any) { l.lg.Fatalw(msg, keysAndValues...) }

func (l *zapLogger) With(key string, value any) Logger {
	kv := make([]any, 0, len(l.commonKeysAndValues)+2)
	kv = append(kv, l.commonKeysAndValues...)
	kv = append(kv, key, value)
	return &zapLogger{
		lg:                  l.lg.With(key, value),
		commonKeysAndValues: kv,
		nop:                 l.nop,
	}
}

func (l *zapLogger) NewSystem(name string) Logger {
	if l.nop {
		return NewNop()
	}
	return &zapLogger{
		lg: golog.Logger(name).SugaredLogger.Desugar().WithOptions(zap.AddCallerSkip(1)).Sugar().With(l.commonKeysAndValues...),
	}
}
