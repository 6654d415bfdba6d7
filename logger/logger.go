// Package logger provides the process-wide zap logger and lets extra outputs be
// attached to it at runtime.
// Init must be called early in the application lifecycle before using other logger functions.
// Functions like AddOutput and SetEnabled will return errors if called before Init.
//
// Standard output carries the node protocol, so the base output is always standard error.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the base logger.
type Options struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// Development switches the stderr output to the human-readable console encoder.
	Development bool
	// Base replaces standard error as the primary sink. Used by tests.
	Base io.Writer
}

// Logger is the global state behind the package functions.
type Logger struct {
	mu      sync.Mutex
	opts    Options
	level   zap.AtomicLevel
	enabled atomic.Bool
	outputs []io.Writer
	zl      *zap.Logger
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
	globalBuffer *LogBuffer
	bufferOnce   sync.Once

	errNotInitialized = errors.New("logger not initialized: call logger.Init() first")
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// Init builds the global logger. Calling it again replaces the previous logger and
// drops any outputs added with AddOutput.
func Init(opts Options) error {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}
	if opts.Base == nil {
		opts.Base = os.Stderr
	}

	l := &Logger{opts: opts, level: level}
	l.enabled.Store(true)
	l.rebuild()

	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
	return nil
}

func current() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// rebuild assembles a tee of the base core and one JSON core per extra output.
// Callers hold l.mu, except Init which owns l exclusively.
func (l *Logger) rebuild() {
	enabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return l.enabled.Load() && l.level.Enabled(lvl)
	})

	var baseEnc zapcore.Encoder
	if l.opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		baseEnc = zapcore.NewConsoleEncoder(cfg)
	} else {
		baseEnc = zapcore.NewJSONEncoder(jsonEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(baseEnc, zapcore.Lock(zapcore.AddSync(l.opts.Base)), enabler),
	}
	for _, w := range l.outputs {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(w)),
			enabler,
		))
	}
	l.zl = zap.New(zapcore.NewTee(cores...))
}

// AddOutput tees JSON-encoded entries to w (e.g., for TUI log buffer).
// Returns an error if called before Init.
// Loggers already derived with L().With keep their old outputs.
func AddOutput(w io.Writer) error {
	l := current()
	if l == nil {
		return errNotInitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
	l.rebuild()
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	l := current()
	if l == nil {
		return errNotInitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.outputs[:0]
	for _, output := range l.outputs {
		if output != w {
			kept = append(kept, output)
		}
	}
	l.outputs = kept
	l.rebuild()
	return nil
}

// SetEnabled enables or disables logging on every output, including loggers already
// derived from L().
// Returns an error if called before Init.
func SetEnabled(enabled bool) error {
	l := current()
	if l == nil {
		return errNotInitialized
	}
	l.enabled.Store(enabled)
	return nil
}

// L returns the global zap logger, or a no-op logger before Init.
func L() *zap.Logger {
	l := current()
	if l == nil {
		return zap.NewNop()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// Printf logs a formatted message at info level
func Printf(format string, v ...interface{}) {
	L().Sugar().Infof(format, v...)
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	L().Sugar().Infof(format, v...)
}

// Debugf logs a debug-level formatted message
func Debugf(format string, v ...interface{}) {
	L().Sugar().Debugf(format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	L().Sugar().Errorf(format, v...)
}
