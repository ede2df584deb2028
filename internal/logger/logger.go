// Package logger holds the process-wide structured logger used by the runtime.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(New(zapcore.InfoLevel))
}

// New creates a JSON production logger writing at level and above.
func New(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config := zap.NewProductionConfig()
	config.EncoderConfig = encoderConfig
	config.Level = zap.NewAtomicLevelAt(level)
	config.Sampling = nil
	l, err := config.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.DPanicLevel))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel converts text such as "debug" or "warn" into a level; unknown text yields
// info and an error.
func ParseLevel(text string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return zapcore.InfoLevel, err
	}
	return level, nil
}

// Set replaces the process-wide logger; nil installs a no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the process-wide logger
func L() *zap.Logger {
	return current.Load()
}

// Enabled returns true if level is enabled
func Enabled(level zapcore.Level) bool {
	return current.Load().Core().Enabled(level)
}

// Debug logs msg at debug level on the process-wide logger
func Debug(msg string, fields ...zap.Field) {
	current.Load().Debug(msg, fields...)
}

// Info logs msg at info level on the process-wide logger
func Info(msg string, fields ...zap.Field) {
	current.Load().Info(msg, fields...)
}

// Warn logs msg at warn level on the process-wide logger
func Warn(msg string, fields ...zap.Field) {
	current.Load().Warn(msg, fields...)
}

// Error logs msg at error level on the process-wide logger
func Error(msg string, fields ...zap.Field) {
	current.Load().Error(msg, fields...)
}
