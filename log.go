package perfcollect

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = NewLogger(false)

// NewLogger returns a console logger writing to stderr. Only warnings and
// errors are shown unless verbose is set.
func NewLogger(verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// SetLogger replaces the package logger.
func SetLogger(l *zap.Logger) {
	logger = l
}
