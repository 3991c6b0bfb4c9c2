package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Init runs,
// so packages can log from tests without setup.
var Log = zap.NewNop()

// Init sets up the global logger for service. Call once in main().
// LOG_LEVEL picks the level; LOG_FORMAT=console switches to the
// human-readable encoder.
func Init(service string) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level.SetLevel(parseLevel(level))
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = l.With(zap.String("service", service))
	return nil
}

// parseLevel is a helper mapping strings to zapcore.Level
func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
