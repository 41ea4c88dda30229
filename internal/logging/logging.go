// Package logging builds the single zap.Logger threaded explicitly into
// the Message Router, Connection Manager, and timing engine constructors
// (spec 5, 9: no global logger singleton). Grounded on
// IamMikeHelsel-bifrost's zap usage, not its build-tag slog-compat shim.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's encoding and level.
type Config struct {
	// Encoding is "console" (development) or "json" (production). Defaults
	// to "console" when empty.
	Encoding string
	// Level is one of zapcore's level names: debug, info, warn, error.
	// Defaults to "info" when empty.
	Level string
}

// New builds a *zap.Logger per cfg. Console encoding uses
// zap.NewDevelopment-style human-readable output; json uses
// zap.NewProduction-style structured output for log aggregation.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
	}

	switch cfg.Encoding {
	case "json":
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		return zc.Build()
	default:
		zc := zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zc.Build()
	}
}
