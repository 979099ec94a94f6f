package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isdmx/codejudge/config"
)

// ServiceName is attached to every entry in production mode.
const ServiceName = "codejudge"

// Mode selects the encoder preset.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// NewFromConfig builds the application logger from cfg.Logging.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	return New(cfg.Logging.Mode, cfg.Logging.Level)
}

// New builds a logger for mode at level. Both are matched case-insensitively.
func New(mode, level string) (*zap.Logger, error) {
	zcfg, err := presetFor(Mode(strings.ToLower(strings.TrimSpace(mode))))
	if err != nil {
		return nil, err
	}

	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid logging level %q: want debug, info, warn, error, dpanic, panic or fatal", level)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	return zcfg.Build()
}

func presetFor(mode Mode) (zap.Config, error) {
	switch mode {
	case ModeDevelopment:
		return developmentPreset(), nil
	case ModeProduction:
		return productionPreset(), nil
	}
	return zap.Config{}, fmt.Errorf("invalid logging mode %q: want %q or %q", mode, ModeProduction, ModeDevelopment)
}

// developmentPreset is console output with colored levels.
func developmentPreset() zap.Config {
	c := zap.NewDevelopmentConfig()
	c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return c
}

// productionPreset emits JSON; run durations are logged in milliseconds
// to line up with the time limits they are compared against.
func productionPreset() zap.Config {
	c := zap.NewProductionConfig()
	enc := &c.EncoderConfig
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.MillisDurationEncoder
	c.InitialFields = map[string]any{"service": ServiceName}
	return c
}
