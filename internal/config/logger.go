package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a *zap.Logger from "logging.level" (debug, info, warn,
// error; default "info") and "logging.format" (json, console; default
// "json"). Every logger carries a "service" field so multi-process
// deployments (synheartd plus any future sidecar) can be told apart in
// aggregated log output.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := parseLevel(v.GetString("logging.level"))
	if err != nil {
		return nil, err
	}

	cfg, err := baseConfig(v.GetString("logging.format"))
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": "synheartd"}

	return cfg.Build()
}

// parseLevel maps a level name to a zap level, defaulting an unset string
// to info rather than requiring every caller to set one explicitly.
func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", name)
	}
}

// baseConfig returns the zap.Config template for the requested format.
func baseConfig(format string) (zap.Config, error) {
	switch format {
	case "", "json":
		return zap.NewProductionConfig(), nil
	case "console":
		return zap.NewDevelopmentConfig(), nil
	default:
		return zap.Config{}, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}
}
