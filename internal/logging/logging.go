// Package logging builds the process logger from configuration.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/AaronLay10/FlowEngine/internal/config"
)

// New builds a zap logger. Console format uses the colored development
// encoder; anything else writes JSON with ISO8601 timestamps.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	return build(cfg, []string{"stderr"})
}

func build(cfg config.LogConfig, outputs []string) (*zap.Logger, error) {
	console := cfg.Format == "console"

	var enc zapcore.EncoderConfig
	if console {
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc = zap.NewProductionEncoderConfig()
		enc.TimeKey = "timestamp"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(Level(cfg.Level)),
		Development:      console,
		Encoding:         "json",
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	if console {
		zcfg.Encoding = "console"
	}
	return zcfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Level maps a level name to a zap level. Unknown names are info.
func Level(name string) zapcore.Level {
	switch name {
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
