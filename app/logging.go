package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/searchktools/maya/config"
)

// NewLogger creates a zap logger configured from cfg. Production uses JSON
// encoding; anything else uses the console development encoder.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zcfg.Build()
}
