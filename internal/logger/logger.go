package logger

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the root sugared logger. "prod"/"production" selects JSON output
// at Info level; anything else uses the development encoder at Debug level.
func New(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return zapLogger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and optional wiring
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
