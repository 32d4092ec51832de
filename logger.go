package api_debugger

import (
	"go.uber.org/zap"
)

// newLogger builds a production JSON logger at the given level.
func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	cfg.Sampling = nil
	return cfg.Build()
}
