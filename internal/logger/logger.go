// Package logger builds the zap logger shared by a run. Logs go to stdout
// and, when an artifact directory exists, to run.log inside it.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func New(artifactDir string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	if artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0755); err == nil {
			cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(artifactDir, "run.log"))
		}
	}

	return cfg.Build()
}
