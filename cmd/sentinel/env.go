package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clawdbot/sentinel/pkg/config"
	"github.com/clawdbot/sentinel/pkg/observability"
)

// newLogger builds the process logger at the configured level, writing to
// stderr so command output on stdout stays machine-readable.
func newLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// newObservability builds the telemetry provider from deployment config.
// Telemetry stays off unless SENTINEL_OTEL_ENABLED=true; a disabled
// provider is a usable no-op.
func newObservability(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	return observability.New(ctx, obsCfg)
}

// ensureDataDir creates the state directory and returns the path of a file
// inside it.
func ensureDataDir(cfg *config.Config, name string) (string, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return filepath.Join(cfg.DataDir, name), nil
}
