package cmd

import (
	"log/slog"
	"os"

	"github.com/quorumhq/quorum/internal/log"
)

// Execute runs the CLI. It is the single entry point called from main.
func Execute() error {
	logger := initLogger()
	slog.SetDefault(logger)

	return NewRootCmd().Execute()
}

// initLogger builds the process logger. DEBUG in the environment enables
// debug level; QUORUM_LOG_JSON switches to JSON output for log shippers.
// Logs go to stderr so stdout stays clean for command output.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
		cfg.AddSource = true
	}
	if os.Getenv("QUORUM_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
