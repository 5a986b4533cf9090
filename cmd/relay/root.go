package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/reasoning-relay/internal/config"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "Two-stage reasoning relay",
	Long:         "Chains a reasoning model and a synthesis model behind an OpenAI-compatible chat completions endpoint.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultPath, "Configuration file (YAML)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// newLogger installs the JSON slog handler as the process default.
func newLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
