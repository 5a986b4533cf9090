package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/reasoning-relay/internal/config"
	"github.com/tjfontaine/reasoning-relay/internal/engine"
	"github.com/tjfontaine/reasoning-relay/internal/normalize"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
	"github.com/tjfontaine/reasoning-relay/internal/tokens"
	"github.com/tjfontaine/reasoning-relay/internal/upstream/anthropic"
	"github.com/tjfontaine/reasoning-relay/internal/upstream/deepseek"
	"github.com/tjfontaine/reasoning-relay/internal/usage"
	"github.com/tjfontaine/reasoning-relay/internal/usage/sqlite"
)

// buildEngine wires both upstream adapters into an engine.
func buildEngine(cfg *config.Config, client *http.Client, table *pricing.Table, logger *slog.Logger) *engine.Engine {
	reasoner := deepseek.New(
		deepseek.WithClient(deepseek.NewClient(
			deepseek.WithBaseURL(cfg.DeepSeek.BaseURL),
			deepseek.WithHTTPClient(client),
			deepseek.WithLogger(logger),
		)),
		deepseek.WithDefaults(deepseek.Defaults{
			Model:       cfg.DeepSeek.Model,
			MaxTokens:   cfg.DeepSeek.MaxTokens,
			Temperature: cfg.DeepSeek.Temperature,
		}),
	)

	synthesizer := anthropic.New(
		anthropic.WithClient(anthropic.NewClient(
			anthropic.WithBaseURL(cfg.Anthropic.BaseURL),
			anthropic.WithHTTPClient(client),
			anthropic.WithVersion(cfg.Anthropic.Version),
			anthropic.WithLogger(logger),
		)),
		anthropic.WithDefaults(anthropic.Defaults{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		}),
	)

	return engine.New(reasoner, synthesizer,
		engine.WithMode(cfg.ForwardMode()),
		engine.WithHeartbeatInterval(cfg.HeartbeatInterval),
		engine.WithPricing(table),
		engine.WithEstimator(tokens.NewCounter()),
		engine.WithNormalizer(normalize.New(cfg.Prompt.Preamble)),
		engine.WithLogger(logger),
	)
}

// openLedger opens the configured usage ledger.
func openLedger(cfg config.UsageConfig) (usage.Ledger, error) {
	switch cfg.Driver {
	case "", "none":
		return usage.Discard{}, nil
	case "memory":
		return usage.NewMemoryLedger(cfg.Capacity), nil
	case "sqlite":
		store, err := sqlite.New(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage ledger: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown usage driver %q", cfg.Driver)
	}
}
