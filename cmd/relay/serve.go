package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/reasoning-relay/internal/frontdoor/openai"
	"github.com/tjfontaine/reasoning-relay/internal/pkg/safehttp"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
	"github.com/tjfontaine/reasoning-relay/internal/server"
	"github.com/tjfontaine/reasoning-relay/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OpenAI-compatible endpoint",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	shutdownTracer, err := telemetry.InitTracer(telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	table, err := pricing.LoadFile(cfg.Pricing.File)
	if err != nil {
		return err
	}

	ledger, err := openLedger(cfg.Usage)
	if err != nil {
		return err
	}
	defer ledger.Close()

	client := safehttp.NewClient(safehttp.Options{DenyPrivate: cfg.HTTP.DenyPrivate})
	eng := buildEngine(cfg, client, table, logger)

	srv := server.New(server.Options{
		Port:        cfg.Server.Port,
		Timeout:     cfg.Server.Timeout,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger,
	})
	openai.NewHandler(eng, openai.Options{
		Fallback: openai.Credentials{
			Reasoning: cfg.DeepSeek.APIKey,
			Synthesis: cfg.Anthropic.APIKey,
		},
		PrefixThinking: cfg.Response.PrefixThinking,
		StreamBuffer:   cfg.Stream.Buffer,
		Ledger:         ledger,
		Logger:         logger,
	}).Register(srv.Router)

	reasoningModel, synthesisModel := eng.Models()
	logger.Info("relay configured",
		slog.String("mode", string(eng.Mode())),
		slog.String("reasoning_model", reasoningModel),
		slog.String("synthesis_model", synthesisModel),
		slog.String("usage_driver", cfg.Usage.Driver),
		slog.Bool("deepseek_key_configured", cfg.DeepSeek.APIKey != ""),
		slog.Bool("anthropic_key_configured", cfg.Anthropic.APIKey != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("relay shutdown complete")
	return nil
}
