package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/reasoning-relay/internal/config"
	"github.com/tjfontaine/reasoning-relay/internal/engine"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
	"github.com/tjfontaine/reasoning-relay/internal/usage"
)

func TestOpenLedger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.UsageConfig
		wantErr bool
	}{
		{"memory", config.UsageConfig{Driver: "memory"}, false},
		{"none", config.UsageConfig{Driver: "none"}, false},
		{"sqlite", config.UsageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "u.db")}, false},
		{"unknown", config.UsageConfig{Driver: "postgres"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := openLedger(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openLedger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if l != nil {
				l.Close()
			}
		})
	}

	for _, driver := range []string{"", "none"} {
		l, _ := openLedger(config.UsageConfig{Driver: driver})
		if _, ok := l.(usage.Discard); !ok {
			t.Errorf("driver %q = %T, want usage.Discard", driver, l)
		}
	}

	l, _ := openLedger(config.UsageConfig{Driver: "memory", Capacity: 2})
	mem, ok := l.(*usage.MemoryLedger)
	if !ok {
		t.Fatalf("memory driver = %T, want *usage.MemoryLedger", l)
	}
	ctx := context.Background()
	for range 3 {
		mem.Record(ctx, &usage.Record{Status: usage.StatusCompleted})
	}
	if records, _ := mem.List(ctx, 0); len(records) != 2 {
		t.Errorf("memory ledger kept %d records, want capacity 2", len(records))
	}
}

func TestBuildEngine(t *testing.T) {
	cfg := &config.Config{
		Mode:              "full",
		HeartbeatInterval: time.Second,
		DeepSeek:          config.DeepSeekConfig{Model: "deepseek-r1"},
		Anthropic:         config.AnthropicConfig{Model: "claude-sonnet-4-5"},
	}

	eng := buildEngine(cfg, http.DefaultClient, pricing.DefaultTable(), slog.New(slog.DiscardHandler))
	if eng.Mode() != engine.ModeFull {
		t.Errorf("Mode() = %v, want full", eng.Mode())
	}
	r, s := eng.Models()
	if r != "deepseek-r1" || s != "claude-sonnet-4-5" {
		t.Errorf("Models() = %q, %q", r, s)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPricingCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"pricing", "--config", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, want := range []string{"PROVIDER", "deepseek-reasoner", "anthropic"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
