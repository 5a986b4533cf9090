package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/reasoning-relay/internal/engine"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes environment overrides; "__" separates key levels,
// e.g. RELAY_SERVER__PORT.
const EnvPrefix = "RELAY_"

type Config struct {
	Server            ServerConfig    `koanf:"server"`
	Log               LogConfig       `koanf:"log"`
	Mode              string          `koanf:"mode"`
	HeartbeatInterval time.Duration   `koanf:"heartbeat_interval"`
	Stream            StreamConfig    `koanf:"stream"`
	Prompt            PromptConfig    `koanf:"prompt"`
	Response          ResponseConfig  `koanf:"response"`
	DeepSeek          DeepSeekConfig  `koanf:"deepseek"`
	Anthropic         AnthropicConfig `koanf:"anthropic"`
	Pricing           PricingConfig   `koanf:"pricing"`
	Usage             UsageConfig     `koanf:"usage"`
	Telemetry         TelemetryConfig `koanf:"telemetry"`
	HTTP              HTTPConfig      `koanf:"http"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// Timeout bounds a whole request, streaming included; 0 disables it.
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StreamConfig struct {
	Buffer int `koanf:"buffer"`
}

type PromptConfig struct {
	Preamble string `koanf:"preamble"`
}

type ResponseConfig struct {
	PrefixThinking bool `koanf:"prefix_thinking"`
}

type DeepSeekConfig struct {
	BaseURL     string  `koanf:"base_url"`
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

type AnthropicConfig struct {
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	Version   string `koanf:"version"`
	MaxTokens int    `koanf:"max_tokens"`
}

type PricingConfig struct {
	// File is an optional TOML file of per-model price overrides.
	File string `koanf:"file"`
}

type UsageConfig struct {
	Driver string `koanf:"driver"` // none, memory, sqlite
	DSN    string `koanf:"dsn"`
	// Capacity bounds the memory driver; older turns are evicted first.
	Capacity int `koanf:"capacity"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type HTTPConfig struct {
	// DenyPrivate refuses outbound connections to private and loopback addresses.
	DenyPrivate bool `koanf:"deny_private"`
}

var defaults = map[string]any{
	"server.port":            8080,
	"server.timeout":         10 * time.Minute,
	"log.level":              "info",
	"mode":                   string(engine.ModeNormal),
	"heartbeat_interval":     engine.DefaultHeartbeatInterval,
	"stream.buffer":          16,
	"deepseek.base_url":      "https://api.deepseek.com",
	"deepseek.model":         "deepseek-reasoner",
	"anthropic.base_url":     "https://api.anthropic.com/v1",
	"anthropic.model":        "claude-3-7-sonnet-20250219",
	"anthropic.version":      "2023-06-01",
	"usage.driver":           "none",
	"usage.dsn":              "relay.db",
	"usage.capacity":         1000,
	"telemetry.service_name": "reasoning-relay",
}

// conventionalEnv maps the unprefixed variables operators usually set to
// their keys. RELAY_ variables still take precedence.
var conventionalEnv = map[string]string{
	"DEEPSEEK_API_KEY":  "deepseek.api_key",
	"ANTHROPIC_API_KEY": "anthropic.api_key",
	"PORT":              "server.port",
	"MODE":              "mode",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from defaults, the YAML file at path (missing is
// fine), .env, and the environment, in increasing precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")
	for key, v := range defaults {
		k.Set(key, v)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	for name, key := range conventionalEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			k.Set(key, v)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.DeepSeek.APIKey = substituteEnvVars(cfg.DeepSeek.APIKey)
	cfg.Anthropic.APIKey = substituteEnvVars(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the relay cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := engine.ParseForwardMode(c.Mode); err != nil {
		return err
	}
	if c.Stream.Buffer <= 0 {
		return fmt.Errorf("stream.buffer must be positive, got %d", c.Stream.Buffer)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	}
	switch c.Usage.Driver {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("usage.driver %q not supported (memory, sqlite, none)", c.Usage.Driver)
	}
	return nil
}

// ForwardMode returns the validated reasoning-forward mode.
func (c *Config) ForwardMode() engine.ForwardMode {
	m, _ := engine.ParseForwardMode(c.Mode)
	return m
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
