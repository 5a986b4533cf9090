package anthropic

import (
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/upstream"
)

const (
	// DefaultModel is used when neither configuration nor the caller names one.
	DefaultModel = "claude-3-7-sonnet-20250219"
	// DefaultVersion is the anthropic-version header value.
	DefaultVersion = "2023-06-01"
)

// protectedKeys can never be overridden by a caller-supplied body.
var protectedKeys = []string{"messages", "stream", "system"}

// Defaults are the request fields applied before the caller's body.
type Defaults struct {
	Model     string
	MaxTokens int
}

// MaxTokensFor returns the default output budget for model.
func MaxTokensFor(model string) int {
	if strings.Contains(model, "claude-3-opus") {
		return 4096
	}
	return 8192
}

func (d Defaults) toMap() map[string]any {
	model := d.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := d.MaxTokens
	if maxTokens == 0 {
		maxTokens = MaxTokensFor(model)
	}
	return map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
	}
}

// BuildRequest assembles the request body. System-role and blank messages
// are dropped since the Messages API takes the system prompt separately.
func BuildRequest(messages []domain.Message, system string, stream bool, cfg domain.UpstreamConfig, defaults Defaults) (map[string]any, error) {
	body, err := upstream.MergeBody(defaults.toMap(), cfg.Body, protectedKeys...)
	if err != nil {
		return nil, err
	}

	wire := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		wire = append(wire, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	body["messages"] = wire
	body["stream"] = stream
	if system != "" {
		body["system"] = system
	}
	return body, nil
}
