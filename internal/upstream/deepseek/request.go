package deepseek

import (
	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/upstream"
)

// DefaultModel is used when neither configuration nor the caller names one.
const DefaultModel = "deepseek-reasoner"

// protectedKeys can never be overridden by a caller-supplied body.
var protectedKeys = []string{"messages", "stream"}

// Defaults are the request fields applied before the caller's body.
type Defaults struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func (d Defaults) toMap() map[string]any {
	model := d.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := d.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	temperature := d.Temperature
	if temperature == 0 {
		temperature = 1.0
	}
	return map[string]any{
		"model":           model,
		"max_tokens":      maxTokens,
		"temperature":     temperature,
		"response_format": map[string]any{"type": "text"},
	}
}

// BuildRequest assembles the request body: defaults, then the caller's body,
// then messages and stream, which always come from the arguments.
func BuildRequest(messages []domain.Message, stream bool, cfg domain.UpstreamConfig, defaults Defaults) (map[string]any, error) {
	body, err := upstream.MergeBody(defaults.toMap(), cfg.Body, protectedKeys...)
	if err != nil {
		return nil, err
	}

	wire := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	body["messages"] = wire
	body["stream"] = stream
	if _, ok := body["stream_options"]; stream && !ok {
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	return body, nil
}
