package anthropic

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// Shape names which structure a non-streaming reply was recognised as.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeContentBlocks is the documented {"content": [{"type":"text","text":...}]}.
	ShapeContentBlocks
	// ShapeStringContent is {"content": "..."}.
	ShapeStringContent
	// ShapeOpenAIChoices is {"choices": [{"message": {"content": "..."}}]}.
	ShapeOpenAIChoices
	// ShapeRawFallback is an object with an id and a content-ish key but no
	// extractable text; the whole body becomes the text.
	ShapeRawFallback
)

func (s Shape) String() string {
	switch s {
	case ShapeContentBlocks:
		return "content_blocks"
	case ShapeStringContent:
		return "string_content"
	case ShapeOpenAIChoices:
		return "openai_choices"
	case ShapeRawFallback:
		return "raw_fallback"
	}
	return "unknown"
}

// Probe recognises a synthesis reply by trying each shape in priority order.
// Only the text path has to parse; id, model, stop_reason and usage are
// best effort and a value of the wrong type counts as absent. It fails with a
// protocol error carrying the raw body when no shape applies.
func Probe(raw []byte) (Shape, *domain.SynthesisResult, error) {
	trimmed := bytes.TrimSpace(raw)

	var body map[string]json.RawMessage
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &body) != nil {
		return ShapeUnknown, nil, unrecognised(raw)
	}

	if detail := ParseErrorResponse(trimmed); detail != nil {
		return ShapeUnknown, nil, detail.ToCanonical(0).WithRawBody(raw)
	}

	result := &domain.SynthesisResult{
		Usage: lenientUsage(body["usage"]).ToDomain(),
	}
	result.ID, _ = stringValue(body["id"])
	result.Model, _ = stringValue(body["model"])
	result.StopReason, _ = stringValue(body["stop_reason"])

	if text, ok := contentBlocksText(body["content"]); ok {
		result.Text = text
		return ShapeContentBlocks, finish(result), nil
	}

	if text, ok := stringValue(body["content"]); ok {
		result.Text = text
		return ShapeStringContent, finish(result), nil
	}

	if choice, ok := firstChoice(body["choices"]); ok {
		if text, ok := stringValue(field(choice["message"], "content")); ok {
			result.Text = text
			if result.StopReason == "" {
				result.StopReason, _ = stringValue(choice["finish_reason"])
			}
			return ShapeOpenAIChoices, finish(result), nil
		}
	}

	if present(body["id"]) && (present(body["content"]) || present(body["text"]) || present(body["message"])) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return ShapeUnknown, nil, unrecognised(raw)
		}
		result.Text = compact.String()
		return ShapeRawFallback, finish(result), nil
	}

	return ShapeUnknown, nil, unrecognised(raw)
}

func firstChoice(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if !present(raw) || raw[0] != '[' {
		return nil, false
	}
	var choices []json.RawMessage
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 {
		return nil, false
	}
	return object(choices[0])
}

// field returns key from a raw object, or nil when raw is not an object.
func field(raw json.RawMessage, key string) json.RawMessage {
	obj, ok := object(raw)
	if !ok {
		return nil
	}
	return obj[key]
}

func object(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if !present(raw) || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// lenientUsage reads each counter on its own so one malformed count does
// not discard the others.
func lenientUsage(raw json.RawMessage) *Usage {
	obj, ok := object(raw)
	if !ok {
		return nil
	}
	count := func(key string) int {
		var n int
		if json.Unmarshal(obj[key], &n) != nil {
			return 0
		}
		return n
	}
	return &Usage{
		InputTokens:              count("input_tokens"),
		OutputTokens:             count("output_tokens"),
		CacheCreationInputTokens: count("cache_creation_input_tokens"),
		CacheReadInputTokens:     count("cache_read_input_tokens"),
		PromptTokens:             count("prompt_tokens"),
		CompletionTokens:         count("completion_tokens"),
	}
}

func contentBlocksText(raw json.RawMessage) (string, bool) {
	if !present(raw) || raw[0] != '[' {
		return "", false
	}
	var blocks []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}
	var sb strings.Builder
	for _, b := range blocks {
		if t, ok := b["type"]; ok {
			var kind string
			if json.Unmarshal(t, &kind) == nil && kind != "text" {
				continue
			}
		}
		if text, ok := stringValue(b["text"]); ok {
			sb.WriteString(text)
		}
	}
	return sb.String(), true
}

func stringValue(raw json.RawMessage) (string, bool) {
	if !present(raw) || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func finish(r *domain.SynthesisResult) *domain.SynthesisResult {
	if r.StopReason == "" {
		r.StopReason = "end_turn"
	}
	return r
}

func unrecognised(raw []byte) error {
	return domain.ErrUpstreamProtocol(domain.UpstreamSynthesis, "unrecognised response shape").
		WithRawBody(raw)
}
