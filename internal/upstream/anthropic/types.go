// Package anthropic adapts the Anthropic Messages API as the synthesis
// upstream, including replies from compatible proxies that do not follow the
// documented schema.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// Usage is the token accounting block of a Messages response. The OpenAI
// field names are accepted too since some proxies translate responses.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	PromptTokens             int `json:"prompt_tokens"`
	CompletionTokens         int `json:"completion_tokens"`
}

// ToDomain converts the wire usage into the canonical record.
func (u *Usage) ToDomain() domain.SynthesisUsage {
	if u == nil {
		return domain.SynthesisUsage{}
	}
	out := domain.SynthesisUsage{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
	}
	if out.InputTokens == 0 {
		out.InputTokens = u.PromptTokens
	}
	if out.OutputTokens == 0 {
		out.OutputTokens = u.CompletionTokens
	}
	return out
}

// StreamEvent is the envelope shared by all streamed events.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *StreamMessage `json:"message,omitempty"`

	// content_block_delta and message_delta
	Delta *StreamDelta `json:"delta,omitempty"`

	// message_delta
	Usage *Usage `json:"usage,omitempty"`

	// error
	Error *ErrorDetail `json:"error,omitempty"`

	// Raw is the undecoded frame data.
	Raw json.RawMessage `json:"-"`
}

// StreamMessage is the message skeleton announced by message_start.
type StreamMessage struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Role  string `json:"role"`
	Usage *Usage `json:"usage,omitempty"`
}

// StreamDelta covers both text deltas and message-level deltas.
type StreamDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// ErrorResponse is the error envelope returned on failure.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is an upstream-reported error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseErrorResponse parses an error body, returning nil when the body
// carries no error object.
func ParseErrorResponse(body []byte) *ErrorDetail {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Error.Type == "" && resp.Error.Message == "" {
		return nil
	}
	return &resp.Error
}

// ToCanonical converts the upstream error into a protocol error.
func (e *ErrorDetail) ToCanonical(status int) *domain.APIError {
	msg := e.Message
	if msg == "" {
		msg = e.Type
	}
	apiErr := domain.ErrUpstreamProtocol(domain.UpstreamSynthesis, msg)
	if e.Type != "" {
		apiErr.WithCode(e.Type)
	}
	if status != 0 {
		apiErr.WithStatusCode(mapStatus(status))
	}
	return apiErr
}

func mapStatus(status int) int {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return status
	}
	return http.StatusBadGateway
}

func statusError(status int, body []byte) *domain.APIError {
	if detail := ParseErrorResponse(body); detail != nil {
		return detail.ToCanonical(status)
	}
	return domain.ErrUpstreamProtocol(domain.UpstreamSynthesis,
		fmt.Sprintf("unexpected status %d", status)).
		WithStatusCode(mapStatus(status)).
		WithRawBody(body)
}
