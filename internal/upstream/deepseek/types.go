// Package deepseek adapts an OpenAI-compatible chat completions endpoint
// that reports chain-of-thought in reasoning_content.
package deepseek

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// ChatCompletionResponse is a non-streaming completion body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage carries the answer and the chain-of-thought.
type ResponseMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

// ChatCompletionChunk is one streamed frame.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// ChunkChoice is the per-choice delta of a streamed frame.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content of a chunk.
type Delta struct {
	Role             string  `json:"role,omitempty"`
	Content          *string `json:"content,omitempty"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// Usage is the token accounting block. DeepSeek reports cache hits either
// as prompt_cache_hit_tokens or under prompt_tokens_details.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptCacheHitTokens    int                      `json:"prompt_cache_hit_tokens,omitempty"`
	PromptCacheMissTokens   int                      `json:"prompt_cache_miss_tokens,omitempty"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// ToDomain converts the wire usage into the canonical record.
func (u *Usage) ToDomain() domain.ReasoningUsage {
	if u == nil {
		return domain.ReasoningUsage{}
	}
	out := domain.ReasoningUsage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		CachedTokens: u.PromptCacheHitTokens,
	}
	if out.CachedTokens == 0 && u.PromptTokensDetails != nil {
		out.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

// ErrorResponse is the error envelope returned on failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is an upstream-reported error object. Code is kept raw since
// providers send strings, numbers or null.
type ErrorDetail struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Param   *string         `json:"param,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// ParseErrorResponse parses an error body. It returns nil when the body
// does not contain an error object.
func ParseErrorResponse(body []byte) *ErrorDetail {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if resp.Error.Message == "" && resp.Error.Type == "" {
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
	apiErr := domain.ErrUpstreamProtocol(domain.UpstreamReasoning, msg)
	if code := e.code(); code != "" {
		apiErr.WithCode(code)
	} else if e.Type != "" {
		apiErr.WithCode(e.Type)
	}
	if status != 0 {
		apiErr.WithStatusCode(mapStatus(status))
	}
	return apiErr
}

func (e *ErrorDetail) code() string {
	raw := strings.TrimSpace(string(e.Code))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return raw
}

// mapStatus keeps client-meaningful statuses and folds the rest into 502.
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
	return domain.ErrUpstreamProtocol(domain.UpstreamReasoning,
		fmt.Sprintf("unexpected status %d", status)).
		WithStatusCode(mapStatus(status)).
		WithRawBody(body)
}
