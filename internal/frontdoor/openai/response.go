package openai

import (
	"strconv"
	"time"

	"github.com/tjfontaine/reasoning-relay/internal/codec"
	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/engine"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
)

// ChatCompletion is the non-streaming response.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []Choice     `json:"choices"`
	Usage   codec.Usage  `json:"usage"`
	Relay   *RelayDetail `json:"x_relay,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

// RelayDetail is the per-upstream breakdown returned to verbose requests.
type RelayDetail struct {
	Mode           string                                `json:"mode"`
	UsageEstimated bool                                  `json:"usage_estimated"`
	Reasoning      UpstreamDetail[domain.ReasoningUsage] `json:"reasoning"`
	Synthesis      UpstreamDetail[domain.SynthesisUsage] `json:"synthesis"`
	Cost           pricing.Cost                          `json:"cost"`
	DurationMS     int64                                 `json:"duration_ms"`
}

type UpstreamDetail[U any] struct {
	Model   string  `json:"model"`
	Usage   U       `json:"usage"`
	CostUSD float64 `json:"cost_usd"`
}

// finishReason maps a synthesis stop reason to its OpenAI name.
func finishReason(stop string) string {
	if stop == "max_tokens" {
		return "length"
	}
	return codec.FinishReasonStop
}

func formatCost(usd float64) string {
	return strconv.FormatFloat(usd, 'f', 6, 64)
}

func buildCompletion(id string, created time.Time, res *engine.Result, mode engine.ForwardMode, prefixThinking, verbose bool) *ChatCompletion {
	content := res.Synthesis.Text
	if prefixThinking && res.Handoff != "" {
		content = res.Handoff + "\n\n" + content
	}

	resp := &ChatCompletion{
		ID:      id,
		Object:  codec.ObjectCompletion,
		Created: created.Unix(),
		Model:   res.Usage.ModelLabel(),
		Choices: []Choice{{
			Index: 0,
			Message: ResponseMessage{
				Role:             string(domain.RoleAssistant),
				Content:          content,
				ReasoningContent: res.ReasoningContent,
			},
			FinishReason: finishReason(res.Synthesis.StopReason),
		}},
		Usage: codec.UsageFrom(res.Usage),
	}

	if verbose {
		resp.Relay = &RelayDetail{
			Mode:           string(mode),
			UsageEstimated: res.UsageEstimated,
			Reasoning: UpstreamDetail[domain.ReasoningUsage]{
				Model:   res.Usage.ReasoningModel,
				Usage:   res.Usage.Reasoning,
				CostUSD: res.Cost.Reasoning,
			},
			Synthesis: UpstreamDetail[domain.SynthesisUsage]{
				Model:   res.Usage.SynthesisModel,
				Usage:   res.Usage.Synthesis,
				CostUSD: res.Cost.Synthesis,
			},
			Cost:       res.Cost,
			DurationMS: res.Duration.Milliseconds(),
		}
	}
	return resp
}

// ModelList is the /v1/models response.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}
