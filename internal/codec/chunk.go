package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// Object names of OpenAI responses.
const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

// FinishReasonStop and FinishReasonError are the finish reasons the relay reports.
const (
	FinishReasonStop  = "stop"
	FinishReasonError = "error"
)

// Usage is the OpenAI usage object, summed over both upstreams.
type Usage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

// UsageFrom combines a turn's usage into the OpenAI shape.
func UsageFrom(u domain.TurnUsage) Usage {
	out := Usage{
		PromptTokens:     u.PromptTokens(),
		CompletionTokens: u.CompletionTokens(),
	}
	out.TotalTokens = out.PromptTokens + out.CompletionTokens

	if cached := u.Reasoning.CachedTokens + u.Synthesis.CacheReadTokens; cached > 0 {
		out.PromptTokensDetails = &PromptTokensDetails{CachedTokens: cached}
	}
	if u.Reasoning.ReasoningTokens > 0 {
		out.CompletionTokensDetails = &CompletionTokensDetails{ReasoningTokens: u.Reasoning.ReasoningTokens}
	}
	return out
}

// Delta is the incremental message of a streamed choice.
type Delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// ChatCompletionChunk is one streamed frame.
type ChatCompletionChunk struct {
	ID        string        `json:"id"`
	Object    string        `json:"object"`
	Created   int64         `json:"created"`
	Model     string        `json:"model"`
	Choices   []ChunkChoice `json:"choices"`
	Usage     *Usage        `json:"usage,omitempty"`
	Heartbeat bool          `json:"heartbeat,omitempty"`
	Error     *ErrorObject  `json:"error,omitempty"`
}

// StreamMetadata is shared by every chunk of one stream.
type StreamMetadata struct {
	ID      string
	Model   string
	Created int64
}

func (m *StreamMetadata) chunk(delta Delta, finish *string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      m.ID,
		Object:  ObjectChunk,
		Created: m.Created,
		Model:   m.Model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// EncodeEvent maps a unified event to its chunk. Done maps to the finish
// chunk and Error to the error chunk.
func EncodeEvent(ev domain.UnifiedEvent, meta *StreamMetadata) *ChatCompletionChunk {
	switch ev.Kind {
	case domain.EventRoleAnnounce:
		return meta.chunk(Delta{Role: string(domain.RoleAssistant)}, nil)
	case domain.EventReasoningDelta:
		return meta.chunk(Delta{ReasoningContent: ev.Text}, nil)
	case domain.EventContentDelta:
		return meta.chunk(Delta{Content: ev.Text}, nil)
	case domain.EventHeartbeat:
		c := meta.chunk(Delta{}, nil)
		c.Heartbeat = true
		return c
	case domain.EventDone:
		finish := FinishReasonStop
		c := meta.chunk(Delta{}, &finish)
		if ev.Usage != nil {
			u := UsageFrom(*ev.Usage)
			c.Usage = &u
		}
		return c
	default:
		if ev.Err == nil {
			return StreamErrorChunk(meta, domain.ErrInternal("stream failed"))
		}
		return StreamErrorChunk(meta, ev.Err)
	}
}

// StreamErrorChunk is the in-stream error frame. Clients read it as a
// finished choice with reason "error".
func StreamErrorChunk(meta *StreamMetadata, err error) *ChatCompletionChunk {
	finish := FinishReasonError
	c := meta.chunk(Delta{}, &finish)
	obj := NewErrorObject(err)
	obj.Type = "server_error"
	c.Error = &obj
	return c
}

// WriteSSE writes one data frame.
func WriteSSE(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream chunk: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// WriteDone writes the stream termination frame.
func WriteDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}
