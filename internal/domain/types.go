package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the recognised roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// UnmarshalJSON accepts roles case-insensitively.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	*r = Role(strings.ToLower(s))
	return nil
}

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UpstreamConfig is the per-request configuration for one upstream: extra
// headers and a free-form JSON fragment merged into the request body.
type UpstreamConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// ReasoningUsage is the token accounting reported by the reasoning upstream.
type ReasoningUsage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CachedTokens    int `json:"cached_tokens"`
	ReasoningTokens int `json:"reasoning_tokens"`
}

// SynthesisUsage is the token accounting reported by the synthesis upstream.
type SynthesisUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// ReasoningResult is the accumulated output of the reasoning stage.
type ReasoningResult struct {
	Model         string
	ReasoningText string
	DraftText     string
	HasDraft      bool
	FinishReason  string
	Usage         ReasoningUsage
}

// SynthesisResult is the output of the synthesis stage.
type SynthesisResult struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      SynthesisUsage
}

// ReasoningChunk is one parsed frame of the reasoning stream. Exactly one of
// the payload fields or Err is meaningful.
type ReasoningChunk struct {
	Model          string
	Role           Role
	ReasoningDelta string
	ContentDelta   string
	FinishReason   string
	Usage          *ReasoningUsage
	Err            error
}

// SynthesisChunkKind tags a synthesis stream event.
type SynthesisChunkKind int

const (
	SynthesisOther SynthesisChunkKind = iota
	SynthesisStart
	SynthesisDelta
	SynthesisStop
)

// SynthesisChunk is one parsed frame of the synthesis stream. Unrecognised
// event tags are passed through as SynthesisOther with the raw payload.
type SynthesisChunk struct {
	Kind       SynthesisChunkKind
	EventType  string
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      *SynthesisUsage
	Raw        json.RawMessage
	Err        error
}

// EventKind tags a UnifiedEvent.
type EventKind int

const (
	EventRoleAnnounce EventKind = iota
	EventReasoningDelta
	EventContentDelta
	EventHeartbeat
	EventDone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventRoleAnnounce:
		return "role"
	case EventReasoningDelta:
		return "reasoning"
	case EventContentDelta:
		return "content"
	case EventHeartbeat:
		return "heartbeat"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	}
	return "unknown"
}

// UnifiedEvent is the upstream-independent unit emitted to the client transport.
type UnifiedEvent struct {
	Kind  EventKind
	Text  string
	Err   *APIError
	Usage *TurnUsage
}

// TurnUsage combines both upstreams' accounting for one turn.
type TurnUsage struct {
	ReasoningModel string         `json:"reasoning_model"`
	SynthesisModel string         `json:"synthesis_model"`
	Reasoning      ReasoningUsage `json:"reasoning"`
	Synthesis      SynthesisUsage `json:"synthesis"`
}

// PromptTokens is the combined input token count of both upstreams.
func (u TurnUsage) PromptTokens() int {
	return u.Reasoning.InputTokens + u.Synthesis.InputTokens
}

// CompletionTokens is the combined output token count of both upstreams.
func (u TurnUsage) CompletionTokens() int {
	return u.Reasoning.OutputTokens + u.Synthesis.OutputTokens
}

// ModelLabel is the combined model identifier reported to clients.
func (u TurnUsage) ModelLabel() string {
	return u.ReasoningModel + "_" + u.SynthesisModel
}
