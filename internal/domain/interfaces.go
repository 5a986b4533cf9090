package domain

import (
	"context"
)

// ReasoningRequest is what the engine hands to the reasoning upstream.
type ReasoningRequest struct {
	APIKey   string
	Messages []Message
	Config   UpstreamConfig
}

// SynthesisRequest is what the engine hands to the synthesis upstream.
type SynthesisRequest struct {
	APIKey   string
	System   string
	Messages []Message
	Config   UpstreamConfig
}

// ReasoningProvider produces chain-of-thought for a conversation.
type ReasoningProvider interface {
	Name() string

	// Reason issues one blocking call and returns the parsed result.
	Reason(ctx context.Context, req *ReasoningRequest) (*ReasoningResult, error)

	// ReasonStream returns a channel of parsed chunks.
	// The channel MUST be closed by the provider when done, and a chunk
	// carrying Err is always the last one sent.
	ReasonStream(ctx context.Context, req *ReasoningRequest) (<-chan ReasoningChunk, error)
}

// SynthesisProvider produces the final answer from the augmented conversation.
type SynthesisProvider interface {
	Name() string

	// Synthesize issues one blocking call and returns the parsed result.
	Synthesize(ctx context.Context, req *SynthesisRequest) (*SynthesisResult, error)

	// SynthesizeStream returns a channel of parsed chunks.
	// The channel MUST be closed by the provider when done.
	SynthesizeStream(ctx context.Context, req *SynthesisRequest) (<-chan SynthesisChunk, error)
}

// TokenEstimator estimates token counts when an upstream omits usage.
type TokenEstimator interface {
	CountText(model, text string) int
}
