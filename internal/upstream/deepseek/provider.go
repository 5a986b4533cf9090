package deepseek

import (
	"context"
	"net/http"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/upstream"
)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithDefaults sets the request defaults.
func WithDefaults(d Defaults) ProviderOption {
	return func(p *Provider) {
		p.defaults = d
	}
}

// WithClient sets the underlying API client.
func WithClient(c *Client) ProviderOption {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements domain.ReasoningProvider.
type Provider struct {
	client   *Client
	defaults Defaults
}

var _ domain.ReasoningProvider = (*Provider)(nil)

// New creates a new reasoning provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(WithHTTPClient(http.DefaultClient))
	}
	return p
}

func (p *Provider) Name() string {
	return string(domain.UpstreamReasoning)
}

// Model is the model id requests default to.
func (p *Provider) Model() string {
	if p.defaults.Model == "" {
		return DefaultModel
	}
	return p.defaults.Model
}

func (p *Provider) Reason(ctx context.Context, req *domain.ReasoningRequest) (*domain.ReasoningResult, error) {
	body, err := BuildRequest(req.Messages, false, req.Config, p.defaults)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, body, requestOptions(req))
	if err != nil {
		return nil, err
	}

	choice := resp.Choices[0]
	result := &domain.ReasoningResult{
		Model:         resp.Model,
		ReasoningText: choice.Message.ReasoningContent,
		DraftText:     choice.Message.Content,
		HasDraft:      choice.Message.Content != "",
		FinishReason:  choice.FinishReason,
		Usage:         resp.Usage.ToDomain(),
	}
	if result.Model == "" {
		result.Model = upstream.ModelFromBody(body)
	}
	return result, nil
}

func (p *Provider) ReasonStream(ctx context.Context, req *domain.ReasoningRequest) (<-chan domain.ReasoningChunk, error) {
	body, err := BuildRequest(req.Messages, true, req.Config, p.defaults)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.StreamChatCompletion(ctx, body, requestOptions(req))
	if err != nil {
		return nil, err
	}

	requested := upstream.ModelFromBody(body)
	out := make(chan domain.ReasoningChunk)
	go func() {
		defer close(out)
		send := func(c domain.ReasoningChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for result := range stream {
			if result.Err != nil {
				send(domain.ReasoningChunk{Err: result.Err})
				return
			}

			chunk := result.Chunk
			rc := domain.ReasoningChunk{Model: chunk.Model}
			if rc.Model == "" {
				rc.Model = requested
			}
			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				rc.Role = domain.Role(choice.Delta.Role)
				if choice.Delta.ReasoningContent != nil {
					rc.ReasoningDelta = *choice.Delta.ReasoningContent
				}
				if choice.Delta.Content != nil {
					rc.ContentDelta = *choice.Delta.Content
				}
				if choice.FinishReason != nil {
					rc.FinishReason = *choice.FinishReason
				}
			}
			if chunk.Usage != nil {
				u := chunk.Usage.ToDomain()
				rc.Usage = &u
			}

			if !send(rc) {
				return
			}
		}
	}()

	return out, nil
}

func requestOptions(req *domain.ReasoningRequest) *RequestOptions {
	return &RequestOptions{
		APIKey:  req.APIKey,
		Headers: req.Config.Headers,
	}
}
