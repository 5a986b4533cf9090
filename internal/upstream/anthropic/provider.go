package anthropic

import (
	"context"

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

// Provider implements domain.SynthesisProvider.
type Provider struct {
	client   *Client
	defaults Defaults
}

var _ domain.SynthesisProvider = (*Provider)(nil)

// New creates a new synthesis provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient()
	}
	return p
}

func (p *Provider) Name() string {
	return string(domain.UpstreamSynthesis)
}

// Model is the model id requests default to.
func (p *Provider) Model() string {
	if p.defaults.Model == "" {
		return DefaultModel
	}
	return p.defaults.Model
}

func (p *Provider) Synthesize(ctx context.Context, req *domain.SynthesisRequest) (*domain.SynthesisResult, error) {
	body, err := BuildRequest(req.Messages, req.System, false, req.Config, p.defaults)
	if err != nil {
		return nil, err
	}

	result, err := p.client.CreateMessage(ctx, body, requestOptions(req))
	if err != nil {
		return nil, err
	}
	if result.Model == "" {
		result.Model = upstream.ModelFromBody(body)
	}
	return result, nil
}

func (p *Provider) SynthesizeStream(ctx context.Context, req *domain.SynthesisRequest) (<-chan domain.SynthesisChunk, error) {
	body, err := BuildRequest(req.Messages, req.System, true, req.Config, p.defaults)
	if err != nil {
		return nil, err
	}

	stream, err := p.client.StreamMessage(ctx, body, requestOptions(req))
	if err != nil {
		return nil, err
	}

	requested := upstream.ModelFromBody(body)
	out := make(chan domain.SynthesisChunk)
	go func() {
		defer close(out)
		for result := range stream {
			var chunk domain.SynthesisChunk
			if result.Err != nil {
				chunk = domain.SynthesisChunk{Err: result.Err}
			} else {
				chunk = toChunk(result.Event, requested)
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil || chunk.Kind == domain.SynthesisStop {
				return
			}
		}
	}()

	return out, nil
}

func toChunk(ev *StreamEvent, requested string) domain.SynthesisChunk {
	chunk := domain.SynthesisChunk{EventType: ev.Type}
	switch ev.Type {
	case "message_start":
		chunk.Kind = domain.SynthesisStart
		chunk.Model = requested
		if ev.Message != nil {
			chunk.ID = ev.Message.ID
			if ev.Message.Model != "" {
				chunk.Model = ev.Message.Model
			}
			if ev.Message.Usage != nil {
				u := ev.Message.Usage.ToDomain()
				chunk.Usage = &u
			}
		}
	case "content_block_delta":
		chunk.Kind = domain.SynthesisDelta
		if ev.Delta != nil {
			chunk.Text = ev.Delta.Text
		}
	case "message_delta":
		chunk.Kind = domain.SynthesisDelta
		if ev.Delta != nil {
			chunk.StopReason = ev.Delta.StopReason
		}
		if ev.Usage != nil {
			u := ev.Usage.ToDomain()
			chunk.Usage = &u
		}
	case "message_stop":
		chunk.Kind = domain.SynthesisStop
	default:
		chunk.Kind = domain.SynthesisOther
		chunk.Raw = ev.Raw
	}
	return chunk
}

func requestOptions(req *domain.SynthesisRequest) *RequestOptions {
	return &RequestOptions{
		APIKey:  req.APIKey,
		Headers: req.Config.Headers,
	}
}
