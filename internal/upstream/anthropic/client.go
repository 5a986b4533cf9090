package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/upstream"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	userAgent      = "reasoning-relay/1.0"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithVersion overrides the anthropic-version header.
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// WithLogger sets the logger used for skipped stream frames and shape probes.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a custom HTTP client for the Anthropic Messages API.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Anthropic API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		version:    DefaultVersion,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestOptions contains per-request options.
type RequestOptions struct {
	// APIKey is sent as x-api-key.
	APIKey string
	// Headers are caller-supplied extras applied after the defaults.
	Headers map[string]string
}

// StreamEventResult wraps a parsed event or error from streaming.
type StreamEventResult struct {
	Event *StreamEvent
	Err   error
}

// CreateMessage sends a non-streaming request and probes the reply.
func (c *Client) CreateMessage(ctx context.Context, body map[string]any, opts *RequestOptions) (*domain.SynthesisResult, error) {
	resp, err := c.do(ctx, body, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrUpstreamTransport(domain.UpstreamSynthesis, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	shape, result, err := Probe(respBody)
	if err != nil {
		return nil, err
	}
	if shape != ShapeContentBlocks {
		c.logger.Warn("synthesis reply did not match the messages schema",
			slog.String("shape", shape.String()),
		)
	}
	return result, nil
}

// StreamMessage sends a streaming request and returns a channel of events.
// The channel is closed after message_stop, an error, or when ctx is done.
func (c *Client) StreamMessage(ctx context.Context, body map[string]any, opts *RequestOptions) (<-chan StreamEventResult, error) {
	resp, err := c.do(ctx, body, opts)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, respBody)
	}

	out := make(chan StreamEventResult)
	go c.streamReader(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) do(ctx context.Context, body map[string]any, opts *RequestOptions) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.ErrInternal(fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.ErrInternal(fmt.Sprintf("failed to create request: %v", err))
	}

	if err := c.setHeaders(httpReq, opts); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrUpstreamTransport(domain.UpstreamSynthesis, err)
	}
	return resp, nil
}

func (c *Client) streamReader(ctx context.Context, body io.ReadCloser, out chan<- StreamEventResult) {
	defer close(out)
	defer body.Close()

	send := func(r StreamEventResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	frames := upstream.NewFrameReader(body)
	for {
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			send(StreamEventResult{Err: domain.ErrUpstreamProtocol(domain.UpstreamSynthesis,
				"stream ended before message_stop")})
			return
		}
		if err != nil {
			send(StreamEventResult{Err: domain.ErrUpstreamTransport(domain.UpstreamSynthesis, fmt.Errorf("stream read error: %w", err))})
			return
		}

		data := strings.TrimSpace(frame.Data)
		if data == "" {
			continue
		}
		if data == upstream.DoneSentinel {
			send(StreamEventResult{Event: &StreamEvent{Type: "message_stop"}})
			return
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			if frame.Event == "error" {
				send(StreamEventResult{Err: domain.ErrUpstreamProtocol(domain.UpstreamSynthesis, data)})
				return
			}
			c.logger.Warn("skipping unparsable synthesis frame",
				slog.String("event", frame.Event),
				slog.String("error", err.Error()),
			)
			continue
		}
		if event.Type == "" {
			event.Type = frame.Event
		}
		event.Raw = json.RawMessage(data)

		if event.Type == "error" || event.Error != nil {
			detail := event.Error
			if detail == nil {
				detail = &ErrorDetail{Type: "error", Message: "stream reported an error"}
			}
			send(StreamEventResult{Err: detail.ToCanonical(0)})
			return
		}

		if !send(StreamEventResult{Event: &event}) {
			return
		}
		if event.Type == "message_stop" {
			return
		}
	}
}

func (c *Client) setHeaders(req *http.Request, opts *RequestOptions) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("anthropic-version", c.version)
	if opts == nil {
		return nil
	}
	if opts.APIKey != "" {
		req.Header.Set("x-api-key", opts.APIKey)
	}
	return upstream.ApplyHeaders(req, opts.Headers)
}
