package deepseek

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
	defaultBaseURL = "https://api.deepseek.com"
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

// WithLogger sets the logger used for skipped stream frames.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the chat completions endpoint. It holds no per-call
// state and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
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
	// APIKey is sent as a bearer token.
	APIKey string
	// Headers are caller-supplied extras applied after the defaults.
	Headers map[string]string
}

// StreamResult wraps a chunk or error from streaming.
type StreamResult struct {
	Chunk *ChatCompletionChunk
	Err   error
}

// CreateChatCompletion sends a non-streaming request built by BuildRequest.
func (c *Client) CreateChatCompletion(ctx context.Context, body map[string]any, opts *RequestOptions) (*ChatCompletionResponse, error) {
	resp, err := c.do(ctx, body, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrUpstreamTransport(domain.UpstreamReasoning, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrUpstreamProtocol(domain.UpstreamReasoning,
			fmt.Sprintf("failed to unmarshal response: %v", err)).WithRawBody(respBody)
	}
	if len(result.Choices) == 0 {
		return nil, domain.ErrUpstreamProtocol(domain.UpstreamReasoning, "response contained no choices").
			WithRawBody(respBody)
	}

	return &result, nil
}

// StreamChatCompletion sends a streaming request and returns a channel of
// chunks. The channel is closed when the stream ends, errors, or ctx is done.
func (c *Client) StreamChatCompletion(ctx context.Context, body map[string]any, opts *RequestOptions) (<-chan StreamResult, error) {
	resp, err := c.do(ctx, body, opts)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, respBody)
	}

	out := make(chan StreamResult)
	go c.streamReader(ctx, resp.Body, out)
	return out, nil
}

func (c *Client) do(ctx context.Context, body map[string]any, opts *RequestOptions) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.ErrInternal(fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, domain.ErrInternal(fmt.Sprintf("failed to create request: %v", err))
	}

	if err := c.setHeaders(httpReq, opts); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrUpstreamTransport(domain.UpstreamReasoning, err)
	}
	return resp, nil
}

func (c *Client) streamReader(ctx context.Context, body io.ReadCloser, out chan<- StreamResult) {
	defer close(out)
	defer body.Close()

	send := func(r StreamResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	frames := upstream.NewFrameReader(body)
	sawFinish := false
	for {
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			if !sawFinish {
				send(StreamResult{Err: domain.ErrUpstreamProtocol(domain.UpstreamReasoning,
					"stream ended before completion")})
			}
			return
		}
		if err != nil {
			send(StreamResult{Err: domain.ErrUpstreamTransport(domain.UpstreamReasoning, fmt.Errorf("stream read error: %w", err))})
			return
		}

		data := strings.TrimSpace(frame.Data)
		if data == "" {
			continue
		}
		if data == upstream.DoneSentinel {
			return
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if apiErr := looseError(data); apiErr != nil {
				send(StreamResult{Err: apiErr})
				return
			}
			c.logger.Warn("skipping unparsable reasoning frame",
				slog.String("error", err.Error()),
				slog.Int("bytes", len(data)),
			)
			continue
		}

		if chunk.Error != nil && (chunk.Error.Message != "" || chunk.Error.Type != "") {
			send(StreamResult{Err: chunk.Error.ToCanonical(0)})
			return
		}

		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				sawFinish = true
			}
		}

		if !send(StreamResult{Chunk: &chunk}) {
			return
		}
	}
}

// looseError recognises error frames whose error field does not match
// ErrorDetail, such as {"error": "overloaded"}.
func looseError(data string) *domain.APIError {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil
	}
	raw, ok := probe["error"]
	if !ok || string(raw) == "null" {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = string(raw)
	}
	return domain.ErrUpstreamProtocol(domain.UpstreamReasoning, msg)
}

func (c *Client) setHeaders(req *http.Request, opts *RequestOptions) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set("User-Agent", userAgent)
	if opts == nil {
		return nil
	}
	if opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	}
	return upstream.ApplyHeaders(req, opts.Headers)
}
