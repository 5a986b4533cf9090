package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantShape Shape
		wantText  string
	}{
		{
			name:      "standard content blocks",
			body:      `{"id":"msg_1","type":"message","model":"claude-3-7-sonnet-20250219","content":[{"type":"text","text":"Answer: "},{"type":"text","text":"42"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":3}}`,
			wantShape: ShapeContentBlocks,
			wantText:  "Answer: 42",
		},
		{
			name:      "non-text blocks skipped",
			body:      `{"id":"msg_1","content":[{"type":"thinking","text":"hidden"},{"type":"text","text":"shown"}]}`,
			wantShape: ShapeContentBlocks,
			wantText:  "shown",
		},
		{
			name:      "string content",
			body:      `{"id":"msg_2","content":"plain"}`,
			wantShape: ShapeStringContent,
			wantText:  "plain",
		},
		{
			name:      "openai choices",
			body:      `{"choices":[{"message":{"content":"hi"}}]}`,
			wantShape: ShapeOpenAIChoices,
			wantText:  "hi",
		},
		{
			name:      "raw fallback",
			body:      `{"id": "x1", "message": {"parts": ["a"]}}`,
			wantShape: ShapeRawFallback,
			wantText:  `{"id":"x1","message":{"parts":["a"]}}`,
		},
		{
			name:      "string usage count ignored",
			body:      `{"id":"msg_1","content":"hello","usage":{"input_tokens":"12"}}`,
			wantShape: ShapeStringContent,
			wantText:  "hello",
		},
		{
			name:      "numeric id ignored",
			body:      `{"id":42,"content":[{"type":"text","text":"hello"}]}`,
			wantShape: ShapeContentBlocks,
			wantText:  "hello",
		},
		{
			name:      "choices with null model and fractional usage",
			body:      `{"choices":[{"message":{"content":"hello"}}],"model":null,"usage":{"prompt_tokens":1.5}}`,
			wantShape: ShapeOpenAIChoices,
			wantText:  "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, res, err := Probe([]byte(tt.body))
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if shape != tt.wantShape {
				t.Errorf("shape = %v, want %v", shape, tt.wantShape)
			}
			if res.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
			}
			if res.StopReason == "" {
				t.Error("StopReason is empty")
			}
		})
	}
}

func TestProbe_PartialMetadata(t *testing.T) {
	body := `{"id":"msg_9","model":7,"stop_reason":"max_tokens","content":"x","usage":{"input_tokens":"12","output_tokens":4}}`

	_, res, err := Probe([]byte(body))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if res.ID != "msg_9" {
		t.Errorf("ID = %q, want msg_9", res.ID)
	}
	if res.Model != "" {
		t.Errorf("Model = %q, want empty for non-string model", res.Model)
	}
	if res.StopReason != "max_tokens" {
		t.Errorf("StopReason = %q, want max_tokens", res.StopReason)
	}
	if res.Usage.InputTokens != 0 || res.Usage.OutputTokens != 4 {
		t.Errorf("Usage = %+v, want only output tokens kept", res.Usage)
	}
}

func TestProbe_Unrecognised(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>bad gateway</html>`},
		{"array", `[1,2,3]`},
		{"no recognisable keys", `{"foo":"bar"}`},
		{"content key without id", `{"message":{"x":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Probe([]byte(tt.body))
			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Probe() error = %v, want *domain.APIError", err)
			}
			if apiErr.Type != domain.ErrorTypeUpstreamProtocol {
				t.Errorf("Type = %q", apiErr.Type)
			}
			if apiErr.RawBody != tt.body {
				t.Errorf("RawBody = %q, want %q", apiErr.RawBody, tt.body)
			}
		})
	}
}

func TestProbe_ErrorEnvelope(t *testing.T) {
	_, _, err := Probe([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "overloaded_error" {
		t.Fatalf("Probe() error = %v, want overloaded_error", err)
	}
}

func TestBuildRequest(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "   "},
		{Role: domain.RoleAssistant, Content: "<thinking>\nx\n</thinking>"},
	}
	cfg := domain.UpstreamConfig{Body: json.RawMessage(`{"system":"evil","stream":true,"temperature":0.5}`)}

	body, err := BuildRequest(msgs, "be nice", false, cfg, Defaults{})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}

	if body["system"] != "be nice" {
		t.Errorf("system = %v, want argument value", body["system"])
	}
	if body["stream"] != false {
		t.Errorf("stream = %v, want false", body["stream"])
	}
	if body["temperature"] != 0.5 {
		t.Errorf("temperature = %v", body["temperature"])
	}
	if body["max_tokens"] != 8192 {
		t.Errorf("max_tokens = %v, want 8192", body["max_tokens"])
	}
	wire := body["messages"].([]map[string]string)
	if len(wire) != 2 || wire[0]["role"] != "user" || wire[1]["role"] != "assistant" {
		t.Errorf("messages = %v", wire)
	}
}

func TestBuildRequest_NoSystemWhenEmpty(t *testing.T) {
	body, err := BuildRequest(nil, "", true, domain.UpstreamConfig{Body: json.RawMessage(`{"system":"evil"}`)}, Defaults{})
	if err != nil {
		t.Fatalf("BuildRequest() error = %v", err)
	}
	if _, ok := body["system"]; ok {
		t.Errorf("system = %v, want absent", body["system"])
	}
}

func TestMaxTokensFor(t *testing.T) {
	if got := MaxTokensFor("claude-3-opus-20240229"); got != 4096 {
		t.Errorf("MaxTokensFor(opus) = %d, want 4096", got)
	}
	if got := MaxTokensFor("claude-3-5-sonnet-20241022"); got != 8192 {
		t.Errorf("MaxTokensFor(sonnet) = %d, want 8192", got)
	}
}

func TestProvider_Synthesize(t *testing.T) {
	var gotKey, gotVersion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`)
	}))
	defer server.Close()

	p := New(WithClient(NewClient(WithBaseURL(server.URL))))
	res, err := p.Synthesize(context.Background(), &domain.SynthesisRequest{
		APIKey:   "sk-ant",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if res.Text != "hi" {
		t.Errorf("Text = %q, want hi", res.Text)
	}
	if res.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", res.Model, DefaultModel)
	}
	if res.Usage.InputTokens != 7 || res.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v", res.Usage)
	}
	if gotKey != "sk-ant" || gotVersion != DefaultVersion {
		t.Errorf("headers: key=%q version=%q", gotKey, gotVersion)
	}
}

func TestProvider_SynthesizeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		fmt.Fprint(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer server.Close()

	p := New(WithClient(NewClient(WithBaseURL(server.URL))))
	_, err := p.Synthesize(context.Background(), &domain.SynthesisRequest{})

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if apiErr.HTTPStatusCode() != http.StatusBadGateway || apiErr.Message != "Overloaded" {
		t.Errorf("error = %+v", apiErr)
	}
}

const happyStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-7-sonnet-20250219","role":"assistant","usage":{"input_tokens":25,"output_tokens":1,"cache_read_input_tokens":4}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type": "ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Answer: "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"42"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":6}}

event: message_stop
data: {"type":"message_stop"}

`

func streamProvider(t *testing.T, body string) (*Provider, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))
	return New(WithClient(NewClient(WithBaseURL(server.URL)))), server.Close
}

func TestProvider_SynthesizeStream(t *testing.T) {
	p, done := streamProvider(t, happyStream)
	defer done()

	ch, err := p.SynthesizeStream(context.Background(), &domain.SynthesisRequest{})
	if err != nil {
		t.Fatalf("SynthesizeStream() error = %v", err)
	}

	var text strings.Builder
	var kinds []domain.SynthesisChunkKind
	var stop string
	var others int
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("stream error: %v", c.Err)
		}
		kinds = append(kinds, c.Kind)
		text.WriteString(c.Text)
		if c.StopReason != "" {
			stop = c.StopReason
		}
		if c.Kind == domain.SynthesisOther {
			others++
			if len(c.Raw) == 0 {
				t.Errorf("Other chunk %q has no raw payload", c.EventType)
			}
		}
	}

	if text.String() != "Answer: 42" {
		t.Errorf("text = %q, want %q", text.String(), "Answer: 42")
	}
	if stop != "end_turn" {
		t.Errorf("stop = %q", stop)
	}
	if kinds[0] != domain.SynthesisStart || kinds[len(kinds)-1] != domain.SynthesisStop {
		t.Errorf("kinds = %v", kinds)
	}
	if others != 3 {
		t.Errorf("others = %d, want 3", others)
	}
}

func TestProvider_SynthesizeStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "error event",
			body: "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{}}\n\nevent: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n",
		},
		{
			name: "truncated",
			body: "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{}}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, done := streamProvider(t, tt.body)
			defer done()

			ch, err := p.SynthesizeStream(context.Background(), &domain.SynthesisRequest{})
			if err != nil {
				t.Fatalf("SynthesizeStream() error = %v", err)
			}
			var streamErr error
			for c := range ch {
				if c.Err != nil {
					streamErr = c.Err
				}
			}
			if streamErr == nil {
				t.Error("expected stream error")
			}
		})
	}
}
