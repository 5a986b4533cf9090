package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
		wantParam  string
	}{
		{
			name:       "validation",
			err:        domain.ErrValidation("bad").WithParam("messages"),
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_request_error",
			wantCode:   "validation",
			wantParam:  "messages",
		},
		{
			name:       "missing credential",
			err:        domain.ErrMissingCredential("no key"),
			wantStatus: http.StatusUnauthorized,
			wantType:   "authentication_error",
			wantCode:   "missing_credential",
		},
		{
			name:       "upstream code kept",
			err:        domain.ErrUpstreamProtocol(domain.UpstreamSynthesis, "overloaded").WithCode("overloaded_error"),
			wantStatus: http.StatusBadGateway,
			wantType:   "upstream_error",
			wantCode:   "overloaded_error",
		},
		{
			name:       "plain error",
			err:        errors.New("oops"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "server_error",
			wantCode:   "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := FormatError(tt.err)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body ErrorBody
			if err := json.Unmarshal(resp.Body, &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", body.Error.Type, tt.wantType)
			}
			if body.Error.Code == nil || *body.Error.Code != tt.wantCode {
				t.Errorf("code = %v, want %q", body.Error.Code, tt.wantCode)
			}
			if tt.wantParam != "" && (body.Error.Param == nil || *body.Error.Param != tt.wantParam) {
				t.Errorf("param = %v, want %q", body.Error.Param, tt.wantParam)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, domain.ErrMissingReasoning())

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "missing_reasoning_content") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEncodeEvent(t *testing.T) {
	meta := &StreamMetadata{ID: "chatcmpl-1", Model: "r_s", Created: 42}
	usage := &domain.TurnUsage{
		Reasoning: domain.ReasoningUsage{InputTokens: 1, OutputTokens: 2, ReasoningTokens: 2},
		Synthesis: domain.SynthesisUsage{InputTokens: 3, OutputTokens: 4},
	}

	tests := []struct {
		name string
		ev   domain.UnifiedEvent
		want string
	}{
		{"role", domain.UnifiedEvent{Kind: domain.EventRoleAnnounce},
			`"delta":{"role":"assistant"},"finish_reason":null`},
		{"reasoning", domain.UnifiedEvent{Kind: domain.EventReasoningDelta, Text: "hm"},
			`"delta":{"reasoning_content":"hm"}`},
		{"content", domain.UnifiedEvent{Kind: domain.EventContentDelta, Text: "42"},
			`"delta":{"content":"42"}`},
		{"heartbeat", domain.UnifiedEvent{Kind: domain.EventHeartbeat},
			`"heartbeat":true`},
		{"done", domain.UnifiedEvent{Kind: domain.EventDone, Usage: usage},
			`"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":6,"total_tokens":10`},
		{"error", domain.UnifiedEvent{Kind: domain.EventError, Err: domain.ErrMissingReasoning()},
			`"finish_reason":"error"}],"error":{"message":"reasoning upstream returned no reasoning content","type":"server_error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(EncodeEvent(tt.ev, meta))
			if err != nil {
				t.Fatal(err)
			}
			s := string(data)
			if !strings.Contains(s, `"object":"chat.completion.chunk"`) || !strings.Contains(s, `"id":"chatcmpl-1"`) {
				t.Errorf("chunk header missing: %s", s)
			}
			if !strings.Contains(s, tt.want) {
				t.Errorf("chunk = %s, want to contain %s", s, tt.want)
			}
		})
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSE(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := WriteDone(&buf); err != nil {
		t.Fatal(err)
	}
	want := "data: {\"a\":1}\n\ndata: [DONE]\n\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
