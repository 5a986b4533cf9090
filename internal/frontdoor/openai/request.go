package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/upstream"
)

// Header names carrying the per-upstream API keys.
const (
	HeaderAuthorization  = "Authorization"
	HeaderAnthropicToken = "X-Anthropic-API-Token"
)

// DefaultMaxBodyBytes bounds the request body.
const DefaultMaxBodyBytes = 10 << 20

// ChatRequest is the inbound chat completion request.
type ChatRequest struct {
	// Model is accepted for client compatibility and otherwise ignored.
	Model           string                `json:"model,omitempty"`
	Stream          bool                  `json:"stream"`
	Verbose         bool                  `json:"verbose"`
	System          *string               `json:"system,omitempty"`
	Messages        []domain.Message      `json:"messages"`
	DeepSeekConfig  domain.UpstreamConfig `json:"deepseek_config"`
	AnthropicConfig domain.UpstreamConfig `json:"anthropic_config"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request, limit int64) (*ChatRequest, error) {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	var req ChatRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, domain.ErrValidation(fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
		case errors.Is(err, io.EOF):
			return nil, domain.ErrValidation("request body is empty")
		default:
			return nil, domain.ErrValidation(fmt.Sprintf("invalid request body: %v", err))
		}
	}
	return &req, nil
}

// Credentials are the API keys for one turn.
type Credentials struct {
	Reasoning string
	Synthesis string
}

// resolveCredentials reads the keys from the request headers, falling back to
// the configured keys. Each header wins over its fallback independently.
func resolveCredentials(r *http.Request, fallback Credentials) (Credentials, error) {
	creds := Credentials{
		Reasoning: bearerToken(r.Header.Get(HeaderAuthorization)),
		Synthesis: strings.TrimSpace(r.Header.Get(HeaderAnthropicToken)),
	}
	if creds.Reasoning == "" {
		creds.Reasoning = fallback.Reasoning
	}
	if creds.Synthesis == "" {
		creds.Synthesis = fallback.Synthesis
	}

	var missing []string
	if creds.Reasoning == "" {
		missing = append(missing, HeaderAuthorization+": Bearer <deepseek api key>")
	}
	if creds.Synthesis == "" {
		missing = append(missing, HeaderAnthropicToken+": <anthropic api key>")
	}
	if len(missing) > 0 {
		return creds, domain.ErrMissingCredential(
			"missing API credentials; provide " + strings.Join(missing, " and ") + " or configure them on the server")
	}
	return creds, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// bodyModel returns the model a caller's body fragment selects, if any.
func bodyModel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return upstream.ModelFromBody(m)
}
