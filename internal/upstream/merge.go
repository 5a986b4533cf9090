// Package upstream holds the request-building and stream-framing pieces
// shared by the reasoning and synthesis adapters.
package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// MergeBody layers a caller-supplied JSON object over defaults. Keys named
// in protected are never taken from the caller. The defaults map is not
// modified.
func MergeBody(defaults map[string]any, body json.RawMessage, protected ...string) (map[string]any, error) {
	out := make(map[string]any, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	var overrides map[string]any
	if err := json.Unmarshal(trimmed, &overrides); err != nil {
		return nil, domain.ErrValidation(fmt.Sprintf("config body must be a JSON object: %v", err)).
			WithParam("body")
	}

	for k, v := range overrides {
		if isProtected(k, protected) {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func isProtected(key string, protected []string) bool {
	for _, p := range protected {
		if p == key {
			return true
		}
	}
	return false
}

// ApplyHeaders copies caller-supplied headers onto req after validating them.
// A malformed name or value is an internal error, matching how the request
// could not be constructed locally.
func ApplyHeaders(req *http.Request, headers map[string]string) error {
	for name, value := range headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return domain.ErrInternal(fmt.Sprintf("invalid header name %q", name))
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return domain.ErrInternal(fmt.Sprintf("invalid value for header %q", name))
		}
		req.Header.Set(name, value)
	}
	return nil
}

// ModelFromBody returns the "model" value of a merged body, if it is a string.
func ModelFromBody(body map[string]any) string {
	if m, ok := body["model"].(string); ok {
		return strings.TrimSpace(m)
	}
	return ""
}
