// Package normalize turns a client conversation into the message list both
// upstreams are given: one system message first, then the rest in order.
package normalize

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// DefaultPreamble is prepended to every system message sent upstream.
const DefaultPreamble = `Act as an expert architect engineer and provide direction to your editor engineer.
Study the change request and the current code.
Describe how to modify the code to complete the request.
The editor engineer will rely solely on your instructions, so make them unambiguous and complete.
Explain all needed code changes clearly and completely, but concisely.
Just show the changes needed.

DO NOT show the entire updated function/file/etc!`

// Result is a normalized conversation.
type Result struct {
	// Messages starts with exactly one system message.
	Messages []domain.Message
	// System is the client's own system prompt, without the preamble.
	System string
}

// Normalizer injects a fixed preamble into the system role.
type Normalizer struct {
	preamble string
}

// New creates a normalizer. An empty preamble selects DefaultPreamble.
func New(preamble string) *Normalizer {
	if strings.TrimSpace(preamble) == "" {
		preamble = DefaultPreamble
	}
	return &Normalizer{preamble: preamble}
}

// Normalize validates the conversation and returns it with a single leading
// system message. A system prompt supplied both as the system field and as a
// system-role message is rejected, as is more than one system-role message.
func (n *Normalizer) Normalize(messages []domain.Message, system *string) (*Result, error) {
	if len(messages) == 0 {
		return nil, domain.ErrValidation("messages must not be empty").WithParam("messages")
	}

	var clientSystem string
	systemSeen := false
	rest := make([]domain.Message, 0, len(messages))

	for i, m := range messages {
		if !m.Role.Valid() {
			return nil, domain.ErrValidation(fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role)).
				WithParam("messages")
		}
		if m.Role != domain.RoleSystem {
			rest = append(rest, m)
			continue
		}
		if system != nil {
			return nil, domain.ErrValidation("system prompt provided both as the system field and as a system message").
				WithParam("system")
		}
		if systemSeen {
			return nil, domain.ErrValidation("at most one system message is allowed").
				WithParam("messages")
		}
		systemSeen = true
		clientSystem = m.Content
	}

	if system != nil {
		clientSystem = *system
	}

	if len(rest) == 0 {
		return nil, domain.ErrValidation("messages must contain at least one user or assistant message").
			WithParam("messages")
	}

	content := n.preamble
	if strings.TrimSpace(clientSystem) != "" {
		content = n.preamble + "\n\n" + clientSystem
	}

	out := make([]domain.Message, 0, len(rest)+1)
	out = append(out, domain.Message{Role: domain.RoleSystem, Content: content})
	out = append(out, rest...)

	return &Result{Messages: out, System: clientSystem}, nil
}
