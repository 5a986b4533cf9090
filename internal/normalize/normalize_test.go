package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestNormalize(t *testing.T) {
	n := New("PRE")

	tests := []struct {
		name       string
		messages   []domain.Message
		system     *string
		wantSystem string
		wantFirst  string
		wantLen    int
	}{
		{
			name:      "no system anywhere uses preamble",
			messages:  []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			wantFirst: "PRE",
			wantLen:   2,
		},
		{
			name:       "system field",
			messages:   []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			system:     strPtr("be terse"),
			wantSystem: "be terse",
			wantFirst:  "PRE\n\nbe terse",
			wantLen:    2,
		},
		{
			name: "system message moved to front",
			messages: []domain.Message{
				{Role: domain.RoleUser, Content: "a"},
				{Role: domain.RoleSystem, Content: "rules"},
				{Role: domain.RoleAssistant, Content: "b"},
				{Role: domain.RoleUser, Content: "c"},
			},
			wantSystem: "rules",
			wantFirst:  "PRE\n\nrules",
			wantLen:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := n.Normalize(tt.messages, tt.system)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if len(res.Messages) != tt.wantLen {
				t.Fatalf("len(Messages) = %d, want %d", len(res.Messages), tt.wantLen)
			}
			if res.Messages[0].Role != domain.RoleSystem || res.Messages[0].Content != tt.wantFirst {
				t.Errorf("Messages[0] = %+v, want system %q", res.Messages[0], tt.wantFirst)
			}
			if res.System != tt.wantSystem {
				t.Errorf("System = %q, want %q", res.System, tt.wantSystem)
			}
			for _, m := range res.Messages[1:] {
				if m.Role == domain.RoleSystem {
					t.Errorf("extra system message: %+v", m)
				}
			}
		})
	}
}

func TestNormalize_PreservesOrder(t *testing.T) {
	n := New("")
	res, err := n.Normalize([]domain.Message{
		{Role: domain.RoleUser, Content: "1"},
		{Role: domain.RoleAssistant, Content: "2"},
		{Role: domain.RoleUser, Content: "3"},
	}, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	var got []string
	for _, m := range res.Messages[1:] {
		got = append(got, m.Content)
	}
	if strings.Join(got, ",") != "1,2,3" {
		t.Errorf("order = %v", got)
	}
	if !strings.HasPrefix(res.Messages[0].Content, "Act as an expert architect engineer") {
		t.Errorf("default preamble not applied: %q", res.Messages[0].Content)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	n := New("PRE")

	tests := []struct {
		name     string
		messages []domain.Message
		system   *string
	}{
		{
			name:     "system field and system message",
			messages: []domain.Message{{Role: domain.RoleSystem, Content: "a"}, {Role: domain.RoleUser, Content: "hi"}},
			system:   strPtr("b"),
		},
		{
			name: "two system messages",
			messages: []domain.Message{
				{Role: domain.RoleSystem, Content: "a"},
				{Role: domain.RoleSystem, Content: "b"},
				{Role: domain.RoleUser, Content: "hi"},
			},
		},
		{name: "empty", messages: nil},
		{name: "only system", messages: []domain.Message{{Role: domain.RoleSystem, Content: "a"}}},
		{name: "unknown role", messages: []domain.Message{{Role: "tool", Content: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.messages, tt.system)
			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Normalize() error = %v, want *domain.APIError", err)
			}
			if apiErr.Type != domain.ErrorTypeValidation {
				t.Errorf("Type = %q, want %q", apiErr.Type, domain.ErrorTypeValidation)
			}
		})
	}
}
