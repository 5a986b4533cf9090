// Package usage records per-turn token counts and cost. Message content is
// never stored.
package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
)

// Record is the accounting of one turn.
type Record struct {
	ID             string
	RequestID      string
	Mode           string
	Streaming      bool
	Status         string
	ReasoningModel string
	SynthesisModel string
	Reasoning      domain.ReasoningUsage
	Synthesis      domain.SynthesisUsage
	UsageEstimated bool
	Cost           pricing.Cost
	ErrorType      string
	Duration       time.Duration
	CreatedAt      time.Time
}

// Status values of a Record.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Totals aggregates records.
type Totals struct {
	Turns            int
	FailedTurns      int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Add folds r into t.
func (t *Totals) Add(r *Record) {
	t.Turns++
	if r.Status == StatusFailed {
		t.FailedTurns++
	}
	t.PromptTokens += r.Reasoning.InputTokens + r.Synthesis.InputTokens
	t.CompletionTokens += r.Reasoning.OutputTokens + r.Synthesis.OutputTokens
	t.CostUSD += r.Cost.Total
}

// Ledger stores turn records.
type Ledger interface {
	Record(ctx context.Context, r *Record) error
	// List returns the most recent records first.
	List(ctx context.Context, limit int) ([]*Record, error)
	Totals(ctx context.Context) (*Totals, error)
	Close() error
}

// DefaultMemoryCapacity bounds a MemoryLedger created without a capacity.
const DefaultMemoryCapacity = 1000

// MemoryLedger keeps the most recent records in a fixed-size ring. Totals
// cover every turn recorded, including those the ring has since evicted.
type MemoryLedger struct {
	mu      sync.RWMutex
	records []*Record
	next    int
	totals  Totals
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory ledger holding at most capacity
// records. A capacity of zero or less means DefaultMemoryCapacity.
func NewMemoryLedger(capacity int) *MemoryLedger {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryLedger{records: make([]*Record, 0, capacity)}
}

func (m *MemoryLedger) Record(ctx context.Context, r *Record) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	cp := *r

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) < cap(m.records) {
		m.records = append(m.records, &cp)
	} else {
		m.records[m.next] = &cp
		m.next = (m.next + 1) % len(m.records)
	}
	m.totals.Add(&cp)
	return nil
}

func (m *MemoryLedger) List(ctx context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) Totals(ctx context.Context) (*Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := m.totals
	return &t, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}

// Discard is a ledger that stores nothing.
type Discard struct{}

var _ Ledger = Discard{}

func (Discard) Record(context.Context, *Record) error { return nil }

func (Discard) List(context.Context, int) ([]*Record, error) { return nil, nil }

func (Discard) Totals(context.Context) (*Totals, error) { return &Totals{}, nil }

func (Discard) Close() error { return nil }
