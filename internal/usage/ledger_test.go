package usage

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
	"github.com/tjfontaine/reasoning-relay/internal/pricing"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)
	base := time.Now()

	for i, status := range []string{StatusCompleted, StatusFailed, StatusCompleted} {
		err := l.Record(ctx, &Record{
			ID:        string(rune('a' + i)),
			Status:    status,
			Reasoning: domain.ReasoningUsage{InputTokens: 1, OutputTokens: 2},
			Synthesis: domain.SynthesisUsage{InputTokens: 3, OutputTokens: 4},
			Cost:      pricing.Cost{Total: 0.5},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	records, err := l.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != "c" || records[1].ID != "b" {
		t.Errorf("List() = %+v, want [c b]", records)
	}

	totals, err := l.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	want := Totals{Turns: 3, FailedTurns: 1, PromptTokens: 12, CompletionTokens: 18, CostUSD: 1.5}
	if *totals != want {
		t.Errorf("Totals() = %+v, want %+v", *totals, want)
	}
}

func TestMemoryLedger_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)

	r := &Record{ID: "a", Status: StatusCompleted}
	l.Record(ctx, r)
	r.Status = StatusFailed

	records, _ := l.List(ctx, 0)
	if records[0].Status != StatusCompleted {
		t.Errorf("Status = %q, stored record aliased caller's value", records[0].Status)
	}
	if records[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestMemoryLedger_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(3)
	base := time.Now()

	for i := range 5 {
		l.Record(ctx, &Record{
			ID:        string(rune('a' + i)),
			Status:    StatusCompleted,
			Cost:      pricing.Cost{Total: 1},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	records, err := l.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids string
	for _, r := range records {
		ids += r.ID
	}
	if ids != "edc" {
		t.Errorf("List() ids = %q, want edc", ids)
	}
	if len(l.records) != 3 || cap(l.records) != 3 {
		t.Errorf("stored = %d (cap %d), want bounded at 3", len(l.records), cap(l.records))
	}

	totals, _ := l.Totals(ctx)
	if totals.Turns != 5 || totals.CostUSD != 5 {
		t.Errorf("Totals() = %+v, want all 5 turns counted", *totals)
	}
}

func TestDiscard(t *testing.T) {
	var l Ledger = Discard{}
	if err := l.Record(context.Background(), &Record{}); err != nil {
		t.Errorf("Record() error = %v", err)
	}
	totals, _ := l.Totals(context.Background())
	if totals.Turns != 0 {
		t.Errorf("Turns = %d", totals.Turns)
	}
}
