// Package pricing maps upstream token usage to a monetary cost.
package pricing

import (
	"sort"
	"strings"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok      float64 `json:"input_per_mtok"`
	OutputPerMTok     float64 `json:"output_per_mtok"`
	CacheWritePerMTok float64 `json:"cache_write_per_mtok"`
	CacheReadPerMTok  float64 `json:"cache_read_per_mtok"`
}

// Provider names used as the first key of a Table.
const (
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
)

// defaultKey is the per-provider fallback entry.
const defaultKey = "default"

// DefaultPricing maps provider and model base names to their pricing.
// DeepSeek's input price is the cache-miss rate and its cache-read price the
// cache-hit rate.
var DefaultPricing = map[string]map[string]ModelPricing{
	ProviderDeepSeek: {
		"deepseek-reasoner": {InputPerMTok: 0.55, OutputPerMTok: 2.19, CacheReadPerMTok: 0.14},
		"deepseek-r1":       {InputPerMTok: 0.55, OutputPerMTok: 2.19, CacheReadPerMTok: 0.14},
		"deepseek-chat":     {InputPerMTok: 0.27, OutputPerMTok: 1.10, CacheReadPerMTok: 0.07},
		defaultKey:          {InputPerMTok: 0.55, OutputPerMTok: 2.19, CacheReadPerMTok: 0.14},
	},
	ProviderAnthropic: {
		"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
		"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
		"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
		"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
		"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10},
		"claude-3-7-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
		"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
		"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08},
		"claude-3-opus":     {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
		"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25, CacheWritePerMTok: 0.30, CacheReadPerMTok: 0.03},
		defaultKey:          {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	},
}

// Table is an immutable provider x model pricing table.
type Table struct {
	models map[string]map[string]ModelPricing
}

// NewTable copies entries into a new table.
func NewTable(entries map[string]map[string]ModelPricing) *Table {
	t := &Table{models: make(map[string]map[string]ModelPricing, len(entries))}
	for provider, models := range entries {
		m := make(map[string]ModelPricing, len(models))
		for name, p := range models {
			m[strings.ToLower(name)] = p
		}
		t.models[strings.ToLower(provider)] = m
	}
	return t
}

// DefaultTable returns a table holding DefaultPricing.
func DefaultTable() *Table {
	return NewTable(DefaultPricing)
}

// Lookup resolves a model: exact name, then the name without a date suffix,
// then the longest known name contained in it, then the provider default.
func (t *Table) Lookup(provider, model string) (ModelPricing, bool) {
	models, ok := t.models[strings.ToLower(provider)]
	if !ok {
		return ModelPricing{}, false
	}

	name := strings.ToLower(model)
	if p, ok := models[name]; ok {
		return p, true
	}
	if p, ok := models[NormalizeModelName(name)]; ok {
		return p, true
	}

	best := ""
	for key := range models {
		if key != defaultKey && strings.Contains(name, key) && len(key) > len(best) {
			best = key
		}
	}
	if best != "" {
		return models[best], true
	}

	p, ok := models[defaultKey]
	return p, ok
}

// NormalizeModelName strips a trailing date suffix.
// e.g., "claude-3-7-sonnet-20250219" -> "claude-3-7-sonnet"
func NormalizeModelName(raw string) string {
	parts := strings.Split(raw, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 6 {
			return strings.Join(parts[:len(parts)-1], "-")
		}
	}
	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// ReasoningCost prices reasoning usage. Cached prompt tokens are billed at
// the cache-read rate and the remainder of the prompt at the input rate.
func (t *Table) ReasoningCost(model string, u domain.ReasoningUsage) float64 {
	p, ok := t.Lookup(ProviderDeepSeek, model)
	if !ok {
		return 0
	}
	cached := u.CachedTokens
	if cached > u.InputTokens {
		cached = u.InputTokens
	}
	cost := float64(u.InputTokens-cached) * p.InputPerMTok / 1_000_000
	cost += float64(cached) * p.CacheReadPerMTok / 1_000_000
	cost += float64(u.OutputTokens) * p.OutputPerMTok / 1_000_000
	return cost
}

// SynthesisCost prices synthesis usage.
func (t *Table) SynthesisCost(model string, u domain.SynthesisUsage) float64 {
	p, ok := t.Lookup(ProviderAnthropic, model)
	if !ok {
		return 0
	}
	cost := float64(u.InputTokens) * p.InputPerMTok / 1_000_000
	cost += float64(u.OutputTokens) * p.OutputPerMTok / 1_000_000
	cost += float64(u.CacheWriteTokens) * p.CacheWritePerMTok / 1_000_000
	cost += float64(u.CacheReadTokens) * p.CacheReadPerMTok / 1_000_000
	return cost
}

// Cost is the price of one turn in USD.
type Cost struct {
	Reasoning float64 `json:"reasoning"`
	Synthesis float64 `json:"synthesis"`
	Total     float64 `json:"total"`
}

// TurnCost prices a completed turn.
func (t *Table) TurnCost(u domain.TurnUsage) Cost {
	c := Cost{
		Reasoning: t.ReasoningCost(u.ReasoningModel, u.Reasoning),
		Synthesis: t.SynthesisCost(u.SynthesisModel, u.Synthesis),
	}
	c.Total = c.Reasoning + c.Synthesis
	return c
}

// Entry is one row of a table listing.
type Entry struct {
	Provider string
	Model    string
	Pricing  ModelPricing
}

// Entries lists the table sorted by provider then model.
func (t *Table) Entries() []Entry {
	var out []Entry
	for provider, models := range t.models {
		for name, p := range models {
			out = append(out, Entry{Provider: provider, Model: name, Pricing: p})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}
