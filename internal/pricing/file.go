package pricing

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ModelPricingOverride holds per-model pricing overrides. Unset fields keep
// the default price.
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// Overrides is the TOML file layout: one table per provider, one sub-table
// per model.
//
//	[anthropic."claude-sonnet-4"]
//	input_per_mtok = 3.0
type Overrides map[string]map[string]ModelPricingOverride

// LoadFile returns the default table with the overrides from path applied.
// An empty path yields the defaults.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}

	var overrides Overrides
	if _, err := toml.DecodeFile(path, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}
	return Apply(DefaultPricing, overrides), nil
}

// Apply merges overrides onto base and returns the resulting table.
func Apply(base map[string]map[string]ModelPricing, overrides Overrides) *Table {
	merged := make(map[string]map[string]ModelPricing, len(base))
	for provider, models := range base {
		m := make(map[string]ModelPricing, len(models))
		for name, p := range models {
			m[name] = p
		}
		merged[provider] = m
	}

	for provider, models := range overrides {
		if merged[provider] == nil {
			merged[provider] = make(map[string]ModelPricing)
		}
		for name, o := range models {
			p := merged[provider][name]
			if o.InputPerMTok != nil {
				p.InputPerMTok = *o.InputPerMTok
			}
			if o.OutputPerMTok != nil {
				p.OutputPerMTok = *o.OutputPerMTok
			}
			if o.CacheWritePerMTok != nil {
				p.CacheWritePerMTok = *o.CacheWritePerMTok
			}
			if o.CacheReadPerMTok != nil {
				p.CacheReadPerMTok = *o.CacheReadPerMTok
			}
			merged[provider][name] = p
		}
	}
	return NewTable(merged)
}
