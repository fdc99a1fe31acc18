package cost

import (
	"fmt"
	"sort"
	"strings"
)

// Price is the USD cost per 1M tokens
type Price struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Config holds usage metering configuration
type Config struct {
	// Enabled controls whether usage events are written at all
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxCostPerRun is the USD budget for one pipeline run
	// 0.0 = unlimited
	// Default: 2.00
	MaxCostPerRun float64 `yaml:"max_cost_per_run"`

	// AlertThreshold is the share of the run budget that triggers a warning
	// Default: 0.80 (80%)
	AlertThreshold float64 `yaml:"alert_threshold"`

	// Pricing maps a model name prefix to its price. The longest matching
	// prefix wins; unknown models use DefaultPrice.
	Pricing map[string]Price `yaml:"pricing"`

	// DefaultPrice applies to models missing from Pricing
	// Default: $3.00 in / $15.00 out, a deliberately pessimistic guess
	DefaultPrice Price `yaml:"default_price"`
}

// DefaultConfig returns default metering configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxCostPerRun:  2.00,
		AlertThreshold: 0.80,
		Pricing: map[string]Price{
			"claude-3-5-haiku":       {Input: 0.80, Output: 4.00},
			"claude-3-5-sonnet":      {Input: 3.00, Output: 15.00},
			"claude-sonnet-4":        {Input: 3.00, Output: 15.00},
			"gemini-2.0-flash":       {Input: 0.10, Output: 0.40},
			"gemini-1.5-flash":       {Input: 0.075, Output: 0.30},
			"text-embedding-3-small": {Input: 0.02},
			"text-embedding-3-large": {Input: 0.13},
			"text-embedding-004":     {},
		},
		DefaultPrice: Price{Input: 3.00, Output: 15.00},
	}
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxCostPerRun < 0 {
		return fmt.Errorf("max_cost_per_run must be non-negative, got %.2f", c.MaxCostPerRun)
	}
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1.0 {
		return fmt.Errorf("alert_threshold must be between 0 and 1, got %.2f", c.AlertThreshold)
	}
	if c.DefaultPrice.Input < 0 || c.DefaultPrice.Output < 0 {
		return fmt.Errorf("default_price must be non-negative")
	}
	for model, p := range c.Pricing {
		if p.Input < 0 || p.Output < 0 {
			return fmt.Errorf("pricing.%s must be non-negative", model)
		}
	}
	return nil
}

// PriceFor returns the price of model
func (c *Config) PriceFor(model string) Price {
	prefixes := make([]string, 0, len(c.Pricing))
	for p := range c.Pricing {
		prefixes = append(prefixes, p)
	}
	// longest first, then lexical for determinism
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	for _, p := range prefixes {
		if strings.HasPrefix(model, p) {
			return c.Pricing[p]
		}
	}
	return c.DefaultPrice
}

// Cost computes the USD cost of one call
func (c *Config) Cost(model string, inputTokens, outputTokens int64) float64 {
	p := c.PriceFor(model)
	return float64(inputTokens)/1_000_000*p.Input + float64(outputTokens)/1_000_000*p.Output
}
