package cost

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/painscout/painscout/internal/types"
)

type fakeUsageStore struct {
	mu     sync.Mutex
	events []*types.UsageEvent
	err    error
}

func (f *fakeUsageStore) RecordUsage(_ context.Context, e *types.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestPriceForLongestPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pricing["claude"] = Price{Input: 1, Output: 1}

	tests := []struct {
		model string
		want  Price
	}{
		{"claude-3-5-haiku-20241022", Price{Input: 0.80, Output: 4.00}},
		{"claude-opus-9", Price{Input: 1, Output: 1}},
		{"text-embedding-3-small", Price{Input: 0.02}},
		{"mystery-model", cfg.DefaultPrice},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.PriceFor(tt.model))
		})
	}
}

func TestCost(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.0048, cfg.Cost("claude-3-5-haiku-latest", 1000, 1000), 1e-9)
	assert.InDelta(t, 0.0, cfg.Cost("text-embedding-004", 5000, 0), 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, func() error { c := DefaultConfig(); return c.Validate() }())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative budget", func(c *Config) { c.MaxCostPerRun = -1 }, "max_cost_per_run"},
		{"zero alert", func(c *Config) { c.AlertThreshold = 0 }, "alert_threshold"},
		{"negative default", func(c *Config) { c.DefaultPrice.Output = -1 }, "default_price"},
		{"negative model", func(c *Config) { c.Pricing["x"] = Price{Input: -1} }, "pricing.x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestMeterWritesEvents(t *testing.T) {
	store := &fakeUsageStore{}
	m, err := NewMeter(DefaultConfig(), store, zaptest.NewLogger(t))
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.RecordUsage("classify", "claude-3-5-haiku-latest", "sig-1", 1000, 200)
	m.RecordUsage("embed", "text-embedding-3-small", "sig-1", 50, 0)
	require.NoError(t, m.Flush(context.Background()))

	require.Len(t, store.events, 2)
	byOp := map[string]*types.UsageEvent{}
	for _, e := range store.events {
		byOp[e.Operation] = e
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, fixed, e.CreatedAt)
	}
	assert.Equal(t, "sig-1", byOp["classify"].SubjectID)
	assert.InDelta(t, 0.0016, byOp["classify"].CostUSD, 1e-9)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.Calls)
	assert.Equal(t, int64(1250), stats.TotalTokens)
	assert.Equal(t, BudgetHealthy, stats.Status)
}

func TestMeterStoreErrorsAreSwallowed(t *testing.T) {
	store := &fakeUsageStore{err: errors.New("database is locked")}
	m, err := NewMeter(DefaultConfig(), store, zaptest.NewLogger(t))
	require.NoError(t, err)

	m.RecordUsage("classify", "claude-3-5-haiku", "sig-1", 10, 10)
	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 1, m.GetStats().Calls)
}

func TestMeterDisabledCountsOnly(t *testing.T) {
	store := &fakeUsageStore{}
	cfg := DefaultConfig()
	cfg.Enabled = false
	m, err := NewMeter(cfg, store, nil)
	require.NoError(t, err)

	m.RecordUsage("classify", "claude-3-5-haiku", "", 10, 10)
	require.NoError(t, m.Flush(context.Background()))
	assert.Empty(t, store.events)
	assert.Equal(t, int64(20), m.GetStats().TotalTokens)
}

func TestMeterBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCostPerRun = 1.00
	// $0.85 per input token
	cfg.Pricing = map[string]Price{"m": {Input: 850_000}}
	m, err := NewMeter(cfg, nil, nil)
	require.NoError(t, err)

	ok, _ := m.CanProceed()
	assert.True(t, ok)

	m.RecordUsage("classify", "m", "", 1, 0)
	assert.Equal(t, BudgetWarning, m.GetStats().Status)
	ok, _ = m.CanProceed()
	assert.True(t, ok)

	m.RecordUsage("classify", "m", "", 1, 0)
	assert.Equal(t, BudgetExceeded, m.GetStats().Status)
	ok, reason := m.CanProceed()
	assert.False(t, ok)
	assert.Contains(t, reason, "run budget exceeded")
}

func TestMeterUnlimitedBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCostPerRun = 0
	m, err := NewMeter(cfg, nil, nil)
	require.NoError(t, err)
	m.RecordUsage("classify", "anything", "", 10_000_000, 10_000_000)
	ok, _ := m.CanProceed()
	assert.True(t, ok)
}

func TestFlushHonoursContext(t *testing.T) {
	m, err := NewMeter(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	m.wg.Add(1)
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Flush(ctx), context.DeadlineExceeded)
}
