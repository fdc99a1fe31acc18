package cost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/types"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy indicates normal operation - under budget limits
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning indicates approaching the run budget (>80% by default)
	BudgetWarning
	// BudgetExceeded indicates the run budget has been spent
	BudgetExceeded
)

// String returns a human-readable string representation of the budget status
func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// UsageStore persists usage events
type UsageStore interface {
	RecordUsage(ctx context.Context, event *types.UsageEvent) error
}

// writeTimeout bounds each background usage write
const writeTimeout = 5 * time.Second

// Meter prices provider calls and writes one usage event per call. Writes run
// in the background and never fail the caller; errors are only logged.
type Meter struct {
	config Config
	store  UsageStore
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex // Protects totals
	totalTokens   int64
	totalCost     float64
	calls         int
	warningLogged bool

	wg sync.WaitGroup
}

// Stats is a point-in-time copy of the meter's totals
type Stats struct {
	Status      BudgetStatus `json:"status"`
	Calls       int          `json:"calls"`
	TotalTokens int64        `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
}

// NewMeter creates a meter. store may be nil, in which case usage is only
// counted in memory.
func NewMeter(cfg Config, store UsageStore, logger *zap.Logger) (*Meter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meter{
		config: cfg,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// RecordUsage prices one call and queues its usage event
func (m *Meter) RecordUsage(operation, model, subjectID string, inputTokens, outputTokens int64) {
	cost := m.config.Cost(model, inputTokens, outputTokens)

	m.mu.Lock()
	m.calls++
	m.totalTokens += inputTokens + outputTokens
	m.totalCost += cost
	status := m.statusLocked()
	warn := status == BudgetWarning && !m.warningLogged
	if warn {
		m.warningLogged = true
	}
	m.mu.Unlock()

	if warn {
		m.logger.Warn("approaching run budget",
			zap.Float64("max_cost_per_run", m.config.MaxCostPerRun))
	}

	if !m.config.Enabled || m.store == nil {
		return
	}

	event := &types.UsageEvent{
		ID:           uuid.New().String(),
		Operation:    operation,
		Model:        model,
		SubjectID:    subjectID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		CreatedAt:    m.now(),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := m.store.RecordUsage(ctx, event); err != nil {
			m.logger.Warn("failed to record usage event",
				zap.String("operation", operation),
				zap.String("model", model),
				zap.Error(err))
		}
	}()
}

// Flush waits for queued usage writes, or for ctx to end
func (m *Meter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CanProceed reports whether another paid call fits in the run budget
func (m *Meter) CanProceed() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusLocked() == BudgetExceeded {
		return false, fmt.Sprintf("run budget exceeded ($%.4f/$%.2f used)", m.totalCost, m.config.MaxCostPerRun)
	}
	return true, ""
}

// GetStats returns current usage totals
func (m *Meter) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Status:      m.statusLocked(),
		Calls:       m.calls,
		TotalTokens: m.totalTokens,
		TotalCost:   m.totalCost,
	}
}

// statusLocked must be called with mu held
func (m *Meter) statusLocked() BudgetStatus {
	if m.config.MaxCostPerRun <= 0 {
		return BudgetHealthy
	}
	used := m.totalCost / m.config.MaxCostPerRun
	switch {
	case used >= 1.0:
		return BudgetExceeded
	case used >= m.config.AlertThreshold:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}
