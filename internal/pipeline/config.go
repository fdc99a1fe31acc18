package pipeline

import (
	"fmt"
	"time"
)

// MinClassifyDelay is the smallest pacing interval between classifications
const MinClassifyDelay = 500 * time.Millisecond

// FailurePolicy decides what happens to a signal whose classification failed
type FailurePolicy string

const (
	// PolicyForceNoise marks the signal as noise with the error recorded,
	// so it is never selected again
	PolicyForceNoise FailurePolicy = "force_noise"
	// PolicyRetryTransient leaves signals unprocessed after provider or
	// transport failures so the next run picks them up. Unparseable replies
	// are still forced to noise.
	PolicyRetryTransient FailurePolicy = "retry_transient"
)

// IsValid checks if the policy value is valid
func (p FailurePolicy) IsValid() bool {
	return p == PolicyForceNoise || p == PolicyRetryTransient
}

// Config holds pipeline run configuration
type Config struct {
	// BatchSize is how many unprocessed signals each batch selects
	// Default: 20, Range: 1-500
	BatchSize int `yaml:"batch_size"`

	// MaxBatches bounds the number of batches per run
	// Default: 5, Range: 1-1000
	MaxBatches int `yaml:"max_batches"`

	// ClassifyDelay is the pacing interval between classification calls
	// Default: 1s, Minimum: 500ms
	ClassifyDelay time.Duration `yaml:"classify_delay"`

	// FailurePolicy applies to signals whose classification failed
	// Default: force_noise
	FailurePolicy FailurePolicy `yaml:"failure_policy"`

	// MinSignals is the cluster size that qualifies for an opportunity
	// Default: 3
	MinSignals int `yaml:"min_signals"`

	// Summaries enables AI opportunity summaries during sync
	// Default: false
	Summaries bool `yaml:"summaries"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:     20,
		MaxBatches:    5,
		ClassifyDelay: time.Second,
		FailurePolicy: PolicyForceNoise,
		MinSignals:    3,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > 500 {
		return fmt.Errorf("batch_size must be between 1 and 500 (got %d)", c.BatchSize)
	}
	if c.MaxBatches < 1 || c.MaxBatches > 1000 {
		return fmt.Errorf("max_batches must be between 1 and 1000 (got %d)", c.MaxBatches)
	}
	if c.ClassifyDelay < MinClassifyDelay {
		return fmt.Errorf("classify_delay must be at least %v (got %v)", MinClassifyDelay, c.ClassifyDelay)
	}
	if !c.FailurePolicy.IsValid() {
		return fmt.Errorf("failure_policy must be 'force_noise' or 'retry_transient' (got %q)", c.FailurePolicy)
	}
	if c.MinSignals < 1 {
		return fmt.Errorf("min_signals must be at least 1 (got %d)", c.MinSignals)
	}
	return nil
}
