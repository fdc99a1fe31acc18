package clustering

import "fmt"

// Config holds configuration for cluster assignment
type Config struct {
	// SignalThreshold is the minimum similarity (0.0-1.0) for the top signal
	// neighbour to count as the same topic
	// Default: 0.87
	SignalThreshold float64 `yaml:"signal_threshold"`

	// ClusterThreshold is the minimum centroid similarity (0.0-1.0) for joining
	// an existing cluster
	// Default: 0.82
	ClusterThreshold float64 `yaml:"cluster_threshold"`

	// MinGroupSize is how many signals must share a signature before the
	// signature path creates a cluster for them
	// Default: 3
	MinGroupSize int `yaml:"min_group_size"`
}

// DefaultConfig returns the default clustering configuration
func DefaultConfig() Config {
	return Config{
		SignalThreshold:  0.87,
		ClusterThreshold: 0.82,
		MinGroupSize:     3,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SignalThreshold <= 0 || c.SignalThreshold > 1 {
		return fmt.Errorf("signal_threshold must be in (0, 1] (got %.2f)", c.SignalThreshold)
	}
	if c.ClusterThreshold <= 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("cluster_threshold must be in (0, 1] (got %.2f)", c.ClusterThreshold)
	}
	if c.MinGroupSize < 2 {
		return fmt.Errorf("min_group_size must be at least 2 (got %d)", c.MinGroupSize)
	}
	return nil
}
