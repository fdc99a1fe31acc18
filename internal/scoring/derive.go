package scoring

import (
	"math"
	"time"

	"github.com/painscout/painscout/internal/types"
)

// Saturation points for the demand and headroom curves
const (
	DemandSignalSaturation   = 20
	DemandPlatformSaturation = 3
	HeadroomToolSaturation   = 10
	RecentWindow             = 30 * 24 * time.Hour
)

// DeriveInputs maps cluster aggregates onto the six scoring dimensions.
// A cluster with no signals yields NaN (missing) for every per-signal ratio.
func DeriveInputs(stats types.ClusterStats) Inputs {
	in := Inputs{
		Demand: 0.7*math.Min(1, float64(stats.SignalCount)/DemandSignalSaturation) +
			0.3*math.Min(1, float64(stats.PlatformCount)/DemandPlatformSaturation),
		Pain:       math.NaN(),
		WTP:        math.NaN(),
		Headroom:   1 - math.Min(1, float64(stats.DistinctTools)/HeadroomToolSaturation),
		Saturation: math.NaN(),
		Timing:     math.NaN(),
	}

	if stats.IntensityCount > 0 {
		in.Pain = float64(stats.IntensitySum) / float64(stats.IntensityCount) / 10
	}

	rated, weight := 0, 0.0
	for tier, n := range stats.WTPCounts {
		rated += n
		weight += tier.Weight() * float64(n)
	}
	if rated > 0 {
		in.WTP = weight / float64(rated)
	}

	if stats.SignalCount > 0 {
		in.Saturation = float64(stats.SignalsWithTools) / float64(stats.SignalCount)
		in.Timing = float64(stats.RecentSignals) / float64(stats.SignalCount)
	}
	return in
}
