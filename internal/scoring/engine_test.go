package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painscout/painscout/internal/types"
)

func TestScoreDefaultModelScenario(t *testing.T) {
	in := Inputs{Demand: 0.8, Pain: 0.8, WTP: 0.7, Headroom: 0.6, Saturation: 0.2, Timing: 0.5}

	res := Score(in, DefaultModel())

	assert.Equal(t, 71.0, res.Base)
	assert.Equal(t, 15.0, res.SaturationPenalty)
	assert.Equal(t, 56.0, res.Final)
	assert.Equal(t, types.VerdictMonitor, res.Verdict)
	assert.Equal(t, 0.85, res.Confidence)
	assert.Empty(t, res.Contradictions)

	require.Len(t, res.TopDrivers, 3)
	assert.Equal(t, DimensionDemand, res.TopDrivers[0].Dimension)
	assert.Equal(t, DimensionPain, res.TopDrivers[1].Dimension)
	assert.Equal(t, DimensionWTP, res.TopDrivers[2].Dimension)
	assert.Equal(t, 14.0, res.TopDrivers[2].Value)

	require.Len(t, res.NegativeImpacts, 2)
	assert.Equal(t, DimensionSaturation, res.NegativeImpacts[0].Dimension)
	assert.Equal(t, -15.0, res.NegativeImpacts[0].Value)
	assert.Equal(t, DimensionTiming, res.NegativeImpacts[1].Dimension)
	assert.Equal(t, 5.0, res.NegativeImpacts[1].Value)

	assert.Contains(t, res.Explanation, "MONITOR at 56.00")
}

func TestVerdictBranches(t *testing.T) {
	th := DefaultModel().Thresholds
	tests := []struct {
		name       string
		final      float64
		saturation float64
		want       types.Verdict
	}{
		{"build", 85, 0.1, types.VerdictBuild},
		{"build blocked by saturation", 85, 0.6, types.VerdictMonitor},
		{"invest", 77, 0.3, types.VerdictInvest},
		{"monitor", 60, 0.3, types.VerdictMonitor},
		{"pass", 40, 0.0, types.VerdictPass},
		{"saturated high score", 95, 0.9, types.VerdictMonitor},
		{"saturated low score", 30, 0.85, types.VerdictPass},
		{"exactly at build threshold", 80, 0.59, types.VerdictBuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectVerdict(tt.final, tt.saturation, th))
		})
	}
}

func TestSaturatedNeverBuild(t *testing.T) {
	m := DefaultModel()
	m.Penalties.Saturation = 0

	res := Score(Inputs{Demand: 1, Pain: 1, WTP: 1, Headroom: 1, Saturation: 0.9, Timing: 1}, m)

	assert.Equal(t, 100.0, res.Final)
	assert.NotEqual(t, types.VerdictBuild, res.Verdict)
	assert.Contains(t, []types.Verdict{types.VerdictMonitor, types.VerdictPass}, res.Verdict)
}

func TestFinalIsClamped(t *testing.T) {
	heavy := Model{
		Weights:    Weights{Demand: 1, Pain: 1, WTP: 1, Headroom: 1, Timing: 1},
		Thresholds: DefaultModel().Thresholds,
	}
	res := Score(Inputs{Demand: 1, Pain: 1, WTP: 1, Headroom: 1, Timing: 1}, heavy)
	assert.Equal(t, 500.0, res.Base)
	assert.Equal(t, 100.0, res.Final)

	empty := Model{Thresholds: DefaultModel().Thresholds, Penalties: Penalties{Saturation: 1}}
	res = Score(Inputs{Saturation: 1}, empty)
	assert.Equal(t, 100.0, res.SaturationPenalty)
	assert.Equal(t, 0.0, res.Final)
	assert.Equal(t, types.VerdictPass, res.Verdict)
}

func randomInputs(rng *rand.Rand, allowMissing bool) Inputs {
	v := func() float64 {
		if allowMissing && rng.Intn(5) == 0 {
			return math.NaN()
		}
		return rng.Float64()
	}
	return Inputs{Demand: v(), Pain: v(), WTP: v(), Headroom: v(), Saturation: v(), Timing: v()}
}

func randomModel(rng *rand.Rand) Model {
	invest := 30 + rng.Float64()*40
	return Model{
		Weights: Weights{
			Demand: rng.Float64(), Pain: rng.Float64(), WTP: rng.Float64(),
			Headroom: rng.Float64(), Timing: rng.Float64(),
		},
		Thresholds: Thresholds{Build: invest + rng.Float64()*30, Invest: invest, Monitor: invest * rng.Float64()},
		Penalties:  Penalties{Saturation: rng.Float64()},
	}
}

func TestScoreProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		m := randomModel(rng)
		require.NoError(t, m.Validate())
		in := randomInputs(rng, true)
		res := Score(in, m)

		assert.GreaterOrEqual(t, res.Final, 0.0)
		assert.LessOrEqual(t, res.Final, 100.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.10)
		assert.LessOrEqual(t, res.Confidence, 0.95)
		if !math.IsNaN(in.Saturation) && in.Saturation >= 0.8 {
			assert.NotEqual(t, types.VerdictBuild, res.Verdict)
			assert.NotEqual(t, types.VerdictInvest, res.Verdict)
		}
	}
}

func TestScoreMonotonicInPositiveInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	bump := []func(*Inputs, float64){
		func(in *Inputs, d float64) { in.Demand = math.Min(1, in.Demand+d) },
		func(in *Inputs, d float64) { in.Pain = math.Min(1, in.Pain+d) },
		func(in *Inputs, d float64) { in.WTP = math.Min(1, in.WTP+d) },
		func(in *Inputs, d float64) { in.Headroom = math.Min(1, in.Headroom+d) },
		func(in *Inputs, d float64) { in.Timing = math.Min(1, in.Timing+d) },
	}

	for i := 0; i < 1000; i++ {
		m := randomModel(rng)
		in := randomInputs(rng, false)
		before := Score(in, m).Final
		for _, b := range bump {
			raised := in
			b(&raised, rng.Float64())
			assert.GreaterOrEqual(t, Score(raised, m).Final, before)
		}
	}
}

func TestConfidencePenalties(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name  string
		in    Inputs
		want  float64
		flags []string
	}{
		{
			name:  "all missing",
			in:    Inputs{Demand: nan, Pain: nan, WTP: nan, Headroom: nan, Saturation: nan, Timing: nan},
			want:  0.55,
			flags: []string{},
		},
		{
			name:  "both contradictions and one missing",
			in:    Inputs{Demand: 0.9, Pain: 0.9, WTP: 0.1, Headroom: 0.1, Saturation: 0.9, Timing: nan},
			want:  0.60,
			flags: []string{ContradictionDemandVsWTP, ContradictionPainVsHeadroom},
		},
		{
			name:  "demand without wtp",
			in:    Inputs{Demand: 0.7, Pain: 0.2, WTP: 0.3, Headroom: 0.5, Saturation: 0.1, Timing: 0.4},
			want:  0.75,
			flags: []string{ContradictionDemandVsWTP},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.in, DefaultModel())
			assert.Equal(t, tt.want, res.Confidence)
			assert.Equal(t, tt.flags, res.Contradictions)
		})
	}
}

func TestModelValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(m *Model)
		errorMsg string
	}{
		{name: "defaults", mutate: func(m *Model) {}},
		{name: "weight too high", mutate: func(m *Model) { m.Weights.Demand = 1.2 }, errorMsg: "weights.demand must be between 0 and 1 (got 1.20)"},
		{name: "negative weight", mutate: func(m *Model) { m.Weights.Timing = -0.1 }, errorMsg: "weights.timing"},
		{name: "nan weight", mutate: func(m *Model) { m.Weights.WTP = math.NaN() }, errorMsg: "weights.wtp"},
		{name: "penalty out of range", mutate: func(m *Model) { m.Penalties.Saturation = 2 }, errorMsg: "penalties.saturation"},
		{name: "threshold out of range", mutate: func(m *Model) { m.Thresholds.Build = 101 }, errorMsg: "thresholds.build must be between 0 and 100"},
		{name: "build below invest", mutate: func(m *Model) { m.Thresholds.Build = 70 }, errorMsg: "thresholds.build must be >= thresholds.invest"},
		{name: "invest below monitor", mutate: func(m *Model) { m.Thresholds.Monitor = 76 }, errorMsg: "thresholds.invest must be >= thresholds.monitor"},
		{name: "equal thresholds allowed", mutate: func(m *Model) { m.Thresholds = Thresholds{Build: 60, Invest: 60, Monitor: 60} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultModel()
			tt.mutate(&m)
			err := m.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestDeriveInputs(t *testing.T) {
	stats := types.ClusterStats{
		SignalCount:      10,
		PlatformCount:    2,
		IntensitySum:     35,
		IntensityCount:   5,
		WTPCounts:        map[types.WTP]int{types.WTPNone: 2, types.WTPExplicit: 2},
		DistinctTools:    4,
		SignalsWithTools: 3,
		RecentSignals:    5,
	}

	in := DeriveInputs(stats)

	assert.InDelta(t, 0.55, in.Demand, 1e-9)
	assert.InDelta(t, 0.7, in.Pain, 1e-9)
	assert.InDelta(t, 0.375, in.WTP, 1e-9)
	assert.InDelta(t, 0.6, in.Headroom, 1e-9)
	assert.InDelta(t, 0.3, in.Saturation, 1e-9)
	assert.InDelta(t, 0.5, in.Timing, 1e-9)
	assert.Equal(t, 0, in.Missing())
}

func TestDeriveInputsEmptyCluster(t *testing.T) {
	in := DeriveInputs(types.ClusterStats{})

	assert.Equal(t, 0.0, in.Demand)
	assert.Equal(t, 1.0, in.Headroom)
	assert.Equal(t, 4, in.Missing())

	res := Score(in, DefaultModel())
	assert.Equal(t, 0.65, res.Confidence)
}
