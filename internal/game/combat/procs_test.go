package combat

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcChance(t *testing.T) {
	tests := []struct {
		name    string
		ppm     float64
		elapsed float64
		want    float64
	}{
		{"one expected proc", 10, 6, 1 - math.Exp(-1)},
		{"zero elapsed", 10, 0, 0},
		{"negative elapsed", 10, -1, 0},
		{"zero rate", 0, 6, 0},
		{"NaN rate", math.NaN(), 6, 0},
		{"long gap saturates", 10, 6000, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ProcChance(tt.ppm, tt.elapsed), 1e-12)
		})
	}
}

func TestRateForChanceRoundTrips(t *testing.T) {
	ppm := RateForChance(BaselineProcChance, BaselineProcInterval)
	assert.InDelta(t, -math.Log(0.9)*20, ppm, 1e-12)
	assert.InDelta(t, BaselineProcChance, ProcChance(ppm, BaselineProcInterval.Seconds()), 1e-12)

	assert.Zero(t, RateForChance(0, time.Second))
	assert.Zero(t, RateForChance(0.5, 0))
	assert.True(t, math.IsInf(RateForChance(1, time.Second), 1))
}

func TestShouldProcSkipsDrawWhenChanceIsZero(t *testing.T) {
	rng := newScriptedRand()
	rng.floats = []float64{0}

	assert.False(t, ShouldProc(rng, 10, 0))
	assert.Len(t, rng.floats, 1, "no draw should be consumed")

	assert.True(t, ShouldProc(rng, 10, 6))
	assert.Empty(t, rng.floats)
}

func TestProcRateConvergesRegardlessOfCheckInterval(t *testing.T) {
	const ppm = 10.0
	rng := NewRand(42)

	for _, step := range []float64{0.06, 0.5, 3} {
		const horizon = 60 * 600.0
		procs := 0
		checks := int(horizon / step)
		for i := 0; i < checks; i++ {
			if ShouldProc(rng, ppm, step) {
				procs++
			}
		}
		perMinute := float64(procs) / (horizon / 60)
		// A check fires at most once, so the observed rate is P/step.
		want := ProcChance(ppm, step) / step * 60
		assert.InDelta(t, want, perMinute, want*0.08, "step %v", step)
	}

	// With small steps the per-check cap is negligible.
	assert.InDelta(t, ppm, ProcChance(ppm, 0.06)/0.06*60, 0.1)
}

// shouldProc(10, 6) expects one event per check, i.e. 10/60 events per second,
// but a check fires at most once, so the per-check frequency is 1-e^-1.
func TestProcChanceAtOneExpectedEvent(t *testing.T) {
	rng := NewRand(7)
	fired := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if ShouldProc(rng, 10, 6) {
			fired++
		}
	}
	assert.InDelta(t, 1-math.Exp(-1), float64(fired)/trials, 0.02)
}

func TestProcTrackerElapsed(t *testing.T) {
	tracker := NewProcTracker(3 * time.Second)

	assert.InDelta(t, 3.0, tracker.Elapsed("A", ProcOffensive, at(0)), 1e-12)
	assert.InDelta(t, 4.5, tracker.Elapsed("A", ProcOffensive, at(4500)), 1e-12)

	// Kinds and fighters are tracked independently.
	assert.InDelta(t, 3.0, tracker.Elapsed("A", ProcDefensive, at(5000)), 1e-12)
	assert.InDelta(t, 3.0, tracker.Elapsed("B", ProcOffensive, at(5000)), 1e-12)

	// A clock going backwards reports no elapsed time.
	assert.Zero(t, tracker.Elapsed("A", ProcOffensive, at(1000)))

	tracker.Forget("A")
	assert.InDelta(t, 3.0, tracker.Elapsed("A", ProcOffensive, at(9000)), 1e-12)
	assert.InDelta(t, 4.0, tracker.Elapsed("B", ProcOffensive, at(9000)), 1e-12)
}

func TestNewRandIsDeterministic(t *testing.T) {
	a, b := NewRand(99), NewRand(99)
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Float64(), b.Float64())
		require.Equal(t, a.IntN(4), b.IntN(4))
	}

	seed, err := NewSeed()
	require.NoError(t, err)
	_ = NewRand(seed)
}
