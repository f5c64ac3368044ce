package skills

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContestEqualRanks(t *testing.T) {
	for _, r := range []float64{0, 5, 100} {
		m, err := Contest(r, r)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, m, 1e-12)
	}
}

func TestContestIsMonotonic(t *testing.T) {
	prev := -1.0
	for a := -10.0; a <= 10; a++ {
		m, err := Contest(a, 0)
		require.NoError(t, err)
		assert.Greater(t, m, prev, "increasing in attacker rank at %v", a)
		prev = m
	}

	prev = 3.0
	for d := -10.0; d <= 10; d++ {
		m, err := Contest(0, d)
		require.NoError(t, err)
		assert.Less(t, m, prev, "decreasing in defender rank at %v", d)
		prev = m
	}
}

func TestContestBounds(t *testing.T) {
	high, _ := Contest(1000, 0)
	low, _ := Contest(0, 1000)
	assert.InDelta(t, 2.0, high, 1e-9)
	assert.InDelta(t, 0.0, low, 1e-9)
	assert.GreaterOrEqual(t, low, 0.0)

	m, err := Contest(math.Inf(1), 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m)
}

func TestContestRejectsNaN(t *testing.T) {
	_, err := Contest(math.NaN(), 1)
	assert.Error(t, err)
	_, err = Contest(1, math.NaN())
	assert.Error(t, err)
}
