package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Rejects(t *testing.T) {
	for _, expr := range []string{"", "   ", "* * * *", "61 * * * *", "* * * * * * *", "@every 0s", "@every -1m", "@sometimes"} {
		_, err := Parse(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestNext_StrictlyAfterAndMonotonic(t *testing.T) {
	exprs := []string{
		"* * * * *",
		"*/15 * * * *",
		"0 9-17 * * 1-5",
		"5,35 */2 1,15 * *",
		"@hourly",
		"@every 90s",
	}
	ref := time.Date(2026, 3, 14, 12, 34, 56, 789, time.UTC)
	for _, expr := range exprs {
		s, err := Parse(expr)
		require.NoError(t, err, expr)

		prev := ref
		for i := 0; i < 50; i++ {
			n := s.Next(prev)
			require.True(t, n.After(prev), "%s: %v not after %v", expr, n, prev)
			prev = n
		}
	}
}

func TestNext_Fields(t *testing.T) {
	s, err := Parse("30 2 * * *")
	require.NoError(t, err)

	ref := time.Date(2026, 1, 1, 2, 30, 0, 0, time.UTC)
	// at the exact fire instant the next one is a day later
	assert.Equal(t, ref.Add(24*time.Hour), s.Next(ref))
	assert.Equal(t, ref, s.Next(ref.Add(-time.Nanosecond)))
}

func TestNext_Step(t *testing.T) {
	s, err := Parse("*/20 * * * *")
	require.NoError(t, err)
	ref := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 10, 20, 0, 0, time.UTC), s.Next(ref))
	assert.Equal(t, time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC), s.Next(time.Date(2026, 1, 1, 10, 40, 0, 0, time.UTC)))
}

func TestEvery(t *testing.T) {
	ref := time.Unix(1000, 0)
	assert.Equal(t, ref.Add(time.Second), Every(time.Second).Next(ref))
	assert.True(t, Every(0).Next(ref).After(ref))
}
