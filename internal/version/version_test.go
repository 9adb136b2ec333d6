package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2", "1.2.0", 0},
		{"1.2.3", "1.3.0", -1},
		{"2.0", "1.9.9", 1},
		{"1", "1.0.1", -1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "Compare(%s, %s)", c.a, c.b)
	}
}

func TestSatisfies(t *testing.T) {
	ok, err := Satisfies("1.2.0", "1.3.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Satisfies("1.4.0", "1.3.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareRejectsNonNumeric(t *testing.T) {
	_, err := Compare("1.2.x", "1.0.0")
	assert.Error(t, err)
}

func TestCompareRejectsFourComponents(t *testing.T) {
	_, err := Compare("1.2.3.4", "1.0.0")
	assert.Error(t, err, "a 4th dotted component must be rejected, not silently dropped")
}
