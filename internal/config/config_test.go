package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsNonPositiveParallelism(t *testing.T) {
	o := Options{Parallelism: 0, TemporaryBase: "/tmp"}
	assert.Error(t, o.Validate())
}

func TestValidateAcceptsZeroGraceTime(t *testing.T) {
	o := Options{Parallelism: 4, TemporaryBase: "/tmp", GraceTime: 0}
	assert.NoError(t, o.Validate())
}

func TestMergeSpecificOverridesCommon(t *testing.T) {
	common := map[string]any{"timeout": 5, "region": "eu"}
	specific := map[string]any{"timeout": 10}

	merged, err := Merge(common, specific)
	require.NoError(t, err)
	assert.Equal(t, 10, merged["timeout"])
	assert.Equal(t, "eu", merged["region"])
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	common := map[string]any{"a": 1}
	specific := map[string]any{"b": 2}

	_, err := Merge(common, specific)
	require.NoError(t, err)
	assert.Len(t, common, 1)
	assert.Len(t, specific, 1)
}

func TestOptionsMaxGameTimeRejectsNegative(t *testing.T) {
	o := Options{Parallelism: 1, TemporaryBase: "/tmp", MaxGameTime: -time.Second}
	assert.Error(t, o.Validate())
}
