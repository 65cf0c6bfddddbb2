package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyMissingPolicy(t *testing.T) {
	tests := []struct {
		name        string
		in          Measurement
		wantValue   float64
		wantMissing bool
	}{
		{"in range", Present(11.1), 11.1, false},
		{"zero", Present(0), 0, false},
		{"upper bound", Present(9999), 9999, false},
		{"lower bound is the sentinel", Present(-9999), -9999, true},
		{"above range", Present(15000), MissingSentinel, true},
		{"below range", Present(-10000), MissingSentinel, true},
		{"absent", Absent(), MissingSentinel, true},
		{"NaN", Present(math.NaN()), MissingSentinel, true},
		{"+Inf", Present(math.Inf(1)), MissingSentinel, true},
		{"-Inf", Present(math.Inf(-1)), MissingSentinel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMissingPolicy("wspd1", tt.in)
			assert.Equal(t, "wspd1", got.Tag)
			assert.Equal(t, tt.wantValue, got.Value)
			assert.Equal(t, tt.wantMissing, got.Missing)
		})
	}
}

func TestApplyMissingPolicy_RangeLaw(t *testing.T) {
	for v := -20000.0; v <= 20000; v += 137.5 {
		got := ApplyMissingPolicy("x", Present(v))
		assert.GreaterOrEqual(t, got.Value, MinValue)
		assert.LessOrEqual(t, got.Value, MaxValue)
		if v >= MinValue && v <= MaxValue {
			assert.Equal(t, v, got.Value, "in-range value %v must pass through", v)
		} else {
			assert.Equal(t, MissingSentinel, got.Value, "out-of-range value %v must be replaced", v)
		}
	}
}

func TestParseMeasurement(t *testing.T) {
	assert.Equal(t, Present(182), ParseMeasurement("182"))
	assert.Equal(t, Present(-3.25), ParseMeasurement(" -3.25 "))
	assert.Equal(t, Absent(), ParseMeasurement(""))
	assert.Equal(t, Absent(), ParseMeasurement("NaN"))
	assert.Equal(t, Absent(), ParseMeasurement("null"))
	assert.Equal(t, Absent(), ParseMeasurement("n/a"))
}
