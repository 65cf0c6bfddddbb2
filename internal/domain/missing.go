package domain

import (
	"math"
	"strconv"
	"strings"
)

// Bounds of a transmittable value. MissingSentinel doubles as the lower bound.
const (
	MissingSentinel = -9999.0
	MinValue        = -9999.0
	MaxValue        = 9999.0
)

// ChannelValue is a destination tag with its policy-applied value.
type ChannelValue struct {
	Tag     string
	Value   float64
	Missing bool
}

// ApplyMissingPolicy guarantees a value in [MinValue, MaxValue]. Absent, NaN,
// infinite and out-of-range inputs become MissingSentinel and are flagged;
// everything else passes through unchanged.
func ApplyMissingPolicy(tag string, m Measurement) ChannelValue {
	v := m.Value
	if !m.Present || math.IsNaN(v) || math.IsInf(v, 0) || v < MinValue || v > MaxValue {
		return MissingChannel(tag)
	}
	return ChannelValue{Tag: tag, Value: v, Missing: v == MissingSentinel}
}

// MissingChannel returns the sentinel value for tag.
func MissingChannel(tag string) ChannelValue {
	return ChannelValue{Tag: tag, Value: MissingSentinel, Missing: true}
}

// ParseMeasurement reads a textual cell. Empty, "NaN", "null" and any
// non-numeric text are absent.
func ParseMeasurement(s string) Measurement {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return Absent()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return Absent()
	}
	return Present(v)
}
