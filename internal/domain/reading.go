package domain

import (
	"fmt"
	"time"
)

// Station is a buoy reporting to NDBC.
type Station struct {
	ID           string  // upstream site code, e.g. "GI01SUMO"
	WMO          string  // destination-assigned code rendered in <station>
	Deployment   string  // upstream deployment constraint, e.g. "D0009"
	SensorHeight float64 // metres above sea level, used for sea-level pressure
	Feeds        []Feed
}

// Feed is one (station, sensor type) pair and the upstream dataset serving it.
type Feed struct {
	Sensor    string
	Dataset   string
	Constants []Constant
}

// Constant is a fixed tag value emitted with every record of a feed
// (sensor depths, FM-64 instrument codes).
type Constant struct {
	Tag   string
	Value float64
}

// Measurement is a numeric reading that may be absent.
type Measurement struct {
	Value   float64
	Present bool
}

// Present wraps a numeric value.
func Present(v float64) Measurement {
	return Measurement{Value: v, Present: true}
}

// Absent returns a measurement with no value.
func Absent() Measurement {
	return Measurement{}
}

// SensorReading is one channel value at one timestamp.
type SensorReading struct {
	Station     string
	Channel     string
	Time        time.Time
	Measurement Measurement
}

// TimeWindow is the half-open interval [Start, End) bounding a fetch.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow returns the window ending at the current minute and reaching
// lookback into the past.
func NewTimeWindow(lookback, maxLookback time.Duration) (TimeWindow, error) {
	return WindowEndingAt(Now(), lookback, maxLookback)
}

// WindowEndingAt builds a window ending at end (truncated to the minute).
// The end is clamped to the clock so a window never reaches into the future.
func WindowEndingAt(end time.Time, lookback, maxLookback time.Duration) (TimeWindow, error) {
	if lookback <= 0 {
		return TimeWindow{}, fmt.Errorf("lookback must be positive, got %s", lookback)
	}
	if maxLookback > 0 && lookback > maxLookback {
		return TimeWindow{}, fmt.Errorf("lookback %s exceeds maximum %s", lookback, maxLookback)
	}
	if now := Now(); end.After(now) {
		end = now
	}
	end = end.UTC().Truncate(time.Minute)
	return TimeWindow{Start: end.Add(-lookback), End: end}, nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
