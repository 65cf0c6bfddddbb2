package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze the fetch window via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic file names and windows.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for time windows and run timestamps.
// Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current UTC time from the package clock.
func Now() time.Time {
	return clock.Now().UTC()
}
