package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

type countingRunner struct {
	calls int
}

func (r *countingRunner) Run(context.Context) domain.RunSummary {
	r.calls++
	return domain.RunSummary{RunID: "r", Status: domain.StatusSuccess}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	done    atomic.Bool
}

func (r *blockingRunner) Run(context.Context) domain.RunSummary {
	close(r.started)
	<-r.release
	r.done.Store(true)
	return domain.RunSummary{RunID: "manual", Status: domain.StatusSuccess}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func utc(h, m int) time.Time {
	return time.Date(2024, 5, 1, h, m, 0, 0, time.UTC)
}

func TestParseBlackout(t *testing.T) {
	b, err := ParseBlackout("23:50-00:10")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour+50*time.Minute, b.Start)
	assert.Equal(t, 10*time.Minute, b.End)
	assert.Equal(t, "23:50-00:10", b.String())

	b, err = ParseBlackout("")
	require.NoError(t, err)
	assert.Equal(t, "none", b.String())
	assert.False(t, b.Contains(utc(0, 0)))

	for _, bad := range []string{"23:50", "25:00-01:00", "10:00-10:00", "ab-cd"} {
		_, err := ParseBlackout(bad)
		assert.Error(t, err, bad)
	}
}

func TestBlackout_Contains(t *testing.T) {
	wrap, err := ParseBlackout("23:50-00:10")
	require.NoError(t, err)
	day, err := ParseBlackout("12:00-13:00")
	require.NoError(t, err)

	tests := []struct {
		name string
		b    Blackout
		at   time.Time
		want bool
	}{
		{"wrap before start", wrap, utc(23, 49), false},
		{"wrap at start", wrap, utc(23, 50), true},
		{"wrap after midnight", wrap, utc(0, 5), true},
		{"wrap at end", wrap, utc(0, 10), false},
		{"day inside", day, utc(12, 30), true},
		{"day at end", day, utc(13, 0), false},
		{"day outside", day, utc(6, 0), false},
		{"non-UTC input", day, time.Date(2024, 5, 1, 8, 30, 0, 0, time.FixedZone("EDT", -4*3600)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.b.Contains(tt.at))
		})
	}
}

func TestScheduler_TickHonoursBlackout(t *testing.T) {
	blackout, err := ParseBlackout("23:50-00:10")
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(utc(23, 55))
	runner := &countingRunner{}

	s, err := New(context.Background(), "*/30 * * * *", blackout, runner, testLogger(), WithClock(clock))
	require.NoError(t, err)

	s.tick()
	assert.Equal(t, 0, runner.calls)
	assert.Equal(t, int64(1), s.Skipped())

	clock.Advance(20 * time.Minute)
	s.tick()
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, int64(1), s.Runs())
}

func TestScheduler_TickAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &countingRunner{}

	s, err := New(ctx, "*/30 * * * *", Blackout{}, runner, testLogger())
	require.NoError(t, err)
	s.tick()
	assert.Equal(t, 0, runner.calls)
}

func TestScheduler_Next(t *testing.T) {
	clock := clockwork.NewFakeClockAt(utc(10, 7))
	s, err := New(context.Background(), "*/30 * * * *", Blackout{}, &countingRunner{}, testLogger(), WithClock(clock))
	require.NoError(t, err)
	assert.Equal(t, utc(10, 30), s.Next())
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(context.Background(), "every half hour", Blackout{}, &countingRunner{}, testLogger())
	require.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(context.Background(), "0 0 1 1 *", Blackout{}, &countingRunner{}, testLogger())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}

func TestScheduler_StopWaitsForRunNow(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	s, err := New(context.Background(), "0 0 1 1 *", Blackout{}, runner, testLogger())
	require.NoError(t, err)
	s.Start()
	s.RunNow()
	<-runner.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
	assert.True(t, runner.done.Load())
	assert.Equal(t, int64(1), s.Runs())
}
