// Package scheduler triggers pipeline runs on a cron schedule in serve mode,
// skipping ticks that fall inside the destination's daily blackout window.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) domain.RunSummary
}

// Blackout is a daily UTC interval during which no run starts. The interval
// wraps midnight when Start is after End. The zero value never matches.
type Blackout struct {
	Start time.Duration // offset from midnight
	End   time.Duration
	set   bool
}

// ParseBlackout parses "HH:MM-HH:MM". An empty string disables the blackout.
func ParseBlackout(s string) (Blackout, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Blackout{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Blackout{}, fmt.Errorf("blackout %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Blackout{}, fmt.Errorf("blackout %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Blackout{}, fmt.Errorf("blackout %q: %w", s, err)
	}
	if start == end {
		return Blackout{}, fmt.Errorf("blackout %q: start equals end", s)
	}
	return Blackout{Start: start, End: end, set: true}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t falls in [Start, End) of its UTC day.
func (b Blackout) Contains(t time.Time) bool {
	if !b.set {
		return false
	}
	t = t.UTC()
	offset := t.Sub(t.Truncate(24 * time.Hour))
	if b.Start < b.End {
		return offset >= b.Start && offset < b.End
	}
	return offset >= b.Start || offset < b.End
}

func (b Blackout) String() string {
	if !b.set {
		return "none"
	}
	format := func(d time.Duration) string {
		return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
	}
	return format(b.Start) + "-" + format(b.End)
}

// Scheduler runs the pipeline on a cron schedule.
type Scheduler struct {
	ctx      context.Context
	runner   Runner
	blackout Blackout
	clock    clockwork.Clock
	logger   *slog.Logger
	cron     *cron.Cron
	entry    cron.EntryID
	manual   sync.WaitGroup

	runs    atomic.Int64
	skipped atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for blackout checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New creates a Scheduler for a five-field cron spec evaluated in UTC.
// A tick that arrives while the previous run is still going is skipped.
func New(ctx context.Context, spec string, blackout Blackout, runner Runner, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		ctx:      ctx,
		runner:   runner,
		blackout: blackout,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	id, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins triggering runs in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "next_run", s.Next(), "blackout", s.blackout.String())
	s.cron.Start()
}

// RunNow triggers one run in the background, outside the cron schedule. The
// blackout still applies. Stop waits for it.
func (s *Scheduler) RunNow() {
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.tick()
	}()
}

// Stop prevents new runs and waits for runs in progress to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.manual.Wait()
}

// Next returns the time of the next scheduled tick.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Schedule.Next(s.clock.Now().UTC())
}

// Runs returns the number of runs started by the scheduler.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Skipped returns the number of ticks dropped by the blackout.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	now := s.clock.Now()
	if s.blackout.Contains(now) {
		s.skipped.Add(1)
		s.logger.Info("run skipped, destination blackout", "now", now.UTC(), "blackout", s.blackout.String())
		return
	}
	s.runs.Add(1)
	summary := s.runner.Run(s.ctx)
	s.logger.Info("scheduled run done", "run_id", summary.RunID, "status", summary.Status, "next_run", s.Next())
}
