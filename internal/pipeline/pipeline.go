package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/ndbc-transfer/internal/domain"
	"github.com/couchcryptid/ndbc-transfer/internal/observability"
	"github.com/couchcryptid/ndbc-transfer/internal/staging"
)

// Fetcher streams one feed's readings for a window.
type Fetcher interface {
	Fetch(ctx context.Context, station domain.Station, feed domain.Feed, window domain.TimeWindow) iter.Seq2[domain.SensorReading, error]
}

// Uploader sends staged files to the destination server.
type Uploader interface {
	Upload(ctx context.Context, files []string) (domain.TransferReport, error)
}

// AlertSink receives the summary of every finished run.
type AlertSink interface {
	Publish(ctx context.Context, summary domain.RunSummary) error
}

// State is the phase of the run in progress.
type State int32

const (
	StateIdle State = iota
	StateStaging
	StateFetching
	StateBuilding
	StateReady
	StateUploading
	StateCleaningUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaging:
		return "staging"
	case StateFetching:
		return "fetching"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateUploading:
		return "uploading"
	case StateCleaningUp:
		return "cleaning_up"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options is the per-deployment run configuration.
type Options struct {
	StagingDir  string
	Lookback    time.Duration
	MaxLookback time.Duration
	// DryRun builds files and writes them to Output instead of uploading.
	DryRun bool
	Output io.Writer
}

const alertTimeout = 10 * time.Second

// Pipeline runs fetch, build and upload for every configured feed.
type Pipeline struct {
	stations    []domain.Station
	fetcher     Fetcher
	transformer *Transformer
	uploader    Uploader
	alerts      AlertSink
	opts        Options
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu    sync.Mutex
	state atomic.Int32
	last  atomic.Pointer[domain.RunSummary]
}

// New creates a Pipeline. The uploader may be nil in dry-run mode.
func New(stations []domain.Station, f Fetcher, t *Transformer, u Uploader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	return &Pipeline{
		stations:    stations,
		fetcher:     f,
		transformer: t,
		uploader:    u,
		opts:        opts,
		logger:      logger,
		metrics:     metrics,
	}
}

// WithAlerts publishes every run summary to sink.
func (p *Pipeline) WithAlerts(sink AlertSink) *Pipeline {
	p.alerts = sink
	return p
}

// State returns the current phase.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// StateName returns the current phase as a string.
func (p *Pipeline) StateName() string {
	return p.State().String()
}

// LastRun returns the summary of the most recent finished run.
func (p *Pipeline) LastRun() (domain.RunSummary, bool) {
	s := p.last.Load()
	if s == nil {
		return domain.RunSummary{}, false
	}
	return *s, true
}

// CheckReadiness returns nil once a run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.last.Load() == nil {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

func (p *Pipeline) transition(logger *slog.Logger, to State) {
	from := State(p.state.Swap(int32(to)))
	if from != to {
		logger.Debug("state transition", "from", from, "to", to)
	}
}

// FileName returns the upload file name of a feed for a window ending at end.
func FileName(wmo, sensor string, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s.xml", wmo, sensor, end.UTC().Format("20060102150405"))
}

type stagedFile struct {
	station, sensor string
}

// Run executes one complete run and returns its summary. A call made while
// another run is in flight fails immediately with ErrStagingAreaConflict.
func (p *Pipeline) Run(ctx context.Context) domain.RunSummary {
	if !p.mu.TryLock() {
		return p.reject(ctx)
	}
	defer p.mu.Unlock()

	start := time.Now()
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: domain.Now(),
		DryRun:    p.opts.DryRun,
	}
	logger := p.logger.With("run_id", summary.RunID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	window, err := domain.NewTimeWindow(p.opts.Lookback, p.opts.MaxLookback)
	if err != nil {
		summary.AddFailure(fmt.Errorf("time window: %w", err), "", "", "")
		return p.finish(ctx, logger, &summary, start)
	}
	summary.WindowStart, summary.WindowEnd = window.Start, window.End
	logger.Info("run started",
		"window_start", window.Start,
		"window_end", window.End,
		"lookback", window.Duration(),
		"feeds", countFeeds(p.stations),
		"dry_run", p.opts.DryRun,
	)

	p.transition(logger, StateStaging)
	area, err := staging.Acquire(p.opts.StagingDir, logger)
	if err != nil {
		logger.Error("staging area unavailable", "error", err)
		summary.AddFailure(err, "", "", "")
		p.transition(logger, StateIdle)
		return p.finish(ctx, logger, &summary, start)
	}

	staged := p.build(ctx, logger, area, window, &summary)

	p.transition(logger, StateReady)
	if summary.RecordsBuilt == 0 {
		err := fmt.Errorf("%w: %d feeds returned no records for %s to %s",
			domain.ErrNoDataProduced, countFeeds(p.stations),
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339))
		logger.Error("no data produced", "error", err)
		summary.AddFailure(err, "", "", "")
	}

	if files := area.Files(); len(files) > 0 && ctx.Err() == nil {
		if p.opts.DryRun {
			p.printFiles(logger, files, &summary)
		} else {
			p.transition(logger, StateUploading)
			p.upload(ctx, logger, files, staged, &summary)
		}
	}

	p.transition(logger, StateCleaningUp)
	if err := area.Release(); err != nil {
		logger.Error("staging cleanup failed", "dir", area.Dir(), "error", err)
		summary.AddFailure(fmt.Errorf("release staging area: %w", err), "", "", "")
	}
	p.transition(logger, StateIdle)

	return p.finish(ctx, logger, &summary, start)
}

// build fetches and renders every feed in configuration order. Per-feed
// failures are recorded and the loop moves on.
func (p *Pipeline) build(ctx context.Context, logger *slog.Logger, area *staging.Area, window domain.TimeWindow, summary *domain.RunSummary) map[string]stagedFile {
	staged := make(map[string]stagedFile)
	for _, station := range p.stations {
		for _, feed := range station.Feeds {
			if ctx.Err() != nil {
				summary.AddFailure(fmt.Errorf("run interrupted: %w", ctx.Err()), station.WMO, feed.Sensor, "")
				return staged
			}
			flog := logger.With("station", station.WMO, "sensor", feed.Sensor, "dataset", feed.Dataset)

			p.transition(flog, StateFetching)
			readings, err := p.collect(ctx, station, feed, window)
			if err != nil {
				flog.Warn("feed fetch failed", "kind", domain.KindOf(err), "error", err)
				summary.AddFailure(err, station.WMO, feed.Sensor, "")
				continue
			}

			p.transition(flog, StateBuilding)
			msgs := p.transformer.Transform(station, feed, window, readings)
			stats := domain.FeedStats{
				Station:  station.WMO,
				Sensor:   feed.Sensor,
				Readings: len(readings),
				Records:  len(msgs),
			}
			if len(msgs) == 0 {
				flog.Info("feed produced no records", "readings", len(readings))
				summary.Feeds = append(summary.Feeds, stats)
				continue
			}

			name := FileName(station.WMO, feed.Sensor, window.End)
			path, err := area.Write(name, domain.RenderMessages(msgs))
			if err != nil {
				flog.Error("write upload file failed", "file", name, "error", err)
				summary.AddFailure(err, station.WMO, feed.Sensor, name)
				summary.Feeds = append(summary.Feeds, stats)
				continue
			}
			stats.File = name
			staged[path] = stagedFile{station: station.WMO, sensor: feed.Sensor}
			summary.Feeds = append(summary.Feeds, stats)
			summary.RecordsBuilt += len(msgs)
			summary.FilesWritten++
			flog.Info("feed staged", "readings", len(readings), "records", len(msgs), "file", name)
		}
	}
	return staged
}

// collect drains the fetcher. Any error discards the feed.
func (p *Pipeline) collect(ctx context.Context, station domain.Station, feed domain.Feed, window domain.TimeWindow) ([]domain.SensorReading, error) {
	start := time.Now()
	defer func() {
		p.metrics.FetchDuration.WithLabelValues(feed.Sensor).Observe(time.Since(start).Seconds())
	}()

	var readings []domain.SensorReading
	for r, err := range p.fetcher.Fetch(ctx, station, feed, window) {
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (p *Pipeline) upload(ctx context.Context, logger *slog.Logger, files []string, staged map[string]stagedFile, summary *domain.RunSummary) {
	if p.uploader == nil {
		summary.AddFailure(errors.New("no uploader configured"), "", "", "")
		return
	}
	report, err := p.uploader.Upload(ctx, files)
	summary.FilesTransferred = len(report.Transferred)
	for _, f := range report.Failed {
		origin := staged[f.File]
		summary.AddFailure(f.Err, origin.station, origin.sensor, filepath.Base(f.File))
	}
	if err != nil {
		logger.Error("upload aborted", "kind", domain.KindOf(err), "error", err,
			"transferred", len(report.Transferred), "files", len(files))
		summary.AddFailure(err, "", "", "")
		return
	}
	logger.Info("upload finished", "transferred", len(report.Transferred), "failed", len(report.Failed))
}

func (p *Pipeline) printFiles(logger *slog.Logger, files []string, summary *domain.RunSummary) {
	for _, path := range files {
		if err := copyFile(p.opts.Output, path); err != nil {
			logger.Error("dry run output failed", "file", filepath.Base(path), "error", err)
			summary.AddFailure(fmt.Errorf("print %s: %w", filepath.Base(path), err), "", "", filepath.Base(path))
		}
	}
	logger.Info("dry run, upload skipped", "files", len(files))
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, summary *domain.RunSummary, start time.Time) domain.RunSummary {
	summary.FinishedAt = domain.Now()
	status := summary.Finalize()

	p.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.metrics.RecordsBuilt.Add(float64(summary.RecordsBuilt))
	p.metrics.FilesWritten.Add(float64(summary.FilesWritten))
	p.metrics.FilesTransferred.Add(float64(summary.FilesTransferred))
	for _, f := range summary.Failures {
		p.metrics.Failures.WithLabelValues(string(f.Kind)).Inc()
	}
	if status == domain.StatusSuccess {
		p.metrics.LastSuccess.Set(float64(summary.FinishedAt.Unix()))
	}

	attrs := []any{
		"status", status,
		"records", summary.RecordsBuilt,
		"files_written", summary.FilesWritten,
		"files_transferred", summary.FilesTransferred,
		"failures", len(summary.Failures),
		"duration", time.Since(start),
	}
	if status == domain.StatusSuccess {
		logger.Info("run finished", attrs...)
	} else {
		logger.Warn("run finished", attrs...)
	}

	result := *summary
	p.last.Store(&result)
	p.publish(ctx, logger, result)
	return result
}

// reject records a run that could not start because another holds the
// pipeline. It leaves state and the last-run summary alone.
func (p *Pipeline) reject(ctx context.Context) domain.RunSummary {
	now := domain.Now()
	summary := domain.RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  now,
		FinishedAt: now,
		DryRun:     p.opts.DryRun,
	}
	logger := p.logger.With("run_id", summary.RunID)
	err := fmt.Errorf("%w: another run is in progress (state %s)", domain.ErrStagingAreaConflict, p.State())
	summary.AddFailure(err, "", "", "")
	status := summary.Finalize()

	p.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	p.metrics.Failures.WithLabelValues(string(domain.KindStagingAreaConflict)).Inc()
	logger.Warn("run rejected", "error", err)

	p.publish(ctx, logger, summary)
	return summary
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, summary domain.RunSummary) {
	if p.alerts == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if err := p.alerts.Publish(actx, summary); err != nil {
		logger.Error("publish run summary failed", "error", err)
	}
}

func countFeeds(stations []domain.Station) int {
	n := 0
	for _, s := range stations {
		n += len(s.Feeds)
	}
	return n
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
