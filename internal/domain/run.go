package domain

import "time"

// RunStatus is the overall outcome of a pipeline run.
type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialFailure RunStatus = "partial_failure"
	StatusTotalFailure   RunStatus = "total_failure"
)

// ExitCode maps a status to the process exit code seen by the scheduler.
func (s RunStatus) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartialFailure:
		return 2
	default:
		return 1
	}
}

// Failure is one recorded error of a run.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Station string `json:"station,omitempty"`
	Sensor  string `json:"sensor,omitempty"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// FeedStats counts what one feed produced.
type FeedStats struct {
	Station  string `json:"station"`
	Sensor   string `json:"sensor"`
	Readings int    `json:"readings"`
	Records  int    `json:"records"`
	File     string `json:"file,omitempty"`
}

// TransferReport is the per-file outcome of an upload session.
type TransferReport struct {
	Transferred []string
	Failed      []FileFailure
}

// FileFailure pairs a file with its transfer error.
type FileFailure struct {
	File string
	Err  error
}

// RunSummary is the aggregated result of one pipeline run.
type RunSummary struct {
	RunID            string      `json:"run_id"`
	Status           RunStatus   `json:"status"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	WindowStart      time.Time   `json:"window_start"`
	WindowEnd        time.Time   `json:"window_end"`
	DryRun           bool        `json:"dry_run,omitempty"`
	Feeds            []FeedStats `json:"feeds"`
	RecordsBuilt     int         `json:"records_built"`
	FilesWritten     int         `json:"files_written"`
	FilesTransferred int         `json:"files_transferred"`
	Failures         []Failure   `json:"failures,omitempty"`
}

// AddFailure records err under its taxonomy kind.
func (s *RunSummary) AddFailure(err error, station, sensor, file string) {
	s.Failures = append(s.Failures, Failure{
		Kind:    KindOf(err),
		Station: station,
		Sensor:  sensor,
		File:    file,
		Message: err.Error(),
	})
}

// FailureCounts returns failures grouped by kind.
func (s *RunSummary) FailureCounts() map[Kind]int {
	counts := make(map[Kind]int)
	for _, f := range s.Failures {
		counts[f.Kind]++
	}
	return counts
}

// Finalize derives Status. A run is a total failure when staging or
// authentication failed, when no record was produced, or when files were
// written but none reached the destination. Any other failure is partial.
func (s *RunSummary) Finalize() RunStatus {
	counts := s.FailureCounts()
	switch {
	case counts[KindStagingAreaConflict] > 0,
		counts[KindAuthentication] > 0,
		counts[KindNoDataProduced] > 0,
		counts[KindInternal] > 0 && s.FilesWritten == 0,
		!s.DryRun && s.FilesWritten > 0 && s.FilesTransferred == 0:
		s.Status = StatusTotalFailure
	case len(s.Failures) > 0:
		s.Status = StatusPartialFailure
	default:
		s.Status = StatusSuccess
	}
	return s.Status
}
