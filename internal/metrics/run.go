// Package metrics keeps the counters for a single run and mirrors them into
// Prometheus collectors for the daemon and node-exporter textfiles.
package metrics

import (
	"fmt"
	"time"
)

// Job names used as labels and in reports.
const (
	JobOutreach = "outreach"
	JobReplies  = "replies"
)

// Run holds the in-memory counters of one run. It is used from a single
// goroutine and discarded once reported.
type Run struct {
	runID       string
	job         string
	startedAt   time.Time
	sent        int
	skipped     int
	failed      int
	replied     int
	corruptRows []int
}

// NewRun starts counters for a run of the given job.
func NewRun(runID, job string, startedAt time.Time) *Run {
	return &Run{runID: runID, job: job, startedAt: startedAt}
}

func (r *Run) RecordSent()    { r.sent++ }
func (r *Run) RecordSkipped() { r.skipped++ }
func (r *Run) RecordFailed()  { r.failed++ }
func (r *Run) RecordReplied() { r.replied++ }

// RecordCorrupt notes a row whose stored state could not be interpreted.
func (r *Run) RecordCorrupt(row int) { r.corruptRows = append(r.corruptRows, row) }

// Report snapshots the counters.
func (r *Run) Report(finishedAt time.Time) Report {
	rows := make([]int, len(r.corruptRows))
	copy(rows, r.corruptRows)
	return Report{
		RunID:       r.runID,
		Job:         r.job,
		StartedAt:   r.startedAt,
		FinishedAt:  finishedAt,
		Sent:        r.sent,
		Skipped:     r.skipped,
		Failed:      r.failed,
		Replied:     r.replied,
		CorruptRows: rows,
	}
}

// Report is the end-of-run summary.
type Report struct {
	RunID       string    `json:"run_id"`
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Sent        int       `json:"sent"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Replied     int       `json:"replied"`
	CorruptRows []int     `json:"corrupt_rows,omitempty"`
	Err         string    `json:"error,omitempty"`
}

// Attempts is the number of send attempts that reached the platform.
func (r Report) Attempts() int { return r.Sent + r.Failed }

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// LogAttrs returns the report as slog key/value pairs.
func (r Report) LogAttrs() []any {
	attrs := []any{
		"run_id", r.RunID,
		"job", r.Job,
		"sent", r.Sent,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"duration", r.Duration().Round(time.Second).String(),
	}
	if r.Job == JobReplies {
		attrs = append(attrs, "replied", r.Replied)
	}
	if len(r.CorruptRows) > 0 {
		attrs = append(attrs, "corrupt_rows", r.CorruptRows)
	}
	if r.Err != "" {
		attrs = append(attrs, "error", r.Err)
	}
	return attrs
}

// String renders a one-line summary for terminal output.
func (r Report) String() string {
	s := fmt.Sprintf("%s run %s: sent=%d skipped=%d failed=%d", r.Job, r.RunID, r.Sent, r.Skipped, r.Failed)
	if r.Job == JobReplies {
		s += fmt.Sprintf(" replied=%d", r.Replied)
	}
	if len(r.CorruptRows) > 0 {
		s += fmt.Sprintf(" corrupt_rows=%v", r.CorruptRows)
	}
	if r.Err != "" {
		s += " error=" + r.Err
	}
	return s
}
