// Package replies scans the direct-message inbox for unread threads and
// marks the matching leads as replied so the drip sequence stops for them.
package replies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/dripline/internal/instagram"
	"github.com/zulandar/dripline/internal/metrics"
	"github.com/zulandar/dripline/internal/models"
)

// ErrLoginFailed aborts a scan before the sheet is read.
var ErrLoginFailed = errors.New("replies: login failed")

// Inbox lists conversations with unread messages.
type Inbox interface {
	Login(ctx context.Context) error
	UnreadThreads(ctx context.Context) ([]instagram.Thread, error)
}

// LeadStore is the subset of the lead store the detector needs.
type LeadStore interface {
	Leads(ctx context.Context) ([]map[string]string, error)
	UpdateFields(ctx context.Context, row int, updates map[string]string) error
}

// Opts holds parameters for creating a Detector.
type Opts struct {
	Inbox   Inbox
	Store   LeadStore
	Columns models.Columns
	RunID   string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Detector marks leads that have written back.
type Detector struct {
	inbox Inbox
	store LeadStore
	cols  models.Columns
	runID string
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Detector.
func New(opts Opts) (*Detector, error) {
	if opts.Inbox == nil {
		return nil, fmt.Errorf("replies: inbox is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("replies: store is required")
	}
	if opts.Columns == (models.Columns{}) {
		opts.Columns = models.DefaultColumns()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Detector{
		inbox: opts.Inbox,
		store: opts.Store,
		cols:  opts.Columns,
		runID: opts.RunID,
		log:   opts.Logger.With("run_id", opts.RunID, "job", metrics.JobReplies),
		now:   opts.Now,
	}, nil
}

// Run performs one scan. Leads already marked replied are counted as skipped;
// failed sheet writes are counted as failed and the scan continues.
func (d *Detector) Run(ctx context.Context) (metrics.Report, error) {
	run := metrics.NewRun(d.runID, metrics.JobReplies, d.now())

	if err := d.inbox.Login(ctx); err != nil {
		d.log.Error("login failed, scan aborted", "error", err)
		return d.finish(run, fmt.Errorf("%w: %v", ErrLoginFailed, err))
	}

	threads, err := d.inbox.UnreadThreads(ctx)
	if err != nil {
		return d.finish(run, fmt.Errorf("replies: list unread threads: %w", err))
	}
	repliers := make(map[string]bool)
	for _, th := range threads {
		for _, u := range th.Usernames {
			repliers[strings.ToLower(u)] = true
		}
	}
	d.log.Info("unread threads scanned", "threads", len(threads), "participants", len(repliers))
	if len(repliers) == 0 {
		return d.finish(run, nil)
	}

	rows, err := d.store.Leads(ctx)
	if err != nil {
		return d.finish(run, fmt.Errorf("replies: fetch leads: %w", err))
	}

	for _, lead := range models.ParseLeads(rows, d.cols) {
		if err := ctx.Err(); err != nil {
			return d.finish(run, err)
		}
		username := strings.ToLower(lead.Username())
		if username == "" || !repliers[username] {
			continue
		}
		if lead.NormalizedStatus() == models.StatusReplied {
			run.RecordSkipped()
			continue
		}
		if err := d.store.UpdateFields(ctx, lead.Row, map[string]string{
			d.cols.Status: models.StatusReplied,
		}); err != nil {
			d.log.Error("could not mark lead replied", "row", lead.Row, "username", username, "error", err)
			run.RecordFailed()
			continue
		}
		d.log.Info("lead marked replied", "row", lead.Row, "username", username, "previous_status", lead.Status)
		run.RecordReplied()
	}
	return d.finish(run, nil)
}

func (d *Detector) finish(run *metrics.Run, err error) (metrics.Report, error) {
	rep := run.Report(d.now())
	if err != nil {
		rep.Err = err.Error()
	}
	d.log.Info("scan complete", rep.LogAttrs()...)
	return rep, err
}
