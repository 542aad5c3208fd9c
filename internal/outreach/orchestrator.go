// Package outreach runs one pass of the drip campaign over every lead: skip
// policy, drip schedule, validation, composition, checkpointed send and
// write-through of the outcome.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/dripline/internal/drip"
	"github.com/zulandar/dripline/internal/metrics"
	"github.com/zulandar/dripline/internal/models"
)

// ErrLoginFailed aborts a run before any lead is touched.
var ErrLoginFailed = errors.New("outreach: login failed")

// Opts holds the collaborators and limits for an Orchestrator.
type Opts struct {
	Store     LeadStore
	Messenger Messenger
	Composer  Composer
	Engine    *drip.Engine
	Limiter   Waiter

	Columns   models.Columns
	Templates map[int]string // sequence position → template text
	MaxDaily  int

	InFlight InFlightPolicy
	// CountPriorSends seeds the daily counter with rows already messaged
	// today so repeated runs share one cap.
	CountPriorSends bool

	RunID  string
	Logger *slog.Logger
	Now    func() time.Time
}

// Orchestrator is built once per run.
type Orchestrator struct {
	store     LeadStore
	messenger Messenger
	composer  Composer
	engine    *drip.Engine
	limiter   Waiter

	cols            models.Columns
	templates       map[int]string
	maxDaily        int
	inFlight        InFlightPolicy
	countPriorSends bool

	runID string
	log   *slog.Logger
	now   func() time.Time
}

// New validates opts and returns an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("outreach: store is required")
	}
	if opts.Messenger == nil {
		return nil, fmt.Errorf("outreach: messenger is required")
	}
	if opts.Composer == nil {
		return nil, fmt.Errorf("outreach: composer is required")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("outreach: drip engine is required")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("outreach: rate limiter is required")
	}
	if opts.MaxDaily < 0 {
		return nil, fmt.Errorf("outreach: max daily messages must be non-negative, got %d", opts.MaxDaily)
	}
	if opts.Columns == (models.Columns{}) {
		opts.Columns = models.DefaultColumns()
	}
	if opts.InFlight == "" {
		opts.InFlight = InFlightRetry
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

	return &Orchestrator{
		store:           opts.Store,
		messenger:       opts.Messenger,
		composer:        opts.Composer,
		engine:          opts.Engine,
		limiter:         opts.Limiter,
		cols:            opts.Columns,
		templates:       opts.Templates,
		maxDaily:        opts.MaxDaily,
		inFlight:        opts.InFlight,
		countPriorSends: opts.CountPriorSends,
		runID:           opts.RunID,
		log:             opts.Logger.With("run_id", opts.RunID, "job", metrics.JobOutreach),
		now:             opts.Now,
	}, nil
}

// RunID identifies this run in logs and reports.
func (o *Orchestrator) RunID() string { return o.runID }

// Run processes every lead once, in sheet order, until the list is exhausted,
// the daily cap is reached or ctx is cancelled. Only a login failure or an
// unreadable lead list is returned as an error; per-lead problems are logged
// and counted.
func (o *Orchestrator) Run(ctx context.Context) (metrics.Report, error) {
	run := metrics.NewRun(o.runID, metrics.JobOutreach, o.now())

	if err := o.messenger.Login(ctx); err != nil {
		o.log.Error("login failed, run aborted", "error", err)
		return o.finish(run, fmt.Errorf("%w: %v", ErrLoginFailed, err))
	}

	rows, err := o.store.Leads(ctx)
	if err != nil {
		o.log.Error("fetch leads failed", "error", err)
		return o.finish(run, fmt.Errorf("outreach: fetch leads: %w", err))
	}
	leads := models.ParseLeads(rows, o.cols)

	sentToday := 0
	if o.countPriorSends {
		sentToday = o.priorSends(leads)
	}
	o.log.Info("run started", "leads", len(leads), "max_daily", o.maxDaily, "sent_today", sentToday)

	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			o.log.Warn("run cancelled, remaining leads deferred", "row", lead.Row)
			return o.finish(run, err)
		}
		if sentToday >= o.maxDaily {
			o.log.Info("daily message cap reached, remaining leads deferred", "row", lead.Row, "sent", sentToday)
			break
		}
		if ShouldSkip(lead) {
			continue
		}

		sent, err := o.processLead(ctx, run, lead)
		if err != nil {
			if errors.Is(err, drip.ErrCorruptDate) {
				o.log.Error("lead has corrupt drip state, needs operator attention",
					"row", lead.Row, "profile", lead.ProfileURL, "error", err)
			} else {
				o.log.Error("lead processing failed", "row", lead.Row, "error", err)
			}
			continue
		}
		if sent {
			sentToday++
		}
	}

	return o.finish(run, nil)
}

// processLead handles one eligible lead and reports whether a message was
// confirmed sent. A panic inside is converted to an error so the loop moves on.
func (o *Orchestrator) processLead(ctx context.Context, run *metrics.Run, lead models.Lead) (sent bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
			err = fmt.Errorf("outreach: panic on row %d: %v", lead.Row, r)
		}
	}()

	log := o.log.With("row", lead.Row)

	if lead.InFlight() {
		if o.inFlight == InFlightHold {
			log.Warn("lead left at sending checkpoint by a previous run, holding for review",
				"profile", lead.ProfileURL, "message_number", lead.MessageNumber)
			run.RecordSkipped()
			return false, nil
		}
		log.Warn("lead left at sending checkpoint by a previous run, retrying",
			"profile", lead.ProfileURL, "message_number", lead.MessageNumber)
	}

	due, err := o.engine.ShouldSend(lead)
	if err != nil {
		run.RecordCorrupt(lead.Row)
		return false, err
	}
	if !due {
		run.RecordSkipped()
		return false, nil
	}

	username := lead.Username()
	if username == "" {
		log.Warn("no username in profile url", "profile", lead.ProfileURL)
		run.RecordFailed()
		return false, nil
	}
	log = log.With("username", username)

	candidate, err := o.messenger.GetValidUser(ctx, username)
	if err != nil {
		log.Info("candidate not eligible", "reason", err)
		run.RecordFailed()
		return false, nil
	}

	next := o.engine.NextMessageNumber(lead)
	text := o.composer.Compose(ctx, candidate.Biography, o.templates[next])

	// Checkpoint: a crash between here and the final update leaves the row
	// distinguishable from untouched ones.
	if err := o.store.UpdateFields(ctx, lead.Row, map[string]string{
		o.cols.Status: models.StatusSending,
	}); err != nil {
		log.Error("could not write sending checkpoint, message not sent", "error", err)
		run.RecordFailed()
		return false, nil
	}

	if err := o.messenger.SendMessage(ctx, candidate.ID, text); err != nil {
		log.Warn("send failed, row left at sending checkpoint", "message_number", next, "error", err)
		run.RecordFailed()
		return false, nil
	}
	run.RecordSent()

	status := models.StatusMessaged
	if o.engine.MarkCompleted(next) {
		status = models.StatusCompleted
	}
	if err := o.store.UpdateFields(ctx, lead.Row, map[string]string{
		o.cols.Status:          status,
		o.cols.MessageNumber:   strconv.Itoa(next),
		o.cols.LastMessageDate: o.engine.Today(),
	}); err != nil {
		log.Error("message sent but outcome not recorded, row left at sending checkpoint",
			"message_number", next, "error", err)
	} else {
		log.Info("message sent", "message_number", next, "status", status)
	}

	o.limiter.WaitContext(ctx)
	return true, nil
}

// priorSends counts rows whose last confirmed send is today.
func (o *Orchestrator) priorSends(leads []models.Lead) int {
	today := o.engine.Today()
	n := 0
	for _, l := range leads {
		if l.LastMessageDate == today {
			n++
		}
	}
	return n
}

func (o *Orchestrator) finish(run *metrics.Run, err error) (metrics.Report, error) {
	rep := run.Report(o.now())
	if err != nil {
		rep.Err = err.Error()
	}
	o.log.Info("run complete", rep.LogAttrs()...)
	return rep, err
}
