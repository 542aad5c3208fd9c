// Package scheduler runs the daemon's jobs on 5-field cron expressions.
// Jobs never overlap: a tick that arrives while any job is running waits for
// it, and a tick for a job that is still running is dropped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr is a valid schedule.
func Validate(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// NextDuration parses a cron expression and returns the duration from now
// until the next fire time. Returns 0 on parse error.
func NextDuration(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler owns a cron instance and the mutex shared by its jobs.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger

	run     sync.Mutex // held while any job runs
	mu      sync.Mutex
	ids     map[string]cron.EntryID
	baseCtx context.Context
}

// New creates a Scheduler that evaluates schedules in loc (nil for local time).
func New(logger *slog.Logger, loc *time.Location) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		ids:     make(map[string]cron.EntryID),
		baseCtx: context.Background(),
	}
}

// Add registers fn under name on the given schedule.
func (s *Scheduler) Add(name, expr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	id, err := s.cron.AddFunc(expr, func() { s.runJob(name, fn) })
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	s.ids[name] = id
	s.log.Info("job scheduled", "job", name, "schedule", expr)
	return nil
}

// RunNow runs a registered job immediately under the shared lock.
func (s *Scheduler) RunNow(name string, fn JobFunc) {
	s.runJob(name, fn)
}

// Next returns the next fire time of a job, or zero when unknown or not started.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// Start runs the scheduler until ctx is cancelled, then waits for a running
// job to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("scheduler started")
	<-ctx.Done()
	s.log.Info("scheduler stopping, waiting for running job")
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runJob(name string, fn JobFunc) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	s.run.Lock()
	defer s.run.Unlock()
	// Shutdown may have begun while waiting on another job.
	if ctx.Err() != nil {
		s.log.Info("job skipped, scheduler stopping", "job", name)
		return
	}

	start := time.Now()
	s.log.Info("job started", "job", name)
	if err := fn(ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return
	}
	s.log.Info("job finished", "job", name, "elapsed", time.Since(start).Round(time.Millisecond))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
