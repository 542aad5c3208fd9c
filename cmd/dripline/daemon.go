package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripline/internal/config"
	"github.com/zulandar/dripline/internal/dashboard"
	"github.com/zulandar/dripline/internal/metrics"
	"github.com/zulandar/dripline/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

func newDaemonCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run outreach and reply detection on a schedule",
		Long: "Registers the outreach and replies jobs on their cron schedules and runs them one at a time. " +
			"When the dashboard is enabled, serves health, last-run and Prometheus endpoints.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Dripline config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "status server port (overrides dashboard.port and enables the dashboard)")
	return cmd
}

func runDaemon(cmd *cobra.Command, configPath string, port int) error {
	cfg, log, closer, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.Schedule.Outreach == "" && cfg.Schedule.Replies == "" {
		return fmt.Errorf("daemon: no schedules configured in %s (set schedule.outreach or schedule.replies)", configPath)
	}
	if port > 0 {
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Port = port
	}

	out := cmd.OutOrStdout()
	ctx, cancel := signalContext(out)
	defer cancel()

	e, err := newEnv(ctx, cfg, log)
	if err != nil {
		return err
	}

	status := dashboard.NewStatus(time.Now())
	sched := scheduler.New(log, cfg.Location())

	jobs := []struct {
		name string
		expr string
		run  func(ctx context.Context) (metrics.Report, error)
	}{
		{metrics.JobOutreach, cfg.Schedule.Outreach, func(ctx context.Context) (metrics.Report, error) {
			job, err := e.outreachJob()
			if err != nil {
				return metrics.Report{}, err
			}
			return job.Run(ctx)
		}},
		{metrics.JobReplies, cfg.Schedule.Replies, func(ctx context.Context) (metrics.Report, error) {
			job, err := e.repliesJob()
			if err != nil {
				return metrics.Report{}, err
			}
			return job.Run(ctx)
		}},
	}

	for _, j := range jobs {
		if j.expr == "" {
			continue
		}
		name, expr, run := j.name, j.expr, j.run
		err := sched.Add(name, expr, func(ctx context.Context) error {
			rep, err := run(ctx)
			if rep.RunID != "" {
				e.report(ctx, out, rep)
				status.Record(rep)
			}
			status.SetNext(name, nextRun(sched, name, expr, cfg))
			return err
		})
		if err != nil {
			return err
		}
		status.SetNext(name, nextAt(expr, cfg))
		fmt.Fprintf(out, "Scheduled %s: %s (next %s)\n", name, expr, nextAt(expr, cfg).Format(time.RFC1123))
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Dashboard.Enabled {
		g.Go(func() error {
			return dashboard.Start(gctx, dashboard.StartOpts{
				Status:   status,
				Registry: e.collector.Registry,
				Port:     cfg.Dashboard.Port,
				Out:      out,
			})
		})
	}
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("daemon stopped", "error", err)
		return err
	}
	return nil
}

// nextRun prefers the scheduler's own entry and falls back to parsing expr
// before the scheduler has started.
func nextRun(sched *scheduler.Scheduler, name, expr string, cfg *config.Config) time.Time {
	if t := sched.Next(name); !t.IsZero() {
		return t
	}
	return nextAt(expr, cfg)
}

// nextAt is the next fire time of expr in the configured timezone.
func nextAt(expr string, cfg *config.Config) time.Time {
	now := time.Now().In(cfg.Location())
	return now.Add(scheduler.NextDuration(expr, now))
}
