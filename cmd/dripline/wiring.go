package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zulandar/dripline/internal/compose"
	"github.com/zulandar/dripline/internal/config"
	"github.com/zulandar/dripline/internal/drip"
	"github.com/zulandar/dripline/internal/instagram"
	"github.com/zulandar/dripline/internal/metrics"
	"github.com/zulandar/dripline/internal/observability"
	"github.com/zulandar/dripline/internal/outreach"
	"github.com/zulandar/dripline/internal/ratelimit"
	"github.com/zulandar/dripline/internal/replies"
	"github.com/zulandar/dripline/internal/sheets"
	"github.com/zulandar/dripline/internal/telegraph"
	discordnotify "github.com/zulandar/dripline/internal/telegraph/discord"
	slacknotify "github.com/zulandar/dripline/internal/telegraph/slack"
)

// env holds the long-lived collaborators shared by every job in a process.
type env struct {
	cfg       *config.Config
	log       *slog.Logger
	store     outreach.LeadStore
	ig        *instagram.Client
	composer  *compose.Composer
	notifier  *telegraph.Fanout
	collector *metrics.Collector
}

// loadConfig loads the config file and builds the process logger. The
// returned closer must be closed on exit.
func loadConfig(configPath string) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closer, err := observability.New(observability.Opts{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

func newEnv(ctx context.Context, cfg *config.Config, log *slog.Logger) (*env, error) {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	ig, err := newInstagram(cfg, log)
	if err != nil {
		return nil, err
	}
	composer, err := newComposer(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:       cfg,
		log:       log,
		store:     store,
		ig:        ig,
		composer:  composer,
		notifier:  notifier,
		collector: metrics.NewCollector(),
	}, nil
}

// openStore returns the configured lead store.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (outreach.LeadStore, error) {
	if cfg.Sheets.Backend == config.BackendCSV {
		f, err := sheets.OpenCSV(cfg.Sheets.CSVFile)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	s, err := sheets.New(ctx, sheets.Opts{
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
		Worksheet:       cfg.Sheets.Worksheet,
		CredentialsFile: cfg.Sheets.CredentialsFile,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newInstagram(cfg *config.Config, log *slog.Logger) (*instagram.Client, error) {
	ic := cfg.Instagram
	return instagram.New(instagram.Opts{
		SessionID: ic.SessionID,
		BaseURL:   ic.BaseURL,
		TestMode:  ic.TestMode,
		Rules: instagram.Rules{
			MinFollowers:  ic.MinFollowers,
			MaxFollowers:  ic.MaxFollowers,
			MinEngagement: ic.MinEngagement,
			SamplePosts:   ic.SamplePosts,
		},
		Timeout: time.Duration(ic.TimeoutSeconds) * time.Second,
		Logger:  log,
	})
}

func newComposer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*compose.Composer, error) {
	var gen compose.Generator
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		g, err := compose.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		gen = g
	case config.ProviderOpenAI:
		o, err := compose.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		if err != nil {
			return nil, err
		}
		gen = o
	}
	return compose.New(gen, cfg.Drip.DefaultMessage, log), nil
}

// newNotifier builds a fanout over every configured chat platform. It may be
// empty.
func newNotifier(cfg *config.Config, log *slog.Logger) (*telegraph.Fanout, error) {
	var ns []telegraph.Notifier
	if cfg.Notify.Slack.Enabled() {
		n, err := slacknotify.New(slacknotify.NotifierOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	if cfg.Notify.Discord.Enabled() {
		n, err := discordnotify.New(discordnotify.NotifierOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.Channel,
			Logger:    log,
		})
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return telegraph.NewFanout(log, ns...), nil
}

// outreachJob builds an orchestrator for one run. Engine and limiter are
// rebuilt per run so each run gets a fresh clock and run id.
func (e *env) outreachJob() (*outreach.Orchestrator, error) {
	rl := e.cfg.Outreach.RateLimit
	limiter, err := ratelimit.New(rl.MinSeconds, rl.MaxSeconds)
	if err != nil {
		return nil, err
	}
	policy, err := outreach.ParseInFlightPolicy(e.cfg.Outreach.InFlightPolicy)
	if err != nil {
		return nil, err
	}
	return outreach.New(outreach.Opts{
		Store:           e.store,
		Messenger:       e.ig,
		Composer:        e.composer,
		Engine:          newEngine(e.cfg),
		Limiter:         limiter,
		Columns:         e.cfg.Sheets.Columns,
		Templates:       e.cfg.Drip.Templates,
		MaxDaily:        e.cfg.MaxDaily(),
		InFlight:        policy,
		CountPriorSends: e.cfg.Outreach.CountPriorSends,
		Logger:          e.log,
	})
}

// newEngine builds a drip engine whose "today" is the schedule timezone's day,
// so due dates and written send dates agree with when the daemon fires.
func newEngine(cfg *config.Config) *drip.Engine {
	loc := cfg.Location()
	return drip.New(cfg.Drip.DelayDays, cfg.MaxSequence(), drip.WithClock(func() time.Time {
		return time.Now().In(loc)
	}))
}

func (e *env) repliesJob() (*replies.Detector, error) {
	return replies.New(replies.Opts{
		Inbox:   e.ig,
		Store:   e.store,
		Columns: e.cfg.Sheets.Columns,
		Logger:  e.log,
	})
}

// report publishes a finished run: terminal line, Prometheus mirror,
// optional textfile and chat summary. Publishing problems are logged only.
func (e *env) report(ctx context.Context, out io.Writer, rep metrics.Report) {
	if out != nil {
		fmt.Fprintln(out, rep.String())
	}

	e.collector.Observe(rep)
	if path := e.cfg.Metrics.Textfile; path != "" {
		if err := e.collector.WriteTextfile(path); err != nil {
			e.log.Warn("write metrics textfile failed", "path", path, "error", err)
		}
	}

	if e.notifier.Len() == 0 {
		return
	}
	if e.cfg.Notify.SkipIdle && idle(rep) {
		e.log.Debug("idle run, summary not posted", "run_id", rep.RunID)
		return
	}
	// Notifications go out even when the run itself was cancelled.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	e.notifier.Send(nctx, telegraph.SummaryMessage(rep))
}

// idle reports whether a run did nothing worth telling anyone about.
func idle(rep metrics.Report) bool {
	return rep.Sent == 0 && rep.Failed == 0 && rep.Replied == 0 &&
		len(rep.CorruptRows) == 0 && rep.Err == ""
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
