package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripline/internal/config"
	"github.com/zulandar/dripline/internal/models"
	discordnotify "github.com/zulandar/dripline/internal/telegraph/discord"
	slacknotify "github.com/zulandar/dripline/internal/telegraph/slack"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the Dripline config",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigCheckCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config: %s already exists (use --force to overwrite)", configPath)
			}
			if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
				return fmt.Errorf("config: write %s: %w", configPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "check",
		Short:        "Validate the config and test every connection",
		Long:         "Loads the config, reads the lead list, verifies the Instagram session and checks each chat notifier.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCheck(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Dripline config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runConfigCheck(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Dripline config check")
	fmt.Fprintln(out, "=====================")

	var results []checkResult
	cfg, log, closer, err := loadConfig(configPath)
	if err != nil {
		results = append(results, checkResult{"Config file", "FAIL", err.Error()})
		return printResults(out, results)
	}
	defer closer.Close()
	results = append(results, checkResult{"Config file", "PASS", configPath})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results = append(results, checkStore(ctx, cfg, log))
	results = append(results, checkInstagram(ctx, cfg, log))
	results = append(results, checkLLM(cfg))
	results = append(results, checkNotifiers(ctx, cfg, log)...)
	results = append(results, checkSchedules(cfg)...)
	return printResults(out, results)
}

func printResults(out io.Writer, results []checkResult) error {
	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func checkStore(ctx context.Context, cfg *config.Config, log *slog.Logger) checkResult {
	name := "Lead store (" + cfg.Sheets.Backend + ")"
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return checkResult{name, "FAIL", err.Error()}
	}
	rows, err := store.Leads(ctx)
	if err != nil {
		return checkResult{name, "FAIL", err.Error()}
	}
	if len(rows) > 0 {
		if _, ok := rows[0][cfg.Sheets.Columns.ProfileURL]; !ok {
			return checkResult{name, "FAIL", fmt.Sprintf("no %q column in header row", cfg.Sheets.Columns.ProfileURL)}
		}
	}
	n := 0
	for _, l := range models.ParseLeads(rows, cfg.Sheets.Columns) {
		if l.ProfileURL != "" {
			n++
		}
	}
	return checkResult{name, "PASS", fmt.Sprintf("%d leads", n)}
}

func checkInstagram(ctx context.Context, cfg *config.Config, log *slog.Logger) checkResult {
	ig, err := newInstagram(cfg, log)
	if err != nil {
		return checkResult{"Instagram session", "FAIL", err.Error()}
	}
	if err := ig.Login(ctx); err != nil {
		return checkResult{"Instagram session", "FAIL", err.Error()}
	}
	detail := "logged in as @" + ig.Username()
	if cfg.Instagram.TestMode {
		return checkResult{"Instagram session", "WARN", detail + " (test mode: nothing will be sent)"}
	}
	return checkResult{"Instagram session", "PASS", detail}
}

func checkLLM(cfg *config.Config) checkResult {
	if cfg.LLM.Provider == config.ProviderNone {
		return checkResult{"Message composer", "WARN", "no LLM provider, the default message is always used"}
	}
	return checkResult{"Message composer", "PASS", cfg.LLM.Provider + " " + cfg.LLM.Model}
}

func checkNotifiers(ctx context.Context, cfg *config.Config, log *slog.Logger) []checkResult {
	var results []checkResult
	if cfg.Notify.Slack.Enabled() {
		n, err := slacknotify.New(slacknotify.NotifierOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.Channel,
		})
		if err == nil {
			err = n.Verify(ctx)
		}
		if err != nil {
			results = append(results, checkResult{"Slack", "FAIL", err.Error()})
		} else {
			results = append(results, checkResult{"Slack", "PASS", "bot " + n.BotUserID() + " → " + cfg.Notify.Slack.Channel})
		}
	}
	if cfg.Notify.Discord.Enabled() {
		n, err := discordnotify.New(discordnotify.NotifierOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.Channel,
			Logger:    log,
		})
		if err == nil {
			err = n.Verify(ctx)
		}
		if err != nil {
			results = append(results, checkResult{"Discord", "FAIL", err.Error()})
		} else {
			results = append(results, checkResult{"Discord", "PASS", "bot " + n.BotUserID() + " → " + cfg.Notify.Discord.Channel})
		}
	}
	if len(results) == 0 {
		results = append(results, checkResult{"Notifications", "WARN", "no chat platform configured"})
	}
	return results
}

func checkSchedules(cfg *config.Config) []checkResult {
	var results []checkResult
	for _, s := range []struct{ name, expr string }{
		{"Outreach schedule", cfg.Schedule.Outreach},
		{"Replies schedule", cfg.Schedule.Replies},
	} {
		if s.expr == "" {
			continue
		}
		next := nextAt(s.expr, cfg)
		results = append(results, checkResult{s.name, "PASS", fmt.Sprintf("%s (next %s)", s.expr, next.Format(time.RFC1123))})
	}
	return results
}

const exampleConfig = `# Dripline configuration.
# Secrets may be left empty here and supplied through INSTAGRAM_SESSIONID,
# GEMINI_API_KEY, OPENAI_API_KEY, SLACK_BOT_TOKEN and DISCORD_BOT_TOKEN.

instagram:
  session_id: ""
  test_mode: true
  min_followers: 1000
  max_followers: 50000
  min_engagement: 0.5

llm:
  provider: gemini        # gemini, openai or none
  model: gemini-2.0-flash

sheets:
  spreadsheet_id: ""
  worksheet: Sheet1
  credentials_file: credentials.json

drip:
  delay_days: 3
  max_sequence: 4
  default_message: |
    Hi! I came across your profile and loved your content. Would you be open to a quick chat?
  templates:
    1: Introduce yourself and mention something specific from their bio.
    2: Share one concrete way you could help them grow.
    3: Offer a short call and keep it light.
    4: A friendly last check-in, no pressure.

outreach:
  max_daily_messages: 25
  rate_limit:
    min_seconds: 45
    max_seconds: 120
  in_flight_policy: retry

notify:
  slack:
    channel: ""
  skip_idle: true

schedule:
  outreach: "0 10 * * *"
  replies: "*/30 * * * *"

dashboard:
  enabled: false
  port: 8080

logging:
  level: info
  format: auto
`
