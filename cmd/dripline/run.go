package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripline/internal/config"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		testMode   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one outreach pass over the lead list",
		Long: "Logs in, walks the lead sheet in order and sends the next due drip message to each eligible lead, " +
			"pausing between sends and stopping at the daily cap.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutreach(cmd, configPath, testMode)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Dripline config file")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "validate and compose but do not send any message")
	return cmd
}

func runOutreach(cmd *cobra.Command, configPath string, testMode bool) error {
	cfg, log, closer, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()
	if testMode {
		cfg.Instagram.TestMode = true
	}

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	e, err := newEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	job, err := e.outreachJob()
	if err != nil {
		return err
	}
	if cfg.Instagram.TestMode {
		fmt.Fprintln(cmd.OutOrStdout(), "Test mode: messages are logged, not sent")
	}

	rep, runErr := job.Run(ctx)
	e.report(ctx, cmd.OutOrStdout(), rep)
	return runErr
}
