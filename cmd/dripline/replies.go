package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/dripline/internal/config"
)

func newRepliesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "replies",
		Short:        "Mark leads that have replied",
		Long:         "Scans unread direct message threads and sets status 'replied' on matching leads so the drip sequence stops for them.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplies(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Dripline config file")
	return cmd
}

func runReplies(cmd *cobra.Command, configPath string) error {
	cfg, log, closer, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, cancel := signalContext(cmd.OutOrStdout())
	defer cancel()

	e, err := newEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	job, err := e.repliesJob()
	if err != nil {
		return err
	}

	rep, runErr := job.Run(ctx)
	e.report(ctx, cmd.OutOrStdout(), rep)
	return runErr
}
