package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/dripline/internal/config"
	"github.com/zulandar/dripline/internal/drip"
	"github.com/zulandar/dripline/internal/models"
	"github.com/zulandar/dripline/internal/outreach"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Summarise the lead list",
		Long:         "Reads the lead sheet and shows leads per status, per sequence position, and how many are due a message today.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to Dripline config file")
	return cmd
}

// leadSummary is a read-only view of the lead list.
type leadSummary struct {
	Total       int
	ByStatus    map[string]int
	ByPosition  map[int]int
	Due         int
	InFlight    []int // rows at the sending checkpoint
	Corrupt     []int // rows with an unreadable last message date
	MaxSequence int
	DelayDays   int
	Today       string
}

func summarize(leads []models.Lead, engine *drip.Engine) leadSummary {
	s := leadSummary{
		ByStatus:    make(map[string]int),
		ByPosition:  make(map[int]int),
		MaxSequence: engine.MaxSequence(),
		DelayDays:   engine.DelayDays(),
		Today:       engine.Today(),
	}
	for _, l := range leads {
		if l.ProfileURL == "" {
			continue
		}
		s.Total++
		st := l.NormalizedStatus()
		if st == "" {
			st = "new"
		}
		s.ByStatus[st]++
		s.ByPosition[l.MessageNumber]++
		if l.InFlight() {
			s.InFlight = append(s.InFlight, l.Row)
		}
		if outreach.ShouldSkip(l) {
			continue
		}
		due, err := engine.ShouldSend(l)
		if errors.Is(err, drip.ErrCorruptDate) {
			s.Corrupt = append(s.Corrupt, l.Row)
			continue
		}
		if due {
			s.Due++
		}
	}
	return s
}

func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, log, closer, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := context.Background()
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	rows, err := store.Leads(ctx)
	if err != nil {
		return err
	}
	leads := models.ParseLeads(rows, cfg.Sheets.Columns)
	printSummary(cmd.OutOrStdout(), summarize(leads, newEngine(cfg)), cfg)
	return nil
}

func printSummary(out io.Writer, s leadSummary, cfg *config.Config) {
	fmt.Fprintf(out, "Leads: %d\n", s.Total)
	fmt.Fprintf(out, "Sequence: %d messages, %d days apart (today %s)\n", s.MaxSequence, s.DelayDays, s.Today)

	statuses := make([]string, 0, len(s.ByStatus))
	for st := range s.ByStatus {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTATUS\tLEADS")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%d\n", st, s.ByStatus[st])
	}
	tw.Flush()

	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nMESSAGES SENT\tLEADS")
	for n := 0; n <= s.MaxSequence; n++ {
		fmt.Fprintf(tw, "%d/%d\t%d\n", n, s.MaxSequence, s.ByPosition[n])
	}
	tw.Flush()

	due := s.Due
	if limit := cfg.MaxDaily(); due > limit {
		fmt.Fprintf(out, "\nDue now: %d (next run sends at most %d)\n", due, limit)
	} else {
		fmt.Fprintf(out, "\nDue now: %d\n", due)
	}
	if len(s.InFlight) > 0 {
		fmt.Fprintf(out, "At sending checkpoint (policy %s): rows %v\n", cfg.Outreach.InFlightPolicy, s.InFlight)
	}
	if len(s.Corrupt) > 0 {
		fmt.Fprintf(out, "Unreadable last message date: rows %v\n", s.Corrupt)
	}
}
