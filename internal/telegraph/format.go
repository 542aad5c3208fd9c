package telegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dripline/internal/metrics"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// reportSeverity grades a run: error when it aborted, warning when rows need
// attention or every attempt failed, success when anything went out.
func reportSeverity(rep metrics.Report) string {
	switch {
	case rep.Err != "":
		return "error"
	case len(rep.CorruptRows) > 0:
		return "warning"
	case rep.Failed > 0 && rep.Sent == 0 && rep.Replied == 0:
		return "warning"
	case rep.Sent > 0 || rep.Replied > 0:
		return "success"
	default:
		return "info"
	}
}

// FormatRunSummary formats the report of an outreach run.
func FormatRunSummary(rep metrics.Report) FormattedEvent {
	severity := reportSeverity(rep)

	title := "Outreach run finished"
	if rep.Err != "" {
		title = "Outreach run aborted"
	}

	var bodyLines []string
	bodyLines = append(bodyLines, fmt.Sprintf("**Sent**: %d, **Skipped**: %d, **Failed**: %d", rep.Sent, rep.Skipped, rep.Failed))
	if len(rep.CorruptRows) > 0 {
		bodyLines = append(bodyLines, fmt.Sprintf("**Rows needing attention**: %s", joinInts(rep.CorruptRows)))
	}
	if rep.Err != "" {
		bodyLines = append(bodyLines, fmt.Sprintf("**Error**: %s", rep.Err))
	}

	fields := []Field{
		{Name: "Sent", Value: fmt.Sprintf("%d", rep.Sent), Short: true},
		{Name: "Skipped", Value: fmt.Sprintf("%d", rep.Skipped), Short: true},
		{Name: "Failed", Value: fmt.Sprintf("%d", rep.Failed), Short: true},
		{Name: "Duration", Value: rep.Duration().Round(time.Second).String(), Short: true},
		{Name: "Run", Value: rep.RunID, Short: false},
	}

	return FormattedEvent{
		Title:    title,
		Body:     strings.Join(bodyLines, "\n"),
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// FormatReplySummary formats the report of a reply scan.
func FormatReplySummary(rep metrics.Report) FormattedEvent {
	severity := reportSeverity(rep)

	title := fmt.Sprintf("%d new %s", rep.Replied, plural(rep.Replied, "reply", "replies"))
	if rep.Err != "" {
		title = "Reply scan aborted"
	}

	body := ""
	if rep.Err != "" {
		body = fmt.Sprintf("**Error**: %s", rep.Err)
	}

	fields := []Field{
		{Name: "Marked replied", Value: fmt.Sprintf("%d", rep.Replied), Short: true},
		{Name: "Already replied", Value: fmt.Sprintf("%d", rep.Skipped), Short: true},
	}
	if rep.Failed > 0 {
		fields = append(fields, Field{Name: "Write failures", Value: fmt.Sprintf("%d", rep.Failed), Short: true})
	}

	return FormattedEvent{
		Title:    title,
		Body:     body,
		Severity: severity,
		Color:    severityColor(severity),
		Fields:   fields,
	}
}

// SummaryMessage wraps a formatted report into a message with a plain-text
// fallback line.
func SummaryMessage(rep metrics.Report) OutboundMessage {
	evt := FormatRunSummary(rep)
	if rep.Job == metrics.JobReplies {
		evt = FormatReplySummary(rep)
	}
	return OutboundMessage{Text: rep.String(), Events: []FormattedEvent{evt}}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
