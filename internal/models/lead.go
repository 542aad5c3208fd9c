// Package models defines the lead and candidate records that flow between
// the lead store, the drip engine and the messaging client.
package models

import (
	"strconv"
	"strings"
)

// Lead status values as written to the status column. Comparisons are
// case-insensitive; free text is tolerated and treated as "no status".
const (
	StatusSending   = "sending..."
	StatusMessaged  = "messaged"
	StatusCompleted = "completed"
	StatusReplied   = "replied"

	// StatusLegacyMessaged was written by the single-message pipeline that
	// predates drip sequences. Rows carrying it are never contacted again.
	StatusLegacyMessaged = "messaged ✅"
)

// DateLayout is the calendar-day format used for the last message date column.
const DateLayout = "2006-01-02"

// FirstDataRow is the sheet row of the first lead; row 1 holds the headers.
const FirstDataRow = 2

// Columns maps lead attributes to sheet header names.
type Columns struct {
	ProfileURL      string `yaml:"profile_url"`
	Status          string `yaml:"status"`
	MessageNumber   string `yaml:"message_number"`
	LastMessageDate string `yaml:"last_message_date"`
}

// DefaultColumns returns the header names used by the original lead sheet.
func DefaultColumns() Columns {
	return Columns{
		ProfileURL:      "INSTAGRAM URL",
		Status:          "Status",
		MessageNumber:   "Message Number",
		LastMessageDate: "Last Message Date",
	}
}

// Lead is one outreach candidate row.
type Lead struct {
	Row             int // 1-based sheet row; data starts at FirstDataRow
	ProfileURL      string
	Status          string
	MessageNumber   int
	LastMessageDate string // raw cell text; empty until the first confirmed send
}

// ParseLead builds a Lead from a raw row. A missing, unparsable or negative
// message number becomes 0.
func ParseLead(row int, fields map[string]string, cols Columns) Lead {
	return Lead{
		Row:             row,
		ProfileURL:      strings.TrimSpace(fields[cols.ProfileURL]),
		Status:          strings.TrimSpace(fields[cols.Status]),
		MessageNumber:   parseMessageNumber(fields[cols.MessageNumber]),
		LastMessageDate: strings.TrimSpace(fields[cols.LastMessageDate]),
	}
}

// ParseLeads converts ordered store rows into leads, numbering them from
// FirstDataRow.
func ParseLeads(rows []map[string]string, cols Columns) []Lead {
	leads := make([]Lead, 0, len(rows))
	for i, r := range rows {
		leads = append(leads, ParseLead(i+FirstDataRow, r, cols))
	}
	return leads
}

// NormalizedStatus returns the status lowercased and trimmed.
func (l Lead) NormalizedStatus() string {
	return strings.ToLower(strings.TrimSpace(l.Status))
}

// InFlight reports whether a previous run left the crash-safety marker on
// this row without recording an outcome.
func (l Lead) InFlight() bool {
	return l.NormalizedStatus() == StatusSending
}

// Username derives the account name from the profile URL.
func (l Lead) Username() string {
	return UsernameFromURL(l.ProfileURL)
}

// UsernameFromURL returns the final non-empty path segment of a profile URL
// after trimming trailing slashes. Query strings, fragments and a leading
// "@" are dropped. Returns "" when nothing usable remains.
func UsernameFromURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "/")
	if s == "" {
		return ""
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimPrefix(s, "@")
}

func parseMessageNumber(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Sheets may hand back numeric cells as "2.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		n = int(f)
	}
	if n < 0 {
		return 0
	}
	return n
}
