package main

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/dripline/internal/drip"
	"github.com/zulandar/dripline/internal/models"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	engine := drip.New(3, 4, drip.WithClock(func() time.Time { return now }))
	lead := func(row int, status string, n int, date string) models.Lead {
		return models.Lead{Row: row, ProfileURL: "https://instagram.com/x", Status: status, MessageNumber: n, LastMessageDate: date}
	}
	leads := []models.Lead{
		lead(2, "", 0, ""),
		lead(3, "messaged", 1, "2026-03-01"),
		lead(4, "messaged", 1, "2026-03-09"),
		lead(5, "Replied", 2, "2026-03-01"),
		lead(6, "sending...", 1, "2026-03-01"),
		lead(7, "messaged", 2, "last week"),
		lead(8, "completed", 4, "2026-02-01"),
		{Row: 9},
	}

	s := summarize(leads, engine)

	if s.Total != 7 {
		t.Errorf("Total = %d, want 7", s.Total)
	}
	if s.Due != 3 {
		t.Errorf("Due = %d, want 3 (rows 2, 3, 6)", s.Due)
	}
	wantStatus := map[string]int{"new": 1, "messaged": 3, "replied": 1, "sending...": 1, "completed": 1}
	for st, n := range wantStatus {
		if s.ByStatus[st] != n {
			t.Errorf("ByStatus[%q] = %d, want %d", st, s.ByStatus[st], n)
		}
	}
	if s.ByPosition[1] != 3 {
		t.Errorf("ByPosition[1] = %d, want 3", s.ByPosition[1])
	}
	if len(s.InFlight) != 1 || s.InFlight[0] != 6 {
		t.Errorf("InFlight = %v, want [6]", s.InFlight)
	}
	if len(s.Corrupt) != 1 || s.Corrupt[0] != 7 {
		t.Errorf("Corrupt = %v, want [7]", s.Corrupt)
	}
	if s.MaxSequence != 4 || s.DelayDays != 3 {
		t.Errorf("sequence = %d messages / %d days, want 4 / 3", s.MaxSequence, s.DelayDays)
	}
	if s.Today != "2026-03-10" {
		t.Errorf("Today = %q, want %q", s.Today, "2026-03-10")
	}
}

func TestStatusCmd(t *testing.T) {
	clearSecrets(t)
	_, srv := newFakeInstagram(t)
	cfgPath, _ := writeFixture(t, srv.URL, leadCSV, "", "")

	out, err := execCmd(t, "status", "-c", cfgPath)
	if err != nil {
		t.Fatalf("status failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Leads: 3", "Sequence: 4 messages, 3 days apart", "new", "replied", "Due now: 2", "0/4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
