package drip

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/dripline/internal/models"
)

var fixedNow = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func newTestEngine(delayDays, maxSequence int) *Engine {
	return New(delayDays, maxSequence, WithClock(func() time.Time { return fixedNow }))
}

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format(models.DateLayout)
}

func TestShouldSend_TerminalStatuses(t *testing.T) {
	e := newTestEngine(3, 4)
	for _, status := range []string{"replied", "Replied", "COMPLETED", " completed "} {
		for _, num := range []int{0, 1, 3} {
			lead := models.Lead{Status: status, MessageNumber: num, LastMessageDate: daysAgo(30)}
			ok, err := e.ShouldSend(lead)
			if err != nil {
				t.Fatalf("status %q: unexpected error: %v", status, err)
			}
			if ok {
				t.Errorf("ShouldSend(status=%q, num=%d) = true, want false", status, num)
			}
		}
	}
}

func TestShouldSend_SequenceExhausted(t *testing.T) {
	e := newTestEngine(3, 4)
	for _, num := range []int{4, 5, 99} {
		ok, err := e.ShouldSend(models.Lead{MessageNumber: num, LastMessageDate: daysAgo(100)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Errorf("ShouldSend(num=%d) = true, want false", num)
		}
	}
}

func TestShouldSend_FirstMessageIgnoresDate(t *testing.T) {
	e := newTestEngine(3, 4)
	for _, date := range []string{"", daysAgo(0), "garbage"} {
		ok, err := e.ShouldSend(models.Lead{MessageNumber: 0, LastMessageDate: date})
		if err != nil {
			t.Fatalf("date %q: unexpected error: %v", date, err)
		}
		if !ok {
			t.Errorf("ShouldSend(num=0, date=%q) = false, want true", date)
		}
	}
}

func TestShouldSend_MissingDateIsDue(t *testing.T) {
	e := newTestEngine(3, 4)
	ok, err := e.ShouldSend(models.Lead{Status: "messaged", MessageNumber: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("ShouldSend with missing date = false, want true")
	}
}

func TestShouldSend_DelayBoundary(t *testing.T) {
	e := newTestEngine(3, 4)
	tests := []struct {
		ago  int
		want bool
	}{
		{ago: 0, want: false},
		{ago: 2, want: false},
		{ago: 3, want: true},
		{ago: 10, want: true},
		{ago: -1, want: false},
	}
	for _, tt := range tests {
		lead := models.Lead{Status: "messaged", MessageNumber: 1, LastMessageDate: daysAgo(tt.ago)}
		got, err := e.ShouldSend(lead)
		if err != nil {
			t.Fatalf("ago=%d: unexpected error: %v", tt.ago, err)
		}
		if got != tt.want {
			t.Errorf("ShouldSend(%d days ago) = %v, want %v", tt.ago, got, tt.want)
		}
	}
}

func TestShouldSend_BoundaryAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-03-08 is the spring-forward day in New York.
	now := time.Date(2026, 3, 10, 0, 30, 0, 0, loc)
	e := New(3, 4, WithClock(func() time.Time { return now }))

	ok, err := e.ShouldSend(models.Lead{MessageNumber: 1, LastMessageDate: "2026-03-07"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("3 calendar days across DST should be due")
	}
}

func TestShouldSend_CorruptDate(t *testing.T) {
	e := newTestEngine(3, 4)
	_, err := e.ShouldSend(models.Lead{MessageNumber: 1, LastMessageDate: "15/03/2026"})
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if !errors.Is(err, ErrCorruptDate) {
		t.Errorf("error = %v, want ErrCorruptDate", err)
	}
}

func TestNextMessageNumber(t *testing.T) {
	e := newTestEngine(3, 4)
	for _, tt := range []struct {
		lead models.Lead
		want int
	}{
		{models.Lead{MessageNumber: 0}, 1},
		{models.Lead{MessageNumber: 3, Status: "replied"}, 4},
		{models.Lead{MessageNumber: 7, Status: "completed"}, 8},
	} {
		if got := e.NextMessageNumber(tt.lead); got != tt.want {
			t.Errorf("NextMessageNumber(%d) = %d, want %d", tt.lead.MessageNumber, got, tt.want)
		}
	}
}

func TestMarkCompleted(t *testing.T) {
	e := newTestEngine(3, 4)
	for n, want := range map[int]bool{1: false, 3: false, 4: true, 5: true} {
		if got := e.MarkCompleted(n); got != want {
			t.Errorf("MarkCompleted(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestToday(t *testing.T) {
	e := newTestEngine(3, 4)
	if got := e.Today(); got != "2026-03-15" {
		t.Errorf("Today() = %q, want %q", got, "2026-03-15")
	}
}
