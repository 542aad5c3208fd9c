package replies

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zulandar/dripline/internal/instagram"
	"github.com/zulandar/dripline/internal/sheets"
)

type fakeInbox struct {
	loginErr error
	threads  []instagram.Thread
	listErr  error
}

func (f *fakeInbox) Login(ctx context.Context) error { return f.loginErr }
func (f *fakeInbox) UnreadThreads(ctx context.Context) ([]instagram.Thread, error) {
	return f.threads, f.listErr
}

type failingStore struct {
	*sheets.Memory
	failRow int
}

func (s *failingStore) UpdateFields(ctx context.Context, row int, updates map[string]string) error {
	if row == s.failRow {
		return errors.New("quota exceeded")
	}
	return s.Memory.UpdateFields(ctx, row, updates)
}

func testStore() *sheets.Memory {
	return sheets.NewMemory(
		[]string{"INSTAGRAM URL", "Status", "Message Number", "Last Message Date"},
		[][]string{
			{"https://instagram.com/Alice/", "messaged", "1", "2026-03-01"},
			{"https://instagram.com/bob", "replied", "2", "2026-03-04"},
			{"https://instagram.com/carol", "completed", "4", "2026-03-10"},
			{"https://instagram.com/dave", "", "0", ""},
			{"", "", "", ""},
		},
	)
}

func newDetector(t *testing.T, inbox Inbox, store LeadStore) *Detector {
	t.Helper()
	d, err := New(Opts{
		Inbox:  inbox,
		Store:  store,
		RunID:  "test-run",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{Store: testStore()}); err == nil {
		t.Error("expected error without inbox")
	}
	if _, err := New(Opts{Inbox: &fakeInbox{}}); err == nil {
		t.Error("expected error without store")
	}
}

func TestRun_MarksReplied(t *testing.T) {
	store := testStore()
	inbox := &fakeInbox{threads: []instagram.Thread{
		{ID: "t1", Usernames: []string{"alice"}},
		{ID: "t2", Usernames: []string{"bob", "carol"}},
		{ID: "t3", Usernames: []string{"stranger"}},
	}}

	rep, err := newDetector(t, inbox, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Replied != 2 {
		t.Errorf("Replied = %d, want 2", rep.Replied)
	}
	if rep.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (bob already replied)", rep.Skipped)
	}

	tests := []struct {
		row  int
		want string
	}{
		{2, "replied"}, // Alice, case-insensitive match
		{3, "replied"}, // bob unchanged
		{4, "replied"}, // carol: completed → replied
		{5, ""},        // dave has not written back
	}
	for _, tt := range tests {
		if got := store.Row(tt.row)["Status"]; got != tt.want {
			t.Errorf("row %d Status = %q, want %q", tt.row, got, tt.want)
		}
	}
	if got := store.Row(2)["Message Number"]; got != "1" {
		t.Errorf("Message Number changed to %q", got)
	}
}

func TestRun_NoUnreadThreads(t *testing.T) {
	rep, err := newDetector(t, &fakeInbox{}, testStore()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Replied != 0 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRun_LoginFailed(t *testing.T) {
	_, err := newDetector(t, &fakeInbox{loginErr: errors.New("403")}, testStore()).Run(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Errorf("error = %v, want ErrLoginFailed", err)
	}
}

func TestRun_InboxError(t *testing.T) {
	rep, err := newDetector(t, &fakeInbox{listErr: errors.New("timeout")}, testStore()).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if rep.Err == "" {
		t.Error("report.Err not set")
	}
}

func TestRun_UpdateFailureContinues(t *testing.T) {
	store := &failingStore{Memory: testStore(), failRow: 2}
	inbox := &fakeInbox{threads: []instagram.Thread{{Usernames: []string{"alice", "dave"}}}}

	rep, err := newDetector(t, inbox, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 1 || rep.Replied != 1 {
		t.Errorf("report = %+v, want failed=1 replied=1", rep)
	}
	if got := store.Row(5)["Status"]; got != "replied" {
		t.Errorf("dave Status = %q, want replied", got)
	}
}
