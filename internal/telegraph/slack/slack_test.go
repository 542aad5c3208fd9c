package slack

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/dripline/internal/telegraph"
)

// --- Mock Slack client ---

type mockSlackClient struct {
	mu          sync.Mutex
	authResp    *slackapi.AuthTestResponse
	authErr     error
	posted      []postedMessage
	postErr     error
	rateLimited int // number of PostMessage calls to reject with a rate limit
}

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

func newMockSlackClient() *mockSlackClient {
	return &mockSlackClient{
		authResp: &slackapi.AuthTestResponse{UserID: "U_BOT_123"},
	}
}

func (m *mockSlackClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	return m.authResp, m.authErr
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rateLimited > 0 {
		m.rateLimited--
		return "", "", &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	}
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	return channelID, "1234567890.123456", nil
}

func (m *mockSlackClient) postedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

func (m *mockSlackClient) lastPosted() postedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posted[len(m.posted)-1]
}

func newTestNotifier(t *testing.T) (*Notifier, *mockSlackClient) {
	t.Helper()
	client := newMockSlackClient()
	n, err := New(NotifierOpts{Client: client, ChannelID: "C_DEFAULT"})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return n, client
}

// --- New tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	_, err := New(NotifierOpts{ChannelID: "C1"})
	if err == nil {
		t.Fatal("expected error for missing bot token")
	}
}

func TestNew_WithBotToken(t *testing.T) {
	n, err := New(NotifierOpts{BotToken: "xoxb-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.client == nil {
		t.Fatal("expected real client to be created")
	}
}

// --- Verify tests ---

func TestVerify_Success(t *testing.T) {
	n, _ := newTestNotifier(t)
	if err := n.Verify(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.BotUserID() != "U_BOT_123" {
		t.Errorf("bot user ID = %q, want U_BOT_123", n.BotUserID())
	}
}

func TestVerify_AuthError(t *testing.T) {
	n, client := newTestNotifier(t)
	client.authErr = fmt.Errorf("invalid_auth")
	if err := n.Verify(context.Background()); err == nil {
		t.Fatal("expected auth error")
	}
}

// --- Send tests ---

func TestSend_SimpleText(t *testing.T) {
	n, client := newTestNotifier(t)

	err := n.Send(context.Background(), telegraph.OutboundMessage{
		ChannelID: "C1",
		Text:      "hello world",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.postedCount() != 1 {
		t.Fatalf("expected 1 posted message, got %d", client.postedCount())
	}
	if last := client.lastPosted(); last.channelID != "C1" {
		t.Errorf("channel = %q, want C1", last.channelID)
	}
}

func TestSend_DefaultChannel(t *testing.T) {
	n, client := newTestNotifier(t)

	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hello default"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last := client.lastPosted(); last.channelID != "C_DEFAULT" {
		t.Errorf("channel = %q, want C_DEFAULT", last.channelID)
	}
}

func TestSend_NoChannel(t *testing.T) {
	n, _ := New(NotifierOpts{Client: newMockSlackClient()})
	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "no channel"}); err == nil {
		t.Fatal("expected error for no channel")
	}
}

func TestSend_WithEvents(t *testing.T) {
	n, client := newTestNotifier(t)

	err := n.Send(context.Background(), telegraph.OutboundMessage{
		Text: "outreach run: sent=3",
		Events: []telegraph.FormattedEvent{
			{
				Title:    "Outreach run finished",
				Body:     "**Sent**: 3",
				Color:    telegraph.ColorSuccess,
				Severity: "success",
				Fields: []telegraph.Field{
					{Name: "Sent", Value: "3", Short: true},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.postedCount() != 1 {
		t.Fatal("expected 1 posted message")
	}
	if got := len(client.lastPosted().options); got != 2 {
		t.Errorf("options = %d, want attachments + fallback text", got)
	}
}

func TestSend_PostError(t *testing.T) {
	n, client := newTestNotifier(t)
	client.postErr = fmt.Errorf("channel_not_found")

	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hello"}); err == nil {
		t.Fatal("expected post error")
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	n, client := newTestNotifier(t)
	client.rateLimited = 2

	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.postedCount() != 1 {
		t.Errorf("expected 1 posted message after retries, got %d", client.postedCount())
	}
}

// --- buildMessageOptions tests ---

func TestBuildMessageOptions_TextOnly(t *testing.T) {
	opts := buildMessageOptions(telegraph.OutboundMessage{Text: "hello"})
	if len(opts) != 1 {
		t.Errorf("expected 1 option, got %d", len(opts))
	}
}

func TestBuildMessageOptions_EventsWithoutText(t *testing.T) {
	opts := buildMessageOptions(telegraph.OutboundMessage{
		Events: []telegraph.FormattedEvent{{Title: "x"}},
	})
	if len(opts) != 1 {
		t.Errorf("expected 1 option (attachments only), got %d", len(opts))
	}
}

func TestEventToAttachment(t *testing.T) {
	evt := telegraph.FormattedEvent{
		Title: "Outreach run finished",
		Body:  "details",
		Color: "#36a64f",
		Fields: []telegraph.Field{
			{Name: "Sent", Value: "3", Short: true},
			{Name: "Run", Value: "abc", Short: false},
		},
	}
	att := eventToAttachment(evt)
	if att.Title != "Outreach run finished" {
		t.Errorf("title = %q", att.Title)
	}
	if att.Text != "details" {
		t.Errorf("text = %q", att.Text)
	}
	if att.Color != "#36a64f" {
		t.Errorf("color = %q", att.Color)
	}
	if att.Fallback != "Outreach run finished" {
		t.Errorf("fallback = %q", att.Fallback)
	}
	if len(att.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(att.Fields))
	}
	if !att.Fields[0].Short || att.Fields[1].Short {
		t.Errorf("short flags = %v/%v", att.Fields[0].Short, att.Fields[1].Short)
	}
}

// --- retryOnRateLimit tests ---

func TestRetryOnRateLimit_Success(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("some other error")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("should not retry non-rate-limit errors, calls = %d", calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := retryOnRateLimit(context.Background(), func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Millisecond}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// maxRetries+1 total calls (initial + retries).
	if calls != maxRetries+1 {
		t.Errorf("expected %d calls, got %d", maxRetries+1, calls)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryOnRateLimit(ctx, func() error {
		calls++
		return &slackapi.RateLimitedError{RetryAfter: time.Second}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before context cancel, got %d", calls)
	}
}
