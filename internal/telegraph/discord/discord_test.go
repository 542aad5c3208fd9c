package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/dripline/internal/telegraph"
)

// --- Mock Discord session ---

type mockSession struct {
	mu           sync.Mutex
	user         *discordgo.User
	userErr      error
	sentMessages []sentMessage
	sendErr      error
	rateLimited  int // number of sends to reject with 429
}

type sentMessage struct {
	channelID string
	data      *discordgo.MessageSend
}

func newMockSession() *mockSession {
	return &mockSession{user: &discordgo.User{ID: "BOT_1"}}
}

func (m *mockSession) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	return m.user, m.userErr
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rateLimited > 0 {
		m.rateLimited--
		return nil, &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	}
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sentMessages = append(m.sentMessages, sentMessage{channelID: channelID, data: data})
	return &discordgo.Message{ID: "msg-1", ChannelID: channelID}, nil
}

func (m *mockSession) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sentMessages)
}

func (m *mockSession) lastSent() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentMessages[len(m.sentMessages)-1]
}

func newTestNotifier(t *testing.T) (*Notifier, *mockSession) {
	t.Helper()
	sess := newMockSession()
	n, err := New(NotifierOpts{
		Session:   sess,
		ChannelID: "CH_DEFAULT",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	n.baseBackoff = time.Millisecond
	return n, sess
}

// --- New tests ---

func TestNew_RequiresBotToken(t *testing.T) {
	if _, err := New(NotifierOpts{}); err == nil {
		t.Fatal("expected error for missing bot token")
	}
}

func TestNew_WithBotToken(t *testing.T) {
	n, err := New(NotifierOpts{BotToken: "test-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.sess == nil {
		t.Fatal("expected real session to be created")
	}
}

// --- Verify tests ---

func TestVerify_Success(t *testing.T) {
	n, _ := newTestNotifier(t)
	if err := n.Verify(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.BotUserID() != "BOT_1" {
		t.Errorf("bot user ID = %q, want BOT_1", n.BotUserID())
	}
}

func TestVerify_Error(t *testing.T) {
	n, sess := newTestNotifier(t)
	sess.userErr = fmt.Errorf("401 unauthorized")
	if err := n.Verify(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- Send tests ---

func TestSend_SimpleText(t *testing.T) {
	n, sess := newTestNotifier(t)

	err := n.Send(context.Background(), telegraph.OutboundMessage{ChannelID: "CH1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.sentCount() != 1 {
		t.Fatalf("expected 1 sent message, got %d", sess.sentCount())
	}
	last := sess.lastSent()
	if last.channelID != "CH1" {
		t.Errorf("channel = %q, want CH1", last.channelID)
	}
	if last.data.Content != "hello" {
		t.Errorf("content = %q, want hello", last.data.Content)
	}
}

func TestSend_DefaultChannel(t *testing.T) {
	n, sess := newTestNotifier(t)
	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.lastSent().channelID != "CH_DEFAULT" {
		t.Errorf("channel = %q, want CH_DEFAULT", sess.lastSent().channelID)
	}
}

func TestSend_NoChannel(t *testing.T) {
	n, _ := New(NotifierOpts{Session: newMockSession()})
	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hi"}); err == nil {
		t.Fatal("expected error for no channel")
	}
}

func TestSend_WithEvents(t *testing.T) {
	n, sess := newTestNotifier(t)

	err := n.Send(context.Background(), telegraph.OutboundMessage{
		Text: "fallback",
		Events: []telegraph.FormattedEvent{
			{
				Title: "2 new replies",
				Color: telegraph.ColorSuccess,
				Fields: []telegraph.Field{
					{Name: "Marked replied", Value: "2", Short: true},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := sess.lastSent().data
	if len(data.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(data.Embeds))
	}
	embed := data.Embeds[0]
	if embed.Title != "2 new replies" {
		t.Errorf("title = %q", embed.Title)
	}
	if embed.Color != 0x36a64f {
		t.Errorf("color = %x, want 36a64f", embed.Color)
	}
	if len(embed.Fields) != 1 || !embed.Fields[0].Inline {
		t.Errorf("fields = %+v", embed.Fields)
	}
}

func TestSend_PostError(t *testing.T) {
	n, sess := newTestNotifier(t)
	sess.sendErr = fmt.Errorf("missing access")
	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hi"}); err == nil {
		t.Fatal("expected send error")
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	n, sess := newTestNotifier(t)
	sess.rateLimited = 2
	if err := n.Send(context.Background(), telegraph.OutboundMessage{Text: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", sess.sentCount())
	}
}

// --- parseHexColor tests ---

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"#36a64f", 0x36a64f},
		{"36a64f", 0x36a64f},
		{"#ffffff", 0xffffff},
		{"#000000", 0x000000},
		{"#FF0000", 0xff0000},
		{"#fff", 0xfff},
		{"", 0},
	}
	for _, tt := range tests {
		got := parseHexColor(tt.input)
		if got != tt.want {
			t.Errorf("parseHexColor(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// --- retryOnRateLimit tests ---

func TestRetryOnRateLimit_NonRateLimitError(t *testing.T) {
	n, _ := newTestNotifier(t)
	calls := 0
	err := n.retryOnRateLimit(context.Background(), func() error {
		calls++
		return fmt.Errorf("other")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryOnRateLimit_ExhaustsRetries(t *testing.T) {
	n, _ := newTestNotifier(t)
	calls := 0
	err := n.retryOnRateLimit(context.Background(), func() error {
		calls++
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestRetryOnRateLimit_RespectsContext(t *testing.T) {
	n, _ := newTestNotifier(t)
	n.baseBackoff = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.retryOnRateLimit(ctx, func() error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: 429}}
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
