// Package instagram talks to the Instagram private web API with a browser
// session cookie: session check, profile lookup and validation, direct
// message send and unread inbox listing.
package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the web API origin.
	DefaultBaseURL = "https://i.instagram.com"
	// webAppID is the X-IG-App-ID the web client sends.
	webAppID = "936619743392459"

	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrNotLoggedIn is returned by calls made before a successful Login.
var ErrNotLoggedIn = errors.New("instagram: not logged in")

// APIError is a non-2xx or status "fail" response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("instagram: api error %d: %s", e.StatusCode, e.Message)
}

// Client is an authenticated Instagram web API client.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	sessionID string
	testMode  bool
	rules     Rules
	log       *slog.Logger

	mu       sync.Mutex
	loggedIn bool
	userID   string
	username string
}

// Opts holds parameters for creating a Client.
type Opts struct {
	SessionID string
	BaseURL   string // default DefaultBaseURL
	TestMode  bool   // log instead of sending direct messages
	Rules     Rules  // zero value uses DefaultRules
	Timeout   time.Duration
	Logger    *slog.Logger
	// For testing: inject an HTTP client (e.g. from httptest).
	HTTPClient *http.Client
}

// New creates a Client. No request is made until Login.
func New(opts Opts) (*Client, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("instagram: session id is required")
	}
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("instagram: invalid base url %q", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	if hc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		hc.Jar = jar
	}
	hc.Jar.SetCookies(base, []*http.Cookie{{Name: "sessionid", Value: opts.SessionID, Path: "/"}})

	rules := opts.Rules
	if rules == (Rules{}) {
		rules = DefaultRules()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		http:      hc,
		baseURL:   base,
		sessionID: opts.SessionID,
		testMode:  opts.TestMode,
		rules:     rules,
		log:       log,
	}, nil
}

// Login verifies the session cookie against the current-user endpoint.
func (c *Client) Login(ctx context.Context) error {
	var resp struct {
		User struct {
			PK       json.Number `json:"pk"`
			Username string      `json:"username"`
		} `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts/current_user/", nil, &resp); err != nil {
		return fmt.Errorf("instagram: login: %w", err)
	}
	if resp.User.PK == "" {
		return fmt.Errorf("instagram: login: session not accepted")
	}

	c.mu.Lock()
	c.loggedIn = true
	c.userID = resp.User.PK.String()
	c.username = resp.User.Username
	c.mu.Unlock()

	c.log.Info("instagram login successful", "username", resp.User.Username)
	return nil
}

// Username returns the logged-in account's username.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) ensureLogin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

// SendMessage sends text as a direct message to the user with the given id.
// In test mode the message is logged and not sent.
func (c *Client) SendMessage(ctx context.Context, userID, text string) error {
	if c.testMode {
		c.log.Info("[TEST MODE] direct message not sent", "user_id", userID, "text", text)
		return nil
	}
	if err := c.ensureLogin(); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(userID, 10, 64); err != nil {
		return fmt.Errorf("instagram: invalid user id %q", userID)
	}

	form := url.Values{}
	form.Set("recipient_users", "[["+userID+"]]")
	form.Set("text", text)
	form.Set("action", "send_item")
	form.Set("client_context", uuid.NewString())

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/direct_v2/threads/broadcast/text/", form, &resp); err != nil {
		return fmt.Errorf("instagram: send message to %s: %w", userID, err)
	}
	c.log.Info("direct message sent", "user_id", userID)
	return nil
}

// Thread is one direct-message conversation.
type Thread struct {
	ID        string
	Usernames []string
}

// UnreadThreads lists inbox threads with unread messages.
func (c *Client) UnreadThreads(ctx context.Context) ([]Thread, error) {
	if err := c.ensureLogin(); err != nil {
		return nil, err
	}
	var resp struct {
		Inbox struct {
			Threads []struct {
				ThreadID string `json:"thread_id"`
				Users    []struct {
					Username string `json:"username"`
				} `json:"users"`
			} `json:"threads"`
		} `json:"inbox"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/direct_v2/inbox/?selected_filter=unread", nil, &resp); err != nil {
		return nil, fmt.Errorf("instagram: unread threads: %w", err)
	}

	threads := make([]Thread, 0, len(resp.Inbox.Threads))
	for _, t := range resp.Inbox.Threads {
		th := Thread{ID: t.ThreadID}
		for _, u := range t.Users {
			if u.Username != "" {
				th.Usernames = append(th.Usernames, u.Username)
			}
		}
		threads = append(threads, th)
	}
	return threads, nil
}

// do performs one API call. form, when non-nil, is sent as a POST body with
// the CSRF token taken from the cookie jar.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	target := c.baseURL.ResolveReference(ref)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("X-IG-App-ID", webAppID)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if tok := c.csrfToken(); tok != "" {
			req.Header.Set("X-CSRFToken", tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(data)}
	}

	var status struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &status); err == nil && status.Status == "fail" {
		return &APIError{StatusCode: resp.StatusCode, Message: status.Message}
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == "csrftoken" {
			return ck.Value
		}
	}
	return ""
}

func apiMessage(data []byte) string {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &m) == nil && m.Message != "" {
		return m.Message
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
