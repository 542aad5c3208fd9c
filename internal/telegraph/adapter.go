// Package telegraph posts Dripline run summaries to chat platforms (Slack,
// Discord, etc.).
package telegraph

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier is the interface that platform-specific implementations must
// satisfy.
type Notifier interface {
	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel (empty uses the notifier default)
	Text      string           // message text (platform-native formatting)
	Events    []FormattedEvent // structured event attachments
}

// FormattedEvent represents a run outcome formatted for display in chat.
type FormattedEvent struct {
	Title    string  // event headline (e.g. "Outreach run finished")
	Body     string  // detail text
	Severity string  // "info", "warning", "error", "success"
	Color    string  // sidebar color hint (e.g. "#36a64f" for success)
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// Fanout sends each message to every configured notifier. Failures are
// logged and do not stop delivery to the rest; the joined error is returned.
type Fanout struct {
	notifiers []Notifier
	log       *slog.Logger
}

// NewFanout creates a Fanout. Nil notifiers are dropped.
func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fanout{log: logger}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}
	return f
}

// Len returns the number of notifiers.
func (f *Fanout) Len() int { return len(f.notifiers) }

// Send implements Notifier.
func (f *Fanout) Send(ctx context.Context, msg OutboundMessage) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Send(ctx, msg); err != nil {
			f.log.Warn("notification failed", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
