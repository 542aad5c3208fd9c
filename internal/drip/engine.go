// Package drip decides, for a single lead, whether the next message in its
// drip sequence is due and what its outcome should be recorded as. It does
// no I/O.
package drip

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zulandar/dripline/internal/models"
)

// ErrCorruptDate is returned when a lead carries a last message date that
// cannot be parsed. The row's state is untrustworthy and needs an operator.
var ErrCorruptDate = errors.New("drip: corrupt last message date")

// Engine holds the drip schedule parameters.
type Engine struct {
	delayDays   int
	maxSequence int
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock used to compute "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. delayDays is the minimum number of whole calendar
// days between successive messages; maxSequence is the number of messages
// in the sequence.
func New(delayDays, maxSequence int, opts ...Option) *Engine {
	e := &Engine{
		delayDays:   delayDays,
		maxSequence: maxSequence,
		now:         time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DelayDays returns the configured spacing in days.
func (e *Engine) DelayDays() int { return e.delayDays }

// MaxSequence returns the configured sequence length.
func (e *Engine) MaxSequence() int { return e.maxSequence }

// ShouldSend reports whether the lead's next message is due.
func (e *Engine) ShouldSend(lead models.Lead) (bool, error) {
	switch lead.NormalizedStatus() {
	case models.StatusReplied, models.StatusCompleted:
		return false, nil
	}
	if lead.MessageNumber >= e.maxSequence {
		return false, nil
	}
	if lead.MessageNumber == 0 {
		return true, nil
	}
	if lead.LastMessageDate == "" {
		return true, nil
	}

	days, err := e.daysSince(lead.LastMessageDate)
	if err != nil {
		return false, err
	}
	return days >= e.delayDays, nil
}

// NextMessageNumber returns the sequence position of the message to send next.
func (e *Engine) NextMessageNumber(lead models.Lead) int {
	return lead.MessageNumber + 1
}

// MarkCompleted reports whether sending message n finishes the sequence.
func (e *Engine) MarkCompleted(n int) bool {
	return n >= e.maxSequence
}

// Today returns the current calendar date in the persisted layout.
func (e *Engine) Today() string {
	return e.now().Format(models.DateLayout)
}

// daysSince counts whole calendar days between the given date and today in
// the clock's location. Dates in the future yield a negative count.
func (e *Engine) daysSince(raw string) (int, error) {
	now := e.now()
	last, err := time.ParseInLocation(models.DateLayout, raw, now.Location())
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorruptDate, raw)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	// Round absorbs the 23h/25h days around DST changes.
	return int(math.Round(today.Sub(last).Hours() / 24)), nil
}
