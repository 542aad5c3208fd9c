// Package compose personalises outreach messages from a profile biography and
// a sequence template using an LLM, falling back to a fixed default message.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes caps generated messages; longer output is discarded.
const MaxMessageRunes = 1000

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// niches maps a niche to bio keywords, checked in order.
var niches = []struct {
	name     string
	keywords []string
}{
	{"business", []string{"founder", "ceo", "startup", "entrepreneur"}},
	{"marketing", []string{"marketing", "branding", "seo", "ads"}},
	{"creator", []string{"content", "creator", "youtube", "tiktok"}},
	{"tech", []string{"developer", "software", "ai", "app"}},
}

// Niche classifies a biography by keyword. Matching is substring and
// case-insensitive; the first niche with a hit wins.
func Niche(bio string) string {
	bio = strings.ToLower(bio)
	if bio == "" {
		return "default"
	}
	for _, n := range niches {
		for _, kw := range n.keywords {
			if strings.Contains(bio, kw) {
				return n.name
			}
		}
	}
	return "default"
}

// Composer turns a bio and template into a message. It never fails: any
// generator problem yields the default message.
type Composer struct {
	gen            Generator
	defaultMessage string
	log            *slog.Logger
}

// New creates a Composer. gen may be nil, in which case every message is the
// default.
func New(gen Generator, defaultMessage string, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, defaultMessage: defaultMessage, log: logger}
}

// Compose returns a personalised message, or the default when template is
// empty, no generator is configured, or generation fails.
func (c *Composer) Compose(ctx context.Context, bio, template string) string {
	if strings.TrimSpace(template) == "" || c.gen == nil {
		return c.defaultMessage
	}

	text, err := c.gen.Generate(ctx, BuildPrompt(bio, template))
	if err != nil {
		c.log.Warn("message generation failed, using default", "error", err)
		return c.defaultMessage
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.log.Warn("message generation returned empty text, using default")
		return c.defaultMessage
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageRunes {
		c.log.Warn("generated message too long, using default", "runes", n)
		return c.defaultMessage
	}
	return text
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(bio, template string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bio: %s\n", bio)
	fmt.Fprintf(&b, "Niche: %s\n", Niche(bio))
	b.WriteString("Write a friendly Instagram DM for this user, similar in tone and format to:\n")
	b.WriteString(template)
	b.WriteString("\nReply with the message text only.")
	return b.String()
}
