package outreach

import (
	"context"

	"github.com/zulandar/dripline/internal/models"
)

// LeadStore reads lead rows and writes fields back by header name.
type LeadStore interface {
	// Leads returns every data row, in sheet order, keyed by header.
	Leads(ctx context.Context) ([]map[string]string, error)
	// UpdateFields writes the given header→value pairs on a sheet row.
	// Unknown headers are ignored.
	UpdateFields(ctx context.Context, row int, updates map[string]string) error
}

// Messenger is the messaging platform.
type Messenger interface {
	Login(ctx context.Context) error
	// GetValidUser fetches a profile and applies the outreach criteria. Any
	// fetch failure or rejection is returned as an error.
	GetValidUser(ctx context.Context, username string) (models.Candidate, error)
	SendMessage(ctx context.Context, userID, text string) error
}

// Composer produces message text. It never fails: generation problems fall
// back to a default message.
type Composer interface {
	Compose(ctx context.Context, bio, template string) string
}

// Waiter spaces consecutive sends.
type Waiter interface {
	WaitContext(ctx context.Context)
}
