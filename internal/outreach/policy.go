package outreach

import (
	"fmt"
	"strings"

	"github.com/zulandar/dripline/internal/models"
)

// skipStatuses are never contacted again. The legacy value comes from rows
// written by the single-message pipeline.
var skipStatuses = map[string]bool{
	models.StatusCompleted:      true,
	models.StatusReplied:        true,
	models.StatusLegacyMessaged: true,
}

// ShouldSkip is the cheap eligibility filter applied before the drip engine.
// Skipped leads are not counted in run metrics.
func ShouldSkip(lead models.Lead) bool {
	if lead.ProfileURL == "" {
		return true
	}
	return skipStatuses[lead.NormalizedStatus()]
}

// InFlightPolicy decides what happens to rows a previous run left at the
// "sending..." checkpoint.
type InFlightPolicy string

const (
	// InFlightRetry treats the row like any other eligible lead.
	InFlightRetry InFlightPolicy = "retry"
	// InFlightHold leaves the row for an operator and counts it skipped.
	InFlightHold InFlightPolicy = "hold"
)

// ParseInFlightPolicy validates a configured policy name. Empty means retry.
func ParseInFlightPolicy(s string) (InFlightPolicy, error) {
	switch p := InFlightPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", InFlightRetry:
		return InFlightRetry, nil
	case InFlightHold:
		return InFlightHold, nil
	default:
		return "", fmt.Errorf("outreach: unknown in-flight policy %q (want retry or hold)", s)
	}
}
