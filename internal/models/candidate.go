package models

// Candidate is a validated public account fetched from the messaging platform.
type Candidate struct {
	ID             string // platform user id (pk), the DM recipient
	Username       string
	Biography      string
	FollowerCount  int
	IsPrivate      bool
	EngagementRate float64 // percent, rounded to two decimals
}
