package instagram

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/zulandar/dripline/internal/models"
)

// ErrRejected marks a profile that exists but fails the outreach rules.
var ErrRejected = errors.New("instagram: candidate rejected")

// RejectionError names the rule a profile failed.
type RejectionError struct {
	Username string
	Reason   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("instagram: @%s rejected: %s", e.Username, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrRejected }

// Rules bound which profiles are worth messaging.
type Rules struct {
	MinFollowers  int
	MaxFollowers  int
	MinEngagement float64 // percent; 0 disables the check
	SamplePosts   int     // recent posts averaged for engagement
}

// DefaultRules returns 1k–50k followers and at least 0.5% engagement over
// the last 10 posts.
func DefaultRules() Rules {
	return Rules{
		MinFollowers:  1000,
		MaxFollowers:  50000,
		MinEngagement: 0.5,
		SamplePosts:   10,
	}
}

type profileResponse struct {
	Data struct {
		User *struct {
			ID             string `json:"id"`
			Username       string `json:"username"`
			Biography      string `json:"biography"`
			IsPrivate      bool   `json:"is_private"`
			EdgeFollowedBy struct {
				Count int `json:"count"`
			} `json:"edge_followed_by"`
			Timeline struct {
				Edges []struct {
					Node struct {
						Likes struct {
							Count int `json:"count"`
						} `json:"edge_liked_by"`
						Comments struct {
							Count int `json:"count"`
						} `json:"edge_media_to_comment"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

// GetValidUser fetches a public profile and checks it against the client's
// rules. A profile that fails a rule returns a *RejectionError.
func (c *Client) GetValidUser(ctx context.Context, username string) (models.Candidate, error) {
	if err := c.ensureLogin(); err != nil {
		return models.Candidate{}, err
	}

	var resp profileResponse
	path := "/api/v1/users/web_profile_info/?username=" + url.QueryEscape(username)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return models.Candidate{}, fmt.Errorf("instagram: profile @%s: %w", username, err)
	}
	u := resp.Data.User
	if u == nil {
		return models.Candidate{}, fmt.Errorf("instagram: profile @%s: not found", username)
	}

	var interactions []int
	for i, e := range u.Timeline.Edges {
		if i >= c.rules.SamplePosts {
			break
		}
		interactions = append(interactions, e.Node.Likes.Count+e.Node.Comments.Count)
	}

	cand := models.Candidate{
		ID:             u.ID,
		Username:       u.Username,
		Biography:      u.Biography,
		FollowerCount:  u.EdgeFollowedBy.Count,
		IsPrivate:      u.IsPrivate,
		EngagementRate: Engagement(interactions, u.EdgeFollowedBy.Count, c.rules.SamplePosts),
	}
	if cand.Username == "" {
		cand.Username = username
	}
	if err := c.rules.Check(cand); err != nil {
		return cand, err
	}
	return cand, nil
}

// Check returns a *RejectionError for the first rule cand fails.
func (r Rules) Check(cand models.Candidate) error {
	reject := func(format string, args ...interface{}) error {
		return &RejectionError{Username: cand.Username, Reason: fmt.Sprintf(format, args...)}
	}
	if cand.IsPrivate {
		return reject("private account")
	}
	if cand.FollowerCount < r.MinFollowers || cand.FollowerCount > r.MaxFollowers {
		return reject("%d followers outside [%d, %d]", cand.FollowerCount, r.MinFollowers, r.MaxFollowers)
	}
	if r.MinEngagement > 0 && cand.EngagementRate < r.MinEngagement {
		return reject("engagement %.2f%% below %.2f%%", cand.EngagementRate, r.MinEngagement)
	}
	return nil
}

// Engagement is the mean likes+comments per sampled post as a percentage of
// followers, rounded to two decimals. The mean is taken over sample posts
// even when fewer were returned, so sparse profiles score low.
func Engagement(interactions []int, followers, sample int) float64 {
	if followers <= 0 || sample <= 0 {
		return 0
	}
	total := 0
	for _, n := range interactions {
		total += n
	}
	avg := float64(total) / float64(sample)
	return math.Round(avg/float64(followers)*100*100) / 100
}
