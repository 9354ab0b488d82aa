package domain

import (
	"context"
	"time"
)

// Poster is the per-platform adapter: validate content against the
// platform's rules, dispatch it through the remote posting API, and
// describe the connected account.
type Poster interface {
	Platform() string
	Validate(content string, mediaURLs []string) ValidationResult
	Post(ctx context.Context, content string, mediaURLs []string, opts PostOptions) PostingOutcome
	AccountInfo(ctx context.Context) (AccountInfo, error)
}

// PostOptions carries platform-specific dispatch parameters.
type PostOptions struct {
	Subreddit string // reddit link/self posts
	BoardID   string // pinterest pins
	Link      string // pinterest destination link
}

// ValidationResult distinguishes hard errors (block posting) from soft
// warnings (reported, never blocking).
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AccountInfo describes the remote account bound to a platform.
type AccountInfo struct {
	Platform  string `json:"platform"`
	AccountID string `json:"account_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Connected bool   `json:"connected"`
}

// PostingOutcome is the structured result of one platform dispatch.
// Failures are data here, not errors: a failed outcome never aborts the
// batch it belongs to.
type PostingOutcome struct {
	Platform  string    `json:"platform"`
	Success   bool      `json:"success"`
	PostID    string    `json:"post_id,omitempty"`
	PostURL   string    `json:"post_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Simulated bool      `json:"simulated,omitempty"` // true for synthesized dev-mode successes
	Timestamp time.Time `json:"timestamp"`
}

// PostingResult aggregates per-platform outcomes for one confirm call.
type PostingResult struct {
	Outcomes  map[string]PostingOutcome `json:"outcomes"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Duration  time.Duration             `json:"duration"`
}

// AnySuccess reports whether at least one platform accepted the post.
func (r *PostingResult) AnySuccess() bool { return r.Succeeded > 0 }

// Add records one outcome and updates the tallies.
func (r *PostingResult) Add(o PostingOutcome) {
	if r.Outcomes == nil {
		r.Outcomes = make(map[string]PostingOutcome)
	}
	r.Outcomes[o.Platform] = o
	if o.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
}
