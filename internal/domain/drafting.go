package domain

import "context"

// DraftingProvider is the generative backend that produces captions,
// hashtags, and image artifacts. Implementations may return malformed
// output; callers run it through the fallback extractor so a usable
// draft always comes out.
type DraftingProvider interface {
	DraftText(ctx context.Context, req TextDraftRequest) (*TextDraft, error)
	DraftImage(ctx context.Context, req ImageDraftRequest) (*MediaArtifact, error)
	Name() string
	Healthy(ctx context.Context) error
}

type TextDraftRequest struct {
	Topic        string
	Platform     string
	Tone         string
	Context      string // revision instructions, empty on first draft
	MaxLength    int
	HashtagCount int
}

// TextDraft is the structured text package for one platform.
type TextDraft struct {
	Caption        string   `json:"caption"`
	Hashtags       []string `json:"hashtags"`
	CallToAction   string   `json:"call_to_action"`
	EngagementHint string   `json:"engagement_hint,omitempty"`
}

type ImageDraftRequest struct {
	Topic       string
	Platform    string
	Style       string
	OverlayText string
}
