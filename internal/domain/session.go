package domain

import "time"

// SessionStatus tracks where a session sits in the confirmation workflow.
type SessionStatus string

const (
	StatusCreated              SessionStatus = "created"
	StatusAwaitingConfirmation SessionStatus = "awaiting_confirmation"
	StatusPosted               SessionStatus = "posted"
	StatusCancelled            SessionStatus = "cancelled"
	StatusFailed               SessionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusPosted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Session is one instruction's journey from drafting to posting or
// cancellation. Owned exclusively by the workflow orchestrator; it lives
// in memory only and dies with cleanup or a terminal transition.
type Session struct {
	ID           string                `json:"id"`
	Instruction  string                `json:"instruction"`
	Analysis     InstructionAnalysis   `json:"analysis"`
	Tone         string                `json:"tone"`
	Drafts       map[string]*Draft     `json:"drafts"` // keyed by canonical platform name
	Image        *MediaArtifact        `json:"image,omitempty"`
	Status       SessionStatus         `json:"status"`
	History      []ModificationRecord  `json:"history"`
	Result       *PostingResult        `json:"result,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	LastModified time.Time             `json:"last_modified"`
}

// Platforms returns the platform keys of the draft set in map order.
func (s *Session) Platforms() []string {
	out := make([]string, 0, len(s.Drafts))
	for p := range s.Drafts {
		out = append(out, p)
	}
	return out
}

// InstructionAnalysis is the parsed shape of the operator's raw
// instruction. Analysis is best-effort: a failed parse degrades to
// defaults and never blocks session creation.
type InstructionAnalysis struct {
	Topic        string `json:"topic"`
	Audience     string `json:"audience,omitempty"`
	Tone         string `json:"tone"`
	HashtagCount int    `json:"hashtag_count"`
	Degraded     bool   `json:"degraded"` // true when defaults were substituted
}

// Draft is the per-platform content package. One per (session, platform).
// CharCount mirrors len(Caption) and must be refreshed on every caption
// mutation — SetCaption is the only sanctioned way to change it.
type Draft struct {
	Platform     string   `json:"platform"`
	Caption      string   `json:"caption"`
	Hashtags     []string `json:"hashtags"`
	CallToAction string   `json:"call_to_action"`
	CharCount    int      `json:"char_count"`
	Source       string   `json:"source"` // "parsed" | "fallback"
}

// SetCaption replaces the caption and keeps the live character count in
// sync.
func (d *Draft) SetCaption(caption string) {
	d.Caption = caption
	d.CharCount = len(caption)
}

// SetHashtags replaces the hashtag list, dropping duplicates while
// preserving first-seen order.
func (d *Draft) SetHashtags(tags []string) {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	d.Hashtags = out
}

// MediaArtifact is a generated image on local disk, plus its public
// address once the exposure bridge has handled it.
type MediaArtifact struct {
	LocalPath  string `json:"local_path"`
	Prompt     string `json:"prompt,omitempty"`
	Style      string `json:"style,omitempty"`
	PublicURL  string `json:"public_url,omitempty"`
	Accessible bool   `json:"accessible"`
}

// ModificationRecord is one revision request. Append-only: records are
// never mutated after they land in Session.History.
type ModificationRecord struct {
	Timestamp           time.Time `json:"timestamp"`
	CaptionInstructions string    `json:"caption_instructions,omitempty"`
	HashtagInstructions string    `json:"hashtag_instructions,omitempty"`
	ImageInstructions   string    `json:"image_instructions,omitempty"`
	RegenerateText      bool      `json:"regenerate_text"`
	RegenerateImage     bool      `json:"regenerate_image"`
}

// TouchesText reports whether the record asks for any text work.
func (m ModificationRecord) TouchesText() bool {
	return m.CaptionInstructions != "" || m.RegenerateText
}

// TouchesImage reports whether the record asks for any image work.
func (m ModificationRecord) TouchesImage() bool {
	return m.ImageInstructions != "" || m.RegenerateImage
}
