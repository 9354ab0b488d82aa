// Package drafting turns a marketing instruction into per-platform
// captions and an optional image, with a deterministic fallback when
// the generative provider misbehaves.
package drafting

import (
	"encoding/json"
	"strings"

	"autosocioly/internal/domain"
)

// modelDraft is the JSON shape the text model is asked to produce.
type modelDraft struct {
	Caption        string   `json:"caption"`
	Hashtags       []string `json:"hashtags"`
	CallToAction   string   `json:"call_to_action"`
	EngagementHint string   `json:"engagement_hint"`
}

// ParseDraft extracts a draft from raw model output. Models wrap JSON
// in prose and code fences, so we locate the outermost object by brace
// matching rather than trusting the whole payload.
func ParseDraft(raw string) (*domain.TextDraft, bool) {
	candidate := raw
	if start, end, ok := findJSONBounds(raw); ok {
		candidate = raw[start : end+1]
	}

	var md modelDraft
	if err := json.Unmarshal([]byte(candidate), &md); err != nil {
		return nil, false
	}
	if strings.TrimSpace(md.Caption) == "" {
		return nil, false
	}
	return &domain.TextDraft{
		Caption:        strings.TrimSpace(md.Caption),
		Hashtags:       normalizeHashtags(md.Hashtags),
		CallToAction:   strings.TrimSpace(md.CallToAction),
		EngagementHint: strings.TrimSpace(md.EngagementHint),
	}, true
}

// findJSONBounds locates the first balanced top-level JSON object,
// tracking string literals so braces inside values don't confuse the
// match.
func findJSONBounds(s string) (start, end int, ok bool) {
	start = strings.IndexByte(s, '{')
	if start < 0 {
		return 0, 0, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return start, i, true
				}
			}
		}
	}
	return 0, 0, false
}

// FallbackDraft synthesizes a usable draft directly from the request
// when the model output is unparseable or the provider is down. It is
// intentionally plain: real copy comes from the model, this keeps the
// workflow alive.
func FallbackDraft(req domain.TextDraftRequest) *domain.TextDraft {
	caption := strings.TrimSpace(req.Topic)
	if caption == "" {
		caption = "New update from our team"
	}
	caption = stripHashtagTokens(caption)
	if req.MaxLength > 0 && len(caption) > req.MaxLength {
		caption = truncateAtWord(caption, req.MaxLength)
	}
	return &domain.TextDraft{
		Caption:      caption,
		Hashtags:     fallbackHashtags(req),
		CallToAction: "Learn more at the link in our bio.",
	}
}

// fallbackHashtags derives tags from topic words, topped up with
// generic marketing tags to reach the requested count.
func fallbackHashtags(req domain.TextDraftRequest) []string {
	count := req.HashtagCount
	if count <= 0 {
		count = 3
	}
	if count > 10 {
		count = 10
	}

	var tags []string
	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimLeft(tag, "#"))
		if tag == "" || seen[tag] || len(tags) >= count {
			return
		}
		seen[tag] = true
		tags = append(tags, "#"+tag)
	}

	for _, word := range strings.Fields(req.Topic) {
		cleaned := strings.Map(keepAlnum, word)
		if len(cleaned) >= 4 {
			add(cleaned)
		}
	}
	for _, generic := range []string{"marketing", "socialmedia", "business", "growth", "community"} {
		add(generic)
	}
	return tags
}

func keepAlnum(r rune) rune {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// stripHashtagTokens removes inline #tokens so the fallback caption
// doesn't duplicate its own hashtag list.
func stripHashtagTokens(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if strings.HasPrefix(w, "#") {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:")
}

func normalizeHashtags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
