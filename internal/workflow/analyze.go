// Package workflow owns the session lifecycle: one instruction in,
// drafts out, operator revision loops, and the final confirm dispatch.
package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"autosocioly/internal/domain"
)

const (
	defaultTone         = "engaging"
	defaultHashtagCount = 10
)

var (
	hashtagHintRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+hashtags?\b`)
	audienceHintRe = regexp.MustCompile(`(?i)\b(?:for|targeting|aimed at)\s+([a-z][a-z0-9 ,&-]{2,40}?)(?:[.!?,;]|$)`)
	toneHintRe     = regexp.MustCompile(`(?i)\b(casual|professional|playful|urgent|friendly|formal|engaging|humorous)\s+(?:tone|voice|style)\b`)
)

// Analyze turns a raw operator instruction into the drafting inputs.
// It never fails: anything it cannot extract degrades to a default and
// flips the Degraded flag.
func Analyze(instruction, tone string) domain.InstructionAnalysis {
	analysis := domain.InstructionAnalysis{
		Topic:        strings.TrimSpace(instruction),
		Tone:         strings.TrimSpace(tone),
		HashtagCount: defaultHashtagCount,
	}

	if analysis.Topic == "" {
		analysis.Topic = instruction
		analysis.Degraded = true
	}
	if analysis.Tone == "" {
		if m := toneHintRe.FindStringSubmatch(instruction); m != nil {
			analysis.Tone = strings.ToLower(m[1])
		} else {
			analysis.Tone = defaultTone
			analysis.Degraded = true
		}
	}
	if m := hashtagHintRe.FindStringSubmatch(instruction); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 30 {
			analysis.HashtagCount = n
		}
	}
	if m := audienceHintRe.FindStringSubmatch(instruction); m != nil {
		analysis.Audience = strings.TrimSpace(m[1])
	}
	return analysis
}
