package poster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"autosocioly/internal/domain"
	"autosocioly/internal/getlate"
)

// promoWords count toward the promotional-tone warning threshold.
var promoWords = []string{
	"buy", "sale", "discount", "offer", "deal", "free", "limited",
	"order now", "shop now", "click here",
}

// apiPoster publishes to one platform through the GetLate client. All
// platform adapters share this implementation; behavior differences
// live entirely in the rule set.
type apiPoster struct {
	platform string
	rule     PlatformRule
	soft     SoftRules
	client   *getlate.Client
	logger   *slog.Logger
}

func newAPIPoster(platform string, rule PlatformRule, soft SoftRules, client *getlate.Client, logger *slog.Logger) *apiPoster {
	return &apiPoster{
		platform: platform,
		rule:     rule,
		soft:     soft,
		client:   client,
		logger:   logger.With("platform", platform),
	}
}

func (p *apiPoster) Platform() string { return p.platform }

// Validate applies the platform's hard limits and the shared soft
// checks. Hard violations invalidate the result; soft violations only
// add warnings.
func (p *apiPoster) Validate(content string, mediaURLs []string) domain.ValidationResult {
	res := domain.ValidationResult{Valid: true}

	length := utf8.RuneCountInString(content)
	if length > p.rule.MaxLength {
		res.Valid = false
		res.Errors = append(res.Errors,
			fmt.Sprintf("content is %d characters, %s allows at most %d", length, p.rule.DisplayName, p.rule.MaxLength))
	}
	if p.rule.MediaRequired && len(mediaURLs) == 0 {
		res.Valid = false
		res.Errors = append(res.Errors,
			fmt.Sprintf("%s requires at least one media item", p.rule.DisplayName))
	}
	if p.rule.MaxMedia > 0 && len(mediaURLs) > p.rule.MaxMedia {
		res.Valid = false
		res.Errors = append(res.Errors,
			fmt.Sprintf("%d media items exceed the %s limit of %d", len(mediaURLs), p.rule.DisplayName, p.rule.MaxMedia))
	}

	res.Warnings = append(res.Warnings, p.softWarnings(content, length)...)
	return res
}

func (p *apiPoster) softWarnings(content string, length int) []string {
	var warnings []string
	if length > 0 && length < p.soft.MinLength {
		warnings = append(warnings, "content is very short and may underperform")
	}
	if ratio := promoRatio(content); ratio > p.soft.MaxPromoRatio {
		warnings = append(warnings, "content reads as heavily promotional")
	}
	if ratio := capsRatio(content); ratio > p.soft.MaxCapsRatio {
		warnings = append(warnings, "content is mostly capitalized")
	}
	return warnings
}

// Post validates, then dispatches through the posting API. Validation
// failures and transport errors both come back as failed outcomes so a
// multi-platform batch can aggregate them.
func (p *apiPoster) Post(ctx context.Context, content string, mediaURLs []string, opts PostOptions) domain.PostingOutcome {
	outcome := domain.PostingOutcome{Platform: p.platform, Timestamp: time.Now()}

	if v := p.Validate(content, mediaURLs); !v.Valid {
		outcome.Error = (&domain.ValidationError{Platform: p.platform, Errors: v.Errors}).Error()
		p.logger.Warn("post rejected by validation", "errors", v.Errors)
		return outcome
	}
	if p.rule.RequiresSubreddit && opts.Subreddit == "" {
		outcome.Error = (&domain.ValidationError{Platform: p.platform, Errors: []string{"subreddit is required"}}).Error()
		return outcome
	}
	if p.rule.RequiresBoard && opts.BoardID == "" {
		outcome.Error = (&domain.ValidationError{Platform: p.platform, Errors: []string{"board id is required"}}).Error()
		return outcome
	}

	req := getlate.PostRequest{
		Content:   content,
		Platforms: []getlate.PlatformConfig{{Platform: p.platform, Data: p.platformData(opts)}},
	}
	for _, u := range mediaURLs {
		req.MediaItems = append(req.MediaItems, getlate.MediaItem{Type: "image", URL: u})
	}

	resp, err := p.client.CreatePost(ctx, req)
	if err != nil {
		outcome.Error = err.Error()
		p.logger.Error("post dispatch failed", "err", err)
		return outcome
	}

	outcome.Success = true
	outcome.PostID = resp.ID
	outcome.PostURL = resp.URL
	outcome.Simulated = resp.Simulated
	p.logger.Info("post published", "post_id", resp.ID, "simulated", resp.Simulated)
	return outcome
}

func (p *apiPoster) platformData(opts PostOptions) map[string]any {
	data := make(map[string]any)
	if p.rule.RequiresSubreddit && opts.Subreddit != "" {
		data["subreddit"] = opts.Subreddit
	}
	if p.rule.RequiresBoard && opts.BoardID != "" {
		data["boardId"] = opts.BoardID
		if opts.Link != "" {
			data["link"] = opts.Link
		}
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// AccountInfo reports the connected account for this platform, if any.
func (p *apiPoster) AccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	accounts, err := p.client.GetAccounts(ctx)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Platform, p.platform) {
			return domain.AccountInfo{
				Platform:  p.platform,
				AccountID: a.ID,
				Username:  a.Username,
				Connected: a.Connected,
			}, nil
		}
	}
	return domain.AccountInfo{Platform: p.platform, Connected: false}, nil
}

// PostOptions aliases the domain type for callers inside this package.
type PostOptions = domain.PostOptions

func promoRatio(content string) float64 {
	lower := strings.ToLower(content)
	words := strings.Fields(lower)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range promoWords {
		hits += strings.Count(lower, w)
	}
	return float64(hits) / float64(len(words))
}

func capsRatio(content string) float64 {
	var letters, upper int
	for _, r := range content {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
