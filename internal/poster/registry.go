package poster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"autosocioly/internal/domain"
	"autosocioly/internal/getlate"
)

// Registry holds the registered platform adapters. Lookup is
// case-insensitive and alias-aware; dispatching to an unregistered
// platform yields a failed outcome rather than an error so batch posts
// degrade per-platform.
type Registry struct {
	mu      sync.RWMutex
	posters map[string]domain.Poster
	rules   *RuleSet
	logger  *slog.Logger
}

func NewRegistry(rules *RuleSet, logger *slog.Logger) *Registry {
	return &Registry{
		posters: make(map[string]domain.Poster),
		rules:   rules,
		logger:  logger,
	}
}

// NewDefaultRegistry registers an adapter for every platform in the
// rule set, all backed by the same posting client.
func NewDefaultRegistry(client *getlate.Client, logger *slog.Logger) (*Registry, error) {
	rules, err := LoadRules()
	if err != nil {
		return nil, err
	}
	r := NewRegistry(rules, logger)
	for _, name := range rules.Names() {
		rule := rules.Platforms[name]
		r.Register(newAPIPoster(name, rule, rules.Soft, client, logger))
	}
	return r, nil
}

// Register adds or replaces the adapter for a platform.
func (r *Registry) Register(p domain.Poster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posters[strings.ToLower(p.Platform())] = p
}

// Get resolves a platform name or alias to its adapter.
func (r *Registry) Get(platform string) (domain.Poster, bool) {
	key := strings.ToLower(strings.TrimSpace(platform))
	if r.rules != nil {
		if canonical, ok := r.rules.Resolve(key); ok {
			key = canonical
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posters[key]
	return p, ok
}

// Platforms lists registered platform names in stable order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.posters))
	for name := range r.posters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Requirements describes what a platform demands beyond plain text.
type Requirements struct {
	Platform          string   `json:"platform"`
	DisplayName       string   `json:"display_name"`
	Aliases           []string `json:"aliases,omitempty"`
	MaxLength         int      `json:"max_length"`
	MaxMedia          int      `json:"max_media"`
	MediaRequired     bool     `json:"media_required"`
	RequiresSubreddit bool     `json:"requires_subreddit"`
	RequiresBoard     bool     `json:"requires_board"`
}

// PlatformRequirements exposes the rule set for the operator API.
func (r *Registry) PlatformRequirements() []Requirements {
	if r.rules == nil {
		return nil
	}
	reqs := make([]Requirements, 0, len(r.rules.Platforms))
	for _, name := range r.rules.Names() {
		rule := r.rules.Platforms[name]
		reqs = append(reqs, Requirements{
			Platform:          name,
			DisplayName:       rule.DisplayName,
			Aliases:           append([]string(nil), rule.Aliases...),
			MaxLength:         rule.MaxLength,
			MaxMedia:          rule.MaxMedia,
			MediaRequired:     rule.MediaRequired,
			RequiresSubreddit: rule.RequiresSubreddit,
			RequiresBoard:     rule.RequiresBoard,
		})
	}
	return reqs
}

// Validate runs a platform's validation without posting.
func (r *Registry) Validate(platform, content string, mediaURLs []string) (domain.ValidationResult, error) {
	p, ok := r.Get(platform)
	if !ok {
		return domain.ValidationResult{}, fmt.Errorf("platform %q: %w", platform, domain.ErrNotFound)
	}
	return p.Validate(content, mediaURLs), nil
}

// PostAll dispatches one piece of content per platform concurrently and
// aggregates the outcomes. Unknown platforms become failed outcomes.
func (r *Registry) PostAll(ctx context.Context, contents map[string]string, mediaURLs []string, opts domain.PostOptions) *domain.PostingResult {
	start := time.Now()
	result := &domain.PostingResult{Outcomes: make(map[string]domain.PostingOutcome)}

	type dispatch struct {
		platform string
		poster   domain.Poster
		content  string
	}
	var pending []dispatch
	var mu sync.Mutex

	for platform, content := range contents {
		p, ok := r.Get(platform)
		if !ok {
			result.Add(domain.PostingOutcome{
				Platform:  platform,
				Error:     fmt.Sprintf("platform %q is not registered", platform),
				Timestamp: time.Now(),
			})
			r.logger.Warn("skipping unregistered platform", "platform", platform)
			continue
		}
		pending = append(pending, dispatch{platform: p.Platform(), poster: p, content: content})
	}

	var wg sync.WaitGroup
	for _, d := range pending {
		wg.Add(1)
		go func(d dispatch) {
			defer wg.Done()
			// An adapter panic must not take down the batch or lose
			// the other outcomes.
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("platform adapter panicked", "platform", d.platform, "panic", rec)
					mu.Lock()
					result.Add(domain.PostingOutcome{
						Platform:  d.platform,
						Error:     fmt.Sprintf("adapter panic: %v", rec),
						Timestamp: time.Now(),
					})
					mu.Unlock()
				}
			}()
			outcome := d.poster.Post(ctx, d.content, mediaURLs, opts)
			mu.Lock()
			result.Add(outcome)
			mu.Unlock()
		}(d)
	}
	wg.Wait()

	result.Duration = time.Since(start)
	r.logger.Info("batch dispatch complete",
		"platforms", len(contents),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}
