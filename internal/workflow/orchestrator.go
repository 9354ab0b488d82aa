package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autosocioly/internal/bus"
	"autosocioly/internal/domain"
	"autosocioly/internal/poster"
)

// ErrSessionClosed rejects operations against a session that already
// reached a terminal state.
var ErrSessionClosed = errors.New("session is in a terminal state")

// Drafter produces platform drafts and image artifacts.
type Drafter interface {
	DraftFor(ctx context.Context, req domain.TextDraftRequest) *domain.Draft
	DraftImage(ctx context.Context, req domain.ImageDraftRequest) (*domain.MediaArtifact, error)
}

// Exposer maps local artifacts to public URLs.
type Exposer interface {
	Expose(ctx context.Context, localPath string) (string, error)
	Forget(localPath string)
}

// Dispatcher fans content out to the platform adapters.
type Dispatcher interface {
	PostAll(ctx context.Context, contents map[string]string, mediaURLs []string, opts domain.PostOptions) *domain.PostingResult
	PlatformRequirements() []poster.Requirements
}

// Orchestrator owns the in-memory session table and is the only
// component allowed to mutate sessions. Operations on the same session
// are serialized by a per-session lock; operations on different
// sessions run freely in parallel.
type Orchestrator struct {
	drafter    Drafter
	exposer    Exposer
	dispatcher Dispatcher
	events     *bus.Bus
	logger     *slog.Logger

	postTimeout time.Duration
	maxLen      map[string]int
	aliases     map[string]string // platform alias -> canonical name

	mu       sync.RWMutex
	sessions map[string]*domain.Session
	locks    map[string]*sync.RWMutex
}

type Config struct {
	Drafter     Drafter
	Exposer     Exposer
	Dispatcher  Dispatcher
	Events      *bus.Bus
	Logger      *slog.Logger
	PostTimeout time.Duration // per-confirm bound on the dispatch batch
}

func New(cfg Config) *Orchestrator {
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 2 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	maxLen := make(map[string]int)
	aliases := make(map[string]string)
	if cfg.Dispatcher != nil {
		for _, r := range cfg.Dispatcher.PlatformRequirements() {
			maxLen[r.Platform] = r.MaxLength
			aliases[r.Platform] = r.Platform
			for _, a := range r.Aliases {
				maxLen[a] = r.MaxLength
				aliases[a] = r.Platform
			}
		}
	}
	return &Orchestrator{
		drafter:     cfg.Drafter,
		exposer:     cfg.Exposer,
		dispatcher:  cfg.Dispatcher,
		events:      cfg.Events,
		logger:      cfg.Logger,
		postTimeout: cfg.PostTimeout,
		maxLen:      maxLen,
		aliases:     aliases,
		sessions:    make(map[string]*domain.Session),
		locks:       make(map[string]*sync.RWMutex),
	}
}

// StartRequest begins one drafting session.
type StartRequest struct {
	Instruction string   `json:"instruction"`
	Platforms   []string `json:"platforms"`
	Tone        string   `json:"tone,omitempty"`
	WantImage   bool     `json:"want_image,omitempty"`
	ImageStyle  string   `json:"image_style,omitempty"`
}

// Start analyzes the instruction, drafts content for every requested
// platform, optionally drafts and exposes one shared image, and parks
// the session awaiting operator confirmation. Drafting and image
// failures degrade; Start itself fails only on an empty request.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*domain.Session, error) {
	if strings.TrimSpace(req.Instruction) == "" {
		return nil, &domain.ValidationError{Platform: "request", Errors: []string{"instruction is required"}}
	}
	if len(req.Platforms) == 0 {
		return nil, &domain.ValidationError{Platform: "request", Errors: []string{"at least one platform is required"}}
	}

	analysis := Analyze(req.Instruction, req.Tone)
	now := time.Now()
	session := &domain.Session{
		ID:           uuid.NewString(),
		Instruction:  req.Instruction,
		Analysis:     analysis,
		Tone:         analysis.Tone,
		Drafts:       make(map[string]*domain.Draft),
		Status:       domain.StatusCreated,
		CreatedAt:    now,
		LastModified: now,
	}
	o.publish(bus.EventSessionCreated, session.ID, nil)

	for _, platform := range normalizePlatforms(req.Platforms) {
		draft := o.draftPlatform(ctx, session, platform, "")
		session.Drafts[platform] = draft
	}

	if req.WantImage {
		o.attachImage(ctx, session, domain.ImageDraftRequest{
			Topic:    analysis.Topic,
			Platform: firstPlatform(session),
			Style:    req.ImageStyle,
		})
	}

	session.Status = domain.StatusAwaitingConfirmation

	o.mu.Lock()
	o.sessions[session.ID] = session
	o.locks[session.ID] = &sync.RWMutex{}
	o.mu.Unlock()

	o.publish(bus.EventSessionAwaiting, session.ID, map[string]any{"platforms": session.Platforms()})
	o.logger.Info("session started",
		"session_id", session.ID,
		"platforms", len(session.Drafts),
		"has_image", session.Image != nil,
	)
	return snapshot(session), nil
}

// ModifyRequest revises parts of an awaiting session. An empty
// Platforms list targets every draft; a non-empty list limits the
// revision to those platforms.
type ModifyRequest struct {
	Platforms           []string `json:"platforms,omitempty"`
	CaptionInstructions string   `json:"caption_instructions,omitempty"`
	HashtagInstructions string   `json:"hashtag_instructions,omitempty"`
	ImageInstructions   string   `json:"image_instructions,omitempty"`
	RegenerateText      bool     `json:"regenerate_text,omitempty"`
	RegenerateImage     bool     `json:"regenerate_image,omitempty"`
}

// Modify appends a modification record and re-drafts only the
// sub-resources the request names. The session stays in
// awaiting_confirmation.
func (o *Orchestrator) Modify(ctx context.Context, id string, req ModifyRequest) (*domain.Session, error) {
	session, unlock, err := o.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if session.Status.Terminal() {
		return nil, fmt.Errorf("modify %s: %w", id, ErrSessionClosed)
	}

	rec := domain.ModificationRecord{
		Timestamp:           time.Now(),
		CaptionInstructions: req.CaptionInstructions,
		HashtagInstructions: req.HashtagInstructions,
		ImageInstructions:   req.ImageInstructions,
		RegenerateText:      req.RegenerateText,
		RegenerateImage:     req.RegenerateImage,
	}
	session.History = append(session.History, rec)

	textWork := rec.TouchesText()
	hashtagWork := rec.HashtagInstructions != "" || rec.RegenerateText

	if textWork || hashtagWork {
		guidance := joinInstructions(rec.CaptionInstructions, rec.HashtagInstructions)
		for _, platform := range o.targetPlatforms(session, req.Platforms) {
			current, ok := session.Drafts[platform]
			if !ok {
				continue
			}
			fresh := o.draftPlatform(ctx, session, platform, guidance)
			if textWork {
				current.SetCaption(fresh.Caption)
				current.CallToAction = fresh.CallToAction
				current.Source = fresh.Source
			}
			if hashtagWork {
				current.SetHashtags(fresh.Hashtags)
			}
		}
	}

	if rec.TouchesImage() {
		if session.Image != nil {
			o.exposer.Forget(session.Image.LocalPath)
		}
		topic := session.Analysis.Topic
		if rec.ImageInstructions != "" {
			topic = topic + ". " + rec.ImageInstructions
		}
		o.attachImage(ctx, session, domain.ImageDraftRequest{
			Topic:    topic,
			Platform: firstPlatform(session),
		})
	}

	session.LastModified = time.Now()
	o.publish(bus.EventSessionModified, session.ID, map[string]any{
		"text":  textWork,
		"image": rec.TouchesImage(),
	})
	return snapshot(session), nil
}

// Confirm either cancels the session or dispatches the current draft
// set to every platform. With confirmed=false no platform is ever
// contacted. With confirmed=true the session lands in posted when at
// least one platform accepted, failed otherwise; the full per-platform
// breakdown is recorded either way.
func (o *Orchestrator) Confirm(ctx context.Context, id string, confirmed bool, opts domain.PostOptions) (*domain.Session, error) {
	session, unlock, err := o.acquire(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if session.Status.Terminal() {
		return nil, fmt.Errorf("confirm %s: %w", id, ErrSessionClosed)
	}

	if !confirmed {
		session.Status = domain.StatusCancelled
		session.LastModified = time.Now()
		o.publish(bus.EventSessionCancelled, session.ID, nil)
		o.logger.Info("session cancelled", "session_id", session.ID)
		return snapshot(session), nil
	}

	contents := make(map[string]string, len(session.Drafts))
	for platform, draft := range session.Drafts {
		contents[platform] = formatContent(draft)
	}
	var mediaURLs []string
	if session.Image != nil && session.Image.Accessible && session.Image.PublicURL != "" {
		mediaURLs = []string{session.Image.PublicURL}
	}

	postCtx, cancel := context.WithTimeout(ctx, o.postTimeout)
	defer cancel()
	result := o.dispatcher.PostAll(postCtx, contents, mediaURLs, opts)

	session.Result = result
	session.LastModified = time.Now()
	for _, outcome := range result.Outcomes {
		if outcome.Simulated {
			o.publish(bus.EventPostSimulated, session.ID, map[string]any{"platform": outcome.Platform})
		}
	}

	payload := map[string]any{
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"duration_s": result.Duration.Seconds(),
	}
	if result.AnySuccess() {
		session.Status = domain.StatusPosted
		o.publish(bus.EventSessionPosted, session.ID, payload)
	} else {
		session.Status = domain.StatusFailed
		o.publish(bus.EventSessionFailed, session.ID, payload)
	}
	o.logger.Info("session confirmed",
		"session_id", session.ID,
		"status", session.Status,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return snapshot(session), nil
}

// GetStatus returns a point-in-time copy of the session. The snapshot
// is taken under the session's read lock so it never observes a modify
// or confirm mid-flight.
func (o *Orchestrator) GetStatus(id string) (*domain.Session, error) {
	o.mu.RLock()
	session, ok := o.sessions[id]
	lock := o.locks[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	lock.RLock()
	defer lock.RUnlock()
	return snapshot(session), nil
}

// ListSessions returns copies of all live sessions, oldest first. Each
// snapshot is taken under that session's read lock.
func (o *Orchestrator) ListSessions() []*domain.Session {
	type entry struct {
		session *domain.Session
		lock    *sync.RWMutex
	}
	o.mu.RLock()
	entries := make([]entry, 0, len(o.sessions))
	for id, s := range o.sessions {
		entries = append(entries, entry{session: s, lock: o.locks[id]})
	}
	o.mu.RUnlock()

	out := make([]*domain.Session, 0, len(entries))
	for _, e := range entries {
		e.lock.RLock()
		out = append(out, snapshot(e.session))
		e.lock.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Cleanup removes a session. Removing an unknown id is a no-op.
func (o *Orchestrator) Cleanup(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	delete(o.locks, id)
	o.mu.Unlock()
}

// acquire pins a session under its per-session lock. The returned
// unlock must be called once the mutation is complete.
func (o *Orchestrator) acquire(id string) (*domain.Session, func(), error) {
	o.mu.RLock()
	session, ok := o.sessions[id]
	lock := o.locks[id]
	o.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	lock.Lock()

	// The session may have been cleaned up while we waited.
	o.mu.RLock()
	_, ok = o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		lock.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return session, lock.Unlock, nil
}

func (o *Orchestrator) draftPlatform(ctx context.Context, session *domain.Session, platform, guidance string) *domain.Draft {
	draft := o.drafter.DraftFor(ctx, domain.TextDraftRequest{
		Topic:        session.Analysis.Topic,
		Platform:     platform,
		Tone:         session.Tone,
		Context:      guidance,
		MaxLength:    o.maxLen[platform],
		HashtagCount: session.Analysis.HashtagCount,
	})
	if draft.Source == "fallback" {
		o.publish(bus.EventDraftFallback, session.ID, map[string]any{"platform": platform})
	}
	return draft
}

// attachImage drafts and exposes the shared image. Every failure here
// is absorbed: the session continues without a public image.
func (o *Orchestrator) attachImage(ctx context.Context, session *domain.Session, req domain.ImageDraftRequest) {
	artifact, err := o.drafter.DraftImage(ctx, req)
	if err != nil {
		o.logger.Warn("image draft failed, continuing without image",
			"session_id", session.ID, "err", err)
		return
	}
	session.Image = artifact

	url, err := o.exposer.Expose(ctx, artifact.LocalPath)
	if err != nil {
		o.logger.Warn("image exposure failed, image stays local",
			"session_id", session.ID, "path", artifact.LocalPath, "err", err)
		return
	}
	artifact.PublicURL = url
	artifact.Accessible = true
}

// targetPlatforms maps a requested platform list onto the session's
// draft keys. Names are compared through the dispatcher's aliases so a
// draft keyed "x" is still targeted by a request naming "twitter".
func (o *Orchestrator) targetPlatforms(session *domain.Session, requested []string) []string {
	keys := session.Platforms()
	if len(requested) == 0 {
		return keys
	}

	canonicalKeys := make(map[string]string, len(keys)) // canonical -> draft key
	for _, key := range keys {
		canonicalKeys[o.canonical(key)] = key
	}

	var out []string
	seen := make(map[string]struct{}, len(requested))
	for _, p := range normalizePlatforms(requested) {
		key, ok := canonicalKeys[o.canonical(p)]
		if !ok {
			o.logger.Warn("modify names a platform with no draft",
				"session_id", session.ID, "platform", p)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func (o *Orchestrator) canonical(platform string) string {
	if c, ok := o.aliases[platform]; ok {
		return c
	}
	return platform
}

func (o *Orchestrator) publish(eventType, sessionID string, payload map[string]any) {
	if o.events == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["session_id"] = sessionID
	o.events.Publish(bus.Event{Type: eventType, Source: "workflow", Payload: payload})
}

// formatContent assembles the wire content for one draft: caption,
// call to action, then hashtags.
func formatContent(d *domain.Draft) string {
	var b strings.Builder
	b.WriteString(d.Caption)
	if d.CallToAction != "" && !strings.Contains(d.Caption, d.CallToAction) {
		b.WriteString("\n\n")
		b.WriteString(d.CallToAction)
	}
	if len(d.Hashtags) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(d.Hashtags, " "))
	}
	return b.String()
}

func joinInstructions(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}

func normalizePlatforms(platforms []string) []string {
	seen := make(map[string]struct{}, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func firstPlatform(session *domain.Session) string {
	platforms := session.Platforms()
	sort.Strings(platforms)
	if len(platforms) == 0 {
		return ""
	}
	return platforms[0]
}

// snapshot copies a session so callers outside the orchestrator never
// share mutable state with it.
func snapshot(s *domain.Session) *domain.Session {
	out := *s
	out.Drafts = make(map[string]*domain.Draft, len(s.Drafts))
	for platform, d := range s.Drafts {
		copied := *d
		copied.Hashtags = append([]string(nil), d.Hashtags...)
		out.Drafts[platform] = &copied
	}
	out.History = append([]domain.ModificationRecord(nil), s.History...)
	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}
	if s.Result != nil {
		res := *s.Result
		res.Outcomes = make(map[string]domain.PostingOutcome, len(s.Result.Outcomes))
		for k, v := range s.Result.Outcomes {
			res.Outcomes[k] = v
		}
		out.Result = &res
	}
	return &out
}
