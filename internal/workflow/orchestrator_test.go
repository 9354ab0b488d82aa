package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autosocioly/internal/domain"
	"autosocioly/internal/poster"
)

type fakeDrafter struct {
	mu       sync.Mutex
	calls    int
	captions map[string]string // platform -> caption override
	imageErr error
}

func (f *fakeDrafter) DraftFor(_ context.Context, req domain.TextDraftRequest) *domain.Draft {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	caption := f.captions[req.Platform]
	if caption == "" {
		caption = fmt.Sprintf("%s post %d about %s", req.Platform, call, req.Topic)
	}
	if req.MaxLength > 0 && len(caption) > req.MaxLength {
		caption = caption[:req.MaxLength]
	}
	d := &domain.Draft{Platform: req.Platform, CallToAction: "Check it out", Source: "parsed"}
	d.SetCaption(caption)
	d.SetHashtags([]string{fmt.Sprintf("#tag%d", call), "#brand"})
	return d
}

func (f *fakeDrafter) DraftImage(context.Context, domain.ImageDraftRequest) (*domain.MediaArtifact, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return &domain.MediaArtifact{LocalPath: "/tmp/post.png"}, nil
}

type fakeExposer struct {
	err   error
	calls atomic.Int32
}

func (f *fakeExposer) Expose(_ context.Context, path string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "https://example.dev/static/uploads/post.png", nil
}

func (f *fakeExposer) Forget(string) {}

type fakeDispatcher struct {
	mu       sync.Mutex
	batches  []map[string]string
	media    [][]string
	failAll  bool
	simulate bool
	reqs     []poster.Requirements // overrides PlatformRequirements when set
}

func (f *fakeDispatcher) PostAll(_ context.Context, contents map[string]string, mediaURLs []string, _ domain.PostOptions) *domain.PostingResult {
	f.mu.Lock()
	f.batches = append(f.batches, contents)
	f.media = append(f.media, mediaURLs)
	f.mu.Unlock()

	result := &domain.PostingResult{Outcomes: make(map[string]domain.PostingOutcome)}
	for platform := range contents {
		result.Add(domain.PostingOutcome{
			Platform:  platform,
			Success:   !f.failAll,
			PostID:    "p-" + platform,
			Simulated: f.simulate,
			Error:     errIf(f.failAll, "server_error (HTTP 500)"),
			Timestamp: time.Now(),
		})
	}
	result.Duration = time.Millisecond
	return result
}

func errIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

func (f *fakeDispatcher) PlatformRequirements() []poster.Requirements {
	if f.reqs != nil {
		return f.reqs
	}
	return []poster.Requirements{
		{Platform: "twitter", MaxLength: 280},
		{Platform: "instagram", MaxLength: 2200, MediaRequired: true},
		{Platform: "linkedin", MaxLength: 3000},
	}
}

func (f *fakeDispatcher) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newTestOrchestrator(drafter *fakeDrafter, exposer *fakeExposer, dispatcher *fakeDispatcher) *Orchestrator {
	return New(Config{
		Drafter:    drafter,
		Exposer:    exposer,
		Dispatcher: dispatcher,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestStart_SingleDraftAwaiting(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})

	s, err := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
		Tone:        "casual",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status != domain.StatusAwaitingConfirmation {
		t.Errorf("status = %s", s.Status)
	}
	if len(s.Drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(s.Drafts))
	}
	d := s.Drafts["twitter"]
	if d == nil {
		t.Fatal("no twitter draft")
	}
	if d.CharCount > 280 {
		t.Errorf("caption length %d exceeds platform limit", d.CharCount)
	}
	if d.CharCount != len(d.Caption) {
		t.Errorf("char count %d != len(caption) %d", d.CharCount, len(d.Caption))
	}
	if s.Tone != "casual" {
		t.Errorf("tone = %q", s.Tone)
	}
}

func TestStart_RejectsEmptyRequest(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	if _, err := o.Start(context.Background(), StartRequest{Platforms: []string{"twitter"}}); err == nil {
		t.Error("empty instruction accepted")
	}
	if _, err := o.Start(context.Background(), StartRequest{Instruction: "x"}); err == nil {
		t.Error("empty platform list accepted")
	}
}

func TestStart_ImageFailureIsolated(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{imageErr: errors.New("quota")}, &fakeExposer{}, &fakeDispatcher{})

	s, err := o.Start(context.Background(), StartRequest{
		Instruction: "launch teaser",
		Platforms:   []string{"twitter"},
		WantImage:   true,
	})
	if err != nil {
		t.Fatalf("image failure aborted start: %v", err)
	}
	if s.Image != nil {
		t.Error("failed image still attached")
	}
	if s.Status != domain.StatusAwaitingConfirmation {
		t.Errorf("status = %s", s.Status)
	}
}

func TestStart_ExposureFailureKeepsLocalImage(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{err: errors.New("tunnel down")}, &fakeDispatcher{})

	s, err := o.Start(context.Background(), StartRequest{
		Instruction: "launch teaser",
		Platforms:   []string{"twitter"},
		WantImage:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Image == nil {
		t.Fatal("image dropped on exposure failure")
	}
	if s.Image.Accessible || s.Image.PublicURL != "" {
		t.Errorf("unexposed image marked accessible: %+v", s.Image)
	}
}

func TestModify_HashtagsOnlyKeepsCaption(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})
	before := s.Drafts["twitter"]

	got, err := o.Modify(context.Background(), s.ID, ModifyRequest{
		HashtagInstructions: "make them shorter",
	})
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	after := got.Drafts["twitter"]
	if after.Caption != before.Caption {
		t.Errorf("caption changed: %q -> %q", before.Caption, after.Caption)
	}
	if equalStrings(after.Hashtags, before.Hashtags) {
		t.Error("hashtags not replaced")
	}
	if len(got.History) != 1 {
		t.Fatalf("history = %d records", len(got.History))
	}
	if got.History[0].HashtagInstructions != "make them shorter" {
		t.Errorf("record = %+v", got.History[0])
	}
	if got.Status != domain.StatusAwaitingConfirmation {
		t.Errorf("status = %s", got.Status)
	}
}

func TestModify_OnlyNamedPlatforms(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter", "linkedin"},
	})
	liBefore := s.Drafts["linkedin"]

	got, err := o.Modify(context.Background(), s.ID, ModifyRequest{
		Platforms:           []string{"twitter"},
		CaptionInstructions: "punchier",
	})
	if err != nil {
		t.Fatal(err)
	}
	liAfter := got.Drafts["linkedin"]
	if liAfter.Caption != liBefore.Caption || !equalStrings(liAfter.Hashtags, liBefore.Hashtags) {
		t.Error("modify touched a platform it did not name")
	}
	if got.Drafts["twitter"].Caption == s.Drafts["twitter"].Caption {
		t.Error("named platform not re-drafted")
	}
}

func TestModify_ResolvesPlatformAlias(t *testing.T) {
	dispatcher := &fakeDispatcher{reqs: []poster.Requirements{
		{Platform: "x", Aliases: []string{"twitter"}, MaxLength: 280},
		{Platform: "linkedin", MaxLength: 3000},
	}}
	drafter := &fakeDrafter{}
	o := newTestOrchestrator(drafter, &fakeExposer{}, dispatcher)
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"x", "linkedin"},
	})
	liBefore := s.Drafts["linkedin"]

	// The alias and its canonical name target the same draft exactly once.
	got, err := o.Modify(context.Background(), s.ID, ModifyRequest{
		Platforms:           []string{"twitter", "x"},
		CaptionInstructions: "punchier",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Drafts["x"].Caption == s.Drafts["x"].Caption {
		t.Error("aliased platform not re-drafted")
	}
	if got.Drafts["linkedin"].Caption != liBefore.Caption {
		t.Error("modify touched a platform it did not name")
	}
	drafter.mu.Lock()
	calls := drafter.calls
	drafter.mu.Unlock()
	if calls != 3 { // two from Start, one from Modify
		t.Errorf("drafter calls = %d, want 3", calls)
	}
}

func TestModify_UnknownSession(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	_, err := o.Modify(context.Background(), "nope", ModifyRequest{RegenerateText: true})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConfirm_CancelNeverDispatches(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, dispatcher)
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})

	got, err := o.Confirm(context.Background(), s.ID, false, domain.PostOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s", got.Status)
	}
	if dispatcher.batchCount() != 0 {
		t.Error("cancel contacted the dispatcher")
	}

	// Terminal state rejects further operations.
	if _, err := o.Confirm(context.Background(), s.ID, true, domain.PostOptions{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("confirm after cancel: %v", err)
	}
	if _, err := o.Modify(context.Background(), s.ID, ModifyRequest{RegenerateText: true}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("modify after cancel: %v", err)
	}
}

func TestConfirm_PostedOnSuccess(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, dispatcher)
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter", "linkedin"},
		WantImage:   true,
	})

	got, err := o.Confirm(context.Background(), s.ID, true, domain.PostOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusPosted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Result == nil || got.Result.Succeeded != 2 {
		t.Errorf("result = %+v", got.Result)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.batches) != 1 {
		t.Fatalf("dispatched %d batches", len(dispatcher.batches))
	}
	content := dispatcher.batches[0]["twitter"]
	if !strings.Contains(content, "#brand") {
		t.Errorf("formatted content missing hashtags: %q", content)
	}
	if len(dispatcher.media[0]) != 1 {
		t.Errorf("exposed image not passed to dispatch: %v", dispatcher.media[0])
	}
}

func TestConfirm_FailedWhenAllPlatformsFail(t *testing.T) {
	dispatcher := &fakeDispatcher{failAll: true}
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, dispatcher)
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})

	got, err := o.Confirm(context.Background(), s.ID, true, domain.PostOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("status = %s", got.Status)
	}
	if got.Result.Failed != 1 || got.Result.Succeeded != 0 {
		t.Errorf("result = %+v", got.Result)
	}
	if len(got.Result.Outcomes) != 1 {
		t.Error("per-platform breakdown missing on aggregate failure")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})

	o.Cleanup(s.ID)
	o.Cleanup(s.ID)
	if _, err := o.GetStatus(s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("session survived cleanup: %v", err)
	}
}

func TestGetStatus_ReturnsCopy(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})

	copy1, err := o.GetStatus(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	copy1.Drafts["twitter"].SetCaption("tampered")

	copy2, _ := o.GetStatus(s.ID)
	if copy2.Drafts["twitter"].Caption == "tampered" {
		t.Error("GetStatus leaked internal state")
	}
}

func TestAnalyze(t *testing.T) {
	a := Analyze("promote our spring sale with 5 hashtags for small businesses", "")
	if a.HashtagCount != 5 {
		t.Errorf("hashtag count = %d", a.HashtagCount)
	}
	if a.Audience != "small businesses" {
		t.Errorf("audience = %q", a.Audience)
	}
	if a.Tone != defaultTone || !a.Degraded {
		t.Errorf("tone = %q degraded = %v", a.Tone, a.Degraded)
	}

	b := Analyze("announce the launch in a casual tone", "")
	if b.Tone != "casual" {
		t.Errorf("tone hint missed: %q", b.Tone)
	}
	if b.HashtagCount != defaultHashtagCount {
		t.Errorf("hashtag count = %d", b.HashtagCount)
	}

	c := Analyze("", "professional")
	if !c.Degraded {
		t.Error("empty instruction not flagged as degraded")
	}
	if c.Tone != "professional" {
		t.Errorf("explicit tone overridden: %q", c.Tone)
	}
}

func TestConcurrentOperationsOnSameSession(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter"},
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Modify(context.Background(), s.ID, ModifyRequest{HashtagInstructions: "vary"})
		}()
	}
	wg.Wait()

	got, err := o.GetStatus(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 10 {
		t.Errorf("history = %d records, want 10", len(got.History))
	}
	d := got.Drafts["twitter"]
	if d.CharCount != len(d.Caption) {
		t.Errorf("char count invariant broken after concurrent modifies")
	}
}

func TestConcurrentReadsDuringModify(t *testing.T) {
	o := newTestOrchestrator(&fakeDrafter{}, &fakeExposer{}, &fakeDispatcher{})
	s, _ := o.Start(context.Background(), StartRequest{
		Instruction: "promote our spring sale",
		Platforms:   []string{"twitter", "linkedin"},
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			o.Modify(context.Background(), s.ID, ModifyRequest{RegenerateText: true})
		}()
		go func() {
			defer wg.Done()
			got, err := o.GetStatus(s.ID)
			if err != nil {
				t.Error(err)
				return
			}
			for _, d := range got.Drafts {
				if d.CharCount != len(d.Caption) {
					t.Errorf("torn read: char count %d != len(caption) %d", d.CharCount, len(d.Caption))
				}
			}
			if list := o.ListSessions(); len(list) != 1 {
				t.Errorf("sessions = %d", len(list))
			}
		}()
	}
	wg.Wait()

	got, err := o.GetStatus(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 50 {
		t.Errorf("history = %d records, want 50", len(got.History))
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
