package drafting

import (
	"context"
	"log/slog"

	"autosocioly/internal/domain"
)

// Source tags on drafts.
const (
	SourceParsed   = "parsed"
	SourceFallback = "fallback"
)

// Service wraps a generative provider with the fallback behavior the
// workflow relies on: text drafting always yields a usable draft, and
// the draft records whether it came from the model or the fallback.
type Service struct {
	provider domain.DraftingProvider
	logger   *slog.Logger
}

func NewService(provider domain.DraftingProvider, logger *slog.Logger) *Service {
	return &Service{provider: provider, logger: logger}
}

// DraftFor produces a platform draft. Provider failures and
// unparseable output degrade to the deterministic fallback instead of
// failing the session.
func (s *Service) DraftFor(ctx context.Context, req domain.TextDraftRequest) *domain.Draft {
	draft := &domain.Draft{Platform: req.Platform, Source: SourceParsed}

	td, err := s.provider.DraftText(ctx, req)
	if err != nil {
		s.logger.Warn("text draft degraded to fallback",
			"platform", req.Platform,
			"provider", s.provider.Name(),
			"err", err,
		)
		td = FallbackDraft(req)
		draft.Source = SourceFallback
	}

	draft.SetCaption(td.Caption)
	draft.SetHashtags(td.Hashtags)
	draft.CallToAction = td.CallToAction
	return draft
}

// DraftImage generates the shared image artifact. Unlike text, image
// failure is reported: the caller decides whether the session can
// proceed without media.
func (s *Service) DraftImage(ctx context.Context, req domain.ImageDraftRequest) (*domain.MediaArtifact, error) {
	return s.provider.DraftImage(ctx, req)
}

// Healthy reports provider reachability.
func (s *Service) Healthy(ctx context.Context) error {
	return s.provider.Healthy(ctx)
}
