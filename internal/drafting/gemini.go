package drafting

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"autosocioly/internal/domain"
)

// GeminiProvider drafts text and images through the Gemini generative
// API.
type GeminiProvider struct {
	apiKey     string
	apiBase    string
	model      string
	imageModel string
	imageDir   string
	client     *http.Client
	logger     *slog.Logger
}

type GeminiConfig struct {
	APIKey     string
	APIBase    string
	Model      string
	ImageModel string
	ImageDir   string
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		imageDir:   cfg.ImageDir,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// DraftText asks the model for a platform-shaped caption. Output that
// cannot be parsed is an error; the service layer decides whether to
// fall back.
func (g *GeminiProvider) DraftText(ctx context.Context, req domain.TextDraftRequest) (*domain.TextDraft, error) {
	raw, err := g.generate(ctx, g.model, draftPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("gemini text draft: %w", err)
	}
	draft, ok := ParseDraft(raw)
	if !ok {
		return nil, fmt.Errorf("gemini text draft: unparseable model output (%d bytes)", len(raw))
	}
	return draft, nil
}

// DraftImage generates an image, writes it under the image directory,
// and returns the local artifact. The returned artifact has no public
// URL yet; exposure happens later.
func (g *GeminiProvider) DraftImage(ctx context.Context, req domain.ImageDraftRequest) (*domain.MediaArtifact, error) {
	prompt := imagePrompt(req)
	data, err := g.generateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("gemini image draft: %w", err)
	}

	if err := os.MkdirAll(g.imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	name := fmt.Sprintf("post_%s.png", uuid.NewString()[:8])
	path := filepath.Join(g.imageDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	g.logger.Info("image drafted", "path", path, "bytes", len(data))
	return &domain.MediaArtifact{
		LocalPath: path,
		Prompt:    prompt,
		Style:     req.Style,
	}, nil
}

// Healthy issues a minimal generation to verify credentials and
// reachability.
func (g *GeminiProvider) Healthy(ctx context.Context) error {
	_, err := g.generate(ctx, g.model, "Reply with the single word: ok")
	return err
}

func (g *GeminiProvider) generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.call(ctx, model, prompt)
	if err != nil {
		return "", err
	}
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", fmt.Errorf("empty model response")
}

func (g *GeminiProvider) generateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := g.call(ctx, g.imageModel, prompt)
	if err != nil {
		return nil, err
	}
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "image/") {
				return base64.StdEncoding.DecodeString(p.InlineData.Data)
			}
		}
	}
	return nil, fmt.Errorf("no image in model response")
}

func (g *GeminiProvider) call(ctx context.Context, model, prompt string) (*geminiResponse, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	httpResp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model %s: %w", model, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	g.logger.Debug("model call",
		"model", model,
		"status", httpResp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if httpResp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("model %s returned HTTP %d: %s", model, httpResp.StatusCode, msg)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &decoded, nil
}

func draftPrompt(req domain.TextDraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s social media post for %s about: %s\n", req.Tone, req.Platform, req.Topic)
	if req.Context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", req.Context)
	}
	if req.MaxLength > 0 {
		fmt.Fprintf(&b, "The caption must be at most %d characters.\n", req.MaxLength)
	}
	fmt.Fprintf(&b, "Include %d relevant hashtags.\n", req.HashtagCount)
	b.WriteString(`Respond with only a JSON object:
{"caption": "...", "hashtags": ["#..."], "call_to_action": "...", "engagement_hint": "..."}`)
	return b.String()
}

func imagePrompt(req domain.ImageDraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a %s marketing image for a %s post about: %s.", req.Style, req.Platform, req.Topic)
	if req.OverlayText != "" {
		fmt.Fprintf(&b, " Overlay the text: %q.", req.OverlayText)
	}
	b.WriteString(" No watermarks.")
	return b.String()
}
