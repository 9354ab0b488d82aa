package exposure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"autosocioly/internal/domain"
)

// Bridge turns local file paths into public URLs. Results are memoized
// per path so repeated exposure of the same artifact is stable and
// cheap. The only hard failure is a missing source file; a missing
// tunnel just falls back to the static mount.
type Bridge struct {
	tunnels    domain.TunnelService
	staticDir  string
	publicBase string
	logger     *slog.Logger

	mu    sync.Mutex
	known map[string]string // local path -> public URL
}

type BridgeConfig struct {
	Tunnels    domain.TunnelService
	StaticDir  string
	PublicBase string
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		tunnels:    cfg.Tunnels,
		staticDir:  cfg.StaticDir,
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		logger:     cfg.Logger,
	}
}

// Expose returns a public URL for a local file. The file is copied
// into the static mount so the service can serve it, and the URL base
// is the tunnel's public endpoint when one is up, the configured
// public base otherwise.
func (b *Bridge) Expose(ctx context.Context, localPath string) (string, error) {
	b.mu.Lock()
	if url, ok := b.known[localPath]; ok {
		b.mu.Unlock()
		return url, nil
	}
	b.mu.Unlock()

	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("expose %s: %w", localPath, domain.ErrSourceMissing)
	}

	name := filepath.Base(localPath)
	if err := b.stage(localPath, name); err != nil {
		return "", err
	}

	base := b.publicBase
	if endpoint, ok := b.activeTunnel(ctx); ok {
		base = endpoint
	}
	url := fmt.Sprintf("%s/static/uploads/%s", base, name)

	b.mu.Lock()
	if b.known == nil {
		b.known = make(map[string]string)
	}
	b.known[localPath] = url
	b.mu.Unlock()

	b.logger.Info("media exposed", "path", localPath, "url", url)
	return url, nil
}

// stage copies the file into the static mount. A file already staged
// under the same name is left alone.
func (b *Bridge) stage(localPath, name string) error {
	if err := os.MkdirAll(b.staticDir, 0o755); err != nil {
		return fmt.Errorf("create static dir: %w", err)
	}
	dst := filepath.Join(b.staticDir, name)
	if dst == localPath {
		return nil
	}
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create staged copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	return nil
}

// activeTunnel returns the preferred public endpoint, https first.
func (b *Bridge) activeTunnel(ctx context.Context) (string, bool) {
	if b.tunnels == nil {
		return "", false
	}
	endpoints, err := b.tunnels.ListActiveEndpoints(ctx)
	if err != nil {
		b.logger.Debug("no tunnel available, using static fallback", "err", err)
		return "", false
	}
	var fallback string
	for _, e := range endpoints {
		if e.PublicURL == "" {
			continue
		}
		if e.Proto == "https" || strings.HasPrefix(e.PublicURL, "https://") {
			return strings.TrimRight(e.PublicURL, "/"), true
		}
		if fallback == "" {
			fallback = strings.TrimRight(e.PublicURL, "/")
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// Forget drops the memoized URL for a path. Used when an artifact is
// regenerated in place.
func (b *Bridge) Forget(localPath string) {
	b.mu.Lock()
	delete(b.known, localPath)
	b.mu.Unlock()
}

// StaticDir is the directory the HTTP server mounts at /static/uploads.
func (b *Bridge) StaticDir() string { return b.staticDir }
