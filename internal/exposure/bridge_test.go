package exposure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autosocioly/internal/domain"
)

type stubTunnels struct {
	endpoints []domain.TunnelEndpoint
	err       error
}

func (s *stubTunnels) ListActiveEndpoints(context.Context) ([]domain.TunnelEndpoint, error) {
	return s.endpoints, s.err
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestBridge(t *testing.T, tunnels domain.TunnelService) (*Bridge, string) {
	t.Helper()
	staticDir := filepath.Join(t.TempDir(), "uploads")
	b := NewBridge(BridgeConfig{
		Tunnels:    tunnels,
		StaticDir:  staticDir,
		PublicBase: "http://localhost:8000",
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return b, staticDir
}

func TestExpose_TunnelPreferred(t *testing.T) {
	b, _ := newTestBridge(t, &stubTunnels{endpoints: []domain.TunnelEndpoint{
		{PublicURL: "http://abc.tunnel.dev", Proto: "http"},
		{PublicURL: "https://abc.tunnel.dev", Proto: "https"},
	}})
	src := writeArtifact(t, t.TempDir(), "post_1.png")

	url, err := b.Expose(context.Background(), src)
	if err != nil {
		t.Fatalf("Expose: %v", err)
	}
	if url != "https://abc.tunnel.dev/static/uploads/post_1.png" {
		t.Errorf("url = %q, https endpoint not preferred", url)
	}
}

func TestExpose_StaticFallbackWhenNoTunnel(t *testing.T) {
	b, staticDir := newTestBridge(t, &stubTunnels{err: errors.New("agent down")})
	src := writeArtifact(t, t.TempDir(), "post_2.png")

	url, err := b.Expose(context.Background(), src)
	if err != nil {
		t.Fatalf("Expose: %v", err)
	}
	if url != "http://localhost:8000/static/uploads/post_2.png" {
		t.Errorf("url = %q", url)
	}
	if _, err := os.Stat(filepath.Join(staticDir, "post_2.png")); err != nil {
		t.Errorf("artifact not staged into static dir: %v", err)
	}
}

func TestExpose_Memoized(t *testing.T) {
	tunnels := &stubTunnels{endpoints: []domain.TunnelEndpoint{{PublicURL: "https://t1.dev", Proto: "https"}}}
	b, _ := newTestBridge(t, tunnels)
	src := writeArtifact(t, t.TempDir(), "post_3.png")

	first, err := b.Expose(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}

	// Tunnel churn must not change an already-exposed URL.
	tunnels.endpoints = []domain.TunnelEndpoint{{PublicURL: "https://t2.dev", Proto: "https"}}
	second, err := b.Expose(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("memoization broken: %q then %q", first, second)
	}
}

func TestExpose_MissingSource(t *testing.T) {
	b, _ := newTestBridge(t, nil)
	_, err := b.Expose(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	if !errors.Is(err, domain.ErrSourceMissing) {
		t.Errorf("err = %v, want ErrSourceMissing", err)
	}
}

func TestForget_AllowsRegeneratedURL(t *testing.T) {
	tunnels := &stubTunnels{}
	b, _ := newTestBridge(t, tunnels)
	src := writeArtifact(t, t.TempDir(), "post_4.png")

	first, _ := b.Expose(context.Background(), src)
	b.Forget(src)
	tunnels.endpoints = []domain.TunnelEndpoint{{PublicURL: "https://fresh.dev", Proto: "https"}}

	second, err := b.Expose(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("Forget did not clear the memoized URL")
	}
	if !strings.HasPrefix(second, "https://fresh.dev/") {
		t.Errorf("second url = %q", second)
	}
}

func TestAgentTunnelService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"tunnels":[{"public_url":"https://xyz.tunnel.dev","proto":"https"}]}`)
	}))
	defer srv.Close()

	svc := NewAgentTunnelService(srv.URL)
	endpoints, err := svc.ListActiveEndpoints(context.Background())
	if err != nil {
		t.Fatalf("ListActiveEndpoints: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].PublicURL != "https://xyz.tunnel.dev" {
		t.Errorf("endpoints = %+v", endpoints)
	}
}

func TestAgentTunnelService_AgentDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	svc := NewAgentTunnelService(srv.URL)
	if _, err := svc.ListActiveEndpoints(context.Background()); err == nil {
		t.Error("want error when agent is unreachable")
	}
}
