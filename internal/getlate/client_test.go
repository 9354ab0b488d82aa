package getlate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"autosocioly/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, policy EndpointPolicy, retries int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: retries,
		Backoff:    5 * time.Millisecond,
		Policy:     policy,
		Logger:     testLogger(),
	}), srv
}

func TestCreatePost_Success(t *testing.T) {
	var gotAuth string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/posts" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"p-1","url":"https://getlate.dev/p/p-1","status":"published"}`)
	}, nil, 0)

	resp, err := c.CreatePost(context.Background(), PostRequest{
		Content:   "hello world",
		Platforms: []PlatformConfig{{Platform: "x"}},
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if resp.ID != "p-1" || resp.Status != "published" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Simulated {
		t.Error("real response flagged as simulated")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestStatusTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.TransportKind
	}{
		{http.StatusBadRequest, domain.KindBadRequest},
		{http.StatusUnauthorized, domain.KindAuthFailure},
		{http.StatusForbidden, domain.KindForbidden},
		{http.StatusNotFound, domain.KindNotFound},
		{http.StatusMethodNotAllowed, domain.KindMethodUnsupported},
		{http.StatusTooManyRequests, domain.KindRateLimited},
		{http.StatusInternalServerError, domain.KindServerError},
		{http.StatusTeapot, domain.KindUnexpectedStatus},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			io.WriteString(w, `{"message":"nope"}`)
		}, StrictPolicy{}, 0)

		_, err := c.CreatePost(context.Background(), PostRequest{Content: "x"})
		te, ok := domain.AsTransportError(err)
		if !ok {
			t.Fatalf("status %d: want TransportError, got %v", tc.status, err)
		}
		if te.Kind != tc.kind {
			t.Errorf("status %d: kind = %s, want %s", tc.status, te.Kind, tc.kind)
		}
		if te.StatusCode != tc.status {
			t.Errorf("status %d: StatusCode = %d", tc.status, te.StatusCode)
		}
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"accounts":[{"id":"a1","platform":"x","connected":true}]}`)
	}, nil, 2)

	accounts, err := c.GetAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetAccounts after retry: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Platform != "x" {
		t.Errorf("accounts = %+v", accounts)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRetry_GivesUpAfterMax(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, nil, 1)

	_, err := c.GetAccounts(context.Background())
	te, ok := domain.AsTransportError(err)
	if !ok || te.Kind != domain.KindServerError {
		t.Fatalf("want server_error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (initial + 1 retry)", calls.Load())
	}
}

func TestRetry_NonTransientNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, nil, 3)

	_, err := c.GetAccounts(context.Background())
	if te, ok := domain.AsTransportError(err); !ok || te.Kind != domain.KindAuthFailure {
		t.Fatalf("want auth_failure, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failure retried: %d calls", calls.Load())
	}
}

func TestMethodUnsupported_SimulatePolicy(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}, SimulatePolicy{}, 0)

	resp, err := c.CreatePost(context.Background(), PostRequest{
		Content:   "launch day",
		Platforms: []PlatformConfig{{Platform: "instagram"}},
	})
	if err != nil {
		t.Fatalf("simulate policy should swallow 405: %v", err)
	}
	if resp.ID == "" {
		t.Error("synthesized response missing id")
	}
	if resp.Status != "published" {
		t.Errorf("status = %q, want published", resp.Status)
	}
	if !strings.Contains(resp.URL, resp.ID) {
		t.Errorf("synthetic URL %q does not reference id %q", resp.URL, resp.ID)
	}
	if !resp.Simulated {
		t.Error("synthesized response not flagged as simulated")
	}
}

func TestMethodUnsupported_StrictPolicy(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}, StrictPolicy{}, 0)

	_, err := c.CreatePost(context.Background(), PostRequest{Content: "x"})
	te, ok := domain.AsTransportError(err)
	if !ok || te.Kind != domain.KindMethodUnsupported {
		t.Fatalf("want method_unsupported, got %v", err)
	}
}

func TestSimulatePolicy_OnlyAppliesTo405(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, SimulatePolicy{}, 0)

	_, err := c.CreatePost(context.Background(), PostRequest{Content: "x"})
	if te, ok := domain.AsTransportError(err); !ok || te.Kind != domain.KindBadRequest {
		t.Fatalf("simulate policy must not mask bad_request, got %v", err)
	}
}

func TestConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(ClientConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Timeout: time.Second,
		Logger:  testLogger(),
	})
	_, err := c.GetAccounts(context.Background())
	te, ok := domain.AsTransportError(err)
	if !ok {
		t.Fatalf("want TransportError, got %v", err)
	}
	if te.Kind != domain.KindConnection && te.Kind != domain.KindTimeout {
		t.Errorf("kind = %s, want connection or timeout", te.Kind)
	}
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		APIKey:     "k",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		Backoff:    10 * time.Second,
		Logger:     testLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := c.GetAccounts(ctx)
	if err == nil {
		t.Fatal("want error after cancellation")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation did not interrupt backoff")
	}
	var te *domain.TransportError
	if !errors.As(err, &te) && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error type: %v", err)
	}
}
