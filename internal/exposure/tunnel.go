// Package exposure makes locally generated media reachable by the
// posting API: via an already-running tunnel agent when one exists,
// otherwise through the service's own static file mount.
package exposure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autosocioly/internal/domain"
)

// AgentTunnelService queries a local tunnel agent's API for active
// public endpoints. It never starts a tunnel itself; operators manage
// the agent's lifecycle.
type AgentTunnelService struct {
	apiURL string
	client *http.Client
}

func NewAgentTunnelService(apiURL string) *AgentTunnelService {
	if apiURL == "" {
		apiURL = "http://localhost:4040/api/tunnels"
	}
	return &AgentTunnelService{
		apiURL: apiURL,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

// ListActiveEndpoints returns the agent's public endpoints. An
// unreachable agent is an error; callers treat it as "no tunnel".
func (s *AgentTunnelService) ListActiveEndpoints(ctx context.Context) ([]domain.TunnelEndpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build tunnel query: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query tunnel agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tunnel agent returned HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read tunnel agent response: %w", err)
	}

	var payload struct {
		Tunnels []struct {
			PublicURL string `json:"public_url"`
			Proto     string `json:"proto"`
		} `json:"tunnels"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode tunnel agent response: %w", err)
	}

	endpoints := make([]domain.TunnelEndpoint, 0, len(payload.Tunnels))
	for _, t := range payload.Tunnels {
		endpoints = append(endpoints, domain.TunnelEndpoint{PublicURL: t.PublicURL, Proto: t.Proto})
	}
	return endpoints, nil
}
