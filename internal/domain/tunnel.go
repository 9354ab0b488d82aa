package domain

import "context"

// TunnelEndpoint is one active public endpoint reported by the local
// tunnel agent.
type TunnelEndpoint struct {
	PublicURL string `json:"public_url"`
	Proto     string `json:"proto,omitempty"`
}

// TunnelService lists the endpoints of an already-running tunnel agent.
// The exposure bridge never starts the agent itself: an error or an
// empty list both mean "tunnel unavailable" and trigger the local
// fallback.
type TunnelService interface {
	ListActiveEndpoints(ctx context.Context) ([]TunnelEndpoint, error)
}
