package getlate

import (
	"fmt"

	"github.com/google/uuid"
)

// EndpointPolicy decides what happens when the posting endpoint
// rejects the request method. The remote API intermittently disables
// POST on some deployments; a policy lets callers keep a workflow
// moving instead of failing the whole session.
type EndpointPolicy interface {
	// OnMethodUnsupported may return a synthesized response for the
	// rejected request. handled=false propagates the original error.
	OnMethodUnsupported(req PostRequest) (resp *PostResponse, handled bool)
}

// StrictPolicy propagates method-unsupported errors unchanged.
type StrictPolicy struct{}

func (StrictPolicy) OnMethodUnsupported(PostRequest) (*PostResponse, bool) {
	return nil, false
}

// SimulatePolicy synthesizes a deterministic-shaped success: a fresh
// post id, status "published", and a synthetic URL. Intended for dev
// environments where the posting endpoint is disabled.
type SimulatePolicy struct{}

func (SimulatePolicy) OnMethodUnsupported(req PostRequest) (*PostResponse, bool) {
	id := fmt.Sprintf("sim-%s", uuid.NewString()[:8])
	return &PostResponse{
		ID:        id,
		URL:       fmt.Sprintf("https://getlate.dev/p/%s", id),
		Status:    "published",
		Simulated: true,
	}, true
}

// PolicyFor returns the policy matching the simulateUnsupported
// config toggle.
func PolicyFor(simulate bool) EndpointPolicy {
	if simulate {
		return SimulatePolicy{}
	}
	return StrictPolicy{}
}
