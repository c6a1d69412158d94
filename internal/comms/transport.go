package comms

import (
	"context"
	"fmt"
	"sync"

	"github.com/gridsense/fieldlink/pkg/types"
)

// Transport delivers envelopes over a physical (or simulated) link.
//
// Delivery is fire-and-forget: implementations report hand-off errors but
// no acknowledgement is modeled. If a link can block, callers impose a
// timeout through ctx and treat expiry as a transient failure.
type Transport interface {
	// Protocol returns the unique link identifier (e.g. "BLE").
	Protocol() string

	// Send hands an envelope to the link.
	Send(ctx context.Context, env *types.Envelope) error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry manages available transports, selected by protocol name from the
// mission's communication descriptor.
type Registry struct {
	transports map[string]Transport
	mu         sync.RWMutex
}

// NewRegistry creates a new transport registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]Transport),
	}
}

// Register adds a transport to the registry.
// Returns an error if the protocol is already registered.
func (r *Registry) Register(t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	proto := t.Protocol()
	if _, exists := r.transports[proto]; exists {
		return fmt.Errorf("transport already registered: %s", proto)
	}
	r.transports[proto] = t
	return nil
}

// Get returns a transport by protocol name.
func (r *Registry) Get(proto string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[proto]
	return t, ok
}

// List returns all registered protocol names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	protos := make([]string, 0, len(r.transports))
	for p := range r.transports {
		protos = append(protos, p)
	}
	return protos
}
