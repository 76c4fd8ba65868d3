package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agent-relay/internal/models"
)

// ErrUnsupportedProvider indicates the requested provider is not registered.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrInvalidCredentialFormat indicates a stored key does not have the shape the provider expects.
var ErrInvalidCredentialFormat = errors.New("invalid credential format")

// Adapter translates relay requests into one upstream provider's wire format.
type Adapter interface {
	ID() models.ProviderID
	// CheckCredential validates the shape of a stored key before it is used.
	CheckCredential(apiKey string, testMode bool) error
	// Chat performs a buffered round trip and extracts the reply text.
	Chat(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Completion, error)
	// Stream issues a streaming request and hands back the live upstream body.
	Stream(ctx context.Context, req models.ChatRequest, apiKey string) (*models.Stream, error)
}

// Registry maps provider ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ProviderID]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.ProviderID]Adapter),
	}
}

// Register adds an adapter. Only the closed set of known providers may be registered.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}
	if !a.ID().Known() {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, a.ID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[a.ID()]; exists {
		return fmt.Errorf("provider %q already registered", a.ID())
	}
	r.adapters[a.ID()] = a
	return nil
}

// Lookup returns the adapter serving the provider.
func (r *Registry) Lookup(id models.ProviderID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, id)
	}
	return a, nil
}
