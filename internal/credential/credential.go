package credential

import (
	"context"
	"errors"
	"fmt"

	"agent-relay/internal/models"
)

// ErrBackendUnavailable indicates the credential store itself failed.
var ErrBackendUnavailable = errors.New("credential store unavailable")

// ErrNotFound is returned by a Store when no key exists for the pair.
var ErrNotFound = errors.New("credential not found")

// NotConfiguredError reports that the caller has no stored key for a provider.
type NotConfiguredError struct {
	Provider models.ProviderID
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s API key not configured. Please add it through the API Keys page.", e.Provider.DisplayName())
}

// Store performs point lookups of (user, provider) keys.
type Store interface {
	Lookup(ctx context.Context, userID string, provider models.ProviderID) (string, error)
}

// Resolver maps store misses to NotConfiguredError and store faults to ErrBackendUnavailable.
type Resolver struct {
	store Store
}

// NewResolver wraps store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the API key for the user and provider. Anonymous callers
// (empty userID) never reach the store.
func (r *Resolver) Resolve(ctx context.Context, provider models.ProviderID, userID string) (string, error) {
	if userID == "" {
		return "", &NotConfiguredError{Provider: provider}
	}

	key, err := r.store.Lookup(ctx, userID, provider)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", &NotConfiguredError{Provider: provider}
	case err != nil:
		if errors.Is(err, ErrBackendUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	case key == "":
		return "", &NotConfiguredError{Provider: provider}
	}
	return key, nil
}
