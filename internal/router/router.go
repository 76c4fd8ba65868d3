package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"agent-relay/internal/credential"
	"agent-relay/internal/identity"
	"agent-relay/internal/models"
	"agent-relay/internal/provider"
	"agent-relay/internal/translator"
)

// Router resolves the caller and their key, then hands the request to the provider's adapter.
type Router struct {
	registry    *provider.Registry
	identity    *identity.Resolver
	credentials *credential.Resolver
	now         func() time.Time
}

// Option customises a Router.
type Option func(*Router)

// WithClock replaces the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// New constructs a router. All collaborators are required.
func New(registry *provider.Registry, ident *identity.Resolver, creds *credential.Resolver, opts ...Option) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if ident == nil {
		return nil, errors.New("identity resolver must not be nil")
	}
	if creds == nil {
		return nil, errors.New("credential resolver must not be nil")
	}

	r := &Router{
		registry:    registry,
		identity:    ident,
		credentials: creds,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Chat performs a buffered relay and returns the normalized envelope.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest, authorization string) (*translator.ChatResponse, error) {
	adapter, apiKey, err := r.prepare(ctx, req, authorization)
	if err != nil {
		return nil, err
	}

	completion, err := adapter.Chat(ctx, req, apiKey)
	if err != nil {
		return nil, fmt.Errorf("provider %s chat request: %w", req.Provider, err)
	}

	resp := translator.FromCompletion(req, completion, r.now())
	return &resp, nil
}

// Stream opens a streaming relay. The caller must close the returned body.
func (r *Router) Stream(ctx context.Context, req models.ChatRequest, authorization string) (*models.Stream, error) {
	adapter, apiKey, err := r.prepare(ctx, req, authorization)
	if err != nil {
		return nil, err
	}

	stream, err := adapter.Stream(ctx, req, apiKey)
	if err != nil {
		return nil, fmt.Errorf("provider %s stream request: %w", req.Provider, err)
	}
	return stream, nil
}

// prepare runs dispatch, identity and credential resolution in order. Unknown
// providers are rejected before any identity or credential lookup.
func (r *Router) prepare(ctx context.Context, req models.ChatRequest, authorization string) (provider.Adapter, string, error) {
	adapter, err := r.registry.Lookup(req.Provider)
	if err != nil {
		return nil, "", err
	}

	userID, err := r.identity.Resolve(ctx, authorization)
	if err != nil {
		return nil, "", fmt.Errorf("resolve identity: %w", err)
	}

	apiKey, err := r.credentials.Resolve(ctx, req.Provider, userID)
	if err != nil {
		return nil, "", err
	}

	if err := adapter.CheckCredential(apiKey, req.TestMode); err != nil {
		return nil, "", err
	}

	slog.DebugContext(ctx, "relaying chat",
		"provider", req.Provider,
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
		"anonymous", userID == "",
	)
	return adapter, apiKey, nil
}
