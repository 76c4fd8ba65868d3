package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"agent-relay/internal/config"
	"agent-relay/internal/models"
	"agent-relay/internal/provider"
	deepseekProvider "agent-relay/internal/provider/deepseek"
	openaiProvider "agent-relay/internal/provider/openai"
	perplexityProvider "agent-relay/internal/provider/perplexity"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders builds one adapter per provider and stores them in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	timeout := cfg.Server.UpstreamTimeout
	providers := cfg.Providers

	openAIEndpoint, err := newEndpoint(models.ProviderOpenAI, providers.OpenAI, "/responses", timeout)
	if err != nil {
		return fmt.Errorf("initialise openai provider: %w", err)
	}
	if err := registry.Register(openaiProvider.New(openAIEndpoint)); err != nil {
		return fmt.Errorf("register openai provider: %w", err)
	}

	perplexityEndpoint, err := newEndpoint(models.ProviderPerplexity, providers.Perplexity, "/chat/completions", timeout)
	if err != nil {
		return fmt.Errorf("initialise perplexity provider: %w", err)
	}
	if err := registry.Register(perplexityProvider.New(perplexityEndpoint)); err != nil {
		return fmt.Errorf("register perplexity provider: %w", err)
	}

	deepseekEndpoint, err := newEndpoint(models.ProviderDeepseek, providers.Deepseek, "/chat/completions", timeout)
	if err != nil {
		return fmt.Errorf("initialise deepseek provider: %w", err)
	}
	if err := registry.Register(deepseekProvider.New(deepseekEndpoint)); err != nil {
		return fmt.Errorf("register deepseek provider: %w", err)
	}

	return nil
}

func newEndpoint(id models.ProviderID, cfg config.ProviderConfig, path string, timeout time.Duration) (provider.Endpoint, error) {
	url := strings.TrimRight(cfg.BaseURL, "/") + path
	return provider.NewEndpoint(id, url, cfg.Headers, NewHTTPClient(timeout), timeout)
}

// NewHTTPClient returns a client without an overall deadline, so long
// streams are not cut off; buffered calls are bounded by the endpoint's
// context timeout and every call by the response header timeout.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}

	return &http.Client{
		Transport: transport,
	}
}
