package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agent-relay/internal/models"
)

const (
	contentTypeJSON  = "application/json"
	contentTypeSSE   = "text/event-stream"
	userAgent        = "agent-relay/0.1"
	maxErrorBodySize = 64 * 1024
)

// UpstreamError records a non-2xx answer from a provider API.
type UpstreamError struct {
	Provider models.ProviderID
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider.DisplayName(), e.Status, e.Body)
}

// Endpoint is a single provider URL plus the client used to reach it.
type Endpoint struct {
	Provider models.ProviderID
	URL      string
	Headers  map[string]string
	Client   *http.Client
	// Timeout bounds buffered round trips. Zero leaves the context untouched.
	Timeout time.Duration
}

// NewEndpoint validates and assembles an Endpoint.
func NewEndpoint(id models.ProviderID, url string, headers map[string]string, client *http.Client, timeout time.Duration) (Endpoint, error) {
	if client == nil {
		return Endpoint{}, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(url) == "" {
		return Endpoint{}, errors.New("endpoint url must not be empty")
	}
	return Endpoint{
		Provider: id,
		URL:      url,
		Headers:  headers,
		Client:   client,
		Timeout:  timeout,
	}, nil
}

// PostJSON sends payload and decodes a 2xx JSON answer into target.
func (e Endpoint) PostJSON(ctx context.Context, apiKey string, payload, target any) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.do(ctx, apiKey, payload, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s response: %w", e.Provider, err)
	}
	return nil
}

// OpenStream sends payload and returns the live 2xx body. The caller owns the body.
func (e Endpoint) OpenStream(ctx context.Context, apiKey string, payload any) (io.ReadCloser, error) {
	resp, err := e.do(ctx, apiKey, payload, contentTypeSSE)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (e Endpoint) do(ctx context.Context, apiKey string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	slog.Debug("upstream request", "provider", e.Provider, "url", e.URL, "bytes", len(body))

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", e.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readUpstreamError(e.Provider, resp)
	}
	return resp, nil
}

func readUpstreamError(id models.ProviderID, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return &UpstreamError{
			Provider: id,
			Status:   resp.StatusCode,
			Body:     fmt.Sprintf("failed to read body: %v", err),
		}
	}
	return &UpstreamError{
		Provider: id,
		Status:   resp.StatusCode,
		Body:     strings.TrimSpace(string(body)),
	}
}
