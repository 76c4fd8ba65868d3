package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultVerifyTimeout = 10 * time.Second

// HTTPVerifier asks a hosted auth service who owns a token via GET {url}/auth/v1/user.
type HTTPVerifier struct {
	userURL string
	anonKey string
	client  *http.Client
}

// NewHTTPVerifier builds a verifier against baseURL. A nil client gets a default with a short timeout.
func NewHTTPVerifier(baseURL, anonKey string, client *http.Client) (*HTTPVerifier, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("auth base url must not be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultVerifyTimeout}
	}
	return &HTTPVerifier{
		userURL: baseURL + "/auth/v1/user",
		anonKey: anonKey,
		client:  client,
	}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("construct auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrBackendUnavailable, err)
	}
	return &user, nil
}
