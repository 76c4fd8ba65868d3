package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agent-relay/internal/models"
)

const defaultRESTTimeout = 10 * time.Second

// RESTStore looks keys up in a PostgREST-style table with user_id, provider and api_key columns.
type RESTStore struct {
	tableURL   string
	serviceKey string
	client     *http.Client
}

// NewRESTStore builds a store for {baseURL}/rest/v1/{table}. A nil client gets a default.
func NewRESTStore(baseURL, table, serviceKey string, client *http.Client) (*RESTStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("credential store url must not be empty")
	}
	if table == "" {
		return nil, errors.New("credential table must not be empty")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRESTTimeout}
	}
	return &RESTStore{
		tableURL:   baseURL + "/rest/v1/" + url.PathEscape(table),
		serviceKey: serviceKey,
		client:     client,
	}, nil
}

type keyRow struct {
	APIKey string `json:"api_key"`
}

func (s *RESTStore) Lookup(ctx context.Context, userID string, provider models.ProviderID) (string, error) {
	query := url.Values{}
	query.Set("select", "api_key")
	query.Set("user_id", "eq."+userID)
	query.Set("provider", "eq."+string(provider))
	query.Set("limit", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("construct credential request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []keyRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("%w: decode rows: %v", ErrBackendUnavailable, err)
	}

	switch len(rows) {
	case 0:
		return "", ErrNotFound
	case 1:
	default:
		slog.WarnContext(ctx, "multiple credentials stored, using the first",
			"user_id", userID,
			"provider", provider,
		)
	}
	return rows[0].APIKey, nil
}
