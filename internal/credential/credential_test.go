package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/internal/models"
)

type mapStore struct {
	keys  map[string]string
	err   error
	calls int
}

func (m *mapStore) Lookup(_ context.Context, userID string, provider models.ProviderID) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	key, ok := m.keys[userID+"/"+string(provider)]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

func TestResolveAnonymousSkipsStore(t *testing.T) {
	store := &mapStore{}
	_, err := NewResolver(store).Resolve(context.Background(), models.ProviderOpenAI, "")

	var notConfigured *NotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	assert.Equal(t, models.ProviderOpenAI, notConfigured.Provider)
	assert.Zero(t, store.calls)
}

func TestResolveMissAndHit(t *testing.T) {
	store := &mapStore{keys: map[string]string{"u1/deepseek": "ds-key"}}
	r := NewResolver(store)

	key, err := r.Resolve(context.Background(), models.ProviderDeepseek, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ds-key", key)

	_, err = r.Resolve(context.Background(), models.ProviderPerplexity, "u1")
	var notConfigured *NotConfiguredError
	require.ErrorAs(t, err, &notConfigured)
	assert.Equal(t, "Perplexity API key not configured. Please add it through the API Keys page.", err.Error())
}

func TestResolveStoreFault(t *testing.T) {
	_, err := NewResolver(&mapStore{err: errors.New("connection reset")}).Resolve(context.Background(), models.ProviderOpenAI, "u1")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Lookup(ctx, "u1", models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put("u1", models.ProviderOpenAI, "sk-1"))
	require.NoError(t, store.Put("u1", models.ProviderPerplexity, "pplx-1"))
	require.NoError(t, store.Put("u10", models.ProviderDeepseek, "ds-1"))
	require.NoError(t, store.Put("u1", models.ProviderOpenAI, "sk-2"))

	key, err := store.Lookup(ctx, "u1", models.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-2", key)

	providers, err := store.Providers("u1")
	require.NoError(t, err)
	assert.Equal(t, []models.ProviderID{models.ProviderOpenAI, models.ProviderPerplexity}, providers)

	require.NoError(t, store.Delete("u1", models.ProviderOpenAI))
	assert.ErrorIs(t, store.Delete("u1", models.ProviderOpenAI), ErrNotFound)
	_, err = store.Lookup(ctx, "u1", models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStoreKeepsUsersApart(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put("a/openai", models.ProviderDeepseek, "ds-slash"))
	require.NoError(t, store.Put("a", models.ProviderDeepseek, "ds-a"))

	_, err = store.Lookup(ctx, "a", models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrNotFound)

	key, err := store.Lookup(ctx, "a", models.ProviderDeepseek)
	require.NoError(t, err)
	assert.Equal(t, "ds-a", key)
	key, err = store.Lookup(ctx, "a/openai", models.ProviderDeepseek)
	require.NoError(t, err)
	assert.Equal(t, "ds-slash", key)

	providers, err := store.Providers("a")
	require.NoError(t, err)
	assert.Equal(t, []models.ProviderID{models.ProviderDeepseek}, providers)

	require.NoError(t, store.Delete("a", models.ProviderDeepseek))
	providers, err = store.Providers("a")
	require.NoError(t, err)
	assert.Empty(t, providers)
	key, err = store.Lookup(ctx, "a/openai", models.ProviderDeepseek)
	require.NoError(t, err)
	assert.Equal(t, "ds-slash", key)
}

func TestBoltStorePutValidation(t *testing.T) {
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Put("", models.ProviderOpenAI, "k"))
	assert.Error(t, store.Put("u", "claude", "k"))
	assert.Error(t, store.Put("u", models.ProviderOpenAI, ""))
}

func TestRESTStoreDefaultClientIsBounded(t *testing.T) {
	store, err := NewRESTStore("https://db.example", "user_api_keys", "svc", nil)
	require.NoError(t, err)
	assert.Equal(t, defaultRESTTimeout, store.client.Timeout)
}

func TestRESTStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/user_api_keys", r.URL.Path)
		assert.Equal(t, "svc", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))
		assert.Equal(t, "api_key", r.URL.Query().Get("select"))

		switch r.URL.Query().Get("user_id") {
		case "eq.one":
			assert.Equal(t, "eq.openai", r.URL.Query().Get("provider"))
			_, _ = io.WriteString(w, `[{"api_key":"sk-one"}]`)
		case "eq.two":
			_, _ = io.WriteString(w, `[{"api_key":"sk-first"},{"api_key":"sk-second"}]`)
		case "eq.none":
			_, _ = io.WriteString(w, `[]`)
		default:
			http.Error(w, "db down", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	store, err := NewRESTStore(srv.URL, "user_api_keys", "svc", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Lookup(ctx, "one", models.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-one", key)

	key, err = store.Lookup(ctx, "two", models.ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-first", key)

	_, err = store.Lookup(ctx, "none", models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Lookup(ctx, "boom", models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = NewResolver(store).Resolve(ctx, models.ProviderOpenAI, "boom")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
