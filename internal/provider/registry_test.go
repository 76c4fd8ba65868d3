package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/internal/models"
)

type stubAdapter struct {
	id models.ProviderID
}

func (s stubAdapter) ID() models.ProviderID              { return s.id }
func (s stubAdapter) CheckCredential(string, bool) error { return nil }
func (s stubAdapter) Chat(context.Context, models.ChatRequest, string) (*models.Completion, error) {
	return &models.Completion{Text: "ok"}, nil
}
func (s stubAdapter) Stream(context.Context, models.ChatRequest, string) (*models.Stream, error) {
	return nil, errors.New("not streaming")
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubAdapter{id: models.ProviderDeepseek}))

	a, err := reg.Lookup(models.ProviderDeepseek)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderDeepseek, a.ID())

	_, err = reg.Lookup(models.ProviderOpenAI)
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = reg.Lookup("anthropic")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestRegistryRejectsDuplicatesAndUnknown(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubAdapter{id: models.ProviderOpenAI}))
	assert.Error(t, reg.Register(stubAdapter{id: models.ProviderOpenAI}))
	assert.ErrorIs(t, reg.Register(stubAdapter{id: "mistral"}), ErrUnsupportedProvider)
	assert.Error(t, reg.Register(nil))
}

func TestEndpointPostJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	endpoint, err := NewEndpoint(models.ProviderOpenAI, srv.URL, nil, srv.Client(), 50*time.Millisecond)
	require.NoError(t, err)

	var out map[string]any
	err = endpoint.PostJSON(context.Background(), "k", map[string]string{}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEndpointReportsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "  boom \n")
	}))
	defer srv.Close()

	endpoint, err := NewEndpoint(models.ProviderPerplexity, srv.URL, nil, srv.Client(), 0)
	require.NoError(t, err)

	_, err = endpoint.OpenStream(context.Background(), "k", map[string]string{})
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusInternalServerError, upstreamErr.Status)
	assert.Equal(t, "boom", upstreamErr.Body)
}

func TestNewEndpointValidation(t *testing.T) {
	_, err := NewEndpoint(models.ProviderOpenAI, "https://x", nil, nil, 0)
	assert.Error(t, err)
	_, err = NewEndpoint(models.ProviderOpenAI, " ", nil, http.DefaultClient, 0)
	assert.Error(t, err)
}
