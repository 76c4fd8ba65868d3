package factory

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-relay/internal/config"
	"agent-relay/internal/models"
	"agent-relay/internal/provider"
)

func TestRegisterConfiguredProviders(t *testing.T) {
	cfg, err := config.Parse([]byte("server:\n  port: 8080\nauth:\n  mode: none\n"))
	require.NoError(t, err)

	reg := provider.NewRegistry()
	require.NoError(t, RegisterConfiguredProviders(cfg, reg))

	for _, id := range models.Providers {
		a, err := reg.Lookup(id)
		require.NoError(t, err, id)
		assert.Equal(t, id, a.ID())
	}
}

func TestRegisterConfiguredProvidersNilRegistry(t *testing.T) {
	assert.Error(t, RegisterConfiguredProviders(config.Config{}, nil))
}

func TestNewHTTPClientHasNoOverallTimeout(t *testing.T) {
	client := NewHTTPClient(30 * time.Second)
	assert.Zero(t, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, transport.ResponseHeaderTimeout)
}
