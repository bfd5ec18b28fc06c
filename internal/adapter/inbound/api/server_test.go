package api

import (
	"context"
	"edurecovery/internal/config"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureAPIConfig() config.APIConfig {
	return config.APIConfig{Host: "127.0.0.1", Port: "0", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
}

func TestServer_StartServeShutdown(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	server := fixture.server

	require.NoError(t, server.Start(context.Background()))
	assert.True(t, server.IsRunning())
	assert.Error(t, server.Start(context.Background()))

	resp, err := http.Get("http://" + server.Address() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	require.NoError(t, server.Wait())
	assert.False(t, server.IsRunning())
}

func TestServer_StartWithCancelledContext(t *testing.T) {
	fixture := newAPIFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, fixture.server.Start(ctx), context.Canceled)
	assert.False(t, fixture.server.IsRunning())
	assert.NoError(t, fixture.server.Shutdown(context.Background()))
}
