package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/opengate/bridge/internal/common/errors"
	"github.com/opengate/bridge/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

// newTestHost runs a loopback hook endpoint and returns a client bound to it.
func newTestHost(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	client, err := NewClient(port, "host-token", newTestLogger())
	require.NoError(t, err)
	return client
}

func TestSpawnSendsHookPayload(t *testing.T) {
	var got SpawnRequest
	client := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hooks/agent", r.URL.Path)
		require.Equal(t, "Bearer host-token", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	key, err := client.Spawn(context.Background(), "t-1", "agent-1", "do the work", "fast-model")
	require.NoError(t, err)
	require.Equal(t, "opengate:task:t-1", key)

	require.Equal(t, "do the work", got.Message)
	require.Equal(t, "agent-1", got.AgentID)
	require.Equal(t, "opengate:task:t-1", got.SessionKey)
	require.Equal(t, "now", got.WakeMode)
	require.False(t, got.Deliver)
	require.Equal(t, "OpenGate task t-1", got.Name)
	require.Equal(t, "fast-model", got.Model)
}

func TestSpawnAcceptsAccepted(t *testing.T) {
	client := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	key, err := client.Spawn(context.Background(), "t-2", "agent-1", "script", "")
	require.NoError(t, err)
	require.Equal(t, SessionKey("t-2"), key)
}

func TestSpawnRejectionIsSpawnFailed(t *testing.T) {
	client := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session limit reached", http.StatusConflict)
	})

	_, err := client.Spawn(context.Background(), "t-3", "agent-1", "script", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), bridgeerrors.ErrCodeSpawnFailed)
	require.Contains(t, err.Error(), "409")
	require.Contains(t, err.Error(), "session limit reached")
}

func TestSpawnUnreachableHostIsTransient(t *testing.T) {
	// Bind then immediately close to get a port with nothing listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	parsed, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(parsed.Port())
	srv.Close()

	client, err := NewClient(port, "host-token", newTestLogger())
	require.NoError(t, err)

	_, err = client.Spawn(context.Background(), "t-4", "agent-1", "script", "")
	require.Error(t, err)
	require.True(t, bridgeerrors.IsTransient(err))
}

func TestMissingTokenIsConfigError(t *testing.T) {
	_, err := NewClient(18789, "", newTestLogger())
	require.Error(t, err)
	require.True(t, bridgeerrors.IsConfig(err))
}

func TestSessionKey(t *testing.T) {
	require.Equal(t, "opengate:task:abc-123", SessionKey("abc-123"))
}

func TestModelOmittedWhenEmpty(t *testing.T) {
	var raw map[string]interface{}
	client := newTestHost(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.Spawn(context.Background(), "t-5", "agent-1", "script", "")
	require.NoError(t, err)
	_, present := raw["model"]
	require.False(t, present, "empty model must be omitted from the payload")
}
