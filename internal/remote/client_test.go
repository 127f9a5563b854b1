package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opengate/bridge/internal/common/logger"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	return log
}

func TestInbox(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/agents/me/inbox", r.URL.Path)
		require.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode([]*v1.Task{
			{ID: "t1", Title: "First", Status: v1.TaskStatusTodo},
			{ID: "t2", Title: "Second", Status: v1.TaskStatusInProgress},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key", newTestLogger())
	tasks, err := client.Inbox(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "t1", tasks[0].ID)
	require.Equal(t, v1.TaskStatusInProgress, tasks[1].Status)
}

func TestUnreadNotificationsQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]*v1.Notification{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())

	_, err := client.UnreadNotifications(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "unread=true", gotQuery)

	_, err = client.UnreadNotifications(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, "unread=true&project_id=p-1", gotQuery)
}

func TestAckNotification(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	require.NoError(t, client.AckNotification(context.Background(), "n-9"))
	require.Equal(t, "/api/agents/me/notifications/n-9/ack", gotPath)
}

func TestAckAllNotifications(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/agents/me/notifications/ack-all", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "acknowledged": 4})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	count, err := client.AckAllNotifications(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/projects/p-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(&v1.Project{ID: "p-1", Name: "Importer", RepoURL: "https://example.com/r.git"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	project, err := client.Project(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, "Importer", project.Name)
}

func TestErrorStatusIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "wrong", newTestLogger())
	_, err := client.Inbox(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "bad token")
}

func TestMalformedResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	_, err := client.Inbox(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to parse response")
}

func TestHeartbeat(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	require.NoError(t, client.Heartbeat(context.Background()))
	require.Equal(t, "/api/agents/heartbeat", gotPath)
}

func TestHeartbeatLoopBeatsImmediately(t *testing.T) {
	beats := make(chan struct{}, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		beats <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", newTestLogger())
	loop := NewHeartbeatLoop(client, time.Hour, newTestLogger())
	loop.Start(context.Background())
	defer loop.Stop()

	select {
	case <-beats:
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat sent on start")
	}

	loop.Stop()
	loop.Stop() // idempotent
}

func TestBaseURLNormalized(t *testing.T) {
	client := NewClient("http://example.com/", "k", newTestLogger())
	require.Equal(t, "http://example.com", client.BaseURL())
}
