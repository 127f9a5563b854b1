// Package host provides the client for the local execution host that creates
// isolated agent sessions.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	bridgeerrors "github.com/opengate/bridge/internal/common/errors"
	"github.com/opengate/bridge/internal/common/logger"
)

// SessionKeyPrefix namespaces spawned sessions away from interactive ones.
const SessionKeyPrefix = "opengate:task:"

// SpawnRequest is the payload for the host's session-creation hook.
type SpawnRequest struct {
	Message    string `json:"message"`
	AgentID    string `json:"agentId"`
	SessionKey string `json:"sessionKey"`
	WakeMode   string `json:"wakeMode"`
	Deliver    bool   `json:"deliver"`
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
}

// Client talks to the local execution host. The host token is distinct from
// the server credential; a missing token is a configuration error, not a
// network failure.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a host client bound to the loopback hook endpoint.
func NewClient(port int, token string, log *logger.Logger) (*Client, error) {
	if token == "" {
		return nil, bridgeerrors.Config("host token is not configured")
	}
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.WithFields(zap.String("component", "host-client")),
	}, nil
}

// SessionKey returns the session key the bridge uses for a task's session.
func SessionKey(taskID string) string {
	return SessionKeyPrefix + taskID
}

// Spawn asks the host to create a background session for a task, seeded with
// the bootstrap script. The session is created but not delivered to any live
// surface. On success the session key is returned.
func (c *Client) Spawn(ctx context.Context, taskID, agentID, script, model string) (string, error) {
	req := SpawnRequest{
		Message:    script,
		AgentID:    agentID,
		SessionKey: SessionKey(taskID),
		WakeMode:   "now",
		Deliver:    false,
		Name:       "OpenGate task " + taskID,
		Model:      model,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal spawn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hooks/agent", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", bridgeerrors.Transient("host spawn request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 202 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return "", bridgeerrors.SpawnFailed(taskID,
			fmt.Sprintf("host returned status %d: %s", resp.StatusCode, truncate(buf.String())))
	}

	c.logger.Info("session spawned",
		zap.String("task_id", taskID),
		zap.String("session_key", req.SessionKey),
		zap.Int("status", resp.StatusCode))

	return req.SessionKey, nil
}

func truncate(s string) string {
	const maxLen = 200
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
