// Package remote provides the HTTP client for the OpenGate server API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/opengate/bridge/internal/common/logger"
	v1 "github.com/opengate/bridge/pkg/api/v1"
)

const defaultTimeout = 30 * time.Second

// Client communicates with the OpenGate server over REST. All requests carry
// the agent's bearer credential.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new server client. The base URL is normalized by
// stripping any trailing slash.
func NewClient(baseURL, apiKey string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: log.WithFields(zap.String("component", "remote-client")),
	}
}

// BaseURL returns the normalized server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKey returns the bearer credential used for server requests.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Inbox fetches the agent's actionable tasks.
func (c *Client) Inbox(ctx context.Context) ([]*v1.Task, error) {
	var tasks []*v1.Task
	if err := c.getJSON(ctx, "/api/agents/me/inbox", &tasks); err != nil {
		return nil, fmt.Errorf("failed to fetch inbox: %w", err)
	}
	return tasks, nil
}

// Project fetches project metadata by ID.
func (c *Client) Project(ctx context.Context, id string) (*v1.Project, error) {
	var project v1.Project
	if err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(id), &project); err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", id, err)
	}
	return &project, nil
}

// UnreadNotifications fetches the agent's unread notifications, optionally
// scoped to a project.
func (c *Client) UnreadNotifications(ctx context.Context, projectID string) ([]*v1.Notification, error) {
	path := "/api/agents/me/notifications?unread=true"
	if projectID != "" {
		path += "&project_id=" + url.QueryEscape(projectID)
	}

	var notifications []*v1.Notification
	if err := c.getJSON(ctx, path, &notifications); err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return notifications, nil
}

// AckNotification marks a single delivered notification as read.
func (c *Client) AckNotification(ctx context.Context, id string) error {
	path := "/api/agents/me/notifications/" + url.PathEscape(id) + "/ack"
	if err := c.postJSON(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("failed to ack notification %s: %w", id, err)
	}
	return nil
}

// AckAllNotifications marks every unread notification as read and returns the
// number acknowledged.
func (c *Client) AckAllNotifications(ctx context.Context) (int, error) {
	var result struct {
		OK           bool `json:"ok"`
		Acknowledged int  `json:"acknowledged"`
	}
	if err := c.postJSON(ctx, "/api/agents/me/notifications/ack-all", nil, &result); err != nil {
		return 0, fmt.Errorf("failed to ack all notifications: %w", err)
	}
	return result.Acknowledged, nil
}

// Heartbeat reports bridge liveness so the server does not mark the agent
// stale.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.postJSON(ctx, "/api/agents/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response (status %d, body: %s): %w",
				resp.StatusCode, truncateBody(respBody), err)
		}
	}
	return nil
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncateBody truncates body for error messages to avoid huge logs
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
