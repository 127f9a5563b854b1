// Package v1 contains the wire types shared with the OpenGate service.
package v1

import "encoding/json"

// TaskStatus represents the lifecycle state of a task on the server.
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "backlog"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusHandoff    TaskStatus = "handoff"
)

// Priority represents task priority as stored by the server.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Event types emitted by the server over the notification and websocket
// channels. The list mirrors the server's routing table; unrecognized types
// must still be deliverable.
const (
	EventTaskAssigned         = "task.assigned"
	EventTaskClaimed          = "task.claimed"
	EventTaskCompleted        = "task.completed"
	EventTaskBlocked          = "task.blocked"
	EventTaskUnblocked        = "task.unblocked"
	EventTaskDependencyReady  = "task.dependency_ready"
	EventTaskReviewRequested  = "task.review_requested"
	EventTaskChangesRequested = "task.changes_requested"
	EventTaskApproved         = "task.approved"
	EventTaskHandoff          = "task.handoff"
	EventComment              = "comment"
)

// Task is a read-only snapshot of a server-side task.
type Task struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Status       TaskStatus      `json:"status"`
	Priority     Priority        `json:"priority"`
	Tags         []string        `json:"tags,omitempty"`
	AssigneeType string          `json:"assignee_type,omitempty"`
	AssigneeID   string          `json:"assignee_id,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

// Project is the server-side project metadata the bridge resolves for
// spawned sessions. RepoURL and DefaultBranch may be empty.
type Project struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	RepoURL       string `json:"repo_url,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// Event is a single realtime event received from the server. It is a tagged
// union keyed by Type; all other fields are optional.
type Event struct {
	Type      string          `json:"type"`
	TaskID    string          `json:"task_id,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	Title     string          `json:"title,omitempty"`
	Body      string          `json:"body,omitempty"`
	Priority  Priority        `json:"priority,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Notification wraps an event for mailbox-style delivery. The server owns
// the read flag; the bridge only acknowledges notifications it has delivered.
type Notification struct {
	ID        string   `json:"id"`
	EventType string   `json:"event_type"`
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	TaskID    string   `json:"task_id,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	Priority  Priority `json:"priority,omitempty"`
	Read      bool     `json:"read"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// Event converts a notification into the equivalent realtime event so both
// delivery paths can share one formatting pipeline.
func (n *Notification) Event() Event {
	return Event{
		Type:      n.EventType,
		TaskID:    n.TaskID,
		ProjectID: n.ProjectID,
		Title:     n.Title,
		Body:      n.Body,
		Priority:  n.Priority,
	}
}
