// Package format renders server events into human-readable advisories for a
// live agent session. Everything here is pure string mapping with no side
// effects.
package format

import (
	"fmt"
	"strings"

	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// Advisory is the rendered form of a single event: a headline, a multi-line
// body, and the suggested next server calls.
type Advisory struct {
	Headline    string
	Body        string
	NextActions []string
}

// Event renders a single event. Unrecognized event types fall back to a
// generic work-queue reminder, so this function is total.
func Event(ev v1.Event) Advisory {
	a := Advisory{Headline: headline(ev)}

	switch ev.Type {
	case v1.EventTaskAssigned:
		a.Body = "A task has been assigned to you."
		a.NextActions = []string{
			"GET /api/agents/me/inbox to see the full task",
			fmt.Sprintf("POST /api/tasks/%s/claim to start working on it", taskRef(ev)),
		}
	case v1.EventTaskDependencyReady:
		a.Body = "A task you depend on has completed; its outputs are available."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s to read the upstream outputs", taskRef(ev)),
			"GET /api/agents/me/inbox to check whether your task is now unblocked",
		}
	case v1.EventTaskUnblocked:
		a.Body = "A previously blocked task is ready again."
		a.NextActions = []string{
			fmt.Sprintf("POST /api/tasks/%s/claim to resume it", taskRef(ev)),
		}
	case v1.EventTaskReviewRequested:
		a.Body = "Your review has been requested."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s to read the work under review", taskRef(ev)),
			fmt.Sprintf("POST /api/tasks/%s/approve or POST /api/tasks/%s/request-changes when done",
				taskRef(ev), taskRef(ev)),
		}
	case v1.EventTaskChangesRequested:
		a.Body = "A reviewer requested changes on your task."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s/activity to read the review feedback", taskRef(ev)),
			"Address the feedback, then move the task back to review",
		}
	case v1.EventTaskApproved:
		a.Body = "Your task passed review."
		a.NextActions = []string{
			fmt.Sprintf("POST /api/tasks/%s/complete to close it out", taskRef(ev)),
		}
	case v1.EventTaskHandoff:
		a.Body = "A task has been handed off to you mid-flight. Read its history before continuing."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s/activity to see what the previous agent did", taskRef(ev)),
			fmt.Sprintf("POST /api/tasks/%s/claim to take it over", taskRef(ev)),
		}
	case v1.EventComment:
		a.Body = "Someone commented on a task you are involved in."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s/activity to read the comment", taskRef(ev)),
			fmt.Sprintf("POST /api/tasks/%s/comments to reply if needed", taskRef(ev)),
		}
	case v1.EventTaskBlocked:
		a.Body = "One of your tasks is now blocked."
		a.NextActions = []string{
			fmt.Sprintf("GET /api/tasks/%s to see what it is waiting on", taskRef(ev)),
		}
	case v1.EventTaskCompleted:
		a.Body = "A task in your project has completed."
		a.NextActions = []string{
			"GET /api/agents/me/inbox to check for newly unblocked work",
		}
	default:
		a.Body = "Something changed in your work queue."
		a.NextActions = []string{
			"GET /api/agents/me/inbox to check your work queue",
		}
	}

	return a
}

// Text renders a single event into a plain multi-line string.
func Text(ev v1.Event) string {
	a := Event(ev)

	var b strings.Builder
	b.WriteString(a.Headline)
	b.WriteString("\n")
	b.WriteString(a.Body)
	if ev.Body != "" {
		b.WriteString("\n> ")
		b.WriteString(strings.ReplaceAll(ev.Body, "\n", "\n> "))
	}
	for _, action := range a.NextActions {
		b.WriteString("\n  - ")
		b.WriteString(action)
	}
	return b.String()
}

// Digest renders a batch of notifications as a numbered digest, one block per
// notification, with a closing call-to-action line. Empty batches render as
// an empty string.
func Digest(notifications []*v1.Notification) string {
	if len(notifications) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d unread notification%s from OpenGate:\n",
		len(notifications), plural(len(notifications)))

	for i, n := range notifications {
		fmt.Fprintf(&b, "\n%d. %s", i+1, Text(n.Event()))
		b.WriteString("\n")
	}

	b.WriteString("\nWhen you have handled these, check GET /api/agents/me/inbox for anything else waiting on you.")
	return b.String()
}

func headline(ev v1.Event) string {
	title := ev.Title
	if title == "" {
		title = ev.Type
	}
	if title == "" {
		title = "update"
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", eventLabel(ev.Type)))
	if ev.Priority == v1.PriorityUrgent || ev.Priority == v1.PriorityHigh {
		parts = append(parts, fmt.Sprintf("(%s)", ev.Priority))
	}
	parts = append(parts, title)
	return strings.Join(parts, " ")
}

func eventLabel(eventType string) string {
	if eventType == "" {
		return "update"
	}
	return eventType
}

func taskRef(ev v1.Event) string {
	if ev.TaskID != "" {
		return ev.TaskID
	}
	return "<task-id>"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
