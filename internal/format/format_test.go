package format

import (
	"strings"
	"testing"

	v1 "github.com/opengate/bridge/pkg/api/v1"
)

func TestEventKnownTypes(t *testing.T) {
	tests := []struct {
		eventType string
		wantCall  string
	}{
		{v1.EventTaskAssigned, "/claim"},
		{v1.EventTaskDependencyReady, "upstream outputs"},
		{v1.EventTaskReviewRequested, "/approve"},
		{v1.EventTaskChangesRequested, "/activity"},
		{v1.EventTaskApproved, "/complete"},
		{v1.EventTaskHandoff, "/activity"},
		{v1.EventComment, "/comments"},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			text := Text(v1.Event{Type: tt.eventType, TaskID: "t1", Title: "Some task"})
			if !strings.Contains(text, tt.wantCall) {
				t.Errorf("formatted %s missing %q:\n%s", tt.eventType, tt.wantCall, text)
			}
			if !strings.Contains(text, tt.eventType) {
				t.Errorf("formatted %s missing its type label:\n%s", tt.eventType, text)
			}
		})
	}
}

func TestEventUnknownTypeFallsBack(t *testing.T) {
	text := Text(v1.Event{Type: "task.some_future_thing", Title: "Mystery"})
	if !strings.Contains(text, "work queue") {
		t.Errorf("expected generic work-queue fallback, got:\n%s", text)
	}
}

func TestEventTotalOnZeroValue(t *testing.T) {
	// Must never fail, even on an entirely empty event.
	text := Text(v1.Event{})
	if text == "" {
		t.Error("expected non-empty output for zero-value event")
	}
}

func TestHeadlineShowsHighPriority(t *testing.T) {
	text := Text(v1.Event{Type: v1.EventTaskAssigned, Title: "Hot fix", Priority: v1.PriorityUrgent})
	if !strings.Contains(text, "(urgent)") {
		t.Errorf("expected urgent marker in headline:\n%s", text)
	}

	text = Text(v1.Event{Type: v1.EventTaskAssigned, Title: "Routine", Priority: v1.PriorityLow})
	if strings.Contains(text, "(low)") {
		t.Errorf("low priority should not be called out:\n%s", text)
	}
}

func TestDigest(t *testing.T) {
	notifications := []*v1.Notification{
		{ID: "n1", EventType: v1.EventTaskAssigned, Title: "First", TaskID: "t1"},
		{ID: "n2", EventType: v1.EventComment, Title: "Second", TaskID: "t2", Body: "looks wrong"},
		{ID: "n3", EventType: "weird.type", Title: "Third"},
	}

	digest := Digest(notifications)

	if !strings.Contains(digest, "3 unread notifications") {
		t.Errorf("digest missing count line:\n%s", digest)
	}
	for _, marker := range []string{"1. ", "2. ", "3. "} {
		if !strings.Contains(digest, marker) {
			t.Errorf("digest missing numbered block %q:\n%s", marker, digest)
		}
	}
	if !strings.Contains(digest, "> looks wrong") {
		t.Errorf("digest missing quoted body:\n%s", digest)
	}
	if !strings.Contains(digest, "/api/agents/me/inbox") {
		t.Errorf("digest missing closing call-to-action:\n%s", digest)
	}

	// Blocks appear in batch order.
	if strings.Index(digest, "First") > strings.Index(digest, "Second") {
		t.Error("digest blocks out of order")
	}
}

func TestDigestSingular(t *testing.T) {
	digest := Digest([]*v1.Notification{{ID: "n1", EventType: v1.EventComment, Title: "Only"}})
	if !strings.Contains(digest, "1 unread notification from") {
		t.Errorf("expected singular phrasing:\n%s", digest)
	}
}

func TestDigestEmpty(t *testing.T) {
	if got := Digest(nil); got != "" {
		t.Errorf("expected empty digest for empty batch, got %q", got)
	}
}
