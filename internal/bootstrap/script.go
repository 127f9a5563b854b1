// Package bootstrap builds the instruction script handed to a freshly
// spawned session. The builder is deterministic: identical inputs produce
// byte-identical output, which keeps it testable as a pure function.
package bootstrap

import (
	"fmt"
	"strings"

	v1 "github.com/opengate/bridge/pkg/api/v1"
)

// Params carries everything the script depends on. Project may be nil when
// metadata resolution failed; the script then falls back to a scratch
// workspace.
type Params struct {
	Task      *v1.Task
	Project   *v1.Project
	ServerURL string
}

// Script renders the complete operating protocol for a spawned session.
func Script(p Params) string {
	task := p.Task

	var b strings.Builder

	fmt.Fprintf(&b, "You are an autonomous agent working on an OpenGate task. Server: %s\n\n", p.ServerURL)

	b.WriteString("## Task\n")
	fmt.Fprintf(&b, "- ID: %s\n", task.ID)
	fmt.Fprintf(&b, "- Title: %s\n", task.Title)
	if task.Priority != "" {
		fmt.Fprintf(&b, "- Priority: %s\n", task.Priority)
	}
	if len(task.Tags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(task.Tags, ", "))
	}
	if p.Project != nil {
		fmt.Fprintf(&b, "- Project: %s (%s)\n", p.Project.Name, p.Project.ID)
	} else if task.ProjectID != "" {
		fmt.Fprintf(&b, "- Project: %s\n", task.ProjectID)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if len(task.Context) > 0 {
		fmt.Fprintf(&b, "\nStructured context attached to the task:\n%s\n", string(task.Context))
	}

	b.WriteString("\n## Protocol\n")
	b.WriteString("Follow these phases in order. Every server call below requires your bearer credential.\n\n")

	fmt.Fprintf(&b, "1. Claim the task: POST %s/api/tasks/%s/claim. If the claim fails because\n", p.ServerURL, task.ID)
	b.WriteString("   someone else holds it, stop here and do nothing else.\n")

	fmt.Fprintf(&b, "2. Gather context: GET %s/api/tasks/%s for the full task", p.ServerURL, task.ID)
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&b, ", including the\n   outputs of its %d dependency task(s)", len(task.Dependencies))
	}
	b.WriteString(". Read any linked activity with\n")
	fmt.Fprintf(&b, "   GET %s/api/tasks/%s/activity before writing code.\n", p.ServerURL, task.ID)

	fmt.Fprintf(&b, "3. Announce your plan: POST %s/api/tasks/%s/comments with a short summary\n", p.ServerURL, task.ID)
	b.WriteString("   of what you intend to do, so humans and other agents can object early.\n")

	b.WriteString(workspacePhase(p))

	b.WriteString("5. Execute the task. Post progress comments for anything surprising, and ask\n")
	fmt.Fprintf(&b, "   questions via POST %s/api/tasks/%s/questions instead of guessing on\n", p.ServerURL, task.ID)
	b.WriteString("   ambiguous requirements.\n")

	fmt.Fprintf(&b, "6. Report and complete: POST %s/api/tasks/%s/comments with a summary of what\n", p.ServerURL, task.ID)
	fmt.Fprintf(&b, "   changed, then POST %s/api/tasks/%s/complete with your output. If the task\n", p.ServerURL, task.ID)
	b.WriteString("   needs review, request it instead of completing directly.\n")

	return b.String()
}

func workspacePhase(p Params) string {
	if p.Project != nil && p.Project.RepoURL != "" {
		branch := p.Project.DefaultBranch
		if branch == "" {
			branch = "main"
		}
		return fmt.Sprintf("4. Workspace setup: clone %s and check out a new branch from %s\n"+
			"   named after the task ID. Work only inside that checkout.\n",
			p.Project.RepoURL, branch)
	}
	return "4. Workspace setup: no repository is linked to this task. Create a scratch\n" +
		"   directory and keep all produced files there; attach anything durable to the\n" +
		"   task as an artifact when you complete it.\n"
}
