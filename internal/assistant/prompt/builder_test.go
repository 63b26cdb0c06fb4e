package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workpilot/internal/domain"
)

func strp(s string) *string { return &s }

func sampleContext() ChatContext {
	snap := Snapshot{
		Organization:  domain.Organization{ID: "org-1", Name: "Acme"},
		CurrentUserID: "u1",
		Members: []domain.Member{
			{ActorID: "u1", Name: "Ada", Role: "owner", Email: "ada@example.com"},
			{ActorID: "u2", Name: "Grace", Role: "member"},
		},
		Teams:    []domain.Team{{ID: "team-1", Name: "Core", MemberIDs: []string{"u1", "u2"}}},
		Projects: []domain.Project{{ID: "p1", Name: "Website", Status: "active", ClientID: strp("c1")}},
		Clients:  []domain.Client{{ID: "c1", Name: "Globex", Status: "active"}},
		MyTasks:  []domain.Task{{ID: "t1", ProjectID: "p1", Title: "Fix header", Status: "todo", Priority: "high", AssigneeID: strp("u1")}},
		CurrentProject: &ProjectDetail{
			Project:     domain.Project{ID: "p1", Name: "Website", Status: "active"},
			Workstreams: []domain.Workstream{{ID: "w1", ProjectID: "p1", Name: "Design"}},
			Tasks: []domain.Task{
				{ID: "t1", ProjectID: "p1", Title: "Fix header", Status: "todo", Priority: "high"},
				{ID: "t2", ProjectID: "p1", Title: "Write copy", Status: "review", Priority: "low"},
			},
		},
	}
	return ChatContext{
		Page:           "project",
		FocusProjectID: "p1",
		Filters:        map[string]string{"status": "todo", "assignee": "me", "priority": "high"},
		Snapshot:       snap,
	}
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	ctx := sampleContext()
	first := BuildSystemPrompt(ctx)
	for i := 0; i < 20; i++ {
		if got := BuildSystemPrompt(ctx); got != first {
			t.Fatalf("run %d produced different output", i)
		}
	}
	assert.Contains(t, first, "Active filters: assignee=me, priority=high, status=todo")
}

func TestEmptySnapshotRendersNone(t *testing.T) {
	out := BuildSystemPrompt(ChatContext{})
	assert.Contains(t, out, "## Members (0)\nNone\n")
	assert.Contains(t, out, "## Projects (0)\nNone\n")
	assert.Contains(t, out, "## My tasks (0)\nNone\n")
	assert.Contains(t, out, "Page: None")
	assert.Contains(t, out, "Focused project: None")
	for _, bad := range []string{"undefined", "<nil>", "%!"} {
		assert.NotContains(t, out, bad)
	}
}

func TestEmptyMembersRendersNone(t *testing.T) {
	ctx := sampleContext()
	ctx.Snapshot.Members = nil
	out := BuildSystemPrompt(ctx)
	assert.Contains(t, out, "## Members (0)\nNone\n")
	assert.NotContains(t, out, "undefined")
}

func TestTruncationLimits(t *testing.T) {
	var snap Snapshot
	for i := 0; i < 13; i++ {
		snap.Members = append(snap.Members, domain.Member{ActorID: fmt.Sprintf("u%d", i), Name: fmt.Sprintf("Member %02d", i), Role: "member"})
	}
	for i := 0; i < 25; i++ {
		snap.Projects = append(snap.Projects, domain.Project{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Project %02d", i), Status: "active"})
	}
	for i := 0; i < 18; i++ {
		snap.MyTasks = append(snap.MyTasks, domain.Task{ID: fmt.Sprintf("t%d", i), Title: fmt.Sprintf("Task %02d", i), Status: "todo", Priority: "low"})
	}
	for i := 0; i < 8; i++ {
		snap.UnreadInbox = append(snap.UnreadInbox, domain.InboxItem{ID: fmt.Sprintf("i%d", i), Title: fmt.Sprintf("Inbox %02d", i)})
	}
	out := BuildSystemPrompt(ChatContext{Snapshot: snap})

	members := sectionBody(t, out, "## Members (13)")
	assert.Equal(t, 10, strings.Count(members, "- Member"))
	assert.Contains(t, members, "...and 3 more")

	projects := sectionBody(t, out, "## Projects (25)")
	assert.Equal(t, 20, strings.Count(projects, "- Project"))
	assert.Contains(t, projects, "...and 5 more")

	tasks := sectionBody(t, out, "## My tasks (18)")
	assert.Equal(t, 15, strings.Count(tasks, "- Task"))

	inbox := sectionBody(t, out, "## Unread inbox (8)")
	assert.Equal(t, 5, strings.Count(inbox, "- Inbox"))
}

func TestAttachmentTruncation(t *testing.T) {
	long := strings.Repeat("é", maxAttachmentRunes+10)
	out := BuildSystemPrompt(ChatContext{Attachments: []Attachment{
		{Name: "brief.txt", Content: long},
		{Name: "short.txt", Content: "hello"},
	}})
	assert.Contains(t, out, "### brief.txt\n"+strings.Repeat("é", maxAttachmentRunes)+"\n[...truncated]\n")
	assert.Contains(t, out, "### short.txt\nhello\n")
	assert.Equal(t, 1, strings.Count(out, "[...truncated]"))
}

func TestReferenceIDs(t *testing.T) {
	out := BuildSystemPrompt(sampleContext())
	ref := out[strings.Index(out, "## Reference ids"):]
	for _, want := range []string{
		"Organization: org-1",
		"Current user: u1",
		"- p1 = Website",
		"- w1 = Design",
		"- t1 = Fix header",
		"- t2 = Write copy",
		"- c1 = Globex",
		"- team-1 = Core",
	} {
		assert.Contains(t, ref, want)
	}
	assert.Equal(t, 1, strings.Count(ref, "- t1 = "), "tasks are listed once")
	assert.Contains(t, out, "ACTIONS_JSON:")
	assert.Contains(t, out, "$NEW_PROJECT_ID")
	assert.Contains(t, out, "most recently created")
	assert.Contains(t, out, "- create_task: title, projectId; optional workstreamId, assigneeId, priority, description")
	assert.Contains(t, out, "Focused project: Website (p1)")
	assert.Contains(t, out, "- Fix header [todo, high] in Website assigned to Ada")
}

func sectionBody(t *testing.T, out, heading string) string {
	t.Helper()
	i := strings.Index(out, heading)
	require.GreaterOrEqual(t, i, 0, "missing %q", heading)
	rest := out[i+len(heading):]
	if j := strings.Index(rest, "\n## "); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
