package prompt

import (
	"fmt"
	"sort"
	"strings"

	"workpilot/internal/assistant/action"
	"workpilot/internal/domain"
)

const (
	maxMembers          = 10
	maxProjects         = 20
	maxClients          = 20
	maxMyTasks          = 15
	maxInbox            = 5
	maxAttachmentRunes  = 5000
	none                = "None"
	truncatedAttachment = "[...truncated]"
)

// BuildSystemPrompt renders ctx deterministically. Missing data renders as "None".
func BuildSystemPrompt(ctx ChatContext) string {
	var b strings.Builder
	s := ctx.Snapshot

	fmt.Fprintf(&b, "You are Workpilot, the project-management assistant for %s.\n", orNone(s.Organization.Name))
	b.WriteString("Answer concisely. When the user asks for a change, propose it with the action protocol described at the end.\n")

	section(&b, "Current view")
	fmt.Fprintf(&b, "Page: %s\n", orNone(ctx.Page))
	fmt.Fprintf(&b, "Focused project: %s\n", orNone(projectLabel(s, ctx.FocusProjectID)))
	fmt.Fprintf(&b, "Focused client: %s\n", orNone(clientLabel(s, ctx.FocusClientID)))
	fmt.Fprintf(&b, "Active filters: %s\n", filters(ctx.Filters))

	section(&b, "Organization")
	fmt.Fprintf(&b, "Name: %s\n", orNone(s.Organization.Name))
	fmt.Fprintf(&b, "Current user: %s\n", orNone(memberLabel(s, s.CurrentUserID)))

	section(&b, fmt.Sprintf("Members (%d)", len(s.Members)))
	list(&b, len(s.Members), maxMembers, true, func(i int) string {
		m := s.Members[i]
		line := fmt.Sprintf("%s (%s)", orNone(m.Name), orNone(m.Role))
		if m.Email != "" {
			line += " <" + m.Email + ">"
		}
		return line
	})

	section(&b, fmt.Sprintf("Teams (%d)", len(s.Teams)))
	list(&b, len(s.Teams), 0, false, func(i int) string {
		t := s.Teams[i]
		return fmt.Sprintf("%s: %d members", orNone(t.Name), len(t.MemberIDs))
	})

	section(&b, fmt.Sprintf("Projects (%d)", len(s.Projects)))
	list(&b, len(s.Projects), maxProjects, true, func(i int) string {
		p := s.Projects[i]
		line := fmt.Sprintf("%s [%s]", orNone(p.Name), orNone(p.Status))
		if p.ClientID != nil {
			line += " for " + orNone(clientName(s, *p.ClientID))
		}
		return line
	})

	section(&b, fmt.Sprintf("Clients (%d)", len(s.Clients)))
	list(&b, len(s.Clients), maxClients, true, func(i int) string {
		c := s.Clients[i]
		return fmt.Sprintf("%s [%s]", orNone(c.Name), orNone(c.Status))
	})

	section(&b, fmt.Sprintf("My tasks (%d)", len(s.MyTasks)))
	list(&b, len(s.MyTasks), maxMyTasks, false, func(i int) string {
		return taskLine(s, s.MyTasks[i])
	})

	section(&b, fmt.Sprintf("Unread inbox (%d)", len(s.UnreadInbox)))
	list(&b, len(s.UnreadInbox), maxInbox, false, func(i int) string {
		return orNone(s.UnreadInbox[i].Title)
	})

	if cp := s.CurrentProject; cp != nil {
		writeProjectDetail(&b, s, cp)
	}
	if cc := s.CurrentClient; cc != nil {
		writeClientDetail(&b, cc)
	}
	if len(ctx.Attachments) > 0 {
		writeAttachments(&b, ctx.Attachments)
	}
	writeProtocol(&b, s)
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n## ")
	b.WriteString(title)
	b.WriteString("\n")
}

// list renders up to limit items (0 means no limit). With moreSuffix the overflow count is shown.
func list(b *strings.Builder, n, limit int, moreSuffix bool, item func(int) string) {
	if n == 0 {
		b.WriteString(none + "\n")
		return
	}
	shown := n
	if limit > 0 && n > limit {
		shown = limit
	}
	for i := 0; i < shown; i++ {
		b.WriteString("- ")
		b.WriteString(item(i))
		b.WriteString("\n")
	}
	if moreSuffix && shown < n {
		fmt.Fprintf(b, "...and %d more\n", n-shown)
	}
}

func writeProjectDetail(b *strings.Builder, s Snapshot, cp *ProjectDetail) {
	p := cp.Project
	section(b, "Current project: "+orNone(p.Name))
	fmt.Fprintf(b, "Status: %s\n", orNone(p.Status))
	fmt.Fprintf(b, "Description: %s\n", orNone(p.Description))
	if p.ClientID != nil {
		fmt.Fprintf(b, "Client: %s\n", orNone(clientName(s, *p.ClientID)))
	}
	b.WriteString("Workstreams:\n")
	list(b, len(cp.Workstreams), 0, false, func(i int) string {
		w := cp.Workstreams[i]
		if w.Description == "" {
			return orNone(w.Name)
		}
		return orNone(w.Name) + ": " + w.Description
	})
	b.WriteString("Tasks:\n")
	list(b, len(cp.Tasks), 0, false, func(i int) string {
		return taskLine(s, cp.Tasks[i])
	})
	b.WriteString("Members:\n")
	list(b, len(cp.Members), 0, false, func(i int) string {
		m := cp.Members[i]
		return fmt.Sprintf("%s (%s)", orNone(memberName(s, m.ActorID)), orNone(m.Role))
	})
	b.WriteString("Notes:\n")
	list(b, len(cp.Notes), 0, false, func(i int) string {
		return orNone(cp.Notes[i].Title)
	})
}

func writeClientDetail(b *strings.Builder, cc *ClientDetail) {
	c := cc.Client
	section(b, "Current client: "+orNone(c.Name))
	fmt.Fprintf(b, "Status: %s\n", orNone(c.Status))
	fmt.Fprintf(b, "Email: %s\n", orNone(c.Email))
	fmt.Fprintf(b, "Phone: %s\n", orNone(c.Phone))
	b.WriteString("Projects:\n")
	list(b, len(cc.Projects), 0, false, func(i int) string {
		p := cc.Projects[i]
		return fmt.Sprintf("%s [%s]", orNone(p.Name), orNone(p.Status))
	})
}

func writeAttachments(b *strings.Builder, atts []Attachment) {
	section(b, "Attached documents")
	for i, a := range atts {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("document %d", i+1)
		}
		fmt.Fprintf(b, "### %s\n", name)
		b.WriteString(excerpt(a.Content))
		b.WriteString("\n")
	}
}

// excerpt caps content at maxAttachmentRunes characters.
func excerpt(content string) string {
	if content == "" {
		return none
	}
	runes := []rune(content)
	if len(runes) <= maxAttachmentRunes {
		return content
	}
	return string(runes[:maxAttachmentRunes]) + "\n" + truncatedAttachment
}

func writeProtocol(b *strings.Builder, s Snapshot) {
	section(b, "Actions")
	b.WriteString("You can change data by appending exactly one marker line to the end of your reply:\n")
	b.WriteString("ACTION_JSON: {\"type\": \"<action type>\", \"data\": {...}}\n")
	b.WriteString("or, for several changes that must run in order:\n")
	b.WriteString("ACTIONS_JSON: [{\"type\": \"...\", \"data\": {...}}, ...]\n")
	b.WriteString("Write the JSON on the marker line, without code fences. Explain the change in plain text before the marker.\n\n")
	b.WriteString("Action types (required fields; optional fields):\n")
	for _, spec := range action.Specs {
		fmt.Fprintf(b, "- %s: %s", spec.Type, strings.Join(spec.Required, ", "))
		if len(spec.Optional) > 0 {
			fmt.Fprintf(b, "; optional %s", strings.Join(spec.Optional, ", "))
		}
		if spec.Note != "" {
			fmt.Fprintf(b, " (%s)", spec.Note)
		}
		b.WriteString("\n")
	}
	b.WriteString("Allowed values:\n")
	for _, hint := range action.EnumHints() {
		fmt.Fprintf(b, "- %s\n", hint)
	}

	b.WriteString("\nPlaceholders: inside ACTIONS_JSON, a later action can refer to an entity created earlier in the same list with ")
	b.WriteString(strings.Join([]string{action.NewProjectID, action.NewWorkstreamID, action.NewTaskID, action.NewClientID}, ", "))
	b.WriteString(". Each placeholder always means the most recently created entity of that kind, so reference it before creating another one of the same kind. Never invent ids; use the ids below.\n")

	section(b, "Reference ids")
	fmt.Fprintf(b, "Organization: %s\n", orNone(s.Organization.ID))
	fmt.Fprintf(b, "Current user: %s\n", orNone(s.CurrentUserID))
	b.WriteString("Members:\n")
	list(b, len(s.Members), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", s.Members[i].ActorID, orNone(s.Members[i].Name))
	})
	b.WriteString("Teams:\n")
	list(b, len(s.Teams), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", s.Teams[i].ID, orNone(s.Teams[i].Name))
	})
	b.WriteString("Projects:\n")
	list(b, len(s.Projects), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", s.Projects[i].ID, orNone(s.Projects[i].Name))
	})
	b.WriteString("Clients:\n")
	list(b, len(s.Clients), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", s.Clients[i].ID, orNone(s.Clients[i].Name))
	})
	var workstreams []domain.Workstream
	if s.CurrentProject != nil {
		workstreams = s.CurrentProject.Workstreams
	}
	b.WriteString("Workstreams:\n")
	list(b, len(workstreams), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", workstreams[i].ID, orNone(workstreams[i].Name))
	})
	tasks := referenceTasks(s)
	b.WriteString("Tasks:\n")
	list(b, len(tasks), 0, false, func(i int) string {
		return fmt.Sprintf("%s = %s", tasks[i].ID, orNone(tasks[i].Title))
	})
}

// referenceTasks is my tasks followed by current-project tasks, without duplicates.
func referenceTasks(s Snapshot) []domain.Task {
	seen := map[string]bool{}
	var out []domain.Task
	add := func(ts []domain.Task) {
		for _, t := range ts {
			if !seen[t.ID] {
				seen[t.ID] = true
				out = append(out, t)
			}
		}
	}
	add(s.MyTasks)
	if s.CurrentProject != nil {
		add(s.CurrentProject.Tasks)
	}
	return out
}

func taskLine(s Snapshot, t domain.Task) string {
	line := fmt.Sprintf("%s [%s, %s]", orNone(t.Title), orNone(t.Status), orNone(t.Priority))
	if name := projectName(s, t.ProjectID); name != "" {
		line += " in " + name
	}
	if t.AssigneeID != nil {
		line += " assigned to " + orNone(memberName(s, *t.AssigneeID))
	}
	return line
}

func filters(f map[string]string) string {
	if len(f) == 0 {
		return none
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+orNone(f[k]))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return none
	}
	return s
}

func projectName(s Snapshot, id string) string {
	for _, p := range s.Projects {
		if p.ID == id {
			return p.Name
		}
	}
	if s.CurrentProject != nil && s.CurrentProject.Project.ID == id {
		return s.CurrentProject.Project.Name
	}
	return ""
}

func projectLabel(s Snapshot, id string) string {
	if id == "" {
		return ""
	}
	if name := projectName(s, id); name != "" {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return id
}

func clientName(s Snapshot, id string) string {
	for _, c := range s.Clients {
		if c.ID == id {
			return c.Name
		}
	}
	if s.CurrentClient != nil && s.CurrentClient.Client.ID == id {
		return s.CurrentClient.Client.Name
	}
	return id
}

func clientLabel(s Snapshot, id string) string {
	if id == "" {
		return ""
	}
	if name := clientName(s, id); name != id {
		return fmt.Sprintf("%s (%s)", name, id)
	}
	return id
}

func memberName(s Snapshot, actorID string) string {
	for _, m := range s.Members {
		if m.ActorID == actorID {
			return m.Name
		}
	}
	return actorID
}

func memberLabel(s Snapshot, actorID string) string {
	if actorID == "" {
		return ""
	}
	if name := memberName(s, actorID); name != actorID {
		return fmt.Sprintf("%s (%s)", name, actorID)
	}
	return actorID
}
