// Package prompt renders application state into the assistant's system prompt.
package prompt

import "workpilot/internal/domain"

// ChatContext is everything the prompt describes for one request. It is read-only.
type ChatContext struct {
	Page           string
	FocusProjectID string
	FocusClientID  string
	Filters        map[string]string
	Snapshot       Snapshot
	Attachments    []Attachment
}

type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Snapshot is the application data visible to the current user.
type Snapshot struct {
	Organization   domain.Organization
	CurrentUserID  string
	Members        []domain.Member
	Teams          []domain.Team
	Projects       []domain.Project
	Clients        []domain.Client
	MyTasks        []domain.Task
	UnreadInbox    []domain.InboxItem
	CurrentProject *ProjectDetail
	CurrentClient  *ClientDetail
}

type ProjectDetail struct {
	Project     domain.Project
	Workstreams []domain.Workstream
	Tasks       []domain.Task
	Members     []domain.ProjectMember
	Notes       []domain.Note
}

type ClientDetail struct {
	Client   domain.Client
	Projects []domain.Project
}
