package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// Boundary is the domain surface the executor drives. Each action type maps to one method;
// create methods return the new entity id.
type Boundary interface {
	CreateTask(ctx context.Context, in CreateTaskData) (string, error)
	UpdateTask(ctx context.Context, in UpdateTaskData) error
	DeleteTask(ctx context.Context, in DeleteTaskData) error
	AssignTask(ctx context.Context, in AssignTaskData) error
	CreateProject(ctx context.Context, in CreateProjectData) (string, error)
	UpdateProject(ctx context.Context, in UpdateProjectData) error
	CreateWorkstream(ctx context.Context, in CreateWorkstreamData) (string, error)
	UpdateWorkstream(ctx context.Context, in UpdateWorkstreamData) error
	CreateClient(ctx context.Context, in CreateClientData) (string, error)
	UpdateClient(ctx context.Context, in UpdateClientData) error
	CreateNote(ctx context.Context, in CreateNoteData) (string, error)
	AddProjectMember(ctx context.Context, in AddProjectMemberData) error
	AddTeamMember(ctx context.Context, in AddTeamMemberData) error
	ChangeTheme(ctx context.Context, in ChangeThemeData) error
}

type payload interface {
	apply(ctx context.Context, b Boundary) (string, error)
}

// checker is implemented by payloads with rules the struct tags cannot express.
type checker interface {
	check() error
}

// Nullable tracks a JSON field that may be absent, null, or a string.
type Nullable struct {
	Set   bool
	Value *string
}

func (n *Nullable) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("must be a string or null")
	}
	n.Value = &s
	return nil
}

func (n Nullable) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

const (
	taskStatuses    = "todo in_progress review done canceled"
	priorities      = "low medium high urgent"
	projectStatuses = "planned active on_hold completed archived"
	clientStatuses  = "active inactive prospect"
)

type CreateTaskData struct {
	Title        string `json:"title" validate:"required"`
	ProjectID    string `json:"projectId" validate:"required"`
	WorkstreamID string `json:"workstreamId,omitempty"`
	AssigneeID   string `json:"assigneeId,omitempty"`
	Priority     string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	Description  string `json:"description,omitempty"`
}

func (d *CreateTaskData) apply(ctx context.Context, b Boundary) (string, error) {
	return b.CreateTask(ctx, *d)
}

type UpdateTaskData struct {
	TaskID     string   `json:"taskId" validate:"required"`
	Title      *string  `json:"title,omitempty" validate:"omitempty,min=1"`
	Status     *string  `json:"status,omitempty" validate:"omitempty,oneof=todo in_progress review done canceled"`
	Priority   *string  `json:"priority,omitempty" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID Nullable `json:"assigneeId"`
}

func (d *UpdateTaskData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.UpdateTask(ctx, *d)
}

type DeleteTaskData struct {
	TaskID string `json:"taskId" validate:"required"`
}

func (d *DeleteTaskData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.DeleteTask(ctx, *d)
}

type AssignTaskData struct {
	TaskID     string   `json:"taskId" validate:"required"`
	AssigneeID Nullable `json:"assigneeId"`
}

func (d *AssignTaskData) check() error {
	if !d.AssigneeID.Set {
		return &ValidationError{Type: AssignTask, Field: "assigneeId", Reason: "is required (use null to unassign)"}
	}
	if d.AssigneeID.Value != nil && *d.AssigneeID.Value == "" {
		return &ValidationError{Type: AssignTask, Field: "assigneeId", Reason: "must not be empty"}
	}
	return nil
}

func (d *AssignTaskData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.AssignTask(ctx, *d)
}

type CreateProjectData struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
}

func (d *CreateProjectData) apply(ctx context.Context, b Boundary) (string, error) {
	return b.CreateProject(ctx, *d)
}

type UpdateProjectData struct {
	ProjectID   string  `json:"projectId" validate:"required"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=planned active on_hold completed archived"`
	Description *string `json:"description,omitempty"`
}

func (d *UpdateProjectData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.UpdateProject(ctx, *d)
}

type CreateWorkstreamData struct {
	Name        string `json:"name" validate:"required"`
	ProjectID   string `json:"projectId" validate:"required"`
	Description string `json:"description,omitempty"`
}

func (d *CreateWorkstreamData) apply(ctx context.Context, b Boundary) (string, error) {
	return b.CreateWorkstream(ctx, *d)
}

type UpdateWorkstreamData struct {
	WorkstreamID string  `json:"workstreamId" validate:"required"`
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Description  *string `json:"description,omitempty"`
}

func (d *UpdateWorkstreamData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.UpdateWorkstream(ctx, *d)
}

type CreateClientData struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

func (d *CreateClientData) apply(ctx context.Context, b Boundary) (string, error) {
	return b.CreateClient(ctx, *d)
}

type UpdateClientData struct {
	ClientID string  `json:"clientId" validate:"required"`
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    *string `json:"phone,omitempty"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=active inactive prospect"`
}

func (d *UpdateClientData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.UpdateClient(ctx, *d)
}

type CreateNoteData struct {
	Title     string `json:"title" validate:"required"`
	ProjectID string `json:"projectId" validate:"required"`
	Content   string `json:"content,omitempty"`
}

func (d *CreateNoteData) apply(ctx context.Context, b Boundary) (string, error) {
	return b.CreateNote(ctx, *d)
}

type AddProjectMemberData struct {
	ProjectID string `json:"projectId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Role      string `json:"role" validate:"required"`
}

func (d *AddProjectMemberData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.AddProjectMember(ctx, *d)
}

type AddTeamMemberData struct {
	TeamID string `json:"teamId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

func (d *AddTeamMemberData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.AddTeamMember(ctx, *d)
}

type ChangeThemeData struct {
	Theme string `json:"theme" validate:"required,oneof=light dark system"`
}

func (d *ChangeThemeData) apply(ctx context.Context, b Boundary) (string, error) {
	return "", b.ChangeTheme(ctx, *d)
}

// EnumHints lists the accepted values for enumerated fields, matching the validator tags.
func EnumHints() []string {
	return []string{
		"task status: " + taskStatuses,
		"priority: " + priorities,
		"project status: " + projectStatuses,
		"client status: " + clientStatuses,
	}
}
