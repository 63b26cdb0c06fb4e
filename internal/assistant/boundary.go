package assistant

import (
	"context"

	"workpilot/internal/assistant/action"
	"workpilot/internal/engine"
)

// engineBoundary runs actions as one actor inside one organization.
type engineBoundary struct {
	eng     engine.Engine
	orgID   string
	actorID string
}

var _ action.Boundary = engineBoundary{}

func (b engineBoundary) CreateTask(ctx context.Context, in action.CreateTaskData) (string, error) {
	t, err := b.eng.CreateTask(ctx, engine.TaskCreateOptions{
		ProjectID:    in.ProjectID,
		WorkstreamID: in.WorkstreamID,
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		AssigneeID:   in.AssigneeID,
		ActorID:      b.actorID,
	})
	return t.ID, err
}

func (b engineBoundary) UpdateTask(ctx context.Context, in action.UpdateTaskData) error {
	opts := engine.TaskUpdateOptions{Title: in.Title, Status: in.Status, Priority: in.Priority, ActorID: b.actorID}
	if in.AssigneeID.Set {
		opts.SetAssignee = true
		if in.AssigneeID.Value != nil {
			opts.AssigneeID = *in.AssigneeID.Value
		}
	}
	_, err := b.eng.UpdateTask(ctx, in.TaskID, opts)
	return err
}

func (b engineBoundary) DeleteTask(ctx context.Context, in action.DeleteTaskData) error {
	return b.eng.DeleteTask(ctx, in.TaskID, b.actorID)
}

func (b engineBoundary) AssignTask(ctx context.Context, in action.AssignTaskData) error {
	_, err := b.eng.AssignTask(ctx, in.TaskID, in.AssigneeID.Value, b.actorID)
	return err
}

func (b engineBoundary) CreateProject(ctx context.Context, in action.CreateProjectData) (string, error) {
	p, err := b.eng.CreateProject(ctx, engine.ProjectCreateOptions{
		OrgID:       b.orgID,
		Name:        in.Name,
		Description: in.Description,
		ClientID:    in.ClientID,
		ActorID:     b.actorID,
	})
	return p.ID, err
}

func (b engineBoundary) UpdateProject(ctx context.Context, in action.UpdateProjectData) error {
	_, err := b.eng.UpdateProject(ctx, in.ProjectID, engine.ProjectUpdateOptions{
		Name: in.Name, Status: in.Status, Description: in.Description, ActorID: b.actorID,
	})
	return err
}

func (b engineBoundary) CreateWorkstream(ctx context.Context, in action.CreateWorkstreamData) (string, error) {
	w, err := b.eng.CreateWorkstream(ctx, engine.WorkstreamCreateOptions{
		ProjectID: in.ProjectID, Name: in.Name, Description: in.Description, ActorID: b.actorID,
	})
	return w.ID, err
}

func (b engineBoundary) UpdateWorkstream(ctx context.Context, in action.UpdateWorkstreamData) error {
	return b.eng.UpdateWorkstream(ctx, in.WorkstreamID, in.Name, in.Description, b.actorID)
}

func (b engineBoundary) CreateClient(ctx context.Context, in action.CreateClientData) (string, error) {
	c, err := b.eng.CreateClient(ctx, engine.ClientCreateOptions{
		OrgID: b.orgID, Name: in.Name, Email: in.Email, Phone: in.Phone, ActorID: b.actorID,
	})
	return c.ID, err
}

func (b engineBoundary) UpdateClient(ctx context.Context, in action.UpdateClientData) error {
	_, err := b.eng.UpdateClient(ctx, in.ClientID, engine.ClientUpdateOptions{
		Name: in.Name, Email: in.Email, Phone: in.Phone, Status: in.Status, ActorID: b.actorID,
	})
	return err
}

func (b engineBoundary) CreateNote(ctx context.Context, in action.CreateNoteData) (string, error) {
	n, err := b.eng.CreateNote(ctx, in.ProjectID, in.Title, in.Content, b.actorID)
	return n.ID, err
}

func (b engineBoundary) AddProjectMember(ctx context.Context, in action.AddProjectMemberData) error {
	return b.eng.AddProjectMember(ctx, in.ProjectID, in.UserID, in.Role, b.actorID)
}

func (b engineBoundary) AddTeamMember(ctx context.Context, in action.AddTeamMemberData) error {
	return b.eng.AddTeamMember(ctx, in.TeamID, in.UserID, b.actorID)
}

func (b engineBoundary) ChangeTheme(ctx context.Context, in action.ChangeThemeData) error {
	return b.eng.SetTheme(ctx, b.actorID, in.Theme)
}
