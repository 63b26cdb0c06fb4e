// Package action turns model replies into proposed mutations and runs them in order.
package action

type Type string

const (
	CreateTask       Type = "create_task"
	UpdateTask       Type = "update_task"
	DeleteTask       Type = "delete_task"
	AssignTask       Type = "assign_task"
	CreateProject    Type = "create_project"
	UpdateProject    Type = "update_project"
	CreateWorkstream Type = "create_workstream"
	UpdateWorkstream Type = "update_workstream"
	CreateClient     Type = "create_client"
	UpdateClient     Type = "update_client"
	CreateNote       Type = "create_note"
	AddProjectMember Type = "add_project_member"
	AddTeamMember    Type = "add_team_member"
	ChangeTheme      Type = "change_theme"
)

// Placeholder tokens a model may use for ids created earlier in the same batch.
const (
	NewProjectID    = "$NEW_PROJECT_ID"
	NewWorkstreamID = "$NEW_WORKSTREAM_ID"
	NewTaskID       = "$NEW_TASK_ID"
	NewClientID     = "$NEW_CLIENT_ID"
)

var placeholders = []string{NewProjectID, NewWorkstreamID, NewTaskID, NewClientID}

// ProposedAction is one mutation suggested by the model. Data is untyped until execution.
type ProposedAction struct {
	Type Type           `json:"type"`
	Data map[string]any `json:"data"`
}

// Spec describes an action type for prompts and dispatch.
type Spec struct {
	Type     Type
	Required []string
	Optional []string
	// Binds is the placeholder set to the created id on success, if any.
	Binds   string
	Note    string
	payload func() payload
}

// Specs is the closed set of supported actions in prompt order.
var Specs = []Spec{
	{Type: CreateTask, Required: []string{"title", "projectId"}, Optional: []string{"workstreamId", "assigneeId", "priority", "description"}, Binds: NewTaskID,
		payload: func() payload { return &CreateTaskData{} }},
	{Type: UpdateTask, Required: []string{"taskId"}, Optional: []string{"title", "status", "priority", "assigneeId"},
		payload: func() payload { return &UpdateTaskData{} }},
	{Type: DeleteTask, Required: []string{"taskId"},
		payload: func() payload { return &DeleteTaskData{} }},
	{Type: AssignTask, Required: []string{"taskId", "assigneeId"}, Note: "assigneeId may be null to unassign",
		payload: func() payload { return &AssignTaskData{} }},
	{Type: CreateProject, Required: []string{"name"}, Optional: []string{"description", "clientId"}, Binds: NewProjectID,
		payload: func() payload { return &CreateProjectData{} }},
	{Type: UpdateProject, Required: []string{"projectId"}, Optional: []string{"name", "status", "description"},
		payload: func() payload { return &UpdateProjectData{} }},
	{Type: CreateWorkstream, Required: []string{"name", "projectId"}, Optional: []string{"description"}, Binds: NewWorkstreamID,
		payload: func() payload { return &CreateWorkstreamData{} }},
	{Type: UpdateWorkstream, Required: []string{"workstreamId"}, Optional: []string{"name", "description"},
		payload: func() payload { return &UpdateWorkstreamData{} }},
	{Type: CreateClient, Required: []string{"name"}, Optional: []string{"email", "phone"}, Binds: NewClientID,
		payload: func() payload { return &CreateClientData{} }},
	{Type: UpdateClient, Required: []string{"clientId"}, Optional: []string{"name", "email", "phone", "status"},
		payload: func() payload { return &UpdateClientData{} }},
	{Type: CreateNote, Required: []string{"title", "projectId"}, Optional: []string{"content"},
		payload: func() payload { return &CreateNoteData{} }},
	{Type: AddProjectMember, Required: []string{"projectId", "userId", "role"},
		payload: func() payload { return &AddProjectMemberData{} }},
	{Type: AddTeamMember, Required: []string{"teamId", "userId"},
		payload: func() payload { return &AddTeamMemberData{} }},
	{Type: ChangeTheme, Required: []string{"theme"}, Note: "theme is light, dark or system",
		payload: func() payload { return &ChangeThemeData{} }},
}

func lookup(t Type) (Spec, bool) {
	for _, s := range Specs {
		if s.Type == t {
			return s, true
		}
	}
	return Spec{}, false
}
