package action

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	Method string
	Arg    any
}

// fakeBoundary records every call and hands out sequential ids.
type fakeBoundary struct {
	calls []call
	seq   int
	fail  map[string]error
}

func (f *fakeBoundary) record(method string, arg any) error {
	f.calls = append(f.calls, call{Method: method, Arg: arg})
	return f.fail[method]
}

func (f *fakeBoundary) create(method, prefix string, arg any) (string, error) {
	if err := f.record(method, arg); err != nil {
		return "", err
	}
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq), nil
}

func (f *fakeBoundary) CreateTask(_ context.Context, in CreateTaskData) (string, error) {
	return f.create("CreateTask", "task", in)
}
func (f *fakeBoundary) UpdateTask(_ context.Context, in UpdateTaskData) error {
	return f.record("UpdateTask", in)
}
func (f *fakeBoundary) DeleteTask(_ context.Context, in DeleteTaskData) error {
	return f.record("DeleteTask", in)
}
func (f *fakeBoundary) AssignTask(_ context.Context, in AssignTaskData) error {
	return f.record("AssignTask", in)
}
func (f *fakeBoundary) CreateProject(_ context.Context, in CreateProjectData) (string, error) {
	return f.create("CreateProject", "proj", in)
}
func (f *fakeBoundary) UpdateProject(_ context.Context, in UpdateProjectData) error {
	return f.record("UpdateProject", in)
}
func (f *fakeBoundary) CreateWorkstream(_ context.Context, in CreateWorkstreamData) (string, error) {
	return f.create("CreateWorkstream", "ws", in)
}
func (f *fakeBoundary) UpdateWorkstream(_ context.Context, in UpdateWorkstreamData) error {
	return f.record("UpdateWorkstream", in)
}
func (f *fakeBoundary) CreateClient(_ context.Context, in CreateClientData) (string, error) {
	return f.create("CreateClient", "client", in)
}
func (f *fakeBoundary) UpdateClient(_ context.Context, in UpdateClientData) error {
	return f.record("UpdateClient", in)
}
func (f *fakeBoundary) CreateNote(_ context.Context, in CreateNoteData) (string, error) {
	return f.create("CreateNote", "note", in)
}
func (f *fakeBoundary) AddProjectMember(_ context.Context, in AddProjectMemberData) error {
	return f.record("AddProjectMember", in)
}
func (f *fakeBoundary) AddTeamMember(_ context.Context, in AddTeamMemberData) error {
	return f.record("AddTeamMember", in)
}
func (f *fakeBoundary) ChangeTheme(_ context.Context, in ChangeThemeData) error {
	return f.record("ChangeTheme", in)
}

func TestExecuteResolvesProjectPlaceholder(t *testing.T) {
	res := Parse(`ACTIONS_JSON: [{"type":"create_project","data":{"name":"Q1"}},{"type":"create_workstream","data":{"name":"Phase 1","projectId":"$NEW_PROJECT_ID"}}]`)
	require.Equal(t, Parsed, res.Outcome)

	b := &fakeBoundary{}
	outcomes := Executor{Boundary: b}.Execute(context.Background(), NewBatch(res.Actions))

	require.Len(t, outcomes, 2)
	assert.Equal(t, Succeeded, outcomes[0].Status)
	assert.Equal(t, Succeeded, outcomes[1].Status)
	projectID := outcomes[0].EntityID
	require.Len(t, b.calls, 2)
	ws := b.calls[1].Arg.(CreateWorkstreamData)
	assert.Equal(t, projectID, ws.ProjectID)
	assert.Equal(t, "Phase 1", ws.Name)
}

func TestExecuteUnboundPlaceholderSkipsBoundary(t *testing.T) {
	b := &fakeBoundary{}
	batch := NewBatch([]ProposedAction{
		{Type: CreateTask, Data: map[string]any{"title": "Orphan", "projectId": "$NEW_PROJECT_ID"}},
	})
	outcomes := Executor{Boundary: b}.Execute(context.Background(), batch)

	require.Len(t, outcomes, 1)
	assert.Equal(t, Failed, outcomes[0].Status)
	assert.Equal(t, ErrorPlaceholder, outcomes[0].ErrorKind)
	var pe *PlaceholderError
	require.ErrorAs(t, outcomes[0].Err, &pe)
	assert.Equal(t, NewProjectID, pe.Token)
	assert.Empty(t, b.calls, "boundary must not be called")
}

func TestExecuteContinuesAfterFailures(t *testing.T) {
	b := &fakeBoundary{fail: map[string]error{"DeleteTask": errors.New("task not found")}}
	batch := NewBatch([]ProposedAction{
		{Type: DeleteTask, Data: map[string]any{"taskId": "missing"}},
		{Type: CreateTask, Data: map[string]any{"projectId": "p1"}},
		{Type: "launch_rocket", Data: map[string]any{}},
		{Type: ChangeTheme, Data: map[string]any{"theme": "neon"}},
		{Type: CreateClient, Data: map[string]any{"name": "Acme"}},
	})
	outcomes := Executor{Boundary: b}.Execute(context.Background(), batch)

	type row struct {
		Index  int
		Status Status
		Kind   ErrorKind
	}
	var got []row
	for _, o := range outcomes {
		got = append(got, row{o.Index, o.Status, o.ErrorKind})
	}
	want := []row{
		{0, Failed, ErrorDispatch},
		{1, Failed, ErrorValidation},
		{2, Failed, ErrorValidation},
		{3, Failed, ErrorValidation},
		{4, Succeeded, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, outcomes[0].Error, "task not found")
	assert.Contains(t, outcomes[1].Error, "title is required")
	assert.Contains(t, outcomes[3].Error, "theme must be one of light dark system")
	assert.Equal(t, []string{"DeleteTask", "CreateClient"}, methods(b.calls))
}

// A second create of the same kind rebinds the placeholder: later references see the newest id
// and the first id can no longer be reached through the token.
func TestExecuteMostRecentCreateWins(t *testing.T) {
	b := &fakeBoundary{}
	batch := NewBatch([]ProposedAction{
		{Type: CreateTask, Data: map[string]any{"title": "A", "projectId": "p1"}},
		{Type: CreateTask, Data: map[string]any{"title": "B", "projectId": "p1"}},
		{Type: AssignTask, Data: map[string]any{"taskId": "$NEW_TASK_ID", "assigneeId": "u1"}},
	})
	outcomes := Executor{Boundary: b}.Execute(context.Background(), batch)
	require.Len(t, outcomes, 3)
	first, second := outcomes[0].EntityID, outcomes[1].EntityID
	require.NotEqual(t, first, second)

	assign := b.calls[2].Arg.(AssignTaskData)
	assert.Equal(t, second, assign.TaskID)
	id, ok := batch.Binding(NewTaskID)
	assert.True(t, ok)
	assert.Equal(t, second, id)
}

func TestExecuteBindingSurvivesLaterFailure(t *testing.T) {
	b := &fakeBoundary{fail: map[string]error{"CreateWorkstream": errors.New("boom")}}
	batch := NewBatch([]ProposedAction{
		{Type: CreateProject, Data: map[string]any{"name": "P"}},
		{Type: CreateWorkstream, Data: map[string]any{"name": "W", "projectId": "$NEW_PROJECT_ID"}},
		{Type: CreateNote, Data: map[string]any{"title": "N", "projectId": "$NEW_PROJECT_ID"}},
		{Type: UpdateWorkstream, Data: map[string]any{"workstreamId": "$NEW_WORKSTREAM_ID"}},
	})
	outcomes := Executor{Boundary: b}.Execute(context.Background(), batch)
	assert.Equal(t, Succeeded, outcomes[2].Status)
	assert.Equal(t, outcomes[0].EntityID, b.calls[2].Arg.(CreateNoteData).ProjectID)
	assert.Equal(t, ErrorPlaceholder, outcomes[3].ErrorKind, "failed create must not bind")
}

func TestExecuteResolvesNestedStrings(t *testing.T) {
	batch := NewBatch(nil)
	batch.bind(NewClientID, "c-42")
	got, err := batch.resolve(map[string]any{
		"clientId": "$NEW_CLIENT_ID",
		"tags":     []any{"client:$NEW_CLIENT_ID", 3},
		"meta":     map[string]any{"ref": "x-$NEW_CLIENT_ID"},
	})
	require.NoError(t, err)
	want := map[string]any{
		"clientId": "c-42",
		"tags":     []any{"client:c-42", 3},
		"meta":     map[string]any{"ref": "x-c-42"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignTaskNullUnassigns(t *testing.T) {
	b := &fakeBoundary{}
	batch := NewBatch([]ProposedAction{
		{Type: AssignTask, Data: map[string]any{"taskId": "t1", "assigneeId": nil}},
		{Type: AssignTask, Data: map[string]any{"taskId": "t1"}},
		{Type: UpdateTask, Data: map[string]any{"taskId": "t1", "status": "done"}},
	})
	outcomes := Executor{Boundary: b}.Execute(context.Background(), batch)
	require.Equal(t, Succeeded, outcomes[0].Status)
	assign := b.calls[0].Arg.(AssignTaskData)
	assert.True(t, assign.AssigneeID.Set)
	assert.Nil(t, assign.AssigneeID.Value)

	assert.Equal(t, ErrorValidation, outcomes[1].ErrorKind)

	require.Equal(t, Succeeded, outcomes[2].Status)
	upd := b.calls[1].Arg.(UpdateTaskData)
	assert.False(t, upd.AssigneeID.Set, "absent assignee leaves it unchanged")
	require.NotNil(t, upd.Status)
	assert.Equal(t, "done", *upd.Status)
}

func TestEverySpecDispatchesToOneMethod(t *testing.T) {
	valid := map[Type]map[string]any{
		CreateTask:       {"title": "t", "projectId": "p"},
		UpdateTask:       {"taskId": "t"},
		DeleteTask:       {"taskId": "t"},
		AssignTask:       {"taskId": "t", "assigneeId": "u"},
		CreateProject:    {"name": "p"},
		UpdateProject:    {"projectId": "p"},
		CreateWorkstream: {"name": "w", "projectId": "p"},
		UpdateWorkstream: {"workstreamId": "w"},
		CreateClient:     {"name": "c"},
		UpdateClient:     {"clientId": "c"},
		CreateNote:       {"title": "n", "projectId": "p"},
		AddProjectMember: {"projectId": "p", "userId": "u", "role": "member"},
		AddTeamMember:    {"teamId": "t", "userId": "u"},
		ChangeTheme:      {"theme": "light"},
	}
	require.Len(t, Specs, len(valid))
	for _, spec := range Specs {
		b := &fakeBoundary{}
		out := Executor{Boundary: b}.Execute(context.Background(), NewBatch([]ProposedAction{{Type: spec.Type, Data: valid[spec.Type]}}))
		require.Equal(t, Succeeded, out[0].Status, "%s: %s", spec.Type, out[0].Error)
		assert.Len(t, b.calls, 1, spec.Type)
		assert.Equal(t, spec.Binds != "" || spec.Type == CreateNote, out[0].EntityID != "", spec.Type)
	}
}

func methods(calls []call) []string {
	var out []string
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}
