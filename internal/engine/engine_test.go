package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"workpilot/internal/config"
	"workpilot/internal/db"
	"workpilot/internal/engine"
	"workpilot/internal/engine/auth"
	"workpilot/internal/migrate"
	"workpilot/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	OrgID  string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitOrg(ctx, engine.OrgInitOptions{ID: "org-1", Name: "Acme", OwnerID: "owner"}); err != nil {
		t.Fatalf("init org: %v", err)
	}
	if _, err := eng.AddMember(ctx, engine.MemberAddOptions{OrgID: "org-1", MemberID: "dev", Name: "Dev", ActorID: "owner"}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, OrgID: "org-1"}
}

func strPtr(s string) *string { return &s }

func TestInitOrgTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.InitOrg(env.Ctx, engine.OrgInitOptions{ID: "org-1", Name: "Again", OwnerID: "owner"}); err == nil {
		t.Fatalf("expected duplicate org error")
	}
}

func TestProjectAndTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Website", ActorID: "owner"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Status != "active" {
		t.Fatalf("expected default status active, got %s", p.Status)
	}
	ws, err := env.Engine.CreateWorkstream(env.Ctx, engine.WorkstreamCreateOptions{ProjectID: p.ID, Name: "Design", ActorID: "owner"})
	if err != nil {
		t.Fatalf("create workstream: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, WorkstreamID: ws.ID, Title: "Mockups", ActorID: "owner", AssigneeID: "dev"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != "todo" || task.Priority != "medium" {
		t.Fatalf("unexpected defaults: %+v", task)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{Status: strPtr("in_progress"), ActorID: "dev"})
	if err != nil || task.Status != "in_progress" {
		t.Fatalf("update task: %v %+v", err, task)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{Status: strPtr("nope"), ActorID: "dev"}); err == nil {
		t.Fatalf("expected invalid status error")
	}
	task, err = env.Engine.AssignTask(env.Ctx, task.ID, nil, "owner")
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if task.AssigneeID != nil {
		t.Fatalf("expected cleared assignee, got %v", *task.AssigneeID)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID, "owner"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, nil, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected task gone, got %v", err)
	}
}

func TestAssignmentNotifiesAssignee(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Ops", ActorID: "owner"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Rotate keys", AssigneeID: "dev", ActorID: "owner"}); err != nil {
		t.Fatal(err)
	}
	items, err := env.Engine.Repo.ListUnreadInbox(env.Ctx, nil, "dev", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Title != "New task: Rotate keys" {
		t.Fatalf("unexpected inbox: %+v", items)
	}
	// self-assignment stays quiet
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Mine", AssigneeID: "owner", ActorID: "owner"}); err != nil {
		t.Fatal(err)
	}
	items, _ = env.Engine.Repo.ListUnreadInbox(env.Ctx, nil, "owner", 10)
	if len(items) != 0 {
		t.Fatalf("expected no self notification, got %d", len(items))
	}
}

func TestTaskRejectsForeignWorkstreamAndUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "A", ActorID: "owner"})
	b, _ := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "B", ActorID: "owner"})
	ws, err := env.Engine.CreateWorkstream(env.Ctx, engine.WorkstreamCreateOptions{ProjectID: b.ID, Name: "Other", ActorID: "owner"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: a.ID, WorkstreamID: ws.ID, Title: "x", ActorID: "owner"}); err == nil {
		t.Fatalf("expected workstream/project mismatch")
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ProjectID: a.ID, Title: "x", AssigneeID: "ghost", ActorID: "owner"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected unknown assignee, got %v", err)
	}
}

func TestMemberCannotCreateProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Nope", ActorID: "dev"})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != auth.PermProjectWrite {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{OrgID: env.OrgID, Name: "Nope", ActorID: "stranger"}); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}
}

func TestClientLinkedProject(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateClient(env.Ctx, engine.ClientCreateOptions{OrgID: env.OrgID, Name: "Globex", Email: "ops@globex.test", ActorID: "owner"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Portal", ClientID: c.ID, ActorID: "owner"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.ClientID == nil || *p.ClientID != c.ID {
		t.Fatalf("expected client link, got %+v", p)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Bad", ClientID: "missing", ActorID: "owner"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected missing client, got %v", err)
	}
	c, err = env.Engine.UpdateClient(env.Ctx, c.ID, engine.ClientUpdateOptions{Status: strPtr("inactive"), ActorID: "owner"})
	if err != nil || c.Status != "inactive" {
		t.Fatalf("update client: %v %+v", err, c)
	}
	list, err := env.Engine.Repo.ListProjects(env.Ctx, nil, repo.ProjectFilter{OrgID: env.OrgID, ClientID: c.ID})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one client project, got %d (%v)", len(list), err)
	}
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Audit", ActorID: "owner"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, p.ID, engine.ProjectUpdateOptions{Status: strPtr("on_hold"), ActorID: "owner"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateNote(env.Ctx, p.ID, "Kickoff", "notes", "dev"); err != nil {
		t.Fatal(err)
	}
	evs, err := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilter{EntityKind: "project", EntityID: p.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Type != "project.updated" || evs[1].Type != "project.created" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestSettingsProviderSwitchClearsKey(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.Settings(env.Ctx, "dev")
	if err != nil || s.Theme != "system" || s.HasAPIKey() {
		t.Fatalf("unexpected defaults: %+v %v", s, err)
	}
	s, err = env.Engine.UpdateSettings(env.Ctx, "dev", engine.SettingsUpdate{Provider: strPtr("openai"), EncryptedAPIKey: []byte("sealed")})
	if err != nil || !s.HasAPIKey() {
		t.Fatalf("save key: %v %+v", err, s)
	}
	s, err = env.Engine.UpdateSettings(env.Ctx, "dev", engine.SettingsUpdate{Provider: strPtr("anthropic")})
	if err != nil {
		t.Fatal(err)
	}
	if s.HasAPIKey() {
		t.Fatalf("expected key cleared after provider switch")
	}
	if err := env.Engine.SetTheme(env.Ctx, "dev", "sepia"); err == nil {
		t.Fatalf("expected invalid theme error")
	}
}

func TestCreateAPIKeyLookup(t *testing.T) {
	env := newTestEnv(t)
	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, "dev", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	if err != nil || got.ID != key.ID || got.ActorID != "dev" {
		t.Fatalf("lookup: %v %+v", err, got)
	}
}

func TestTeams(t *testing.T) {
	env := newTestEnv(t)
	team, err := env.Engine.CreateTeam(env.Ctx, env.OrgID, "Platform", "owner")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AddTeamMember(env.Ctx, team.ID, "dev", "owner"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.AddTeamMember(env.Ctx, team.ID, "ghost", "owner"); err == nil {
		t.Fatalf("expected unknown member error")
	}
	teams, err := env.Engine.Repo.ListTeams(env.Ctx, nil, env.OrgID)
	if err != nil || len(teams) != 1 || len(teams[0].MemberIDs) != 1 {
		t.Fatalf("unexpected teams: %+v %v", teams, err)
	}
}

func TestCommitHooksRunOnlyAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	var commits int
	env.Engine.Hooks.OnCommit(func() { commits++ })

	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Hooked", ActorID: "owner"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if commits != 1 {
		t.Fatalf("commits = %d after a successful write, want 1", commits)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{OrgID: env.OrgID, Name: "Denied", ActorID: "dev"}); err == nil {
		t.Fatalf("expected permission error")
	}
	if commits != 1 {
		t.Fatalf("commits = %d after a rejected write, want 1", commits)
	}
}
