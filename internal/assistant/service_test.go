package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workpilot/internal/assistant/action"
	"workpilot/internal/assistant/provider"
	"workpilot/internal/config"
	"workpilot/internal/db"
	"workpilot/internal/engine"
	"workpilot/internal/migrate"
	"workpilot/internal/ratelimit"
	"workpilot/internal/repo"
	"workpilot/internal/secret"
)

// fakeModel is an OpenAI-compatible endpoint that answers with a scripted reply.
type fakeModel struct {
	mu     sync.Mutex
	reply  string
	system string
	calls  int32
}

func (f *fakeModel) setReply(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = s
}

func (f *fakeModel) lastSystem() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.system
}

func (f *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.calls, 1)
	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	if len(body.Messages) > 0 && body.Messages[0].Role == "system" {
		f.system = body.Messages[0].Content
	}
	reply := f.reply
	f.mu.Unlock()
	content, _ := json.Marshal(reply)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":` + string(content) + `}}],"usage":{"total_tokens":42}}`))
}

type testEnv struct {
	svc   *Service
	eng   engine.Engine
	model *fakeModel
	ctx   context.Context
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	_, err = eng.InitOrg(ctx, engine.OrgInitOptions{ID: "org-1", Name: "Acme", OwnerID: "alice", OwnerName: "Alice"})
	require.NoError(t, err)

	model := &fakeModel{reply: "Hello!"}
	srv := httptest.NewServer(model)
	t.Cleanup(srv.Close)

	vault, err := secret.NewVault()
	require.NoError(t, err)
	svc, err := New(eng, vault, nil, provider.WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)
	return testEnv{svc: svc, eng: eng, model: model, ctx: ctx}
}

func (e testEnv) configure(t *testing.T) {
	t.Helper()
	kind, key := "openai", "sk-live-123"
	_, err := e.svc.SaveSettings(e.ctx, "alice", SettingsInput{Provider: &kind, APIKey: &key})
	require.NoError(t, err)
}

func (e testEnv) calls() int32 { return atomic.LoadInt32(&e.model.calls) }

func TestChatRequiresConfiguredProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)

	kind := "anthropic"
	_, err = env.svc.SaveSettings(env.ctx, "alice", SettingsInput{Provider: &kind})
	require.NoError(t, err)
	_, err = env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi"})
	require.ErrorIs(t, err, ErrNoCredential)
	assert.EqualValues(t, 0, env.calls())
}

func TestChatDailyLimitStopsBeforeProvider(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Assistant.Limits.Daily = 1 })
	env.configure(t)

	res, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Content)
	assert.EqualValues(t, 1, env.calls())

	_, err = env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "again"})
	var limitErr *ratelimit.Error
	require.True(t, errors.As(err, &limitErr), "got %v", err)
	assert.Equal(t, ratelimit.ScopeDaily, limitErr.Scope)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), limitErr.ResetAt)
	assert.EqualValues(t, 1, env.calls())
}

func TestChatConcurrencyLimitStopsBeforeProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	for i := 0; i < config.Default().Assistant.Limits.Concurrent; i++ {
		release, err := env.svc.Limiter.Acquire(env.ctx, "alice")
		require.NoError(t, err)
		defer release()
	}

	_, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi"})
	var limitErr *ratelimit.Error
	require.True(t, errors.As(err, &limitErr), "got %v", err)
	assert.Equal(t, ratelimit.ScopeConcurrent, limitErr.Scope)
	assert.EqualValues(t, 0, env.calls())
}

func TestChatPromptExcludesOtherOrgTasks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	_, err := env.eng.InitOrg(env.ctx, engine.OrgInitOptions{ID: "org-2", Name: "Other", OwnerID: "bob", OwnerName: "Bob"})
	require.NoError(t, err)
	_, err = env.eng.AddMember(env.ctx, engine.MemberAddOptions{OrgID: "org-2", MemberID: "alice", Name: "Alice", ActorID: "bob"})
	require.NoError(t, err)
	p, err := env.eng.CreateProject(env.ctx, engine.ProjectCreateOptions{OrgID: "org-2", Name: "Side gig", ActorID: "bob"})
	require.NoError(t, err)
	foreign, err := env.eng.CreateTask(env.ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Other org task", AssigneeID: "alice", ActorID: "bob"})
	require.NoError(t, err)

	_, err = env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "what is on my plate?"})
	require.NoError(t, err)
	system := env.model.lastSystem()
	assert.Contains(t, system, "Acme")
	assert.NotContains(t, system, "Other org task")
	assert.NotContains(t, system, foreign.ID)
}

func TestChatBuildsPromptFromWorkspace(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	p, err := env.eng.CreateProject(env.ctx, engine.ProjectCreateOptions{OrgID: "org-1", Name: "Website", ActorID: "alice"})
	require.NoError(t, err)

	res, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "status?", ProjectID: p.ID, Page: "project"})
	require.NoError(t, err)
	assert.Equal(t, action.NoActions, res.Parse)
	assert.Equal(t, provider.OpenAI, res.Provider)
	require.NotNil(t, res.TotalTokens)
	assert.Equal(t, 42, *res.TotalTokens)

	system := env.model.lastSystem()
	assert.Contains(t, system, "Acme")
	assert.Contains(t, system, "Website")
	assert.NotContains(t, system, "sk-live-123")
}

func TestChatPromptSeesWritesMadeOutsideTheAssistant(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	_, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi"})
	require.NoError(t, err)
	assert.NotContains(t, env.model.lastSystem(), "Billing revamp")

	_, err = env.eng.CreateProject(env.ctx, engine.ProjectCreateOptions{OrgID: "org-1", Name: "Billing revamp", ActorID: "alice"})
	require.NoError(t, err)
	_, err = env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "hi again"})
	require.NoError(t, err)
	assert.Contains(t, env.model.lastSystem(), "Billing revamp")
}

const twoStepReply = "Creating it now.\nACTIONS_JSON: [" +
	`{"type":"create_project","data":{"name":"Launch"}},` +
	`{"type":"create_task","data":{"title":"Write copy","projectId":"$NEW_PROJECT_ID","priority":"high"}}]`

func TestChatExecuteResolvesPlaceholders(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	env.model.setReply(twoStepReply)

	res, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "set up launch", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, "Creating it now.", res.Content)
	require.Len(t, res.Outcomes, 2)
	for _, o := range res.Outcomes {
		require.Equal(t, action.Succeeded, o.Status, o.Error)
	}
	task, err := env.eng.Repo.GetTask(env.ctx, nil, res.Outcomes[1].EntityID)
	require.NoError(t, err)
	assert.Equal(t, res.Outcomes[0].EntityID, task.ProjectID)
	assert.Equal(t, "high", task.Priority)
}

func TestChatWithoutExecuteOnlyProposes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	env.model.setReply(twoStepReply)

	res, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "set up launch"})
	require.NoError(t, err)
	assert.Equal(t, action.Parsed, res.Parse)
	assert.Len(t, res.Actions, 2)
	assert.Empty(t, res.Outcomes)
	projects, err := env.eng.Repo.ListProjects(env.ctx, nil, repo.ProjectFilter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestChatMalformedPayloadKeepsReply(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	raw := `Sure. ACTION_JSON: {"type": "create_task", "data": {`
	env.model.setReply(raw)

	res, err := env.svc.Chat(env.ctx, ChatRequest{ActorID: "alice", Message: "add a task", Execute: true})
	require.NoError(t, err)
	assert.Equal(t, action.Malformed, res.Parse)
	assert.Equal(t, raw, res.Content)
	assert.Empty(t, res.Outcomes)
}

func TestExecuteActionsRefreshesSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	before, err := env.svc.Snapshots.Load(env.ctx, "org-1", "alice", "", "")
	require.NoError(t, err)
	assert.Empty(t, before.Projects)

	outcomes, err := env.svc.ExecuteActions(env.ctx, "alice", []action.ProposedAction{
		{Type: action.CreateClient, Data: map[string]any{"name": "Globex"}},
		{Type: action.CreateProject, Data: map[string]any{"name": "Portal", "clientId": action.NewClientID}},
		{Type: action.DeleteTask, Data: map[string]any{"taskId": "missing"}},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, action.Succeeded, outcomes[0].Status)
	assert.Equal(t, action.Succeeded, outcomes[1].Status)
	assert.Equal(t, action.Failed, outcomes[2].Status)
	assert.Equal(t, action.ErrorDispatch, outcomes[2].ErrorKind)
	assert.ErrorIs(t, outcomes[2].Err, repo.ErrNotFound)
	assert.EqualValues(t, 0, env.calls())

	after, err := env.svc.Snapshots.Load(env.ctx, "org-1", "alice", "", "")
	require.NoError(t, err)
	require.Len(t, after.Projects, 1)
	require.NotNil(t, after.Projects[0].ClientID)
	assert.Equal(t, outcomes[0].EntityID, *after.Projects[0].ClientID)
}

func TestExecuteActionsRequiresMembership(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.svc.ExecuteActions(env.ctx, "mallory", []action.ProposedAction{{Type: action.ChangeTheme, Data: map[string]any{"theme": "dark"}}})
	require.ErrorIs(t, err, ErrNotMember)
}

func TestSaveSettingsStoresKeyEncrypted(t *testing.T) {
	env := newTestEnv(t, nil)
	kind, model, key := "groq", "llama-3.1-8b-instant", "gsk-very-secret"
	view, err := env.svc.SaveSettings(env.ctx, "alice", SettingsInput{Provider: &kind, Model: &model, APIKey: &key})
	require.NoError(t, err)
	assert.Equal(t, SettingsView{Theme: "system", Provider: "groq", Model: model, HasAPIKey: true}, view)

	stored, err := env.eng.Repo.GetSettings(env.ctx, nil, "alice")
	require.NoError(t, err)
	assert.NotContains(t, string(stored.EncryptedAPIKey), key)
	plain, err := env.svc.Vault.Decrypt(stored.EncryptedAPIKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, key, plain)

	bad := "gpt-4o"
	_, err = env.svc.SaveSettings(env.ctx, "alice", SettingsInput{Model: &bad})
	require.Error(t, err)

	empty := ""
	view, err = env.svc.SaveSettings(env.ctx, "alice", SettingsInput{APIKey: &empty})
	require.NoError(t, err)
	assert.False(t, view.HasAPIKey)
}

func TestGenerateTasks(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	p, err := env.eng.CreateProject(env.ctx, engine.ProjectCreateOptions{OrgID: "org-1", Name: "Mobile app", ActorID: "alice"})
	require.NoError(t, err)
	env.model.setReply("```json\n[{\"title\":\"Design login\",\"priority\":\"high\"},{\"title\":\"  \"},{\"title\":\"Set up CI\",\"priority\":\"asap\"}]\n```")

	got, err := env.svc.GenerateTasks(env.ctx, "alice", p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []TaskSuggestion{
		{Title: "Design login", Priority: "high"},
		{Title: "Set up CI", Priority: "medium"},
	}, got)
	assert.Contains(t, env.model.lastSystem(), "Mobile app")

	_, err = env.svc.GenerateTasks(env.ctx, "alice", "nope", "")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCleanupTranscript(t *testing.T) {
	env := newTestEnv(t, nil)
	env.configure(t)
	env.model.setReply("  We should ship on Friday.\n")

	out, err := env.svc.CleanupTranscript(env.ctx, "alice", "uh we should like ship on friday")
	require.NoError(t, err)
	assert.Equal(t, "We should ship on Friday.", out)
	assert.True(t, strings.HasPrefix(env.model.lastSystem(), "You clean up speech-to-text transcripts."))
}

func TestParseSuggestionsRejectsProse(t *testing.T) {
	_, err := parseSuggestions("I cannot help with that.")
	require.Error(t, err)
}
