package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workpilot/internal/assistant"
	"workpilot/internal/assistant/provider"
	"workpilot/internal/config"
	"workpilot/internal/db"
	"workpilot/internal/engine"
	"workpilot/internal/migrate"
	"workpilot/internal/secret"
)

const testSecret = "test-secret"

type scriptedModel struct {
	mu    sync.Mutex
	reply string
	calls int32
}

func (m *scriptedModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.calls, 1)
	m.mu.Lock()
	content, _ := json.Marshal(m.reply)
	m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":` + string(content) + `}}]}`))
}

type testServer struct {
	URL    string
	engine engine.Engine
	model  *scriptedModel
	client *http.Client
	token  string
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.token}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitOrg(context.Background(), engine.OrgInitOptions{ID: "org-1", Name: "Acme", OwnerID: "alice", OwnerName: "Alice"}); err != nil {
		t.Fatalf("init org: %v", err)
	}
	model := &scriptedModel{reply: "Hi there."}
	modelSrv := httptest.NewServer(model)
	vault, err := secret.NewVault()
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	svc, err := assistant.New(e, vault, nil, provider.WithBaseURL(modelSrv.URL+"/v1"))
	if err != nil {
		t.Fatalf("assistant: %v", err)
	}
	handler, err := New(Config{Engine: e, Assistant: svc, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	token, err := SignToken(testSecret, "alice", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		engine: e,
		model:  model,
		client: &http.Client{},
		token:  token,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			modelSrv.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func configureOpenAI(t *testing.T, srv *testServer) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/assistant/settings", map[string]any{
		"provider": "openai",
		"api_key":  "sk-live-abc",
	}, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `"ok"`)
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	forged, err := SignToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	raw, _, err := srv.engine.CreateAPIKey(context.Background(), "alice", "ci")
	require.NoError(t, err)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": raw})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, "alice", me.ActorID)
	assert.Equal(t, "org-1", me.OrgID)
	assert.Equal(t, "owner", me.Role)
	assert.Contains(t, me.Permissions, "project.write")

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "wp_bogus"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSettingsNeverExposeKey(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	configureOpenAI(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/assistant/settings", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, string(data), "sk-live-abc")
	var view SettingsResponse
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "openai", view.Provider)
	assert.True(t, view.HasAPIKey)

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/assistant/settings", map[string]any{"provider": "nope"}, srv.auth())
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestChatWithoutProviderIsPreconditionFailed(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/chat", map[string]any{"message": "hello"}, srv.auth())
	require.Equal(t, http.StatusPreconditionFailed, res.StatusCode, string(data))
	assert.Equal(t, "assistant_not_configured", decodeError(t, data).Code)
	assert.Zero(t, atomic.LoadInt32(&srv.model.calls))
}

func TestChatDailyLimit(t *testing.T) {
	srv, cleanup := newTestServer(t, func(c *config.Config) { c.Assistant.Limits.Daily = 1 })
	defer cleanup()
	configureOpenAI(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/chat", map[string]any{"message": "hello"}, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var chat ChatResponse
	require.NoError(t, json.Unmarshal(data, &chat))
	assert.Equal(t, "Hi there.", chat.Content)
	assert.Equal(t, "no_actions", chat.Parse)
	assert.Empty(t, chat.Actions)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/chat", map[string]any{"message": "again"}, srv.auth())
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "rate_limited", body.Code)
	assert.Equal(t, "daily", body.Details["scope"])
	assert.NotEmpty(t, body.Details["reset_at"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.model.calls))
}

func TestChatExecuteCreatesProjectAndTask(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	configureOpenAI(t, srv)
	srv.model.mu.Lock()
	srv.model.reply = "Setting that up.\nACTIONS_JSON: [" +
		`{"type":"create_project","data":{"name":"Website"}},` +
		`{"type":"create_task","data":{"title":"Wireframes","projectId":"$NEW_PROJECT_ID"}}]`
	srv.model.mu.Unlock()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/chat", map[string]any{
		"message": "start a website project",
		"page":    "projects",
		"execute": true,
	}, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var chat ChatResponse
	require.NoError(t, json.Unmarshal(data, &chat))
	assert.Equal(t, "Setting that up.", chat.Content)
	assert.Equal(t, "parsed", chat.Parse)
	require.Len(t, chat.Outcomes, 2)
	for _, o := range chat.Outcomes {
		assert.Equal(t, "succeeded", o.Status, o.Error)
	}
	projectID := chat.Outcomes[0].EntityID

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+projectID+"/tasks", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tasks listTasks
	require.NoError(t, json.Unmarshal(data, &tasks))
	require.Len(t, tasks.Items, 1)
	assert.Equal(t, "Wireframes", tasks.Items[0].Title)
}

func TestExecuteActionsReportsPerActionOutcome(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assistant/actions", map[string]any{
		"actions": []map[string]any{
			{"type": "create_task", "data": map[string]any{"title": "Orphan", "projectId": "$NEW_PROJECT_ID"}},
			{"type": "create_client", "data": map[string]any{"name": "Globex"}},
		},
	}, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out OutcomesResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Outcomes, 2)
	assert.Equal(t, "failed", out.Outcomes[0].Status)
	assert.Equal(t, "placeholder", out.Outcomes[0].ErrorKind)
	assert.Equal(t, "succeeded", out.Outcomes[1].Status)
	assert.Zero(t, atomic.LoadInt32(&srv.model.calls))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/clients", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode)
	var clients listClients
	require.NoError(t, json.Unmarshal(data, &clients))
	require.Len(t, clients.Items, 1)
	assert.Equal(t, "Globex", clients.Items[0].Name)
}

func TestProjectReadsStayInsideOrg(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()
	p, err := srv.engine.CreateProject(ctx, engine.ProjectCreateOptions{OrgID: "org-1", Name: "Apollo", ActorID: "alice"})
	require.NoError(t, err)
	_, err = srv.engine.InitOrg(ctx, engine.OrgInitOptions{ID: "org-2", Name: "Other", OwnerID: "bob", OwnerName: "Bob"})
	require.NoError(t, err)
	foreign, err := srv.engine.CreateProject(ctx, engine.ProjectCreateOptions{OrgID: "org-2", Name: "Hidden", ActorID: "bob"})
	require.NoError(t, err)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list listProjects
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, p.ID, list.Items[0].ID)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+p.ID, nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var detail ProjectDetailResponse
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, "Apollo", detail.Project.Name)
	require.Len(t, detail.Members, 1)
	assert.Equal(t, "alice", detail.Members[0].ActorID)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/"+foreign.ID, nil, srv.auth())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestEventsList(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	_, err := srv.engine.CreateProject(context.Background(), engine.ProjectCreateOptions{OrgID: "org-1", Name: "Apollo", ActorID: "alice"})
	require.NoError(t, err)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?entity_kind=project", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts listEvents
	require.NoError(t, json.Unmarshal(data, &evts))
	require.NotEmpty(t, evts.Items)
	assert.Equal(t, "project.created", evts.Items[0].Type)
	assert.True(t, json.Valid(evts.Items[0].Payload))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "go_goroutines")
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, srv.auth())
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/assistant/chat")
	assert.Contains(t, string(data), "bearerAuth")
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		secrets  []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		secrets = append(secrets, r.Header.Get("X-Workpilot-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, func(c *config.Config) {
		c.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{"task.created"}}}
	})
	defer cleanup()

	ctx := context.Background()
	d := newWebhookDispatcher(srv.engine, nil)
	require.NotNil(t, d)
	d.dispatchAll(ctx)

	p, err := srv.engine.CreateProject(ctx, engine.ProjectCreateOptions{OrgID: "org-1", Name: "Apollo", ActorID: "alice"})
	require.NoError(t, err)
	task, err := srv.engine.CreateTask(ctx, engine.TaskCreateOptions{ProjectID: p.ID, Title: "Kickoff", ActorID: "alice"})
	require.NoError(t, err)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "task.created", received[0].Type)
	assert.Equal(t, task.ID, received[0].EntityID)
	assert.Equal(t, "org-1", received[0].OrgID)
	assert.Equal(t, "s3cret", secrets[0])
	assert.True(t, strings.Contains(string(received[0].Payload), "Kickoff"))
}
