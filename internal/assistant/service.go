// Package assistant runs the chat pipeline: rate limit, credentials, context, one provider
// call, reply parsing and, when asked, action execution against the engine.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"workpilot/internal/assistant/action"
	"workpilot/internal/assistant/prompt"
	"workpilot/internal/assistant/provider"
	"workpilot/internal/config"
	"workpilot/internal/engine"
	"workpilot/internal/logging"
	"workpilot/internal/ratelimit"
	"workpilot/internal/repo"
	"workpilot/internal/secret"
)

type Service struct {
	Engine    engine.Engine
	Limiter   *ratelimit.Limiter
	Vault     *secret.Vault
	Defaults  provider.ModelDefaults
	Config    config.Assistant
	Snapshots *Snapshots
	Log       *zap.Logger
	// ProviderOptions are appended to every adapter build, e.g. a test base URL.
	ProviderOptions []provider.Option
}

// New wires a Service from the engine configuration.
func New(eng engine.Engine, vault *secret.Vault, log *zap.Logger, opts ...provider.Option) (*Service, error) {
	log = logging.OrNop(log)
	cfg := config.Default().Assistant
	if eng.Config != nil {
		cfg = eng.Config.Assistant
	}
	snaps, err := NewSnapshots(eng.Repo, cfg.SnapshotTTL(), log)
	if err != nil {
		return nil, err
	}
	eng.Hooks.OnCommit(snaps.Invalidate)
	limitOpts := []ratelimit.Option{ratelimit.WithLogger(log)}
	if eng.Now != nil {
		limitOpts = append(limitOpts, ratelimit.WithClock(eng.Now))
	}
	return &Service{
		Engine:          eng,
		Limiter:         ratelimit.New(eng.Repo, cfg.Limits.Daily, cfg.Limits.Concurrent, limitOpts...),
		Vault:           vault,
		Defaults:        provider.DefaultModelsV1().WithOverrides(cfg.Models),
		Config:          cfg,
		Snapshots:       snaps,
		Log:             log,
		ProviderOptions: opts,
	}, nil
}

type ChatRequest struct {
	ActorID     string
	Message     string
	History     []provider.Turn
	Page        string
	ProjectID   string
	ClientID    string
	Filters     map[string]string
	Attachments []prompt.Attachment
	// Execute runs the proposed actions right away instead of returning them for confirmation.
	Execute bool
}

type ChatResponse struct {
	Content     string                  `json:"content"`
	Actions     []action.ProposedAction `json:"actions,omitempty"`
	Parse       action.ParseOutcome     `json:"parse" enum:"no_actions,parsed,malformed"`
	Outcomes    []action.Outcome        `json:"outcomes,omitempty"`
	Provider    provider.Kind           `json:"provider"`
	Model       string                  `json:"model"`
	TotalTokens *int                    `json:"total_tokens,omitempty"`
}

// Chat answers one user message. Rate limits are checked before anything else and a
// denied request never reaches the provider.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	release, err := s.Limiter.Acquire(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.providerFor(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	orgID, err := s.orgOf(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshots.Load(ctx, orgID, req.ActorID, req.ProjectID, req.ClientID)
	if err != nil {
		return nil, err
	}
	system := prompt.BuildSystemPrompt(prompt.ChatContext{
		Page:           req.Page,
		FocusProjectID: req.ProjectID,
		FocusClientID:  req.ClientID,
		Filters:        req.Filters,
		Snapshot:       snap,
		Attachments:    req.Attachments,
	})
	turns := append(append([]provider.Turn{}, req.History...), provider.Turn{Role: provider.RoleUser, Content: req.Message})

	res, err := s.generate(ctx, p, system, turns, provider.ChatOptions())
	if err != nil {
		return nil, err
	}
	parsed := action.Parse(res.Text)
	out := &ChatResponse{
		Content:     parsed.Content,
		Actions:     parsed.Actions,
		Parse:       parsed.Outcome,
		Provider:    p.Kind(),
		Model:       res.Model,
		TotalTokens: res.TotalTokens,
	}
	if parsed.Outcome == action.Malformed {
		s.Log.Warn("assistant reply had an undecodable action payload", zap.String("actor", req.ActorID), zap.String("provider", string(p.Kind())))
	}
	if req.Execute && len(parsed.Actions) > 0 {
		out.Outcomes = s.execute(ctx, orgID, req.ActorID, parsed.Actions)
	}
	s.Log.Info("assistant chat",
		zap.String("actor", req.ActorID),
		zap.String("provider", string(p.Kind())),
		zap.String("model", res.Model),
		zap.String("parse", string(parsed.Outcome)),
		zap.Int("actions", len(parsed.Actions)),
		zap.Int("executed", len(out.Outcomes)))
	return out, nil
}

// ExecuteActions runs actions the user confirmed. It makes no provider call.
func (s *Service) ExecuteActions(ctx context.Context, actorID string, actions []action.ProposedAction) ([]action.Outcome, error) {
	orgID, err := s.orgOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, orgID, actorID, actions), nil
}

func (s *Service) execute(ctx context.Context, orgID, actorID string, actions []action.ProposedAction) []action.Outcome {
	exec := action.Executor{
		Boundary: engineBoundary{eng: s.Engine, orgID: orgID, actorID: actorID},
		Log:      s.Log.With(zap.String("actor", actorID)),
	}
	return exec.Execute(ctx, action.NewBatch(actions))
}

type TaskSuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
}

// GenerateTasks asks the model for task ideas for a project. Suggestions are not saved.
func (s *Service) GenerateTasks(ctx context.Context, actorID, projectID, brief string) ([]TaskSuggestion, error) {
	release, err := s.Limiter.Acquire(ctx, actorID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.providerFor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	orgID, err := s.orgOf(ctx, actorID)
	if err != nil {
		return nil, err
	}
	proj, err := s.Engine.Repo.GetProject(ctx, nil, projectID)
	if err == nil && proj.OrgID != orgID {
		err = repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	existing, err := s.Engine.Repo.ListTasks(ctx, nil, repo.TaskFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(brief)
	if msg == "" {
		msg = "Suggest the next tasks for this project."
	}
	res, err := s.generate(ctx, p, prompt.TaskGeneration(proj, existing), []provider.Turn{{Role: provider.RoleUser, Content: msg}}, provider.TaskGenerationOptions())
	if err != nil {
		return nil, err
	}
	return parseSuggestions(res.Text)
}

// CleanupTranscript tidies a speech-to-text transcript.
func (s *Service) CleanupTranscript(ctx context.Context, actorID, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("transcript is required")
	}
	release, err := s.Limiter.Acquire(ctx, actorID)
	if err != nil {
		return "", err
	}
	defer release()

	p, err := s.providerFor(ctx, actorID)
	if err != nil {
		return "", err
	}
	res, err := s.generate(ctx, p, prompt.TranscriptCleanup(), []provider.Turn{{Role: provider.RoleUser, Content: transcript}}, provider.TranscriptionCleanupOptions())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

func (s *Service) generate(ctx context.Context, p provider.Provider, system string, turns []provider.Turn, opts provider.Options) (*provider.GenerationResult, error) {
	if d := s.Config.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return p.Generate(ctx, system, turns, opts)
}

// providerFor builds the adapter from the actor's stored settings.
func (s *Service) providerFor(ctx context.Context, actorID string) (provider.Provider, error) {
	st, err := s.Engine.Settings(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if st.Provider == "" {
		return nil, ErrNotConfigured
	}
	kind, err := provider.ParseKind(st.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if !st.HasAPIKey() {
		return nil, ErrNoCredential
	}
	if s.Vault == nil {
		return nil, fmt.Errorf("%w: no key vault", ErrNoCredential)
	}
	key, err := s.Vault.Decrypt(st.EncryptedAPIKey, actorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	opts := []provider.Option{provider.WithAttribution(s.Config.Referer, s.Config.Title), provider.WithLogger(s.Log)}
	opts = append(opts, s.ProviderOptions...)
	return provider.New(provider.ProviderConfig{Kind: kind, APIKey: key, Model: st.Model}, s.Defaults, opts...)
}

func (s *Service) orgOf(ctx context.Context, actorID string) (string, error) {
	orgID, err := s.Engine.Repo.MemberOrg(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrNotMember
	}
	return orgID, err
}

// parseSuggestions reads the first JSON array in text, tolerating fences and prose.
func parseSuggestions(text string) ([]TaskSuggestion, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("task suggestions: no JSON array in reply")
	}
	var out []TaskSuggestion
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("task suggestions: %w", err)
	}
	kept := out[:0]
	for _, t := range out {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		switch t.Priority {
		case "low", "medium", "high", "urgent":
		default:
			t.Priority = "medium"
		}
		kept = append(kept, t)
	}
	return kept, nil
}
