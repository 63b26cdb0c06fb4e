package server

import (
	"encoding/json"

	"workpilot/internal/assistant/action"
	"workpilot/internal/assistant/prompt"
	"workpilot/internal/assistant/provider"
	"workpilot/internal/domain"
)

// Request payloads

type ChatTurn struct {
	Role    string `json:"role" enum:"user,assistant"`
	Content string `json:"content"`
}

type ChatAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message     string            `json:"message" minLength:"1"`
	History     []ChatTurn        `json:"history,omitempty"`
	Page        string            `json:"page,omitempty" example:"projects"`
	ProjectID   string            `json:"project_id,omitempty"`
	ClientID    string            `json:"client_id,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Attachments []ChatAttachment  `json:"attachments,omitempty"`
	Execute     bool              `json:"execute,omitempty" doc:"Run proposed actions immediately"`
}

type ActionsRequest struct {
	Actions []action.ProposedAction `json:"actions" minItems:"1"`
}

type SettingsRequest struct {
	Theme    *string `json:"theme,omitempty" enum:"light,dark,system"`
	Provider *string `json:"provider,omitempty" enum:"openai,anthropic,google,groq,mistral,xai,deepseek,openrouter"`
	Model    *string `json:"model,omitempty"`
	APIKey   *string `json:"api_key,omitempty" writeOnly:"true" doc:"Empty string clears the stored key"`
}

type GenerateTasksRequest struct {
	ProjectID string `json:"project_id"`
	Brief     string `json:"brief,omitempty"`
}

type TranscriptRequest struct {
	Transcript string `json:"transcript" minLength:"1"`
}

// Response payloads

type OutcomeResponse struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Status    string `json:"status" enum:"succeeded,failed"`
	EntityID  string `json:"entity_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" enum:"placeholder,validation,dispatch"`
}

type ChatResponse struct {
	Content     string                  `json:"content"`
	Actions     []action.ProposedAction `json:"actions"`
	Parse       string                  `json:"parse" enum:"no_actions,parsed,malformed"`
	Outcomes    []OutcomeResponse       `json:"outcomes,omitempty"`
	Provider    string                  `json:"provider"`
	Model       string                  `json:"model"`
	TotalTokens *int                    `json:"total_tokens,omitempty"`
}

type OutcomesResponse struct {
	Outcomes []OutcomeResponse `json:"outcomes"`
}

type SettingsResponse struct {
	Theme     string `json:"theme" enum:"light,dark,system"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	HasAPIKey bool   `json:"has_api_key"`
}

type TaskSuggestionResponse struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority" enum:"low,medium,high,urgent"`
}

type MeResponse struct {
	ActorID     string   `json:"actor_id"`
	OrgID       string   `json:"org_id"`
	Role        string   `json:"role" enum:"owner,admin,member"`
	Permissions []string `json:"permissions"`
}

type ProjectDetailResponse struct {
	Project     domain.Project         `json:"project"`
	Workstreams []domain.Workstream    `json:"workstreams"`
	Members     []domain.ProjectMember `json:"members"`
	Notes       []domain.Note          `json:"notes"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	OrgID      string          `json:"org_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

type listProjects struct {
	Items []domain.Project `json:"items"`
}

type listTasks struct {
	Items []domain.Task `json:"items"`
}

type listClients struct {
	Items []domain.Client `json:"items"`
}

type listEvents struct {
	Items []EventResponse `json:"items"`
}

// Conversion helpers

func (r ChatRequest) turns() []provider.Turn {
	out := make([]provider.Turn, 0, len(r.History))
	for _, t := range r.History {
		out = append(out, provider.Turn{Role: provider.Role(t.Role), Content: t.Content})
	}
	return out
}

func (r ChatRequest) attachments() []prompt.Attachment {
	out := make([]prompt.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		out = append(out, prompt.Attachment{Name: a.Name, Content: a.Content})
	}
	return out
}

func outcomeResponses(in []action.Outcome) []OutcomeResponse {
	out := make([]OutcomeResponse, 0, len(in))
	for _, o := range in {
		out = append(out, OutcomeResponse{
			Index:     o.Index,
			Type:      string(o.Type),
			Status:    string(o.Status),
			EntityID:  o.EntityID,
			Error:     o.Error,
			ErrorKind: string(o.ErrorKind),
		})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OrgID:      e.OrgID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
