package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"workpilot/internal/assistant"
)

func (h handlers) registerAssistant(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "assistant-settings-get",
		Method:      http.MethodGet,
		Path:        "/assistant/settings",
		Summary:     "Get assistant settings",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := h.assistant.Settings(ctx, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: SettingsResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assistant-settings-update",
		Method:      http.MethodPut,
		Path:        "/assistant/settings",
		Summary:     "Update assistant settings",
		Description: "Changing the provider clears the stored key and model.",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, input *struct {
		Body SettingsRequest `json:"body"`
	}) (*struct {
		Body SettingsResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := h.assistant.SaveSettings(ctx, actorID, assistant.SettingsInput{
			Theme:    input.Body.Theme,
			Provider: input.Body.Provider,
			Model:    input.Body.Model,
			APIKey:   input.Body.APIKey,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body SettingsResponse `json:"body"`
		}{Body: SettingsResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assistant-chat",
		Method:      http.MethodPost,
		Path:        "/assistant/chat",
		Summary:     "Send a message to the assistant",
		Description: "Returns the reply and any proposed actions. With execute set, actions run in order and their outcomes are returned.",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := h.assistant.Chat(ctx, assistant.ChatRequest{
			ActorID:     actorID,
			Message:     input.Body.Message,
			History:     input.Body.turns(),
			Page:        input.Body.Page,
			ProjectID:   input.Body.ProjectID,
			ClientID:    input.Body.ClientID,
			Filters:     input.Body.Filters,
			Attachments: input.Body.attachments(),
			Execute:     input.Body.Execute,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		out := ChatResponse{
			Content:     res.Content,
			Actions:     nonNilSlice(res.Actions),
			Parse:       string(res.Parse),
			Provider:    string(res.Provider),
			Model:       res.Model,
			TotalTokens: res.TotalTokens,
		}
		if len(res.Outcomes) > 0 {
			out.Outcomes = outcomeResponses(res.Outcomes)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assistant-actions-execute",
		Method:      http.MethodPost,
		Path:        "/assistant/actions",
		Summary:     "Execute confirmed actions",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, input *struct {
		Body ActionsRequest `json:"body"`
	}) (*struct {
		Body OutcomesResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		outcomes, err := h.assistant.ExecuteActions(ctx, actorID, input.Body.Actions)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body OutcomesResponse `json:"body"`
		}{Body: OutcomesResponse{Outcomes: outcomeResponses(outcomes)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assistant-tasks-generate",
		Method:      http.MethodPost,
		Path:        "/assistant/tasks/generate",
		Summary:     "Suggest tasks for a project",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, input *struct {
		Body GenerateTasksRequest `json:"body"`
	}) (*struct {
		Body struct {
			Items []TaskSuggestionResponse `json:"items"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		suggestions, err := h.assistant.GenerateTasks(ctx, actorID, input.Body.ProjectID, input.Body.Brief)
		if err != nil {
			return nil, h.handleError(err)
		}
		out := &struct {
			Body struct {
				Items []TaskSuggestionResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = make([]TaskSuggestionResponse, 0, len(suggestions))
		for _, s := range suggestions {
			out.Body.Items = append(out.Body.Items, TaskSuggestionResponse(s))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assistant-transcript-cleanup",
		Method:      http.MethodPost,
		Path:        "/assistant/transcripts/cleanup",
		Summary:     "Clean up a speech transcript",
		Tags:        []string{"Assistant"},
	}, func(ctx context.Context, input *struct {
		Body TranscriptRequest `json:"body"`
	}) (*struct {
		Body struct {
			Text string `json:"text"`
		} `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		text, err := h.assistant.CleanupTranscript(ctx, actorID, input.Body.Transcript)
		if err != nil {
			return nil, h.handleError(err)
		}
		out := &struct {
			Body struct {
				Text string `json:"text"`
			} `json:"body"`
		}{}
		out.Body.Text = text
		return out, nil
	})
}
