package workpilotsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Workpilot HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. Chat calls wait on the model, so the
// timeout is longer than a plain CRUD client would use.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 90 * time.Second,
	}
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ChatRequest is one user message plus the page context it was sent from.
type ChatRequest struct {
	Message     string            `json:"message"`
	History     []Turn            `json:"history,omitempty"`
	Page        string            `json:"page,omitempty"`
	ProjectID   string            `json:"project_id,omitempty"`
	ClientID    string            `json:"client_id,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Execute     bool              `json:"execute,omitempty"`
}

// Action is a mutation proposed by the assistant.
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Outcome reports the result of one executed action.
type Outcome struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	EntityID  string `json:"entity_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

type ChatResponse struct {
	Content     string    `json:"content"`
	Actions     []Action  `json:"actions"`
	Parse       string    `json:"parse"`
	Outcomes    []Outcome `json:"outcomes,omitempty"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	TotalTokens *int      `json:"total_tokens,omitempty"`
}

type Settings struct {
	Theme     string `json:"theme"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	HasAPIKey bool   `json:"has_api_key"`
}

// SettingsUpdate carries optional changes. A non-nil empty APIKey clears the stored key.
type SettingsUpdate struct {
	Theme    *string `json:"theme,omitempty"`
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
}

// Project represents the API project model (partial).
type Project struct {
	ID       string  `json:"id"`
	OrgID    string  `json:"org_id"`
	ClientID *string `json:"client_id,omitempty"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Details come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// RateLimited reports whether the assistant refused the request for quota reasons.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Chat sends a message to the assistant.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var resp ChatResponse
	err := c.do(ctx, http.MethodPost, "v0/assistant/chat", req, &resp)
	return resp, err
}

// ExecuteActions runs actions previously proposed by Chat.
func (c *Client) ExecuteActions(ctx context.Context, actions []Action) ([]Outcome, error) {
	var resp struct {
		Outcomes []Outcome `json:"outcomes"`
	}
	err := c.do(ctx, http.MethodPost, "v0/assistant/actions", map[string]any{"actions": actions}, &resp)
	return resp.Outcomes, err
}

func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, "v0/assistant/settings", nil, &resp)
	return resp, err
}

func (c *Client) SaveSettings(ctx context.Context, upd SettingsUpdate) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodPut, "v0/assistant/settings", upd, &resp)
	return resp, err
}

// ListProjects returns projects of the caller's organization, optionally by status.
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "v0/projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Project `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
