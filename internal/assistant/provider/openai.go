package provider

import (
	"context"
	"errors"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var compatibleBaseURLs = map[Kind]string{
	OpenAI:     "https://api.openai.com/v1",
	Groq:       "https://api.groq.com/openai/v1",
	Mistral:    "https://api.mistral.ai/v1",
	XAI:        "https://api.x.ai/v1",
	DeepSeek:   "https://api.deepseek.com/v1",
	OpenRouter: "https://openrouter.ai/api/v1",
}

// openAICompatible serves every vendor that speaks the chat-completions envelope.
type openAICompatible struct {
	kind   Kind
	model  string
	client *openai.Client
}

func newOpenAICompatible(kind Kind, apiKey, model string, s settings) *openAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = compatibleBaseURLs[kind]
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	httpClient := s.httpClient
	if kind == OpenRouter {
		headers := http.Header{}
		if s.referer != "" {
			headers.Set("HTTP-Referer", s.referer)
		}
		if s.title != "" {
			headers.Set("X-Title", s.title)
		}
		if len(headers) > 0 {
			httpClient = withHeaders(httpClient, headers)
		}
	}
	cfg.HTTPClient = httpClient
	return &openAICompatible{kind: kind, model: model, client: openai.NewClientWithConfig(cfg)}
}

func (p *openAICompatible) Kind() Kind    { return p.kind }
func (p *openAICompatible) Model() string { return p.model }

func (p *openAICompatible) Generate(ctx context.Context, systemPrompt string, turns []Turn, opts Options) (*GenerationResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: openAITemperature(opts.temperature()),
	})
	if err != nil {
		return nil, p.normalize(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, emptyResponse(p.kind)
	}
	res := &GenerationResult{Text: resp.Choices[0].Message.Content, Model: resp.Model}
	if res.Model == "" {
		res.Model = p.model
	}
	if resp.Usage.TotalTokens > 0 {
		n := resp.Usage.TotalTokens
		res.TotalTokens = &n
	}
	return res, nil
}

func (p *openAICompatible) normalize(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newStatusError(p.kind, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newStatusError(p.kind, reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode), err)
	}
	return transportError(ctx, p.kind, err)
}

type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header[k] = v
	}
	return t.base.RoundTrip(req)
}

// withHeaders returns a copy of c that stamps headers on every request.
func withHeaders(c *http.Client, headers http.Header) *http.Client {
	if c == nil {
		c = http.DefaultClient
	}
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	clone := *c
	clone.Transport = headerTransport{base: base, headers: headers}
	return &clone
}

// openAITemperature keeps an explicit 0 on the wire; go-openai omits a zero temperature.
func openAITemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
