package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicProvider struct {
	model  string
	client anthropic.Client
}

func newAnthropic(apiKey, model string, s settings) *anthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(s.httpClient),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		opts = append(opts, option.WithBaseURL(s.baseURL))
	}
	return &anthropicProvider{model: model, client: anthropic.NewClient(opts...)}
}

func (p *anthropicProvider) Kind() Kind    { return Anthropic }
func (p *anthropicProvider) Model() string { return p.model }

func (p *anthropicProvider) Generate(ctx context.Context, systemPrompt string, turns []Turn, opts Options) (*GenerationResult, error) {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(opts.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(opts.temperature()),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.normalize(ctx, err)
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return nil, emptyResponse(Anthropic)
	}
	res := &GenerationResult{Text: strings.Join(parts, ""), Model: string(msg.Model)}
	if res.Model == "" {
		res.Model = p.model
	}
	if total := int(msg.Usage.InputTokens + msg.Usage.OutputTokens); total > 0 {
		res.TotalTokens = &total
	}
	return res, nil
}

func (p *anthropicProvider) normalize(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := messageFromBody(apiErr.RawJSON())
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return newStatusError(Anthropic, apiErr.StatusCode, msg, err)
	}
	return transportError(ctx, Anthropic, err)
}
