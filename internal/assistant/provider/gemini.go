package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

type geminiProvider struct {
	model  string
	client *genai.Client
}

func newGemini(apiKey, model string, s settings) (*geminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	}
	if s.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.baseURL + "/"}
	}
	// NewClient only validates config here; it does not dial.
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiProvider{model: model, client: client}, nil
}

func (p *geminiProvider) Kind() Kind    { return Google }
func (p *geminiProvider) Model() string { return p.model }

func (p *geminiProvider) Generate(ctx context.Context, systemPrompt string, turns []Turn, opts Options) (*GenerationResult, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(opts.temperature())),
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, p.normalize(ctx, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, emptyResponse(Google)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	res := &GenerationResult{Text: b.String(), Model: resp.ModelVersion}
	if res.Model == "" {
		res.Model = p.model
	}
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		n := int(resp.UsageMetadata.TotalTokenCount)
		res.TotalTokens = &n
	}
	return res, nil
}

func (p *geminiProvider) normalize(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return transportError(ctx, Google, err)
		}
		apiErr = *ptr
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return newStatusError(Google, apiErr.Code, msg, err)
}
