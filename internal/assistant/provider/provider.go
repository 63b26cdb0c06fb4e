// Package provider talks to hosted language models. Each supported vendor gets an adapter
// that turns one system prompt plus conversation turns into exactly one outbound request.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"workpilot/internal/logging"
)

type Kind string

const (
	OpenAI     Kind = "openai"
	Anthropic  Kind = "anthropic"
	Google     Kind = "google"
	Groq       Kind = "groq"
	Mistral    Kind = "mistral"
	XAI        Kind = "xai"
	DeepSeek   Kind = "deepseek"
	OpenRouter Kind = "openrouter"
)

// Kinds lists every supported provider in display order.
var Kinds = []Kind{OpenAI, Anthropic, Google, Groq, Mistral, XAI, DeepSeek, OpenRouter}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// DisplayName is used in user-facing error messages.
func (k Kind) DisplayName() string {
	switch k {
	case OpenAI:
		return "OpenAI"
	case Anthropic:
		return "Anthropic"
	case Google:
		return "Google Gemini"
	case Groq:
		return "Groq"
	case Mistral:
		return "Mistral"
	case XAI:
		return "xAI"
	case DeepSeek:
		return "DeepSeek"
	case OpenRouter:
		return "OpenRouter"
	default:
		return string(k)
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	MaxTokens int
	// Temperature nil means the chat default. A pointer so 0 can be requested.
	Temperature *float64
}

// Float returns a pointer to v, for Options.Temperature.
func Float(v float64) *float64 { return &v }

func ChatOptions() Options                 { return Options{MaxTokens: 8192, Temperature: Float(0.7)} }
func GenerateOptions() Options             { return Options{MaxTokens: 2000, Temperature: Float(0.7)} }
func TaskGenerationOptions() Options       { return Options{MaxTokens: 2000, Temperature: Float(0.8)} }
func TranscriptionCleanupOptions() Options { return Options{MaxTokens: 2000, Temperature: Float(0.3)} }

func (o Options) withDefaults() Options {
	def := ChatOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Temperature == nil || *o.Temperature < 0 {
		o.Temperature = def.Temperature
	}
	return o
}

func (o Options) temperature() float64 {
	return *o.withDefaults().Temperature
}

type GenerationResult struct {
	Text  string
	Model string
	// TotalTokens is nil when the provider does not report usage.
	TotalTokens *int
}

type Provider interface {
	Kind() Kind
	Model() string
	Generate(ctx context.Context, systemPrompt string, turns []Turn, opts Options) (*GenerationResult, error)
}

// ProviderConfig selects a provider and credential. APIKey must never be logged.
type ProviderConfig struct {
	Kind   Kind
	APIKey string
	Model  string
}

type settings struct {
	httpClient *http.Client
	baseURL    string
	referer    string
	title      string
	log        *zap.Logger
}

type Option func(*settings)

func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithBaseURL points the adapter at a different endpoint, e.g. a proxy or a test server.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithAttribution sets the OpenRouter HTTP-Referer and X-Title headers.
func WithAttribution(referer, title string) Option {
	return func(s *settings) {
		s.referer = referer
		s.title = title
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.log = logging.OrNop(l) }
}

// New builds the adapter for cfg.Kind. An empty model resolves through defaults.
func New(cfg ProviderConfig, defaults ModelDefaults, opts ...Option) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s api key is required", cfg.Kind.DisplayName())
	}
	model, err := defaults.Resolve(cfg.Kind, cfg.Model)
	if err != nil {
		return nil, err
	}
	s := settings{
		httpClient: http.DefaultClient,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	var p Provider
	switch cfg.Kind {
	case OpenAI, Groq, Mistral, XAI, DeepSeek, OpenRouter:
		p = newOpenAICompatible(cfg.Kind, cfg.APIKey, model, s)
	case Anthropic:
		p = newAnthropic(cfg.APIKey, model, s)
	case Google:
		p, err = newGemini(cfg.APIKey, model, s)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
	return instrumented{Provider: p, log: s.log}, nil
}
