package provider

import "fmt"

// ModelDefaults maps each provider to the model used when a user picks none.
// Version identifies the table so a change of defaults is an explicit, reviewable event.
type ModelDefaults struct {
	Version string
	Models  map[Kind]string
}

func DefaultModelsV1() ModelDefaults {
	return ModelDefaults{
		Version: "v1",
		Models: map[Kind]string{
			OpenAI:     "gpt-4o-mini",
			Anthropic:  "claude-3-5-sonnet-20241022",
			Google:     "gemini-1.5-flash",
			Groq:       "llama-3.3-70b-versatile",
			Mistral:    "mistral-large-latest",
			XAI:        "grok-2-latest",
			DeepSeek:   "deepseek-chat",
			OpenRouter: "anthropic/claude-3.5-sonnet",
		},
	}
}

// WithOverrides returns a copy whose entries are replaced by overrides (keyed by kind name).
func (d ModelDefaults) WithOverrides(overrides map[string]string) ModelDefaults {
	if len(overrides) == 0 {
		return d
	}
	out := ModelDefaults{Version: d.Version + "+config", Models: make(map[Kind]string, len(d.Models))}
	for k, v := range d.Models {
		out.Models[k] = v
	}
	for k, v := range overrides {
		out.Models[Kind(k)] = v
	}
	return out
}

// Resolve returns model when set, otherwise the table entry. Explicit models must be in the catalog.
func (d ModelDefaults) Resolve(kind Kind, model string) (string, error) {
	if model != "" {
		if err := ValidateModel(kind, model); err != nil {
			return "", err
		}
		return model, nil
	}
	m, ok := d.Models[kind]
	if !ok || m == "" {
		return "", fmt.Errorf("no default model for provider %q (defaults %s)", kind, d.Version)
	}
	return m, nil
}

// Catalog lists the selectable models per provider.
var Catalog = map[Kind][]string{
	OpenAI:     {"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
	Anthropic:  {"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"},
	Google:     {"gemini-1.5-flash", "gemini-1.5-pro", "gemini-2.0-flash"},
	Groq:       {"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
	Mistral:    {"mistral-large-latest", "mistral-small-latest", "open-mistral-nemo"},
	XAI:        {"grok-2-latest", "grok-beta"},
	DeepSeek:   {"deepseek-chat", "deepseek-reasoner"},
	OpenRouter: {"anthropic/claude-3.5-sonnet", "openai/gpt-4o", "google/gemini-pro-1.5", "meta-llama/llama-3.1-70b-instruct"},
}

func ValidateModel(kind Kind, model string) error {
	models, ok := Catalog[kind]
	if !ok {
		return fmt.Errorf("unknown provider %q", kind)
	}
	for _, m := range models {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available for %s", model, kind.DisplayName())
}
