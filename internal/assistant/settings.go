package assistant

import (
	"context"
	"fmt"
	"strings"

	"workpilot/internal/assistant/provider"
	"workpilot/internal/engine"
)

// SettingsView is what clients see. The key itself never leaves the server.
type SettingsView struct {
	Theme     string `json:"theme" enum:"light,dark,system"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	HasAPIKey bool   `json:"has_api_key"`
}

// SettingsInput carries optional changes. An empty APIKey clears the stored key.
type SettingsInput struct {
	Theme    *string
	Provider *string
	Model    *string
	APIKey   *string
}

func (s *Service) Settings(ctx context.Context, actorID string) (SettingsView, error) {
	st, err := s.Engine.Settings(ctx, actorID)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Theme: st.Theme, Provider: st.Provider, Model: st.Model, HasAPIKey: st.HasAPIKey()}, nil
}

// SaveSettings validates the provider and model and stores the key encrypted.
func (s *Service) SaveSettings(ctx context.Context, actorID string, in SettingsInput) (SettingsView, error) {
	upd := engine.SettingsUpdate{Theme: in.Theme, Model: in.Model}
	current, err := s.Engine.Settings(ctx, actorID)
	if err != nil {
		return SettingsView{}, err
	}
	kindName := current.Provider
	if in.Provider != nil {
		kind, err := provider.ParseKind(*in.Provider)
		if err != nil {
			return SettingsView{}, err
		}
		name := string(kind)
		upd.Provider = &name
		kindName = name
	}
	if in.Model != nil && *in.Model != "" {
		if kindName == "" {
			return SettingsView{}, fmt.Errorf("choose a provider before a model")
		}
		if err := provider.ValidateModel(provider.Kind(kindName), *in.Model); err != nil {
			return SettingsView{}, err
		}
	}
	if in.APIKey != nil {
		key := strings.TrimSpace(*in.APIKey)
		if key == "" {
			upd.ClearAPIKey = true
		} else {
			if s.Vault == nil {
				return SettingsView{}, fmt.Errorf("no key vault configured")
			}
			ct, err := s.Vault.Encrypt(key, actorID)
			if err != nil {
				return SettingsView{}, fmt.Errorf("encrypt api key: %w", err)
			}
			upd.EncryptedAPIKey = ct
		}
	}
	st, err := s.Engine.UpdateSettings(ctx, actorID, upd)
	if err != nil {
		return SettingsView{}, err
	}
	return SettingsView{Theme: st.Theme, Provider: st.Provider, Model: st.Model, HasAPIKey: st.HasAPIKey()}, nil
}
