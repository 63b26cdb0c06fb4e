package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"workpilot/internal/domain"
	"workpilot/internal/events"
	"workpilot/internal/repo"
)

// Settings returns stored settings, or defaults when the actor has none yet.
func (e Engine) Settings(ctx context.Context, actorID string) (domain.UserSettings, error) {
	s, err := e.Repo.GetSettings(ctx, nil, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.UserSettings{ActorID: actorID, Theme: "system"}, nil
	}
	return s, err
}

// SettingsUpdate carries optional changes. EncryptedAPIKey replaces the stored key when
// non-nil; ClearAPIKey removes it.
type SettingsUpdate struct {
	Theme           *string
	Provider        *string
	Model           *string
	EncryptedAPIKey []byte
	ClearAPIKey     bool
}

func (e Engine) UpdateSettings(ctx context.Context, actorID string, u SettingsUpdate) (domain.UserSettings, error) {
	if u.Theme != nil {
		if err := oneOf("theme", *u.Theme, themes...); err != nil {
			return domain.UserSettings{}, err
		}
	}
	var out domain.UserSettings
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		s, err := e.Repo.GetSettings(ctx, tx, actorID)
		if errors.Is(err, repo.ErrNotFound) {
			s = domain.UserSettings{ActorID: actorID, Theme: "system"}
		} else if err != nil {
			return err
		}
		payload := events.Payload{}
		if u.Theme != nil {
			s.Theme = *u.Theme
			payload["theme"] = s.Theme
		}
		if u.Provider != nil {
			if *u.Provider != s.Provider {
				// a key for one vendor is useless for another
				s.EncryptedAPIKey = nil
				s.Model = ""
			}
			s.Provider = *u.Provider
			payload["provider"] = s.Provider
		}
		if u.Model != nil {
			s.Model = *u.Model
			payload["model"] = s.Model
		}
		if u.ClearAPIKey {
			s.EncryptedAPIKey = nil
			payload["api_key"] = "cleared"
		}
		if u.EncryptedAPIKey != nil {
			s.EncryptedAPIKey = u.EncryptedAPIKey
			payload["api_key"] = "updated"
		}
		s.UpdatedAt = e.stamp()
		if err := e.Repo.EnsureActor(ctx, tx, actorID, s.UpdatedAt); err != nil {
			return err
		}
		if err := e.Repo.UpsertSettings(ctx, tx, s); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		out = s
		return e.Events.Append(ctx, tx, events.Entry{Type: "settings.updated", EntityKind: "user_settings", EntityID: actorID, ActorID: actorID, Payload: payload})
	})
	return out, err
}

func (e Engine) SetTheme(ctx context.Context, actorID, theme string) error {
	_, err := e.UpdateSettings(ctx, actorID, SettingsUpdate{Theme: &theme})
	return err
}

// CreateAPIKey stores a hashed key and returns the raw value once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (string, domain.APIKey, error) {
	if err := required("actor", actorID); err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := "wp_" + hex.EncodeToString(buf)
	key := domain.APIKey{ID: uuid.NewString(), ActorID: actorID, Name: name, KeyHash: repo.HashAPIKey(raw), CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
			return err
		}
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "apikey.created", EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.Payload{"name": name}})
	})
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}
