package repo

import (
	"context"
	"database/sql"
	"errors"

	"workpilot/internal/domain"
)

// GetSettings returns the stored settings for an actor. Missing rows yield ErrNotFound.
func (r Repo) GetSettings(ctx context.Context, tx *sql.Tx, actorID string) (domain.UserSettings, error) {
	var s domain.UserSettings
	var provider, model sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT actor_id,theme,provider,model,api_key_ciphertext,updated_at FROM user_settings WHERE actor_id=?`, actorID).
		Scan(&s.ActorID, &s.Theme, &provider, &model, &s.EncryptedAPIKey, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	s.Provider = provider.String
	s.Model = model.String
	return s, err
}

// UpsertSettings writes every column. Callers merge partial updates first.
func (r Repo) UpsertSettings(ctx context.Context, tx *sql.Tx, s domain.UserSettings) error {
	theme := s.Theme
	if theme == "" {
		theme = "system"
	}
	var key any
	if len(s.EncryptedAPIKey) > 0 {
		key = s.EncryptedAPIKey
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO user_settings(actor_id,theme,provider,model,api_key_ciphertext,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(actor_id) DO UPDATE SET theme=excluded.theme, provider=excluded.provider, model=excluded.model,
api_key_ciphertext=excluded.api_key_ciphertext, updated_at=excluded.updated_at`,
		s.ActorID, theme, nullable(s.Provider), nullable(s.Model), key, s.UpdatedAt)
	return err
}
