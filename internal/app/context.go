package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"workpilot/internal/assistant"
	"workpilot/internal/config"
	"workpilot/internal/db"
	"workpilot/internal/engine"
	"workpilot/internal/migrate"
	"workpilot/internal/repo"
	"workpilot/internal/secret"
)

const (
	DefaultOrgID   = "default-org"
	defaultOrgName = "Default Org"
	keysetFile     = "keyset.json"
)

// Workspace is an opened, migrated workspace directory.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open loads workpilot.yml (defaults when absent), opens the database and applies migrations.
func Open(ctx context.Context, dir string) (*Workspace, error) {
	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: engine.New(conn, cfg)}, nil
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Vault opens the workspace keyset, creating it on first use.
func (w *Workspace) Vault() (*secret.Vault, error) {
	dir, err := db.EnsureWorkspace(w.Dir)
	if err != nil {
		return nil, err
	}
	return secret.Open(filepath.Join(dir, keysetFile))
}

// Assistant builds the assistant service backed by this workspace.
func (w *Workspace) Assistant(log *zap.Logger) (*assistant.Service, error) {
	vault, err := w.Vault()
	if err != nil {
		return nil, fmt.Errorf("open key vault: %w", err)
	}
	return assistant.New(w.Engine, vault, log)
}

// ResolveOrg picks the organization for a command: the override, then the actor's
// membership, then the only organization. An empty workspace gets a default org owned
// by actorID.
func ResolveOrg(ctx context.Context, e engine.Engine, override, actorID string) (string, error) {
	if override != "" {
		if _, err := e.Repo.GetOrg(ctx, nil, override); err != nil {
			return "", fmt.Errorf("organization %s: %w", override, err)
		}
		return override, nil
	}
	if orgID, err := e.Repo.MemberOrg(ctx, actorID); err == nil {
		return orgID, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	if org, err := e.Repo.SingleOrg(ctx); err == nil {
		return org.ID, nil
	}
	var count int
	if err := e.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&count); err != nil {
		return "", err
	}
	if count > 0 {
		return "", fmt.Errorf("organization not specified; use --org")
	}
	if actorID == "" {
		actorID = "local-user"
	}
	org, err := e.InitOrg(ctx, engine.OrgInitOptions{ID: DefaultOrgID, Name: defaultOrgName, OwnerID: actorID})
	if err != nil {
		return "", fmt.Errorf("create default organization: %w", err)
	}
	return org.ID, nil
}
