package repo

import (
	"context"
	"database/sql"
	"errors"

	"workpilot/internal/domain"
)

const projectCols = `id,org_id,client_id,name,status,COALESCE(description,''),created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	var clientID sql.NullString
	if err := s.Scan(&p.ID, &p.OrgID, &clientID, &p.Name, &p.Status, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.ClientID = ptrFromNull(clientID)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(id,org_id,client_id,name,status,description,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.OrgID, nullablePtr(p.ClientID), p.Name, p.Status, nullable(p.Description), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(r.q(tx).QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

type ProjectFilter struct {
	OrgID    string
	ClientID string
	Status   string
}

func (r Repo) ListProjects(ctx context.Context, tx *sql.Tx, f ProjectFilter) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects WHERE org_id=?`
	args := []any{f.OrgID}
	if f.ClientID != "" {
		query += ` AND client_id=?`
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ProjectUpdate carries optional fields; nil leaves the column unchanged.
type ProjectUpdate struct {
	Name        *string
	Status      *string
	Description *string
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, u ProjectUpdate, now string) error {
	var p patch
	if u.Name != nil {
		p.set("name", *u.Name)
	}
	if u.Status != nil {
		p.set("status", *u.Status)
	}
	if u.Description != nil {
		p.set("description", nullable(*u.Description))
	}
	if p.empty() {
		_, err := r.GetProject(ctx, tx, id)
		return err
	}
	p.set("updated_at", now)
	return r.applyPatch(ctx, tx, "projects", id, p)
}

// UpsertProjectMember adds or re-roles a project member.
func (r Repo) UpsertProjectMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO project_members(project_id,actor_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,actor_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.ActorID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) ListProjectMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT project_id,actor_id,role,created_at FROM project_members WHERE project_id=? ORDER BY created_at, actor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.ActorID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r Repo) InsertWorkstream(ctx context.Context, tx *sql.Tx, w domain.Workstream) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workstreams(id,project_id,name,description,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.ProjectID, w.Name, nullable(w.Description), w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWorkstream(ctx context.Context, tx *sql.Tx, id string) (domain.Workstream, error) {
	var w domain.Workstream
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,project_id,name,COALESCE(description,''),created_at,updated_at FROM workstreams WHERE id=?`, id).
		Scan(&w.ID, &w.ProjectID, &w.Name, &w.Description, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) ListWorkstreams(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Workstream, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,project_id,name,COALESCE(description,''),created_at,updated_at FROM workstreams WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Workstream
	for rows.Next() {
		var w domain.Workstream
		if err := rows.Scan(&w.ID, &w.ProjectID, &w.Name, &w.Description, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

type WorkstreamUpdate struct {
	Name        *string
	Description *string
}

func (r Repo) UpdateWorkstream(ctx context.Context, tx *sql.Tx, id string, u WorkstreamUpdate, now string) error {
	var p patch
	if u.Name != nil {
		p.set("name", *u.Name)
	}
	if u.Description != nil {
		p.set("description", nullable(*u.Description))
	}
	if p.empty() {
		_, err := r.GetWorkstream(ctx, tx, id)
		return err
	}
	p.set("updated_at", now)
	return r.applyPatch(ctx, tx, "workstreams", id, p)
}
