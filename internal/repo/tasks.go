package repo

import (
	"context"
	"database/sql"
	"errors"

	"workpilot/internal/domain"
)

const taskCols = `id,project_id,workstream_id,title,COALESCE(description,''),status,priority,assignee_id,created_at,updated_at`

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var ws, assignee sql.NullString
	if err := s.Scan(&t.ID, &t.ProjectID, &ws, &t.Title, &t.Description, &t.Status, &t.Priority, &assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	t.WorkstreamID = ptrFromNull(ws)
	t.AssigneeID = ptrFromNull(assignee)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO tasks(id,project_id,workstream_id,title,description,status,priority,assignee_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullablePtr(t.WorkstreamID), t.Title, nullable(t.Description), t.Status, t.Priority, nullablePtr(t.AssigneeID), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := scanTask(r.q(tx).QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilter struct {
	// OrgID keeps tasks whose project belongs to the organization.
	OrgID        string
	ProjectID    string
	WorkstreamID string
	AssigneeID   string
	Status       string
	// OpenOnly excludes done and canceled tasks.
	OpenOnly bool
	Limit    int
}

func (r Repo) ListTasks(ctx context.Context, tx *sql.Tx, f TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE 1=1`
	var args []any
	if f.OrgID != "" {
		query += ` AND project_id IN (SELECT id FROM projects WHERE org_id=?)`
		args = append(args, f.OrgID)
	}
	if f.ProjectID != "" {
		query += ` AND project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.WorkstreamID != "" {
		query += ` AND workstream_id=?`
		args = append(args, f.WorkstreamID)
	}
	if f.AssigneeID != "" {
		query += ` AND assignee_id=?`
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.OpenOnly {
		query += ` AND status NOT IN ('done','canceled')`
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TaskUpdate carries optional fields. SetAssignee with an empty AssigneeID clears the assignee.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	SetAssignee bool
	AssigneeID  string
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, u TaskUpdate, now string) error {
	var p patch
	if u.Title != nil {
		p.set("title", *u.Title)
	}
	if u.Description != nil {
		p.set("description", nullable(*u.Description))
	}
	if u.Status != nil {
		p.set("status", *u.Status)
	}
	if u.Priority != nil {
		p.set("priority", *u.Priority)
	}
	if u.SetAssignee {
		p.set("assignee_id", nullable(u.AssigneeID))
	}
	if p.empty() {
		_, err := r.GetTask(ctx, tx, id)
		return err
	}
	p.set("updated_at", now)
	return r.applyPatch(ctx, tx, "tasks", id, p)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	return checkAffected(r.q(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id))
}
