package repo

import (
	"context"
	"database/sql"
	"errors"

	"workpilot/internal/domain"
)

const clientCols = `id,org_id,name,COALESCE(email,''),COALESCE(phone,''),status,created_at,updated_at`

func scanClient(s scanner) (domain.Client, error) {
	var c domain.Client
	err := s.Scan(&c.ID, &c.OrgID, &c.Name, &c.Email, &c.Phone, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO clients(id,org_id,name,email,phone,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.OrgID, c.Name, nullable(c.Email), nullable(c.Phone), c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, tx *sql.Tx, id string) (domain.Client, error) {
	c, err := scanClient(r.q(tx).QueryRowContext(ctx, `SELECT `+clientCols+` FROM clients WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListClients(ctx context.Context, tx *sql.Tx, orgID string) ([]domain.Client, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+clientCols+` FROM clients WHERE org_id=? ORDER BY name, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type ClientUpdate struct {
	Name   *string
	Email  *string
	Phone  *string
	Status *string
}

func (r Repo) UpdateClient(ctx context.Context, tx *sql.Tx, id string, u ClientUpdate, now string) error {
	var p patch
	if u.Name != nil {
		p.set("name", *u.Name)
	}
	if u.Email != nil {
		p.set("email", nullable(*u.Email))
	}
	if u.Phone != nil {
		p.set("phone", nullable(*u.Phone))
	}
	if u.Status != nil {
		p.set("status", *u.Status)
	}
	if p.empty() {
		_, err := r.GetClient(ctx, tx, id)
		return err
	}
	p.set("updated_at", now)
	return r.applyPatch(ctx, tx, "clients", id, p)
}

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO notes(id,project_id,title,content,author_id,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.ProjectID, n.Title, nullable(n.Content), n.AuthorID, n.CreatedAt)
	return err
}

func (r Repo) ListNotes(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Note, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,project_id,title,COALESCE(content,''),author_id,created_at FROM notes WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.Title, &n.Content, &n.AuthorID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r Repo) InsertInboxItem(ctx context.Context, tx *sql.Tx, it domain.InboxItem) error {
	read := 0
	if it.Read {
		read = 1
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO inbox_items(id,recipient_id,title,body,read,created_at) VALUES (?,?,?,?,?,?)`,
		it.ID, it.RecipientID, it.Title, nullable(it.Body), read, it.CreatedAt)
	return err
}

// ListUnreadInbox returns unread items newest first.
func (r Repo) ListUnreadInbox(ctx context.Context, tx *sql.Tx, recipientID string, limit int) ([]domain.InboxItem, error) {
	query := `SELECT id,recipient_id,title,COALESCE(body,''),read,created_at FROM inbox_items WHERE recipient_id=? AND read=0 ORDER BY created_at DESC, id`
	args := []any{recipientID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.InboxItem
	for rows.Next() {
		var it domain.InboxItem
		var read int
		if err := rows.Scan(&it.ID, &it.RecipientID, &it.Title, &it.Body, &read, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.Read = read != 0
		out = append(out, it)
	}
	return out, rows.Err()
}
