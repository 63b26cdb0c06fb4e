package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"workpilot/internal/domain"
	"workpilot/internal/engine/auth"
	"workpilot/internal/events"
	"workpilot/internal/repo"
)

type ClientCreateOptions struct {
	OrgID   string
	Name    string
	Email   string
	Phone   string
	Status  string
	ActorID string
}

func (e Engine) CreateClient(ctx context.Context, opts ClientCreateOptions) (domain.Client, error) {
	if err := required("name", opts.Name); err != nil {
		return domain.Client{}, err
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if err := oneOf("status", opts.Status, clientStatuses...); err != nil {
		return domain.Client{}, err
	}
	now := e.stamp()
	c := domain.Client{ID: uuid.NewString(), OrgID: opts.OrgID, Name: opts.Name, Email: opts.Email, Phone: opts.Phone, Status: opts.Status, CreatedAt: now, UpdatedAt: now}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.Require(ctx, tx, opts.OrgID, opts.ActorID, auth.PermClientWrite); err != nil {
			return err
		}
		if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "client.created", OrgID: c.OrgID, EntityKind: "client", EntityID: c.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"name": c.Name}})
	})
	if err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

type ClientUpdateOptions struct {
	Name    *string
	Email   *string
	Phone   *string
	Status  *string
	ActorID string
}

func (e Engine) UpdateClient(ctx context.Context, clientID string, opts ClientUpdateOptions) (domain.Client, error) {
	if opts.Name != nil {
		if err := required("name", *opts.Name); err != nil {
			return domain.Client{}, err
		}
	}
	if opts.Status != nil {
		if err := oneOf("status", *opts.Status, clientStatuses...); err != nil {
			return domain.Client{}, err
		}
	}
	var out domain.Client
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		c, err := e.Repo.GetClient(ctx, tx, clientID)
		if err != nil {
			return fmt.Errorf("client %s: %w", clientID, err)
		}
		if err := e.Auth.Require(ctx, tx, c.OrgID, opts.ActorID, auth.PermClientWrite); err != nil {
			return err
		}
		if err := e.Repo.UpdateClient(ctx, tx, clientID, repo.ClientUpdate{Name: opts.Name, Email: opts.Email, Phone: opts.Phone, Status: opts.Status}, e.stamp()); err != nil {
			return err
		}
		if out, err = e.Repo.GetClient(ctx, tx, clientID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "client.updated", OrgID: c.OrgID, EntityKind: "client", EntityID: clientID, ActorID: opts.ActorID,
			Payload: changed(map[string]*string{"name": opts.Name, "email": opts.Email, "phone": opts.Phone, "status": opts.Status})})
	})
	return out, err
}

func (e Engine) CreateNote(ctx context.Context, projectID, title, content, actorID string) (domain.Note, error) {
	if err := required("title", title); err != nil {
		return domain.Note{}, err
	}
	n := domain.Note{ID: uuid.NewString(), ProjectID: projectID, Title: title, Content: content, AuthorID: actorID, CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.projectFor(ctx, tx, projectID, actorID, auth.PermNoteWrite)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "note.created", OrgID: p.OrgID, EntityKind: "note", EntityID: n.ID, ActorID: actorID,
			Payload: events.Payload{"project_id": projectID, "title": title}})
	})
	if err != nil {
		return domain.Note{}, err
	}
	return n, nil
}
