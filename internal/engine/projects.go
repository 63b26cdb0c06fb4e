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

type ProjectCreateOptions struct {
	OrgID       string
	Name        string
	Description string
	ClientID    string
	Status      string
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if err := required("name", opts.Name); err != nil {
		return domain.Project{}, err
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	if err := oneOf("status", opts.Status, projectStatuses...); err != nil {
		return domain.Project{}, err
	}
	now := e.stamp()
	p := domain.Project{ID: uuid.NewString(), OrgID: opts.OrgID, Name: opts.Name, Status: opts.Status, Description: opts.Description, CreatedAt: now, UpdatedAt: now}
	if opts.ClientID != "" {
		clientID := opts.ClientID
		p.ClientID = &clientID
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.Require(ctx, tx, opts.OrgID, opts.ActorID, auth.PermProjectWrite); err != nil {
			return err
		}
		if p.ClientID != nil {
			c, err := e.Repo.GetClient(ctx, tx, *p.ClientID)
			if err != nil {
				return fmt.Errorf("client %s: %w", *p.ClientID, err)
			}
			if c.OrgID != opts.OrgID {
				return fmt.Errorf("client %s: %w", *p.ClientID, repo.ErrNotFound)
			}
		}
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		// the creator can always see the project they made
		if err := e.Repo.UpsertProjectMember(ctx, tx, domain.ProjectMember{ProjectID: p.ID, ActorID: opts.ActorID, Role: "lead", CreatedAt: now}); err != nil {
			return fmt.Errorf("insert project lead: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "project.created", OrgID: p.OrgID, EntityKind: "project", EntityID: p.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"name": p.Name, "status": p.Status}})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type ProjectUpdateOptions struct {
	Name        *string
	Status      *string
	Description *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	if opts.Name != nil {
		if err := required("name", *opts.Name); err != nil {
			return domain.Project{}, err
		}
	}
	if opts.Status != nil {
		if err := oneOf("status", *opts.Status, projectStatuses...); err != nil {
			return domain.Project{}, err
		}
	}
	var out domain.Project
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.projectFor(ctx, tx, projectID, opts.ActorID, auth.PermProjectWrite)
		if err != nil {
			return err
		}
		if err := e.Repo.UpdateProject(ctx, tx, projectID, repo.ProjectUpdate{Name: opts.Name, Status: opts.Status, Description: opts.Description}, e.stamp()); err != nil {
			return err
		}
		if out, err = e.Repo.GetProject(ctx, tx, projectID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "project.updated", OrgID: p.OrgID, EntityKind: "project", EntityID: projectID, ActorID: opts.ActorID,
			Payload: changed(map[string]*string{"name": opts.Name, "status": opts.Status, "description": opts.Description})})
	})
	return out, err
}

func (e Engine) AddProjectMember(ctx context.Context, projectID, memberID, role, actorID string) error {
	if err := required("userId", memberID); err != nil {
		return err
	}
	if err := required("role", role); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.projectFor(ctx, tx, projectID, actorID, auth.PermProjectWrite)
		if err != nil {
			return err
		}
		if _, err := e.Repo.GetMember(ctx, tx, p.OrgID, memberID); err != nil {
			return fmt.Errorf("member %s: %w", memberID, err)
		}
		if err := e.Repo.UpsertProjectMember(ctx, tx, domain.ProjectMember{ProjectID: projectID, ActorID: memberID, Role: role, CreatedAt: e.stamp()}); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, memberID, actorID, "Added to project "+p.Name, "Role: "+role); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "project.member_added", OrgID: p.OrgID, EntityKind: "project", EntityID: projectID, ActorID: actorID,
			Payload: events.Payload{"member_id": memberID, "role": role}})
	})
}

type WorkstreamCreateOptions struct {
	ProjectID   string
	Name        string
	Description string
	ActorID     string
}

func (e Engine) CreateWorkstream(ctx context.Context, opts WorkstreamCreateOptions) (domain.Workstream, error) {
	if err := required("name", opts.Name); err != nil {
		return domain.Workstream{}, err
	}
	if err := required("projectId", opts.ProjectID); err != nil {
		return domain.Workstream{}, err
	}
	now := e.stamp()
	w := domain.Workstream{ID: uuid.NewString(), ProjectID: opts.ProjectID, Name: opts.Name, Description: opts.Description, CreatedAt: now, UpdatedAt: now}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.projectFor(ctx, tx, opts.ProjectID, opts.ActorID, auth.PermWorkstreamEdit)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertWorkstream(ctx, tx, w); err != nil {
			return fmt.Errorf("insert workstream: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "workstream.created", OrgID: p.OrgID, EntityKind: "workstream", EntityID: w.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"project_id": w.ProjectID, "name": w.Name}})
	})
	if err != nil {
		return domain.Workstream{}, err
	}
	return w, nil
}

func (e Engine) UpdateWorkstream(ctx context.Context, workstreamID string, name, description *string, actorID string) error {
	if name != nil {
		if err := required("name", *name); err != nil {
			return err
		}
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		w, err := e.Repo.GetWorkstream(ctx, tx, workstreamID)
		if err != nil {
			return fmt.Errorf("workstream %s: %w", workstreamID, err)
		}
		p, err := e.projectFor(ctx, tx, w.ProjectID, actorID, auth.PermWorkstreamEdit)
		if err != nil {
			return err
		}
		if err := e.Repo.UpdateWorkstream(ctx, tx, workstreamID, repo.WorkstreamUpdate{Name: name, Description: description}, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "workstream.updated", OrgID: p.OrgID, EntityKind: "workstream", EntityID: workstreamID, ActorID: actorID,
			Payload: changed(map[string]*string{"name": name, "description": description})})
	})
}

// projectFor loads a project and checks perm in its org.
func (e Engine) projectFor(ctx context.Context, tx *sql.Tx, projectID, actorID, perm string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return p, fmt.Errorf("project %s: %w", projectID, err)
	}
	if err := e.Auth.Require(ctx, tx, p.OrgID, actorID, perm); err != nil {
		return p, err
	}
	return p, nil
}

// changed keeps only the fields that were set, for event payloads.
func changed(fields map[string]*string) events.Payload {
	out := events.Payload{}
	for k, v := range fields {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
