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

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID    string
	WorkstreamID string
	Title        string
	Description  string
	Priority     string
	AssigneeID   string
	ActorID      string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if err := required("title", opts.Title); err != nil {
		return domain.Task{}, err
	}
	if err := required("projectId", opts.ProjectID); err != nil {
		return domain.Task{}, err
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if err := oneOf("priority", opts.Priority, priorities...); err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	t := domain.Task{ID: uuid.NewString(), ProjectID: opts.ProjectID, Title: opts.Title, Description: opts.Description,
		Status: "todo", Priority: opts.Priority, CreatedAt: now, UpdatedAt: now}
	if opts.WorkstreamID != "" {
		ws := opts.WorkstreamID
		t.WorkstreamID = &ws
	}
	if opts.AssigneeID != "" {
		a := opts.AssigneeID
		t.AssigneeID = &a
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.projectFor(ctx, tx, opts.ProjectID, opts.ActorID, auth.PermTaskWrite)
		if err != nil {
			return err
		}
		if t.WorkstreamID != nil {
			w, err := e.Repo.GetWorkstream(ctx, tx, *t.WorkstreamID)
			if err != nil {
				return fmt.Errorf("workstream %s: %w", *t.WorkstreamID, err)
			}
			if w.ProjectID != t.ProjectID {
				return fmt.Errorf("workstream %s is not in project %s", w.ID, t.ProjectID)
			}
		}
		if t.AssigneeID != nil {
			if _, err := e.Repo.GetMember(ctx, tx, p.OrgID, *t.AssigneeID); err != nil {
				return fmt.Errorf("assignee %s: %w", *t.AssigneeID, err)
			}
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if t.AssigneeID != nil {
			if err := e.notify(ctx, tx, *t.AssigneeID, opts.ActorID, "New task: "+t.Title, "Project: "+p.Name); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "task.created", OrgID: p.OrgID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: events.Payload{"project_id": t.ProjectID, "title": t.Title, "priority": t.Priority}})
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions carry optional fields. SetAssignee with empty AssigneeID unassigns.
type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	SetAssignee bool
	AssigneeID  string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, taskID string, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.Title != nil {
		if err := required("title", *opts.Title); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.Status != nil {
		if err := oneOf("status", *opts.Status, taskStatuses...); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.Priority != nil {
		if err := oneOf("priority", *opts.Priority, priorities...); err != nil {
			return domain.Task{}, err
		}
	}
	var out domain.Task
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTask(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		p, err := e.projectFor(ctx, tx, t.ProjectID, opts.ActorID, auth.PermTaskWrite)
		if err != nil {
			return err
		}
		if opts.SetAssignee && opts.AssigneeID != "" {
			if _, err := e.Repo.GetMember(ctx, tx, p.OrgID, opts.AssigneeID); err != nil {
				return fmt.Errorf("assignee %s: %w", opts.AssigneeID, err)
			}
		}
		upd := repo.TaskUpdate{Title: opts.Title, Description: opts.Description, Status: opts.Status, Priority: opts.Priority,
			SetAssignee: opts.SetAssignee, AssigneeID: opts.AssigneeID}
		if err := e.Repo.UpdateTask(ctx, tx, taskID, upd, e.stamp()); err != nil {
			return err
		}
		payload := changed(map[string]*string{"title": opts.Title, "description": opts.Description, "status": opts.Status, "priority": opts.Priority})
		evType := "task.updated"
		if opts.SetAssignee {
			payload["assignee_id"] = opts.AssigneeID
			evType = "task.assigned"
			if err := e.notify(ctx, tx, opts.AssigneeID, opts.ActorID, "Assigned: "+t.Title, "Project: "+p.Name); err != nil {
				return err
			}
		}
		if out, err = e.Repo.GetTask(ctx, tx, taskID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: evType, OrgID: p.OrgID, EntityKind: "task", EntityID: taskID, ActorID: opts.ActorID, Payload: payload})
	})
	return out, err
}

// AssignTask sets or clears (nil) the assignee.
func (e Engine) AssignTask(ctx context.Context, taskID string, assigneeID *string, actorID string) (domain.Task, error) {
	opts := TaskUpdateOptions{SetAssignee: true, ActorID: actorID}
	if assigneeID != nil {
		opts.AssigneeID = *assigneeID
	}
	return e.UpdateTask(ctx, taskID, opts)
}

func (e Engine) DeleteTask(ctx context.Context, taskID, actorID string) error {
	return e.inTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTask(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		p, err := e.projectFor(ctx, tx, t.ProjectID, actorID, auth.PermTaskDelete)
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteTask(ctx, tx, taskID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "task.deleted", OrgID: p.OrgID, EntityKind: "task", EntityID: taskID, ActorID: actorID,
			Payload: events.Payload{"title": t.Title, "project_id": t.ProjectID}})
	})
}
