package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"workpilot/internal/domain"
	"workpilot/internal/engine/auth"
	"workpilot/internal/repo"
)

func (h handlers) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor and permissions",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		orgID, actorID, err := h.orgFor(ctx, auth.PermRead)
		if err != nil {
			return nil, h.handleError(err)
		}
		role, err := h.engine.Auth.Role(ctx, nil, orgID, actorID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			ActorID:     actorID,
			OrgID:       orgID,
			Role:        role,
			Permissions: nonNilSlice(auth.RolePermissions[role]),
		}}, nil
	})
}

func (h handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "projects-list",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"planned,active,on_hold,completed,archived"`
		ClientID string `query:"client_id"`
	}) (*struct {
		Body listProjects `json:"body"`
	}, error) {
		orgID, _, err := h.orgFor(ctx, auth.PermRead)
		if err != nil {
			return nil, h.handleError(err)
		}
		projects, err := h.engine.Repo.ListProjects(ctx, nil, repo.ProjectFilter{OrgID: orgID, Status: input.Status, ClientID: input.ClientID})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body listProjects `json:"body"`
		}{Body: listProjects{Items: nonNilSlice(projects)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "projects-get",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project with workstreams, members and notes",
		Tags:        []string{"Projects"},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ProjectDetailResponse `json:"body"`
	}, error) {
		p, err := h.projectInOrg(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		workstreams, err := h.engine.Repo.ListWorkstreams(ctx, nil, p.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		members, err := h.engine.Repo.ListProjectMembers(ctx, nil, p.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		notes, err := h.engine.Repo.ListNotes(ctx, nil, p.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body ProjectDetailResponse `json:"body"`
		}{Body: ProjectDetailResponse{
			Project:     p,
			Workstreams: nonNilSlice(workstreams),
			Members:     nonNilSlice(members),
			Notes:       nonNilSlice(notes),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-tasks-list",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "List tasks of a project",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		Status     string `query:"status" enum:"todo,in_progress,review,done,canceled"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body listTasks `json:"body"`
	}, error) {
		p, err := h.projectInOrg(ctx, input.ID)
		if err != nil {
			return nil, h.handleError(err)
		}
		tasks, err := h.engine.Repo.ListTasks(ctx, nil, repo.TaskFilter{
			ProjectID:  p.ID,
			Status:     input.Status,
			AssigneeID: input.AssigneeID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body listTasks `json:"body"`
		}{Body: listTasks{Items: nonNilSlice(tasks)}}, nil
	})
}

func (h handlers) registerClients(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "clients-list",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
		Tags:        []string{"Clients"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body listClients `json:"body"`
	}, error) {
		orgID, _, err := h.orgFor(ctx, auth.PermRead)
		if err != nil {
			return nil, h.handleError(err)
		}
		clients, err := h.engine.Repo.ListClients(ctx, nil, orgID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body listClients `json:"body"`
		}{Body: listClients{Items: nonNilSlice(clients)}}, nil
	})
}

func (h handlers) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "events-list",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List organization events, newest first",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body listEvents `json:"body"`
	}, error) {
		orgID, _, err := h.orgFor(ctx, auth.PermRead)
		if err != nil {
			return nil, h.handleError(err)
		}
		evts, err := h.engine.Repo.ListEvents(ctx, repo.EventFilter{
			OrgID:      orgID,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		items := make([]EventResponse, 0, len(evts))
		for _, e := range evts {
			items = append(items, eventResponse(e))
		}
		return &struct {
			Body listEvents `json:"body"`
		}{Body: listEvents{Items: items}}, nil
	})
}

// projectInOrg loads a project the caller can read. Projects of other orgs read as missing.
func (h handlers) projectInOrg(ctx context.Context, id string) (domain.Project, error) {
	orgID, _, err := h.orgFor(ctx, auth.PermRead)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := h.engine.Repo.GetProject(ctx, nil, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.OrgID != orgID {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}
