package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"go.uber.org/zap"

	"workpilot/internal/assistant/prompt"
	"workpilot/internal/logging"
	"workpilot/internal/repo"
)

const (
	snapshotCacheSize = 1000
	inboxFetchLimit   = 20
	myTasksFetchLimit = 50
)

// Snapshots loads the data the system prompt describes. Results are cached per
// actor and focus for a short TTL; a TTL of zero disables the cache.
type Snapshots struct {
	repo  repo.Repo
	cache *otter.Cache[string, prompt.Snapshot]
	log   *zap.Logger
}

func NewSnapshots(r repo.Repo, ttl time.Duration, log *zap.Logger) (*Snapshots, error) {
	s := &Snapshots{repo: r, log: logging.OrNop(log)}
	if ttl <= 0 {
		return s, nil
	}
	cache, err := otter.MustBuilder[string, prompt.Snapshot](snapshotCacheSize).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build snapshot cache: %w", err)
	}
	s.cache = &cache
	return s, nil
}

func snapshotKey(orgID, actorID, projectID, clientID string) string {
	return orgID + "|" + actorID + "|" + projectID + "|" + clientID
}

func (s *Snapshots) Load(ctx context.Context, orgID, actorID, projectID, clientID string) (prompt.Snapshot, error) {
	key := snapshotKey(orgID, actorID, projectID, clientID)
	if s.cache != nil {
		if snap, ok := s.cache.Get(key); ok {
			return snap, nil
		}
	}
	snap, err := s.load(ctx, orgID, actorID, projectID, clientID)
	if err != nil {
		return prompt.Snapshot{}, err
	}
	if s.cache != nil {
		s.cache.Set(key, snap)
	}
	return snap, nil
}

// Invalidate drops every cached snapshot. New subscribes it to engine commits.
func (s *Snapshots) Invalidate() {
	if s.cache != nil {
		s.cache.Clear()
	}
}

func (s *Snapshots) load(ctx context.Context, orgID, actorID, projectID, clientID string) (prompt.Snapshot, error) {
	snap := prompt.Snapshot{CurrentUserID: actorID}
	var err error
	if snap.Organization, err = s.repo.GetOrg(ctx, nil, orgID); err != nil {
		return snap, fmt.Errorf("load organization: %w", err)
	}
	if snap.Members, err = s.repo.ListMembers(ctx, nil, orgID); err != nil {
		return snap, fmt.Errorf("load members: %w", err)
	}
	if snap.Teams, err = s.repo.ListTeams(ctx, nil, orgID); err != nil {
		return snap, fmt.Errorf("load teams: %w", err)
	}
	if snap.Projects, err = s.repo.ListProjects(ctx, nil, repo.ProjectFilter{OrgID: orgID}); err != nil {
		return snap, fmt.Errorf("load projects: %w", err)
	}
	if snap.Clients, err = s.repo.ListClients(ctx, nil, orgID); err != nil {
		return snap, fmt.Errorf("load clients: %w", err)
	}
	if snap.MyTasks, err = s.repo.ListTasks(ctx, nil, repo.TaskFilter{OrgID: orgID, AssigneeID: actorID, OpenOnly: true, Limit: myTasksFetchLimit}); err != nil {
		return snap, fmt.Errorf("load my tasks: %w", err)
	}
	if snap.UnreadInbox, err = s.repo.ListUnreadInbox(ctx, nil, actorID, inboxFetchLimit); err != nil {
		return snap, fmt.Errorf("load inbox: %w", err)
	}
	if projectID != "" {
		if snap.CurrentProject, err = s.projectDetail(ctx, orgID, projectID); err != nil {
			return snap, err
		}
	}
	if clientID != "" {
		if snap.CurrentClient, err = s.clientDetail(ctx, orgID, clientID); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// projectDetail returns nil for a focus outside the org, so a stale page id never fails a chat.
func (s *Snapshots) projectDetail(ctx context.Context, orgID, projectID string) (*prompt.ProjectDetail, error) {
	p, err := s.repo.GetProject(ctx, nil, projectID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && p.OrgID != orgID) {
		s.log.Debug("focused project not visible", zap.String("project", projectID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	d := &prompt.ProjectDetail{Project: p}
	if d.Workstreams, err = s.repo.ListWorkstreams(ctx, nil, projectID); err != nil {
		return nil, fmt.Errorf("load workstreams: %w", err)
	}
	if d.Tasks, err = s.repo.ListTasks(ctx, nil, repo.TaskFilter{ProjectID: projectID}); err != nil {
		return nil, fmt.Errorf("load project tasks: %w", err)
	}
	if d.Members, err = s.repo.ListProjectMembers(ctx, nil, projectID); err != nil {
		return nil, fmt.Errorf("load project members: %w", err)
	}
	if d.Notes, err = s.repo.ListNotes(ctx, nil, projectID); err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	return d, nil
}

func (s *Snapshots) clientDetail(ctx context.Context, orgID, clientID string) (*prompt.ClientDetail, error) {
	c, err := s.repo.GetClient(ctx, nil, clientID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && c.OrgID != orgID) {
		s.log.Debug("focused client not visible", zap.String("client", clientID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	d := &prompt.ClientDetail{Client: c}
	if d.Projects, err = s.repo.ListProjects(ctx, nil, repo.ProjectFilter{OrgID: orgID, ClientID: clientID}); err != nil {
		return nil, fmt.Errorf("load client projects: %w", err)
	}
	return d, nil
}
