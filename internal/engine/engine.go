package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workpilot/internal/config"
	"workpilot/internal/domain"
	"workpilot/internal/engine/auth"
	"workpilot/internal/events"
	"workpilot/internal/repo"
)

// Engine applies domain mutations. Every mutation runs in one transaction that also
// appends an event, after an org-role permission check.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
	Hooks  *Hooks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
		Hooks:  &Hooks{},
	}
	e.Events = events.Writer{Now: e.now}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// inTx runs fn in a transaction and commits when it returns nil.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Hooks.committed()
	return nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (want one of %s)", field, v, strings.Join(allowed, ", "))
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

var (
	projectStatuses = []string{"planned", "active", "on_hold", "completed", "archived"}
	taskStatuses    = []string{"todo", "in_progress", "review", "done", "canceled"}
	priorities      = []string{"low", "medium", "high", "urgent"}
	clientStatuses  = []string{"active", "inactive", "prospect"}
	themes          = []string{"light", "dark", "system"}
)

// OrgInitOptions seed a new organization and its owner.
type OrgInitOptions struct {
	ID         string
	Name       string
	OwnerID    string
	OwnerName  string
	OwnerEmail string
}

func (e Engine) InitOrg(ctx context.Context, opts OrgInitOptions) (domain.Organization, error) {
	if err := required("name", opts.Name); err != nil {
		return domain.Organization{}, err
	}
	if err := required("owner", opts.OwnerID); err != nil {
		return domain.Organization{}, err
	}
	now := e.stamp()
	org := domain.Organization{ID: opts.ID, Name: opts.Name, CreatedAt: now}
	if org.ID == "" {
		org.ID = uuid.NewString()
	}
	name := opts.OwnerName
	if name == "" {
		name = opts.OwnerID
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetOrg(ctx, tx, org.ID); err == nil {
			return fmt.Errorf("organization %s already exists", org.ID)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := e.Repo.EnsureOrg(ctx, tx, org); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		if err := e.Repo.EnsureActor(ctx, tx, opts.OwnerID, now); err != nil {
			return fmt.Errorf("ensure actor: %w", err)
		}
		if err := e.Repo.UpsertMember(ctx, tx, domain.Member{OrgID: org.ID, ActorID: opts.OwnerID, Name: name, Email: opts.OwnerEmail, Role: "owner", CreatedAt: now}); err != nil {
			return fmt.Errorf("insert owner: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "org.created", OrgID: org.ID, EntityKind: "organization", EntityID: org.ID, ActorID: opts.OwnerID,
			Payload: events.Payload{"name": org.Name}})
	})
	if err != nil {
		return domain.Organization{}, err
	}
	return org, nil
}

type MemberAddOptions struct {
	OrgID    string
	MemberID string
	Name     string
	Email    string
	Role     string
	ActorID  string
}

func (e Engine) AddMember(ctx context.Context, opts MemberAddOptions) (domain.Member, error) {
	if opts.Role == "" {
		opts.Role = "member"
	}
	if !auth.ValidRole(opts.Role) {
		return domain.Member{}, fmt.Errorf("invalid role %q", opts.Role)
	}
	if err := required("member id", opts.MemberID); err != nil {
		return domain.Member{}, err
	}
	now := e.stamp()
	m := domain.Member{OrgID: opts.OrgID, ActorID: opts.MemberID, Name: opts.Name, Email: opts.Email, Role: opts.Role, CreatedAt: now}
	if m.Name == "" {
		m.Name = opts.MemberID
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.Require(ctx, tx, opts.OrgID, opts.ActorID, auth.PermMemberManage); err != nil {
			return err
		}
		if err := e.Repo.EnsureActor(ctx, tx, m.ActorID, now); err != nil {
			return err
		}
		if err := e.Repo.UpsertMember(ctx, tx, m); err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "member.added", OrgID: m.OrgID, EntityKind: "member", EntityID: m.ActorID, ActorID: opts.ActorID,
			Payload: events.Payload{"role": m.Role, "name": m.Name}})
	})
	if err != nil {
		return domain.Member{}, err
	}
	return m, nil
}

func (e Engine) CreateTeam(ctx context.Context, orgID, name, actorID string) (domain.Team, error) {
	if err := required("name", name); err != nil {
		return domain.Team{}, err
	}
	t := domain.Team{ID: uuid.NewString(), OrgID: orgID, Name: name, CreatedAt: e.stamp()}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Auth.Require(ctx, tx, orgID, actorID, auth.PermTeamManage); err != nil {
			return err
		}
		if err := e.Repo.InsertTeam(ctx, tx, t); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "team.created", OrgID: orgID, EntityKind: "team", EntityID: t.ID, ActorID: actorID,
			Payload: events.Payload{"name": name}})
	})
	if err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

// AddTeamMember adds an existing org member to a team.
func (e Engine) AddTeamMember(ctx context.Context, teamID, memberID, actorID string) error {
	if err := required("teamId", teamID); err != nil {
		return err
	}
	if err := required("userId", memberID); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		team, err := e.Repo.GetTeam(ctx, tx, teamID)
		if err != nil {
			return fmt.Errorf("team %s: %w", teamID, err)
		}
		if err := e.Auth.Require(ctx, tx, team.OrgID, actorID, auth.PermTeamManage); err != nil {
			return err
		}
		if _, err := e.Repo.GetMember(ctx, tx, team.OrgID, memberID); err != nil {
			return fmt.Errorf("member %s: %w", memberID, err)
		}
		if err := e.Repo.AddTeamMember(ctx, tx, teamID, memberID, e.stamp()); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{Type: "team.member_added", OrgID: team.OrgID, EntityKind: "team", EntityID: teamID, ActorID: actorID,
			Payload: events.Payload{"member_id": memberID}})
	})
}

// notify drops an inbox item for recipient unless they caused the change.
func (e Engine) notify(ctx context.Context, tx *sql.Tx, recipientID, actorID, title, body string) error {
	if recipientID == "" || recipientID == actorID {
		return nil
	}
	return e.Repo.InsertInboxItem(ctx, tx, domain.InboxItem{ID: uuid.NewString(), RecipientID: recipientID, Title: title, Body: body, CreatedAt: e.stamp()})
}
