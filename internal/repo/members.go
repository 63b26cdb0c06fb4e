package repo

import (
	"context"
	"database/sql"
	"errors"

	"workpilot/internal/domain"
)

// EnsureOrg inserts the organization when it does not already exist.
func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, org domain.Organization) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id,name,created_at) VALUES (?,?,?)`, org.ID, org.Name, org.CreatedAt)
	return err
}

func (r Repo) GetOrg(ctx context.Context, tx *sql.Tx, id string) (domain.Organization, error) {
	var o domain.Organization
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,created_at FROM organizations WHERE id=?`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, ErrNotFound
	}
	return o, err
}

// SingleOrg returns the only organization in the workspace.
func (r Repo) SingleOrg(ctx context.Context) (domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM organizations ORDER BY created_at LIMIT 2`)
	if err != nil {
		return domain.Organization{}, err
	}
	defer rows.Close()
	var orgs []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return domain.Organization{}, err
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return domain.Organization{}, err
	}
	if len(orgs) != 1 {
		return domain.Organization{}, ErrNotFound
	}
	return orgs[0], nil
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id,created_at) VALUES (?,?)`, actorID, now)
	return err
}

// UpsertMember adds an actor to an organization or updates their profile and role.
func (r Repo) UpsertMember(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO org_members(org_id,actor_id,name,email,role,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(org_id,actor_id) DO UPDATE SET name=excluded.name, email=excluded.email, role=excluded.role`,
		m.OrgID, m.ActorID, m.Name, nullable(m.Email), m.Role, m.CreatedAt)
	return err
}

func (r Repo) GetMember(ctx context.Context, tx *sql.Tx, orgID, actorID string) (domain.Member, error) {
	var m domain.Member
	var email sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT org_id,actor_id,name,email,role,created_at FROM org_members WHERE org_id=? AND actor_id=?`, orgID, actorID).
		Scan(&m.OrgID, &m.ActorID, &m.Name, &email, &m.Role, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	m.Email = email.String
	return m, err
}

// MemberOrg returns the first organization the actor joined.
func (r Repo) MemberOrg(ctx context.Context, actorID string) (string, error) {
	var orgID string
	err := r.DB.QueryRowContext(ctx, `SELECT org_id FROM org_members WHERE actor_id=? ORDER BY created_at, rowid LIMIT 1`, actorID).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return orgID, err
}

func (r Repo) ListMembers(ctx context.Context, tx *sql.Tx, orgID string) ([]domain.Member, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT org_id,actor_id,name,email,role,created_at FROM org_members WHERE org_id=? ORDER BY name, actor_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		var email sql.NullString
		if err := rows.Scan(&m.OrgID, &m.ActorID, &m.Name, &email, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Email = email.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO teams(id,org_id,name,created_at) VALUES (?,?,?,?)`, t.ID, t.OrgID, t.Name, t.CreatedAt)
	return err
}

func (r Repo) GetTeam(ctx context.Context, tx *sql.Tx, id string) (domain.Team, error) {
	var t domain.Team
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,org_id,name,created_at FROM teams WHERE id=?`, id).Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// AddTeamMember is idempotent.
func (r Repo) AddTeamMember(ctx context.Context, tx *sql.Tx, teamID, actorID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO team_members(team_id,actor_id,created_at) VALUES (?,?,?)`, teamID, actorID, now)
	return err
}

// ListTeams returns teams with their member ids populated.
func (r Repo) ListTeams(ctx context.Context, tx *sql.Tx, orgID string) ([]domain.Team, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT t.id,t.org_id,t.name,t.created_at,COALESCE(tm.actor_id,'')
FROM teams t LEFT JOIN team_members tm ON tm.team_id=t.id
WHERE t.org_id=? ORDER BY t.name, t.id, tm.actor_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Team
	for rows.Next() {
		var t domain.Team
		var member string
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.CreatedAt, &member); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == t.ID {
			if member != "" {
				out[n-1].MemberIDs = append(out[n-1].MemberIDs, member)
			}
			continue
		}
		if member != "" {
			t.MemberIDs = []string{member}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
