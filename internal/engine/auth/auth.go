package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

const (
	PermOrgManage      = "org.manage"
	PermMemberManage   = "member.manage"
	PermTeamManage     = "team.manage"
	PermProjectWrite   = "project.write"
	PermWorkstreamEdit = "workstream.write"
	PermTaskWrite      = "task.write"
	PermTaskDelete     = "task.delete"
	PermClientWrite    = "client.write"
	PermNoteWrite      = "note.write"
	PermRead           = "org.read"
)

// RolePermissions is the fixed org-role matrix.
var RolePermissions = map[string][]string{
	"owner":  {PermOrgManage, PermMemberManage, PermTeamManage, PermProjectWrite, PermWorkstreamEdit, PermTaskWrite, PermTaskDelete, PermClientWrite, PermNoteWrite, PermRead},
	"admin":  {PermMemberManage, PermTeamManage, PermProjectWrite, PermWorkstreamEdit, PermTaskWrite, PermTaskDelete, PermClientWrite, PermNoteWrite, PermRead},
	"member": {PermWorkstreamEdit, PermTaskWrite, PermNoteWrite, PermRead},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// Service answers permission questions from org membership.
type Service struct {
	DB *sql.DB
}

// Role returns the actor's role in the org, or "" when they are not a member.
func (s Service) Role(ctx context.Context, tx *sql.Tx, orgID, actorID string) (string, error) {
	q := `SELECT role FROM org_members WHERE org_id=? AND actor_id=?`
	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, q, orgID, actorID)
	} else {
		row = s.DB.QueryRowContext(ctx, q, orgID, actorID)
	}
	var role string
	err := row.Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (s Service) Permissions(ctx context.Context, tx *sql.Tx, orgID, actorID string) ([]string, error) {
	role, err := s.Role(ctx, tx, orgID, actorID)
	if err != nil {
		return nil, err
	}
	return RolePermissions[role], nil
}

// Require returns ForbiddenError unless the actor's org role grants perm.
func (s Service) Require(ctx context.Context, tx *sql.Tx, orgID, actorID, perm string) error {
	perms, err := s.Permissions(ctx, tx, orgID, actorID)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p == perm {
			return nil
		}
	}
	return ForbiddenError{Permission: perm}
}
