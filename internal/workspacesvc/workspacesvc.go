// Package workspacesvc is the minimal, Postgres-backed workspace, role,
// membership, and invitation CRUD collaborator, present here for the same reason as
// internal/authsvc: the HTTP boundary and the workspace-isolation
// invariant both need a real tenant boundary to enforce against, not
// because this CRUD is itself the point. Workspace plus default roles
// plus owner-member creation, and invitation accept plus member-create,
// each run inside one DB transaction.
package workspacesvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawdesk/clawbench/internal/errs"
)

// Default role names seeded by CreateWorkspace.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Workspace struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Role struct {
	ID          string
	WorkspaceID string
	Name        string
}

type Member struct {
	WorkspaceID string
	UserID      string
	RoleID      string
	CreatedAt   time.Time
}

type Invitation struct {
	ID          string
	WorkspaceID string
	Email       string
	RoleID      string
	InvitedBy   string
	AcceptedAt  *time.Time
	CreatedAt   time.Time
}

// Service is the named interface the HTTP boundary talks to for
// workspace/role/membership/invitation operations.
type Service interface {
	CreateWorkspace(ctx context.Context, ownerID, name string) (*Workspace, error)
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error)

	CreateRole(ctx context.Context, workspaceID, name string) (*Role, error)
	ListRoles(ctx context.Context, workspaceID string) ([]Role, error)

	AddMember(ctx context.Context, workspaceID, userID, roleID string) (*Member, error)
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
	IsMember(ctx context.Context, workspaceID, userID string) (bool, error)

	Invite(ctx context.Context, workspaceID, email, roleID, invitedBy string) (*Invitation, error)
	AcceptInvitation(ctx context.Context, invitationID, userID string) (*Member, error)
	ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error)
}

type PGService struct {
	pool *pgxpool.Pool
}

func NewPGService(pool *pgxpool.Pool) *PGService {
	return &PGService{pool: pool}
}

var _ Service = (*PGService)(nil)

// CreateWorkspace seeds the workspace plus its "owner"/"member" roles and
// adds ownerID as an owner-role member, all inside one transaction.
func (s *PGService) CreateWorkspace(ctx context.Context, ownerID, name string) (*Workspace, error) {
	if name == "" {
		return nil, errs.New(errs.Validation, "workspace name is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: begin create workspace tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	wsID := uuid.Must(uuid.NewV7()).String()
	if _, err := tx.Exec(ctx,
		`INSERT INTO workspaces (id, name, owner_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		wsID, name, ownerID, now); err != nil {
		return nil, fmt.Errorf("workspacesvc: insert workspace: %w", err)
	}

	ownerRoleID := uuid.Must(uuid.NewV7()).String()
	if _, err := tx.Exec(ctx, `INSERT INTO roles (id, workspace_id, name) VALUES ($1, $2, $3)`,
		ownerRoleID, wsID, RoleOwner); err != nil {
		return nil, fmt.Errorf("workspacesvc: insert owner role: %w", err)
	}
	memberRoleID := uuid.Must(uuid.NewV7()).String()
	if _, err := tx.Exec(ctx, `INSERT INTO roles (id, workspace_id, name) VALUES ($1, $2, $3)`,
		memberRoleID, wsID, RoleMember); err != nil {
		return nil, fmt.Errorf("workspacesvc: insert member role: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at) VALUES ($1, $2, $3, $4)`,
		wsID, ownerID, ownerRoleID, now); err != nil {
		return nil, fmt.Errorf("workspacesvc: insert owner member: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workspacesvc: commit create workspace tx: %w", err)
	}

	return &Workspace{ID: wsID, Name: name, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PGService) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var w Workspace
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at, updated_at FROM workspaces WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "workspace not found")
		}
		return nil, fmt.Errorf("workspacesvc: get workspace: %w", err)
	}
	return &w, nil
}

func (s *PGService) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT w.id, w.name, w.owner_id, w.created_at, w.updated_at
		   FROM workspaces w
		   JOIN workspace_members m ON m.workspace_id = w.id
		  WHERE m.user_id = $1
		  ORDER BY w.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: list workspaces for user: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("workspacesvc: scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PGService) CreateRole(ctx context.Context, workspaceID, name string) (*Role, error) {
	if name == "" {
		return nil, errs.New(errs.Validation, "role name is required")
	}
	id := uuid.Must(uuid.NewV7()).String()
	_, err := s.pool.Exec(ctx, `INSERT INTO roles (id, workspace_id, name) VALUES ($1, $2, $3)`,
		id, workspaceID, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.New(errs.AlreadyExists, "a role with that name already exists in this workspace")
		}
		return nil, fmt.Errorf("workspacesvc: insert role: %w", err)
	}
	return &Role{ID: id, WorkspaceID: workspaceID, Name: name}, nil
}

func (s *PGService) ListRoles(ctx context.Context, workspaceID string) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, workspace_id, name FROM roles WHERE workspace_id = $1 ORDER BY name`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: list roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.Name); err != nil {
			return nil, fmt.Errorf("workspacesvc: scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGService) AddMember(ctx context.Context, workspaceID, userID, roleID string) (*Member, error) {
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at) VALUES ($1, $2, $3, $4)`,
		workspaceID, userID, roleID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.New(errs.AlreadyExists, "user is already a member of this workspace")
		}
		return nil, fmt.Errorf("workspacesvc: insert member: %w", err)
	}
	return &Member{WorkspaceID: workspaceID, UserID: userID, RoleID: roleID, CreatedAt: now}, nil
}

func (s *PGService) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID)
	if err != nil {
		return fmt.Errorf("workspacesvc: remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "membership not found")
	}
	return nil
}

func (s *PGService) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT workspace_id, user_id, role_id, created_at FROM workspace_members WHERE workspace_id = $1 ORDER BY created_at`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.RoleID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("workspacesvc: scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGService) IsMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)`,
		workspaceID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("workspacesvc: check membership: %w", err)
	}
	return exists, nil
}

func (s *PGService) Invite(ctx context.Context, workspaceID, email, roleID, invitedBy string) (*Invitation, error) {
	if email == "" {
		return nil, errs.New(errs.Validation, "email is required")
	}
	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workspace_invitations (id, workspace_id, email, role_id, invited_by, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, workspaceID, email, roleID, invitedBy, now)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: insert invitation: %w", err)
	}
	return &Invitation{ID: id, WorkspaceID: workspaceID, Email: email, RoleID: roleID, InvitedBy: invitedBy, CreatedAt: now}, nil
}

// AcceptInvitation marks invitationID accepted and adds userID as a member
// with the invitation's role, inside one transaction. The caller is
// responsible for checking that userID's account email matches the
// invitation before calling this.
func (s *PGService) AcceptInvitation(ctx context.Context, invitationID, userID string) (*Member, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: begin accept invitation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		workspaceID string
		roleID      string
		acceptedAt  *time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT workspace_id, role_id, accepted_at FROM workspace_invitations WHERE id = $1 FOR UPDATE`,
		invitationID).Scan(&workspaceID, &roleID, &acceptedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "invitation not found")
		}
		return nil, fmt.Errorf("workspacesvc: lookup invitation: %w", err)
	}
	if acceptedAt != nil {
		return nil, errs.New(errs.Conflict, "invitation already accepted")
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role_id, created_at) VALUES ($1, $2, $3, $4)`,
		workspaceID, userID, roleID, now); err != nil {
		if isUniqueViolation(err) {
			return nil, errs.New(errs.AlreadyExists, "user is already a member of this workspace")
		}
		return nil, fmt.Errorf("workspacesvc: insert member from invitation: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE workspace_invitations SET accepted_at = $1 WHERE id = $2`, now, invitationID); err != nil {
		return nil, fmt.Errorf("workspacesvc: mark invitation accepted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("workspacesvc: commit accept invitation tx: %w", err)
	}

	return &Member{WorkspaceID: workspaceID, UserID: userID, RoleID: roleID, CreatedAt: now}, nil
}

func (s *PGService) ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, workspace_id, email, role_id, invited_by, accepted_at, created_at
		   FROM workspace_invitations WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspacesvc: list invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.RoleID, &inv.InvitedBy, &inv.AcceptedAt, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("workspacesvc: scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
