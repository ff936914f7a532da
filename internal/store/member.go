// ABOUTME: Store methods for tenant membership: profiles, role rows, managers.
// ABOUTME: All methods take tenantID as the tenant isolation boundary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateMemberProfile inserts the member profile row for a user in a tenant.
// Fails on duplicate membership (primary key on tenant_id, user_id).
func (s *Store) CreateMemberProfile(ctx context.Context, tenantID, userID uuid.UUID, fullName string, managerID *uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO members (user_id, tenant_id, full_name, manager_id)
		VALUES ($1, $2, $3, $4)`,
		userID, tenantID, fullName, managerID); err != nil {
		return fmt.Errorf("create member profile: %w", err)
	}
	return nil
}

// CreateRoleAssignment inserts the single role row for a member. The unique
// index on (tenant_id, user_id) rejects a second role for the same member.
func (s *Store) CreateRoleAssignment(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (tenant_id, user_id, role)
		VALUES ($1, $2, $3)`,
		tenantID, userID, role); err != nil {
		return fmt.Errorf("create role assignment: %w", err)
	}
	return nil
}

// GetMember returns a member with their role row joined, or (nil, nil) if the
// user is not a member of the tenant.
func (s *Store) GetMember(ctx context.Context, tenantID, userID uuid.UUID) (*Member, error) {
	var m Member
	err := s.db.QueryRowContext(ctx, `
		SELECT m.user_id, m.tenant_id, m.full_name, u.email,
		       COALESCE(ra.role, ''), m.manager_id, m.created_at, m.updated_at
		FROM members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN role_assignments ra ON ra.tenant_id = m.tenant_id AND ra.user_id = m.user_id
		WHERE m.tenant_id = $1 AND m.user_id = $2`,
		tenantID, userID).
		Scan(&m.UserID, &m.TenantID, &m.FullName, &m.Email, &m.Role, &m.ManagerID,
			&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// ListMembers returns all members of a tenant with roles joined, ordered by
// join time. The full set feeds the hierarchy tree builder, so there is no
// pagination here.
func (s *Store) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.tenant_id, m.full_name, u.email,
		       COALESCE(ra.role, ''), m.manager_id, m.created_at, m.updated_at
		FROM members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN role_assignments ra ON ra.tenant_id = m.tenant_id AND ra.user_id = m.user_id
		WHERE m.tenant_id = $1
		ORDER BY m.created_at, m.user_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.FullName, &m.Email, &m.Role,
			&m.ManagerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list members: scan: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpdateMemberRole replaces the member's role row. Returns (nil, nil) via the
// bool when the member has no role row to update.
func (s *Store) UpdateMemberRole(ctx context.Context, tenantID, userID uuid.UUID, role string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE role_assignments SET role = $3, updated_at = now()
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, role)
	if err != nil {
		return false, fmt.Errorf("update member role: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateMemberManager repoints a member's manager. Pass nil to detach.
func (s *Store) UpdateMemberManager(ctx context.Context, tenantID, userID uuid.UUID, managerID *uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET manager_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID, managerID)
	if err != nil {
		return false, fmt.Errorf("update member manager: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMember removes a member's profile and role rows in one transaction.
// Reports detached as the number of direct reports whose manager link was
// cleared. The user row itself is kept; they may belong to other tenants.
func (s *Store) DeleteMember(ctx context.Context, tenantID, userID uuid.UUID) (detached int64, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE members SET manager_id = NULL, updated_at = now()
			WHERE tenant_id = $1 AND manager_id = $2`,
			tenantID, userID)
		if err != nil {
			return fmt.Errorf("detach reports: %w", err)
		}
		detached, _ = res.RowsAffected()
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM role_assignments WHERE tenant_id = $1 AND user_id = $2`,
			tenantID, userID); err != nil {
			return fmt.Errorf("delete role assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM members WHERE tenant_id = $1 AND user_id = $2`,
			tenantID, userID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		return nil
	})
	return detached, err
}

// Membership summarizes one tenant a user belongs to.
type Membership struct {
	TenantID   uuid.UUID
	TenantName string
	Role       string
}

// ListUserMemberships returns every tenant the user belongs to with their
// role there. Used by the current-user endpoint.
func (s *Store) ListUserMemberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, COALESCE(ra.role, '')
		FROM members m
		JOIN tenants t ON t.id = m.tenant_id
		LEFT JOIN role_assignments ra ON ra.tenant_id = m.tenant_id AND ra.user_id = m.user_id
		WHERE m.user_id = $1
		ORDER BY t.created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user memberships: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.TenantID, &m.TenantName, &m.Role); err != nil {
			return nil, fmt.Errorf("list user memberships: scan: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// CreateInvitation records a completed invitation for audit.
func (s *Store) CreateInvitation(ctx context.Context, tenantID, userID, invitedBy uuid.UUID, role string) (*Invitation, error) {
	var inv Invitation
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invitations (tenant_id, user_id, invited_by, role, status)
		VALUES ($1, $2, $3, $4, 'accepted')
		RETURNING id, tenant_id, user_id, invited_by, role, status, created_at`,
		tenantID, userID, invitedBy, role).
		Scan(&inv.ID, &inv.TenantID, &inv.UserID, &inv.InvitedBy, &inv.Role,
			&inv.Status, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return &inv, nil
}

// ListInvitations returns a tenant's invitation history, newest first.
func (s *Store) ListInvitations(ctx context.Context, tenantID uuid.UUID, limit int) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, invited_by, role, status, created_at
		FROM invitations WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.UserID, &inv.InvitedBy,
			&inv.Role, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("list invitations: scan: %w", err)
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}
