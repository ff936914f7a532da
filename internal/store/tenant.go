// ABOUTME: Store methods for tenant workspaces and hierarchy level labels.
// ABOUTME: Labels cover custom levels 3..20 only; levels 1 and 2 are fixed.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateTenantWithOwner atomically creates a tenant, the owner's member
// profile, and the owner's company-admin role row.
func (s *Store) CreateTenantWithOwner(ctx context.Context, name, industry string, ownerID uuid.UUID, ownerName, ownerRole string) (*Tenant, error) {
	var t Tenant
	err := s.withPgxTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tenants (name, industry, owner_user_id)
			VALUES ($1, $2, $3)
			RETURNING id, name, industry, owner_user_id, created_at, updated_at`,
			name, industry, ownerID).
			Scan(&t.ID, &t.Name, &t.Industry, &t.OwnerUserID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO members (user_id, tenant_id, full_name)
			VALUES ($1, $2, $3)`,
			ownerID, t.ID, ownerName); err != nil {
			return fmt.Errorf("create owner member: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_assignments (tenant_id, user_id, role)
			VALUES ($1, $2, $3)`,
			t.ID, ownerID, ownerRole); err != nil {
			return fmt.Errorf("create owner role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenantByID returns the tenant with the given ID, or (nil, nil) if not found.
func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, industry, owner_user_id, created_at, updated_at
		FROM tenants WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Industry, &t.OwnerUserID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return &t, nil
}

// UpdateTenant updates name and industry. Returns (nil, nil) if not found.
func (s *Store) UpdateTenant(ctx context.Context, id uuid.UUID, name, industry string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx, `
		UPDATE tenants SET name = $2, industry = $3, updated_at = now()
		WHERE id = $1
		RETURNING id, name, industry, owner_user_id, created_at, updated_at`,
		id, name, industry).
		Scan(&t.ID, &t.Name, &t.Industry, &t.OwnerUserID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return &t, nil
}

// GetHierarchyLabels returns the tenant's level labels as a level->label map.
// Levels without a stored label are absent from the map.
func (s *Store) GetHierarchyLabels(ctx context.Context, tenantID uuid.UUID) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, label FROM hierarchy_labels
		WHERE tenant_id = $1 ORDER BY level`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get hierarchy labels: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	labels := make(map[int]string)
	for rows.Next() {
		var level int
		var label string
		if err := rows.Scan(&level, &label); err != nil {
			return nil, fmt.Errorf("get hierarchy labels: scan: %w", err)
		}
		labels[level] = label
	}
	return labels, rows.Err()
}

// ReplaceHierarchyLabels replaces the tenant's full label set in one
// transaction. Labels absent from the map are removed; an empty map clears
// all labels.
func (s *Store) ReplaceHierarchyLabels(ctx context.Context, tenantID uuid.UUID, labels map[int]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM hierarchy_labels WHERE tenant_id = $1`, tenantID); err != nil {
			return fmt.Errorf("clear hierarchy labels: %w", err)
		}
		for level, label := range labels {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO hierarchy_labels (tenant_id, level, label)
				VALUES ($1, $2, $3)`,
				tenantID, level, label); err != nil {
				return fmt.Errorf("insert hierarchy label %d: %w", level, err)
			}
		}
		return nil
	})
}
