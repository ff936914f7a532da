// ABOUTME: Store methods for the leads pipeline with cursor pagination.
// ABOUTME: Soft-delete preserves lead history; filters exclude deleted rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// CreateLeadParams holds the fields for creating a lead.
type CreateLeadParams struct {
	OwnerUserID *uuid.UUID
	FullName    string
	Email       string
	Phone       string
	Company     string
	Source      string
	Notes       string
}

// UpdateLeadParams holds the mutable contact fields of a lead. Stage changes
// go through UpdateLeadStage so transitions can be validated.
type UpdateLeadParams struct {
	OwnerUserID *uuid.UUID
	FullName    string
	Email       string
	Phone       string
	Company     string
	Source      string
	Notes       string
}

// LeadFilter narrows ListLeads. Zero values mean no filtering.
type LeadFilter struct {
	Stage       string
	OwnerUserID *uuid.UUID
}

const leadColumns = `id, tenant_id, owner_user_id, full_name, email, phone,
	company, source, stage, notes, deleted_at, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.TenantID, &l.OwnerUserID, &l.FullName, &l.Email, &l.Phone,
		&l.Company, &l.Source, &l.Stage, &l.Notes, &l.DeletedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLead inserts a new lead in stage 'new'.
func (s *Store) CreateLead(ctx context.Context, tenantID uuid.UUID, p CreateLeadParams) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO leads (tenant_id, owner_user_id, full_name, email, phone, company, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+leadColumns,
		tenantID, p.OwnerUserID, p.FullName, p.Email, p.Phone, p.Company, p.Source, p.Notes)
	l, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return l, nil
}

// GetLead returns the lead with the given id within tenantID, or (nil, nil)
// if not found or soft-deleted.
func (s *Store) GetLead(ctx context.Context, tenantID, id uuid.UUID) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, id)
	l, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ListLeads returns a page of non-deleted leads for a tenant ordered by
// created_at DESC, id DESC. Caller passes Limit+1 to detect whether a next
// page exists. afterTime and afterID are the cursor from the last item on
// the previous page.
func (s *Store) ListLeads(ctx context.Context, tenantID uuid.UUID, f LeadFilter, afterTime *time.Time, afterID *uuid.UUID, limit int) ([]Lead, error) {
	sb := psql.
		Select(leadColumns).
		From("leads").
		Where(sq.Eq{"tenant_id": tenantID}).
		Where("deleted_at IS NULL").
		OrderBy("created_at DESC, id DESC").
		Limit(uint64(limit)) //nolint:gosec // G115: limit validated by caller

	if f.Stage != "" {
		sb = sb.Where(sq.Eq{"stage": f.Stage})
	}
	if f.OwnerUserID != nil {
		sb = sb.Where(sq.Eq{"owner_user_id": *f.OwnerUserID})
	}
	if afterTime != nil && afterID != nil {
		sb = sb.Where("(created_at, id) < (?, ?)", *afterTime, *afterID)
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("list leads: build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.OwnerUserID, &l.FullName, &l.Email, &l.Phone,
			&l.Company, &l.Source, &l.Stage, &l.Notes, &l.DeletedAt,
			&l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("list leads: scan: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// UpdateLead updates the mutable contact fields. Returns (nil, nil) if the
// lead is not found or has been soft-deleted.
func (s *Store) UpdateLead(ctx context.Context, tenantID, id uuid.UUID, p UpdateLeadParams) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE leads
		SET owner_user_id = $3, full_name = $4, email = $5, phone = $6,
		    company = $7, source = $8, notes = $9, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		tenantID, id, p.OwnerUserID, p.FullName, p.Email, p.Phone, p.Company, p.Source, p.Notes)
	l, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	return l, nil
}

// UpdateLeadStage moves a lead to a new stage, guarded by the expected
// current stage so concurrent transitions cannot skip a step. Returns
// (nil, nil) if the lead is missing or no longer in fromStage.
func (s *Store) UpdateLeadStage(ctx context.Context, tenantID, id uuid.UUID, fromStage, toStage string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE leads SET stage = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND stage = $3 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		tenantID, id, fromStage, toStage)
	l, err := scanLead(row)
	if err != nil {
		return nil, fmt.Errorf("update lead stage: %w", err)
	}
	return l, nil
}

// DeleteLead soft-deletes a lead. Idempotent on already-deleted rows.
func (s *Store) DeleteLead(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET deleted_at = now()
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, id)
	if err != nil {
		return false, fmt.Errorf("delete lead: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
