// ABOUTME: Store methods for payment links: creation, public token lookup,
// ABOUTME: status transitions guarded by the expected current status.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePaymentLinkParams holds the fields for creating a payment link.
type CreatePaymentLinkParams struct {
	LeadID      *uuid.UUID
	CreatedBy   uuid.UUID
	Token       string
	AmountCents int64
	Currency    string
	Description string
	ExpiresAt   time.Time
}

const paymentLinkColumns = `id, tenant_id, lead_id, created_by, token, amount_cents,
	currency, description, status, expires_at, paid_at, created_at, updated_at`

func scanPaymentLink(row interface{ Scan(...any) error }) (*PaymentLink, error) {
	var p PaymentLink
	err := row.Scan(
		&p.ID, &p.TenantID, &p.LeadID, &p.CreatedBy, &p.Token, &p.AmountCents,
		&p.Currency, &p.Description, &p.Status, &p.ExpiresAt, &p.PaidAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePaymentLink inserts a new pending payment link.
func (s *Store) CreatePaymentLink(ctx context.Context, tenantID uuid.UUID, p CreatePaymentLinkParams) (*PaymentLink, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_links (tenant_id, lead_id, created_by, token, amount_cents,
			currency, description, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+paymentLinkColumns,
		tenantID, p.LeadID, p.CreatedBy, p.Token, p.AmountCents,
		p.Currency, p.Description, p.ExpiresAt)
	pl, err := scanPaymentLink(row)
	if err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}
	return pl, nil
}

// GetPaymentLinkByToken resolves a link by its public token, or (nil, nil)
// if the token is unknown. Used by the unauthenticated pay page.
func (s *Store) GetPaymentLinkByToken(ctx context.Context, token string) (*PaymentLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentLinkColumns+` FROM payment_links WHERE token = $1`, token)
	pl, err := scanPaymentLink(row)
	if err != nil {
		return nil, fmt.Errorf("get payment link by token: %w", err)
	}
	return pl, nil
}

// ListPaymentLinks returns a tenant's payment links, newest first.
func (s *Store) ListPaymentLinks(ctx context.Context, tenantID uuid.UUID, limit int) ([]PaymentLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentLinkColumns+` FROM payment_links
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payment links: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []PaymentLink
	for rows.Next() {
		var p PaymentLink
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.LeadID, &p.CreatedBy, &p.Token, &p.AmountCents,
			&p.Currency, &p.Description, &p.Status, &p.ExpiresAt, &p.PaidAt,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("list payment links: scan: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// TransitionPaymentLink moves a link from fromStatus to toStatus, setting
// paid_at when toStatus is 'paid'. Returns (nil, nil) if the link is missing
// or no longer in fromStatus, so double payment is rejected at the DB.
func (s *Store) TransitionPaymentLink(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) (*PaymentLink, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE payment_links
		SET status = $3,
		    paid_at = CASE WHEN $3 = 'paid' THEN now() ELSE paid_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentLinkColumns,
		id, fromStatus, toStatus)
	pl, err := scanPaymentLink(row)
	if err != nil {
		return nil, fmt.Errorf("transition payment link: %w", err)
	}
	return pl, nil
}

// ExpirePaymentLinks marks pending links past expiry as expired. Called by
// the retention job. Returns the number of links expired.
func (s *Store) ExpirePaymentLinks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_links SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("expire payment links: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
