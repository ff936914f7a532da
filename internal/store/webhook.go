// ABOUTME: Store methods for tenant webhook endpoints receiving event payloads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateWebhookEndpoint registers a new active endpoint for a tenant.
func (s *Store) CreateWebhookEndpoint(ctx context.Context, tenantID uuid.UUID, url, secret string) (*WebhookEndpoint, error) {
	var w WebhookEndpoint
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_endpoints (tenant_id, url, secret)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, url, secret, active, created_at, updated_at`,
		tenantID, url, secret).
		Scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create webhook endpoint: %w", err)
	}
	return &w, nil
}

// GetWebhookEndpoint returns the endpoint with the given id within tenantID,
// or (nil, nil) if not found.
func (s *Store) GetWebhookEndpoint(ctx context.Context, tenantID, id uuid.UUID) (*WebhookEndpoint, error) {
	var w WebhookEndpoint
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, url, secret, active, created_at, updated_at
		FROM webhook_endpoints WHERE tenant_id = $1 AND id = $2`,
		tenantID, id).
		Scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return &w, nil
}

// ListActiveWebhookEndpoints returns a tenant's active endpoints. Called by
// the dispatch job when fanning out an event.
func (s *Store) ListActiveWebhookEndpoints(ctx context.Context, tenantID uuid.UUID) ([]WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, url, secret, active, created_at, updated_at
		FROM webhook_endpoints WHERE tenant_id = $1 AND active
		ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []WebhookEndpoint
	for rows.Next() {
		var w WebhookEndpoint
		if err := rows.Scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &w.Active,
			&w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list webhook endpoints: scan: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// ListWebhookEndpoints returns all of a tenant's endpoints, active or not.
func (s *Store) ListWebhookEndpoints(ctx context.Context, tenantID uuid.UUID) ([]WebhookEndpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, url, secret, active, created_at, updated_at
		FROM webhook_endpoints WHERE tenant_id = $1
		ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []WebhookEndpoint
	for rows.Next() {
		var w WebhookEndpoint
		if err := rows.Scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &w.Active,
			&w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list webhook endpoints: scan: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// SetWebhookEndpointActive enables or disables delivery to an endpoint.
func (s *Store) SetWebhookEndpointActive(ctx context.Context, tenantID, id uuid.UUID, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_endpoints SET active = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, active)
	if err != nil {
		return false, fmt.Errorf("set webhook endpoint active: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteWebhookEndpoint removes an endpoint.
func (s *Store) DeleteWebhookEndpoint(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_endpoints WHERE tenant_id = $1 AND id = $2`,
		tenantID, id)
	if err != nil {
		return false, fmt.Errorf("delete webhook endpoint: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
