// ABOUTME: Job handlers for the worker pool: invitation emails and webhook fan-out.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/notify"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

// inviteEmailJob mirrors the payload queued by the invitation saga.
type inviteEmailJob struct {
	UserID       uuid.UUID `json:"user_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	TempPassword string    `json:"temp_password,omitempty"`
}

// InviteEmailHandler returns the handler for the invite_email queue. It
// resolves the tenant's label for the invited role so the email shows the
// tenant's own terminology rather than the raw role identifier.
func InviteEmailHandler(st *store.Store, smtp notify.SmtpConfig, externalURL string) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var job inviteEmailJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode invite email payload: %w", err)
		}

		tenant, err := st.GetTenantByID(ctx, job.TenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			// Tenant deleted between enqueue and delivery; nothing to send.
			return nil
		}
		labels, err := st.GetHierarchyLabels(ctx, job.TenantID)
		if err != nil {
			return err
		}

		subject, htmlBody, textBody := notify.InvitationEmail(
			tenant.Name, job.FullName, hierarchy.Label(job.Role, labels),
			job.TempPassword, externalURL+"/login")
		return notify.EmailSend(ctx, smtp, []string{job.Email}, subject, htmlBody, textBody)
	}
}

// webhookDispatchJob is the payload queued when a tenant event fires.
type webhookDispatchJob struct {
	TenantID uuid.UUID       `json:"tenant_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// WebhookDispatchHandler returns the handler for the webhook_dispatch queue.
// One job fans out to every active endpoint of the tenant; any endpoint
// failure fails the job so the whole event is retried with backoff.
func WebhookDispatchHandler(st *store.Store, client *http.Client) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var job webhookDispatchJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("decode webhook dispatch payload: %w", err)
		}

		endpoints, err := st.ListActiveWebhookEndpoints(ctx, job.TenantID)
		if err != nil {
			return err
		}

		body, err := json.Marshal(map[string]any{
			"event": job.Event,
			"data":  job.Data,
		})
		if err != nil {
			return fmt.Errorf("encode webhook body: %w", err)
		}

		var errs []error
		for _, ep := range endpoints {
			if err := notify.Send(ctx, client, notify.WebhookConfig{
				URL:           ep.URL,
				SigningSecret: ep.Secret,
			}, body); err != nil {
				errs = append(errs, fmt.Errorf("endpoint %s: %w", ep.ID, err))
			}
		}
		return errors.Join(errs...)
	}
}

// MaintenanceHandler returns the handler for the maintenance queue: expiring
// stale payment links and pruning dead refresh tokens.
func MaintenanceHandler(st *store.Store) Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		expired, err := st.ExpirePaymentLinks(ctx)
		if err != nil {
			return err
		}
		pruned, err := st.DeleteExpiredRefreshTokens(ctx)
		if err != nil {
			return err
		}
		if expired > 0 || pruned > 0 {
			slog.Info("maintenance sweep", "links_expired", expired, "tokens_pruned", pruned)
		}
		return nil
	}
}
