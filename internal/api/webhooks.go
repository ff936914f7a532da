// ABOUTME: HTTP handlers for webhook endpoint management. Admin levels only;
// ABOUTME: the signing secret is returned once at creation and never again.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// createWebhookBody is the JSON request body for POST .../webhooks.
type createWebhookBody struct {
	URL string `json:"url"`
}

// webhookBody is the JSON representation of a webhook endpoint. Secret is
// populated only in the creation response.
type webhookBody struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Secret    string `json:"secret,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// updateWebhookBody is the JSON request body for PATCH .../webhooks/{webhook_id}.
type updateWebhookBody struct {
	Active *bool `json:"active"`
}

// listWebhooksHandler handles GET /api/v1/tenants/{tenant_id}/webhooks.
func (srv *Server) listWebhooksHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	endpoints, err := srv.store.ListWebhookEndpoints(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list webhooks", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]webhookBody, len(endpoints))
	for i, e := range endpoints {
		out[i] = webhookBody{
			ID:        e.ID.String(),
			URL:       e.URL,
			Active:    e.Active,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": out})
}

// createWebhookHandler handles POST /api/v1/tenants/{tenant_id}/webhooks.
// Generates the signing secret server-side. HTTPS only.
func (srv *Server) createWebhookHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req createWebhookBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		http.Error(w, "url must be a valid https URL", http.StatusBadRequest)
		return
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		slog.ErrorContext(r.Context(), "generate webhook secret", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	secret := hex.EncodeToString(secretBytes)

	endpoint, err := srv.store.CreateWebhookEndpoint(r.Context(), tenantID, req.URL, secret)
	if err != nil {
		slog.ErrorContext(r.Context(), "create webhook", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, webhookBody{
		ID:        endpoint.ID.String(),
		URL:       endpoint.URL,
		Secret:    secret,
		Active:    endpoint.Active,
		CreatedAt: endpoint.CreatedAt.Format(time.RFC3339),
	})
}

// requestWebhookID parses {webhook_id} from the URL.
func requestWebhookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "webhook_id"))
	if err != nil {
		http.Error(w, "invalid webhook_id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// updateWebhookHandler handles PATCH .../webhooks/{webhook_id}.
func (srv *Server) updateWebhookHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	webhookID, ok := requestWebhookID(w, r)
	if !ok {
		return
	}

	var req updateWebhookBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Active == nil {
		http.Error(w, "active is required", http.StatusBadRequest)
		return
	}

	updated, err := srv.store.SetWebhookEndpointActive(r.Context(), tenantID, webhookID, *req.Active)
	if err != nil {
		slog.ErrorContext(r.Context(), "update webhook", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteWebhookHandler handles DELETE .../webhooks/{webhook_id}.
func (srv *Server) deleteWebhookHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	webhookID, ok := requestWebhookID(w, r)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteWebhookEndpoint(r.Context(), tenantID, webhookID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete webhook", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
