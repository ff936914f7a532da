// ABOUTME: HTTP handlers for tenant management: create, read, update.
// ABOUTME: Routes use chi middleware (not huma.Register) for per-group level enforcement.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// createTenantBody is the JSON request body for POST /api/v1/tenants.
type createTenantBody struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// tenantResponseBody is the JSON response body for tenant reads and writes.
type tenantResponseBody struct {
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Industry  string `json:"industry"`
	CreatedAt string `json:"created_at"`
}

// updateTenantBody is the JSON request body for PATCH /api/v1/tenants/{tenant_id}.
type updateTenantBody struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", "error", err)
	}
}

// createTenantHandler handles POST /api/v1/tenants.
// Creates a new tenant and seats the authenticated user as its company admin.
func (srv *Server) createTenantHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createTenantBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	user, err := srv.store.GetUserByID(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create tenant: load user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	tenant, err := srv.store.CreateTenantWithOwner(r.Context(), req.Name, req.Industry, userID, user.DisplayName, "company")
	if err != nil {
		slog.ErrorContext(r.Context(), "create tenant", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, tenantResponseBody{
		TenantID:  tenant.ID.String(),
		Name:      tenant.Name,
		Industry:  tenant.Industry,
		CreatedAt: tenant.CreatedAt.Format(time.RFC3339),
	})
}

// getTenantHandler handles GET /api/v1/tenants/{tenant_id}.
// Any tenant member may read (enforced by RequireMember middleware).
func (srv *Server) getTenantHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	tenant, err := srv.store.GetTenantByID(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get tenant", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tenant == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, tenantResponseBody{
		TenantID:  tenant.ID.String(),
		Name:      tenant.Name,
		Industry:  tenant.Industry,
		CreatedAt: tenant.CreatedAt.Format(time.RFC3339),
	})
}

// updateTenantHandler handles PATCH /api/v1/tenants/{tenant_id}.
// Company level only (enforced by RequireLevelAtMost middleware).
func (srv *Server) updateTenantHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req updateTenantBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	tenant, err := srv.store.UpdateTenant(r.Context(), tenantID, req.Name, req.Industry)
	if err != nil {
		slog.ErrorContext(r.Context(), "update tenant", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tenant == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, tenantResponseBody{
		TenantID:  tenant.ID.String(),
		Name:      tenant.Name,
		Industry:  tenant.Industry,
		CreatedAt: tenant.CreatedAt.Format(time.RFC3339),
	})
}
