// ABOUTME: HTTP handlers for the leads pipeline: CRUD, cursor-paginated
// ABOUTME: listing, and guarded stage transitions that fan out webhook events.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

// allowedStageTransitions is the forward pipeline. A lead can be lost from
// any active stage but never resurrected from won or lost.
var allowedStageTransitions = map[string][]string{
	"new":       {"contacted", "lost"},
	"contacted": {"qualified", "lost"},
	"qualified": {"won", "lost"},
}

func stageTransitionAllowed(from, to string) bool {
	for _, next := range allowedStageTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// leadBody is the JSON representation of a lead.
type leadBody struct {
	ID          string  `json:"id"`
	OwnerUserID *string `json:"owner_user_id,omitempty"`
	FullName    string  `json:"full_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone,omitempty"`
	Company     string  `json:"company,omitempty"`
	Source      string  `json:"source,omitempty"`
	Stage       string  `json:"stage"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toLeadBody(l *store.Lead) leadBody {
	body := leadBody{
		ID:        l.ID.String(),
		FullName:  l.FullName,
		Email:     l.Email,
		Phone:     l.Phone,
		Company:   l.Company,
		Source:    l.Source,
		Stage:     l.Stage,
		Notes:     l.Notes,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
		UpdatedAt: l.UpdatedAt.Format(time.RFC3339),
	}
	if l.OwnerUserID != nil {
		id := l.OwnerUserID.String()
		body.OwnerUserID = &id
	}
	return body
}

// leadWriteBody is the JSON request body for creating and updating leads.
type leadWriteBody struct {
	OwnerUserID *string `json:"owner_user_id"`
	FullName    string  `json:"full_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Company     string  `json:"company"`
	Source      string  `json:"source"`
	Notes       string  `json:"notes"`
}

// updateLeadStageBody is the JSON request body for POST .../leads/{lead_id}/stage.
// FromStage guards against lost updates: the transition only applies if the
// lead is still in the stage the client last saw.
type updateLeadStageBody struct {
	FromStage string `json:"from_stage"`
	ToStage   string `json:"to_stage"`
}

// listLeadsResponseBody carries one page plus the cursor for the next.
type listLeadsResponseBody struct {
	Leads      []leadBody `json:"leads"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// webhookEvent is the webhook_dispatch job payload envelope.
type webhookEvent struct {
	TenantID uuid.UUID       `json:"tenant_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// listLeadsHandler handles GET /api/v1/tenants/{tenant_id}/leads.
// Supports ?stage=, ?owner=, ?limit=, and keyset cursor ?after=<ts>,<id>.
func (srv *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var filter store.LeadFilter
	filter.Stage = r.URL.Query().Get("stage")
	if owner := r.URL.Query().Get("owner"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			http.Error(w, "invalid owner", http.StatusBadRequest)
			return
		}
		filter.OwnerUserID = &id
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be 1-200", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var afterTime *time.Time
	var afterID *uuid.UUID
	if cursor := r.URL.Query().Get("after"); cursor != "" {
		t, id, err := decodeLeadCursor(cursor)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		afterTime, afterID = &t, &id
	}

	leads, err := srv.store.ListLeads(r.Context(), tenantID, filter, afterTime, afterID, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "list leads", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := listLeadsResponseBody{Leads: make([]leadBody, len(leads))}
	for i := range leads {
		resp.Leads[i] = toLeadBody(&leads[i])
	}
	if len(leads) == limit {
		last := leads[len(leads)-1]
		resp.NextCursor = encodeLeadCursor(last.CreatedAt, last.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func encodeLeadCursor(t time.Time, id uuid.UUID) string {
	return t.UTC().Format(time.RFC3339Nano) + "," + id.String()
}

func decodeLeadCursor(cursor string) (time.Time, uuid.UUID, error) {
	var zero time.Time
	i := len(cursor) - 36 - 1 // uuid string length plus separator
	if i < 1 || cursor[i] != ',' {
		return zero, uuid.Nil, errInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, cursor[:i])
	if err != nil {
		return zero, uuid.Nil, err
	}
	id, err := uuid.Parse(cursor[i+1:])
	if err != nil {
		return zero, uuid.Nil, err
	}
	return t, id, nil
}

var errInvalidCursor = errors.New("invalid cursor")

// createLeadHandler handles POST /api/v1/tenants/{tenant_id}/leads.
func (srv *Server) createLeadHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	acting, _, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req leadWriteBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FullName == "" {
		http.Error(w, "full_name is required", http.StatusBadRequest)
		return
	}

	params := store.CreateLeadParams{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Company:  req.Company,
		Source:   req.Source,
		Notes:    req.Notes,
	}
	if req.OwnerUserID != nil {
		id, err := uuid.Parse(*req.OwnerUserID)
		if err != nil {
			http.Error(w, "invalid owner_user_id", http.StatusBadRequest)
			return
		}
		if !srv.requireLeadOwnerMembership(w, r, tenantID, id) {
			return
		}
		params.OwnerUserID = &id
	} else {
		// The creating member owns the lead unless told otherwise.
		id := acting.UserID
		params.OwnerUserID = &id
	}

	lead, err := srv.store.CreateLead(r.Context(), tenantID, params)
	if err != nil {
		slog.ErrorContext(r.Context(), "create lead", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toLeadBody(lead))
}

// requireLeadOwnerMembership rejects owner assignments to users outside the
// tenant. Writes the error response itself and reports whether to proceed.
func (srv *Server) requireLeadOwnerMembership(w http.ResponseWriter, r *http.Request, tenantID, ownerID uuid.UUID) bool {
	member, err := srv.store.GetMember(r.Context(), tenantID, ownerID)
	if err != nil {
		slog.ErrorContext(r.Context(), "look up lead owner", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return false
	}
	if member == nil {
		http.Error(w, "owner_user_id is not a member of this tenant", http.StatusUnprocessableEntity)
		return false
	}
	return true
}

// requestLeadID parses {lead_id} from the URL.
func requestLeadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "lead_id"))
	if err != nil {
		http.Error(w, "invalid lead_id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// getLeadHandler handles GET .../leads/{lead_id}.
func (srv *Server) getLeadHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	leadID, ok := requestLeadID(w, r)
	if !ok {
		return
	}

	lead, err := srv.store.GetLead(r.Context(), tenantID, leadID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get lead", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toLeadBody(lead))
}

// updateLeadHandler handles PATCH .../leads/{lead_id}. Contact fields only;
// stage moves through the stage endpoint.
func (srv *Server) updateLeadHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	leadID, ok := requestLeadID(w, r)
	if !ok {
		return
	}

	var req leadWriteBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FullName == "" {
		http.Error(w, "full_name is required", http.StatusBadRequest)
		return
	}

	params := store.UpdateLeadParams{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Company:  req.Company,
		Source:   req.Source,
		Notes:    req.Notes,
	}
	if req.OwnerUserID != nil {
		id, err := uuid.Parse(*req.OwnerUserID)
		if err != nil {
			http.Error(w, "invalid owner_user_id", http.StatusBadRequest)
			return
		}
		if !srv.requireLeadOwnerMembership(w, r, tenantID, id) {
			return
		}
		params.OwnerUserID = &id
	}

	lead, err := srv.store.UpdateLead(r.Context(), tenantID, leadID, params)
	if err != nil {
		slog.ErrorContext(r.Context(), "update lead", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toLeadBody(lead))
}

// updateLeadStageHandler handles POST .../leads/{lead_id}/stage.
// Validates the transition against the pipeline, applies it only if the lead
// is still in from_stage, and queues a webhook dispatch on success.
func (srv *Server) updateLeadStageHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	leadID, ok := requestLeadID(w, r)
	if !ok {
		return
	}

	var req updateLeadStageBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !stageTransitionAllowed(req.FromStage, req.ToStage) {
		http.Error(w, "invalid stage transition", http.StatusUnprocessableEntity)
		return
	}

	lead, err := srv.store.UpdateLeadStage(r.Context(), tenantID, leadID, req.FromStage, req.ToStage)
	if err != nil {
		slog.ErrorContext(r.Context(), "update lead stage", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if lead == nil {
		// Either the lead doesn't exist or it already left from_stage.
		http.Error(w, "stage conflict", http.StatusConflict)
		return
	}

	srv.queueLeadStageWebhook(r, tenantID, lead, req.FromStage)
	writeJSON(w, http.StatusOK, toLeadBody(lead))
}

// queueLeadStageWebhook enqueues a webhook_dispatch job for the stage change.
// Dispatch failures never fail the request; the job queue retries delivery.
func (srv *Server) queueLeadStageWebhook(r *http.Request, tenantID uuid.UUID, lead *store.Lead, fromStage string) {
	data, err := json.Marshal(map[string]any{
		"lead_id":    lead.ID.String(),
		"full_name":  lead.FullName,
		"from_stage": fromStage,
		"to_stage":   lead.Stage,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "marshal stage webhook data", "error", err)
		return
	}
	payload, err := json.Marshal(webhookEvent{
		TenantID: tenantID,
		Event:    "lead.stage_changed",
		Data:     data,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "marshal stage webhook payload", "error", err)
		return
	}
	if _, err := srv.store.EnqueueJob(r.Context(), "webhook_dispatch", 100, payload, nil, 5, nil); err != nil {
		slog.ErrorContext(r.Context(), "enqueue stage webhook", "error", err)
	}
}

// deleteLeadHandler handles DELETE .../leads/{lead_id}. Soft delete.
func (srv *Server) deleteLeadHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	leadID, ok := requestLeadID(w, r)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteLead(r.Context(), tenantID, leadID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete lead", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
