// ABOUTME: HTTP handlers for member management: listing, invitations, role
// ABOUTME: changes, manager reassignment, and removal with report detachment.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/invite"
)

// memberBody is one member in list responses.
type memberBody struct {
	UserID    string  `json:"user_id"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Level     int     `json:"level"`
	ManagerID *string `json:"manager_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// inviteMemberBody is the JSON request body for POST .../members/invite.
// Password sets the new account's initial password; when omitted a temporary
// password is generated and mailed instead.
type inviteMemberBody struct {
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Role      string  `json:"role"`
	ManagerID *string `json:"manager_id,omitempty"`
	Password  string  `json:"password,omitempty"`
}

// inviteMemberResponseBody reports the invited member.
type inviteMemberResponseBody struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	CreatedIdentity bool   `json:"created_identity"`
}

// invitationBody is one invitation audit row.
type invitationBody struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	InvitedBy string `json:"invited_by"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// updateMemberRoleBody is the JSON request body for PATCH .../members/{user_id}/role.
type updateMemberRoleBody struct {
	Role string `json:"role"`
}

// updateMemberManagerBody is the JSON request body for PATCH .../members/{user_id}/manager.
// A null manager_id detaches the member from their manager.
type updateMemberManagerBody struct {
	ManagerID *string `json:"manager_id"`
}

// removeMemberResponseBody reports how many direct reports were detached.
type removeMemberResponseBody struct {
	Removed         bool  `json:"removed"`
	DetachedReports int64 `json:"detached_reports"`
}

// listMembersHandler handles GET /api/v1/tenants/{tenant_id}/members.
func (srv *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	members, err := srv.store.ListMembers(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list members", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]memberBody, len(members))
	for i, m := range members {
		out[i] = memberBody{
			UserID:    m.UserID.String(),
			FullName:  m.FullName,
			Email:     m.Email,
			Role:      m.Role,
			Level:     hierarchy.Level(m.Role),
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		}
		if m.ManagerID != nil {
			id := m.ManagerID.String()
			out[i].ManagerID = &id
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

// assignableRolesHandler handles GET .../members/assignable-roles.
// Returns the roles the acting member may grant, filtered to levels the
// tenant has labeled.
func (srv *Server) assignableRolesHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	_, actingLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	labels, err := srv.store.GetHierarchyLabels(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get labels for assignable roles", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	roles := hierarchy.AssignableRoles(actingLevel, labels)
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// inviteMemberHandler handles POST .../members/invite.
// Runs the invitation saga: identity, profile, role row, queued email.
func (srv *Server) inviteMemberHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	acting, actingLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req inviteMemberBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.FullName == "" || req.Role == "" {
		http.Error(w, "email, full_name, and role are required", http.StatusUnprocessableEntity)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "invalid email address", http.StatusUnprocessableEntity)
		return
	}
	if len(req.FullName) > 100 {
		http.Error(w, "full_name must be at most 100 characters", http.StatusUnprocessableEntity)
		return
	}
	if req.Password != "" && len(req.Password) < 6 {
		http.Error(w, "password must be at least 6 characters", http.StatusUnprocessableEntity)
		return
	}
	// The inviter manages the new member unless an explicit manager is given.
	managerID := &acting.UserID
	if req.ManagerID != nil {
		id, err := uuid.Parse(*req.ManagerID)
		if err != nil {
			http.Error(w, "invalid manager_id", http.StatusBadRequest)
			return
		}
		managerID = &id
	}

	svc := invite.NewService(srv.store, srv.store, srv.store, slog.Default())
	result, err := svc.Invite(r.Context(), invite.Params{
		TenantID:    tenantID,
		InvitedBy:   acting.UserID,
		ActingLevel: actingLevel,
		Email:       req.Email,
		FullName:    req.FullName,
		Role:        req.Role,
		ManagerID:   managerID,
		Password:    req.Password,
	})
	switch {
	case errors.Is(err, invite.ErrRoleNotAllowed):
		http.Error(w, "role not allowed", http.StatusForbidden)
		return
	case errors.Is(err, invite.ErrPasswordTooShort):
		http.Error(w, "password must be at least 6 characters", http.StatusUnprocessableEntity)
		return
	case errors.Is(err, invite.ErrAlreadyMember):
		http.Error(w, "already a member", http.StatusConflict)
		return
	case errors.Is(err, invite.ErrManagerNotFound):
		http.Error(w, "manager not found", http.StatusBadRequest)
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "invite member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, inviteMemberResponseBody{
		UserID:          result.UserID.String(),
		Email:           req.Email,
		Role:            req.Role,
		CreatedIdentity: result.CreatedIdentity,
	})
}

// listInvitationsHandler handles GET .../members/invitations.
func (srv *Server) listInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	invitations, err := srv.store.ListInvitations(r.Context(), tenantID, 100)
	if err != nil {
		slog.ErrorContext(r.Context(), "list invitations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]invitationBody, len(invitations))
	for i, inv := range invitations {
		out[i] = invitationBody{
			ID:        inv.ID.String(),
			UserID:    inv.UserID.String(),
			InvitedBy: inv.InvitedBy.String(),
			Role:      inv.Role,
			Status:    inv.Status,
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// targetMember parses {user_id} and loads the target member, writing the
// error response itself when the target is invalid or absent.
func (srv *Server) targetMember(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) (uuid.UUID, int, bool) {
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return uuid.Nil, 0, false
	}
	target, err := srv.store.GetMember(r.Context(), tenantID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "load target member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return uuid.Nil, 0, false
	}
	if target == nil {
		http.Error(w, "member not found", http.StatusNotFound)
		return uuid.Nil, 0, false
	}
	return targetID, hierarchy.Level(target.Role), true
}

// updateMemberRoleHandler handles PATCH .../members/{user_id}/role.
// The acting member must outrank both the target's current role and the new
// role, so nobody can capture a peer or promote anyone to their own level.
func (srv *Server) updateMemberRoleHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	acting, actingLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req updateMemberRoleBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	newLevel, err := hierarchy.ParseRole(req.Role)
	if err != nil {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	targetID, targetLevel, ok := srv.targetMember(w, r, tenantID)
	if !ok {
		return
	}
	if targetID == acting.UserID {
		http.Error(w, "cannot change own role", http.StatusForbidden)
		return
	}
	if !hierarchy.CanAssign(actingLevel, targetLevel) || !hierarchy.CanAssign(actingLevel, newLevel) {
		http.Error(w, "role not allowed", http.StatusForbidden)
		return
	}

	updated, err := srv.store.UpdateMemberRole(r.Context(), tenantID, targetID, req.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "update member role", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": targetID.String(), "role": req.Role})
}

// updateMemberManagerHandler handles PATCH .../members/{user_id}/manager.
func (srv *Server) updateMemberManagerHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	_, actingLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req updateMemberManagerBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	targetID, targetLevel, ok := srv.targetMember(w, r, tenantID)
	if !ok {
		return
	}
	if !hierarchy.CanAssign(actingLevel, targetLevel) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var managerID *uuid.UUID
	if req.ManagerID != nil {
		id, err := uuid.Parse(*req.ManagerID)
		if err != nil {
			http.Error(w, "invalid manager_id", http.StatusBadRequest)
			return
		}
		if id == targetID {
			http.Error(w, "member cannot manage themselves", http.StatusBadRequest)
			return
		}
		manager, err := srv.store.GetMember(r.Context(), tenantID, id)
		if err != nil {
			slog.ErrorContext(r.Context(), "load manager", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if manager == nil {
			http.Error(w, "manager not found", http.StatusBadRequest)
			return
		}
		managerID = &id
	}

	updated, err := srv.store.UpdateMemberManager(r.Context(), tenantID, targetID, managerID)
	if err != nil {
		slog.ErrorContext(r.Context(), "update member manager", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !updated {
		http.Error(w, "member not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeMemberHandler handles DELETE .../members/{user_id}.
// Removing a manager detaches their direct reports rather than deleting the
// subtree; the response reports the detached count.
func (srv *Server) removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	acting, actingLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	targetID, targetLevel, ok := srv.targetMember(w, r, tenantID)
	if !ok {
		return
	}
	if targetID == acting.UserID {
		http.Error(w, "cannot remove yourself", http.StatusForbidden)
		return
	}
	if !hierarchy.CanAssign(actingLevel, targetLevel) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	detached, err := srv.store.DeleteMember(r.Context(), tenantID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "remove member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, removeMemberResponseBody{
		Removed:         true,
		DetachedReports: detached,
	})
}
