// ABOUTME: Tenant membership middleware — resolves the acting member and level.
// ABOUTME: RequireLevelAtMost gates admin routes to levels 1 and 2.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

// RequireMember returns a middleware that verifies the authenticated user is
// a member of the tenant in the URL ({tenant_id}). On success it injects
// ctxTenantID, ctxMember, and ctxMemberLevel into the request context. The
// level comes from the member's role via the permissive role parser, so a
// member with a corrupt role row resolves to the unranked sentinel and fails
// every level gate rather than gaining access.
//
// Must run after RequireAuthenticated.
func (srv *Server) RequireMember() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			tenantID, err := uuid.Parse(chi.URLParam(r, "tenant_id"))
			if err != nil {
				http.Error(w, "invalid tenant_id", http.StatusBadRequest)
				return
			}

			member, err := srv.store.GetMember(r.Context(), tenantID, userID)
			if err != nil || member == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxTenantID, tenantID)
			ctx = context.WithValue(ctx, ctxMember, member)
			ctx = context.WithValue(ctx, ctxMemberLevel, hierarchy.Level(member.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLevelAtMost returns a middleware that rejects members whose level is
// numerically above maxLevel. Lower level numbers outrank higher ones, so
// RequireLevelAtMost(1) admits only the company admin and
// RequireLevelAtMost(2) admits company admin and subadmins.
//
// Must run after RequireMember.
func (srv *Server) RequireLevelAtMost(maxLevel int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			level, ok := r.Context().Value(ctxMemberLevel).(int)
			if !ok || level > maxLevel {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// actingMember reads the member injected by RequireMember.
func actingMember(r *http.Request) (*store.Member, int, bool) {
	member, ok := r.Context().Value(ctxMember).(*store.Member)
	if !ok {
		return nil, hierarchy.LevelUnranked, false
	}
	level, ok := r.Context().Value(ctxMemberLevel).(int)
	if !ok {
		return nil, hierarchy.LevelUnranked, false
	}
	return member, level, true
}

// requestTenantID reads the tenant injected by RequireMember.
func requestTenantID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ctxTenantID).(uuid.UUID)
	return id, ok
}
