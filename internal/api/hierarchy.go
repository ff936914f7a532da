// ABOUTME: HTTP handlers for the tenant hierarchy: label configuration and
// ABOUTME: the membership tree rendered for the requesting viewer.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
)

// labelsResponseBody maps level numbers (as strings, JSON keys) to labels.
type labelsResponseBody struct {
	Labels map[string]string `json:"labels"`
}

// treeNodeBody is one node in the serialized membership tree.
type treeNodeBody struct {
	UserID    string         `json:"user_id"`
	FullName  string         `json:"full_name"`
	Email     string         `json:"email"`
	Role      string         `json:"role"`
	RoleLabel string         `json:"role_label"`
	Level     int            `json:"level"`
	Reports   []treeNodeBody `json:"reports,omitempty"`
}

// treeResponseBody is the JSON response body for GET .../hierarchy/tree.
type treeResponseBody struct {
	Roots      []treeNodeBody `json:"roots"`
	Unassigned []treeNodeBody `json:"unassigned,omitempty"`
}

// getLabelsHandler handles GET /api/v1/tenants/{tenant_id}/hierarchy/labels.
func (srv *Server) getLabelsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	labels, err := srv.store.GetHierarchyLabels(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get hierarchy labels", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make(map[string]string, len(labels))
	for lvl, label := range labels {
		out[strconv.Itoa(lvl)] = label
	}
	writeJSON(w, http.StatusOK, labelsResponseBody{Labels: out})
}

// putLabelsHandler handles PUT /api/v1/tenants/{tenant_id}/hierarchy/labels.
// Replaces the full label set. Company level only. Levels must be 3..20;
// levels 1 and 2 carry fixed names and cannot be relabeled.
func (srv *Server) putLabelsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req labelsResponseBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	labels := make(map[int]string, len(req.Labels))
	for key, label := range req.Labels {
		lvl, err := strconv.Atoi(key)
		if err != nil {
			http.Error(w, "level keys must be integers", http.StatusBadRequest)
			return
		}
		if lvl < hierarchy.MinCustom || lvl > hierarchy.MaxCustom {
			http.Error(w, "levels must be between 3 and 20", http.StatusBadRequest)
			return
		}
		if label == "" {
			http.Error(w, "labels must not be empty", http.StatusBadRequest)
			return
		}
		labels[lvl] = label
	}

	if err := srv.store.ReplaceHierarchyLabels(r.Context(), tenantID, labels); err != nil {
		slog.ErrorContext(r.Context(), "replace hierarchy labels", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make(map[string]string, len(labels))
	for lvl, label := range labels {
		out[strconv.Itoa(lvl)] = label
	}
	writeJSON(w, http.StatusOK, labelsResponseBody{Labels: out})
}

// getTreeHandler handles GET /api/v1/tenants/{tenant_id}/hierarchy/tree.
// Builds the membership forest from the viewer's vantage: company admins see
// every root plus the unassigned bucket; everyone else sees their own subtree
// entry point among the roots.
func (srv *Server) getTreeHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	viewer, viewerLevel, ok := actingMember(r)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	rows, err := srv.store.ListMembers(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list members for tree", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	labels, err := srv.store.GetHierarchyLabels(r.Context(), tenantID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get hierarchy labels for tree", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	members := make([]hierarchy.Member, len(rows))
	for i, m := range rows {
		members[i] = hierarchy.Member{
			ID:        m.UserID,
			FullName:  m.FullName,
			Email:     m.Email,
			Role:      m.Role,
			ManagerID: m.ManagerID,
		}
	}

	forest := hierarchy.BuildTree(members, viewer.UserID, viewerLevel)
	writeJSON(w, http.StatusOK, treeResponseBody{
		Roots:      serializeNodes(forest.MainRoots, labels),
		Unassigned: serializeNodes(forest.Unassigned, labels),
	})
}

// serializeNodes converts tree nodes to response bodies, resolving role
// labels per tenant. Walk handles cycle guards so a corrupt manager chain
// cannot loop the encoder.
func serializeNodes(nodes []*hierarchy.Node, labels hierarchy.Labels) []treeNodeBody {
	out := make([]treeNodeBody, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, serializeNode(n, labels, make(map[string]bool)))
	}
	return out
}

func serializeNode(n *hierarchy.Node, labels hierarchy.Labels, onPath map[string]bool) treeNodeBody {
	id := n.Member.ID.String()
	body := treeNodeBody{
		UserID:    id,
		FullName:  n.Member.FullName,
		Email:     n.Member.Email,
		Role:      n.Member.Role,
		RoleLabel: hierarchy.Label(n.Member.Role, labels),
		Level:     n.Member.Level(),
	}
	onPath[id] = true
	for _, c := range n.Children {
		cid := c.Member.ID.String()
		if onPath[cid] {
			slog.Warn("hierarchy: manager cycle in tree response, skipping revisit",
				"member_id", cid)
			continue
		}
		body.Reports = append(body.Reports, serializeNode(c, labels, onPath))
	}
	delete(onPath, id)
	return body
}
