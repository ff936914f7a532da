// ABOUTME: HTTP handlers for payment links: tenant-side creation and listing,
// ABOUTME: plus the public token-addressed pay page and confirmation endpoint.
package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

const defaultPaymentLinkTTL = 7 * 24 * time.Hour

// createPaymentLinkBody is the JSON request body for POST .../payment-links.
type createPaymentLinkBody struct {
	LeadID      *string `json:"lead_id"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	ExpiresIn   int64   `json:"expires_in_seconds,omitempty"`
}

// paymentLinkBody is the tenant-side JSON representation of a payment link.
type paymentLinkBody struct {
	ID          string  `json:"id"`
	LeadID      *string `json:"lead_id,omitempty"`
	URL         string  `json:"url"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	ExpiresAt   string  `json:"expires_at"`
	PaidAt      *string `json:"paid_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// payPageBody is the public JSON representation: no tenant internals, no ids.
type payPageBody struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at"`
}

func (srv *Server) toPaymentLinkBody(p *store.PaymentLink) paymentLinkBody {
	body := paymentLinkBody{
		ID:          p.ID.String(),
		URL:         srv.cfg.ExternalURL + "/api/v1/pay/" + p.Token,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		Description: p.Description,
		Status:      p.Status,
		ExpiresAt:   p.ExpiresAt.Format(time.RFC3339),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.LeadID != nil {
		id := p.LeadID.String()
		body.LeadID = &id
	}
	if p.PaidAt != nil {
		t := p.PaidAt.Format(time.RFC3339)
		body.PaidAt = &t
	}
	return body
}

// newPaymentToken generates a 24-byte URL-safe random token.
func newPaymentToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// listPaymentLinksHandler handles GET /api/v1/tenants/{tenant_id}/payment-links.
func (srv *Server) listPaymentLinksHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requestTenantID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	links, err := srv.store.ListPaymentLinks(r.Context(), tenantID, 100)
	if err != nil {
		slog.ErrorContext(r.Context(), "list payment links", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]paymentLinkBody, len(links))
	for i := range links {
		out[i] = srv.toPaymentLinkBody(&links[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment_links": out})
}

// createPaymentLinkHandler handles POST /api/v1/tenants/{tenant_id}/payment-links.
func (srv *Server) createPaymentLinkHandler(w http.ResponseWriter, r *http.Request) {
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

	var req createPaymentLinkBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, "amount_cents must be positive", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	params := store.CreatePaymentLinkParams{
		CreatedBy:   acting.UserID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Description: req.Description,
		ExpiresAt:   time.Now().Add(defaultPaymentLinkTTL),
	}
	if req.ExpiresIn > 0 {
		params.ExpiresAt = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	if req.LeadID != nil {
		id, err := uuid.Parse(*req.LeadID)
		if err != nil {
			http.Error(w, "invalid lead_id", http.StatusBadRequest)
			return
		}
		lead, err := srv.store.GetLead(r.Context(), tenantID, id)
		if err != nil {
			slog.ErrorContext(r.Context(), "load lead for payment link", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if lead == nil {
			http.Error(w, "lead not found", http.StatusBadRequest)
			return
		}
		params.LeadID = &id
	}

	token, err := newPaymentToken()
	if err != nil {
		slog.ErrorContext(r.Context(), "generate payment token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	params.Token = token

	link, err := srv.store.CreatePaymentLink(r.Context(), tenantID, params)
	if err != nil {
		slog.ErrorContext(r.Context(), "create payment link", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, srv.toPaymentLinkBody(link))
}

// getPaymentPageHandler handles GET /api/v1/pay/{token}. Public, no auth.
// An expired-but-not-yet-swept link reports expired without mutating it.
func (srv *Server) getPaymentPageHandler(w http.ResponseWriter, r *http.Request) {
	link, err := srv.store.GetPaymentLinkByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		slog.ErrorContext(r.Context(), "get payment link", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if link == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	status := link.Status
	if status == "pending" && time.Now().After(link.ExpiresAt) {
		status = "expired"
	}
	writeJSON(w, http.StatusOK, payPageBody{
		AmountCents: link.AmountCents,
		Currency:    link.Currency,
		Description: link.Description,
		Status:      status,
		ExpiresAt:   link.ExpiresAt.Format(time.RFC3339),
	})
}

// confirmPaymentHandler handles POST /api/v1/pay/{token}/confirm. Public.
// Moves the link pending -> paid; a repeat confirmation is a conflict, not a
// double payment.
func (srv *Server) confirmPaymentHandler(w http.ResponseWriter, r *http.Request) {
	link, err := srv.store.GetPaymentLinkByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		slog.ErrorContext(r.Context(), "get payment link for confirm", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if link == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if time.Now().After(link.ExpiresAt) {
		http.Error(w, "payment link expired", http.StatusGone)
		return
	}

	paid, err := srv.store.TransitionPaymentLink(r.Context(), link.ID, "pending", "paid")
	if err != nil {
		slog.ErrorContext(r.Context(), "confirm payment", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if paid == nil {
		http.Error(w, "payment link is not pending", http.StatusConflict)
		return
	}

	srv.queuePaymentWebhook(r, paid)
	writeJSON(w, http.StatusOK, payPageBody{
		AmountCents: paid.AmountCents,
		Currency:    paid.Currency,
		Description: paid.Description,
		Status:      paid.Status,
		ExpiresAt:   paid.ExpiresAt.Format(time.RFC3339),
	})
}

// queuePaymentWebhook enqueues a webhook_dispatch job for a completed payment.
func (srv *Server) queuePaymentWebhook(r *http.Request, link *store.PaymentLink) {
	data, err := json.Marshal(map[string]any{
		"payment_link_id": link.ID.String(),
		"amount_cents":    link.AmountCents,
		"currency":        link.Currency,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "marshal payment webhook data", "error", err)
		return
	}
	payload, err := json.Marshal(webhookEvent{
		TenantID: link.TenantID,
		Event:    "payment_link.paid",
		Data:     data,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "marshal payment webhook payload", "error", err)
		return
	}
	if _, err := srv.store.EnqueueJob(r.Context(), "webhook_dispatch", 100, payload, nil, 5, nil); err != nil {
		slog.ErrorContext(r.Context(), "enqueue payment webhook", "error", err)
	}
}
