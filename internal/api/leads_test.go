// ABOUTME: Integration tests for the leads pipeline handlers: CRUD, stage
// ABOUTME: transitions with conflict detection, and webhook job fan-out.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/testutil"
)

func TestLeadPipelineEndToEnd(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "leads")

	base := "/api/v1/tenants/" + fix.TenantID + "/leads"

	// Create.
	resp := doAuthed(t, ctx, ts, http.MethodPost, base+"/", fix.AdminToken,
		`{"full_name":"Ada Prospect","email":"ada@example.com","source":"referral"}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create lead: got %d (body: %s)", resp.StatusCode, raw)
	}
	var lead leadBody
	if err := json.NewDecoder(resp.Body).Decode(&lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}
	if lead.Stage != "new" {
		t.Errorf("stage = %q, want new", lead.Stage)
	}
	if lead.OwnerUserID == nil || *lead.OwnerUserID != fix.AdminID {
		t.Errorf("owner = %v, want creator %s", lead.OwnerUserID, fix.AdminID)
	}

	stage := func(from, to string) *http.Response {
		return doAuthed(t, ctx, ts, http.MethodPost, base+"/"+lead.ID+"/stage", fix.AdminToken,
			fmt.Sprintf(`{"from_stage":%q,"to_stage":%q}`, from, to))
	}

	// A skip ahead is rejected before touching the row.
	r := stage("new", "won")
	r.Body.Close() //nolint:errcheck
	if r.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("new->won: got %d, want 422", r.StatusCode)
	}

	// Walk the pipeline.
	for _, step := range [][2]string{{"new", "contacted"}, {"contacted", "qualified"}, {"qualified", "won"}} {
		r := stage(step[0], step[1])
		if r.StatusCode != http.StatusOK {
			t.Fatalf("%s->%s: got %d, want 200", step[0], step[1], r.StatusCode)
		}
		r.Body.Close() //nolint:errcheck
	}

	// A stale client still thinking the lead is qualified gets a conflict.
	r = stage("qualified", "lost")
	r.Body.Close() //nolint:errcheck
	if r.StatusCode != http.StatusConflict {
		t.Errorf("stale transition: got %d, want 409", r.StatusCode)
	}

	// Each successful transition queued a webhook dispatch job.
	for i := 0; i < 3; i++ {
		job, err := db.ClaimJob(ctx, "webhook_dispatch", "test-worker")
		if err != nil {
			t.Fatalf("claim webhook job: %v", err)
		}
		if job == nil {
			t.Fatalf("webhook job %d missing", i)
		}
		var evt struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(job.Payload, &evt); err != nil {
			t.Fatalf("unmarshal webhook payload: %v", err)
		}
		if evt.Event != "lead.stage_changed" {
			t.Errorf("event = %q, want lead.stage_changed", evt.Event)
		}
	}

	// Soft delete hides the lead from reads.
	delResp := doAuthed(t, ctx, ts, http.MethodDelete, base+"/"+lead.ID+"/", fix.AdminToken, "")
	delResp.Body.Close() //nolint:errcheck
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete lead: got %d, want 204", delResp.StatusCode)
	}
	getResp := doAuthed(t, ctx, ts, http.MethodGet, base+"/"+lead.ID+"/", fix.AdminToken, "")
	defer getResp.Body.Close() //nolint:errcheck
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted lead: got %d, want 404", getResp.StatusCode)
	}
}

func TestListLeadsPaginatesWithCursor(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "leadpage")

	base := "/api/v1/tenants/" + fix.TenantID + "/leads"
	for i := 0; i < 5; i++ {
		resp := doAuthed(t, ctx, ts, http.MethodPost, base+"/", fix.AdminToken,
			fmt.Sprintf(`{"full_name":"Lead %d"}`, i))
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create lead %d: got %d", i, resp.StatusCode)
		}
		resp.Body.Close() //nolint:errcheck
	}

	page := func(url string) listLeadsResponseBody {
		resp := doAuthed(t, ctx, ts, http.MethodGet, url, fix.AdminToken, "")
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list leads: got %d", resp.StatusCode)
		}
		var out listLeadsResponseBody
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		return out
	}

	first := page(base + "/?limit=3")
	if len(first.Leads) != 3 || first.NextCursor == "" {
		t.Fatalf("first page = %d leads, cursor %q; want 3 with cursor", len(first.Leads), first.NextCursor)
	}
	second := page(base + "/?limit=3&after=" + url.QueryEscape(first.NextCursor))
	if len(second.Leads) != 2 {
		t.Fatalf("second page = %d leads, want 2", len(second.Leads))
	}
	seen := map[string]bool{}
	for _, l := range append(first.Leads, second.Leads...) {
		if seen[l.ID] {
			t.Errorf("lead %s appeared on both pages", l.ID)
		}
		seen[l.ID] = true
	}
}

func TestPaymentLinkPublicFlow(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "paylink")

	resp := doAuthed(t, ctx, ts, http.MethodPost,
		"/api/v1/tenants/"+fix.TenantID+"/payment-links/", fix.AdminToken,
		`{"amount_cents":25000,"currency":"USD","description":"Onboarding package"}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create payment link: got %d (body: %s)", resp.StatusCode, raw)
	}
	var link paymentLinkBody
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	if link.Status != "pending" || link.URL == "" {
		t.Fatalf("link = %+v, want pending with URL", link)
	}

	// Extract the public token from the generated URL.
	token := link.URL[len("http://localhost:8080/api/v1/pay/"):]

	// Public page needs no auth and hides tenant internals.
	pageResp, err := ts.Client().Get(ts.URL + "/api/v1/pay/" + token)
	if err != nil {
		t.Fatalf("get pay page: %v", err)
	}
	defer pageResp.Body.Close() //nolint:errcheck
	if pageResp.StatusCode != http.StatusOK {
		t.Fatalf("pay page: got %d, want 200", pageResp.StatusCode)
	}
	var page payPageBody
	if err := json.NewDecoder(pageResp.Body).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.AmountCents != 25000 || page.Status != "pending" {
		t.Errorf("page = %+v", page)
	}

	// Confirm pays exactly once.
	confirm := func() int {
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/pay/"+token+"/confirm", nil)
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		defer resp.Body.Close() //nolint:errcheck
		return resp.StatusCode
	}
	if got := confirm(); got != http.StatusOK {
		t.Fatalf("first confirm: got %d, want 200", got)
	}
	if got := confirm(); got != http.StatusConflict {
		t.Errorf("second confirm: got %d, want 409", got)
	}

	// The payment queued a webhook dispatch job.
	job, err := db.ClaimJob(ctx, "webhook_dispatch", "test-worker")
	if err != nil || job == nil {
		t.Fatalf("webhook job after payment: job=%v err=%v", job, err)
	}
	var evt struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(job.Payload, &evt); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if evt.Event != "payment_link.paid" {
		t.Errorf("event = %q, want payment_link.paid", evt.Event)
	}
}

func TestWebhookEndpointsRequireAdminLevel(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "whadmin")

	// Seat a level_5 member with a known password.
	doRegister(t, ctx, ts, "lowbie@example.com", "password123", "L Co")
	r := doInvite(t, ctx, ts, fix, fix.AdminToken, "lowbie@example.com", "level_5")
	r.Body.Close() //nolint:errcheck
	lowToken := loginToken(t, ctx, ts, "lowbie@example.com", "password123")

	base := "/api/v1/tenants/" + fix.TenantID + "/webhooks"

	// Below subadmin level cannot even list.
	resp := doAuthed(t, ctx, ts, http.MethodGet, base+"/", lowToken, "")
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("level_5 list webhooks: got %d, want 403", resp.StatusCode)
	}

	// Admin creates one; the secret is returned exactly once.
	createResp := doAuthed(t, ctx, ts, http.MethodPost, base+"/", fix.AdminToken,
		`{"url":"https://hooks.example.com/leadflow"}`)
	defer createResp.Body.Close() //nolint:errcheck
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create webhook: got %d, want 201", createResp.StatusCode)
	}
	var created webhookBody
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("decode webhook: %v", err)
	}
	if created.Secret == "" {
		t.Error("creation response must include the signing secret")
	}

	listResp := doAuthed(t, ctx, ts, http.MethodGet, base+"/", fix.AdminToken, "")
	defer listResp.Body.Close() //nolint:errcheck
	var list struct {
		Webhooks []webhookBody `json:"webhooks"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Webhooks) != 1 || list.Webhooks[0].Secret != "" {
		t.Errorf("list = %+v, want one entry with no secret", list.Webhooks)
	}

	// Plain http URLs are rejected.
	badResp := doAuthed(t, ctx, ts, http.MethodPost, base+"/", fix.AdminToken,
		`{"url":"http://hooks.example.com/leadflow"}`)
	badResp.Body.Close() //nolint:errcheck
	if badResp.StatusCode != http.StatusBadRequest {
		t.Errorf("http webhook url: got %d, want 400", badResp.StatusCode)
	}
}
