// ABOUTME: Integration tests for member management: the invitation workflow,
// ABOUTME: role and manager changes, removal, and the hierarchy tree endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/testutil"
)

// tenantFixture is a registered company admin with a logged-in session.
type tenantFixture struct {
	TenantID   string
	AdminID    string
	AdminToken string
}

// newTenantFixture registers a company admin and labels levels 3-5 so custom
// roles are assignable.
func newTenantFixture(t *testing.T, ctx context.Context, ts *httptest.Server, slug string) tenantFixture {
	t.Helper()
	email := slug + "-admin@example.com"
	out := doRegister(t, ctx, ts, email, "password123", slug+" Co")
	token := loginToken(t, ctx, ts, email, "password123")

	resp := doAuthed(t, ctx, ts, http.MethodPut,
		"/api/v1/tenants/"+out.TenantID+"/hierarchy/labels", token,
		`{"labels":{"3":"Director","4":"Manager","5":"Executive"}}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("put labels: got %d (body: %s)", resp.StatusCode, raw)
	}
	return tenantFixture{TenantID: out.TenantID, AdminID: out.UserID, AdminToken: token}
}

// doInvite invites a member and returns the response (caller closes Body).
func doInvite(t *testing.T, ctx context.Context, ts *httptest.Server, fix tenantFixture, token, email, role string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"full_name":"Invited Member","role":%q}`, email, role)
	return doAuthed(t, ctx, ts, http.MethodPost,
		"/api/v1/tenants/"+fix.TenantID+"/members/invite", token, body)
}

func TestInviteWorkflowEndToEnd(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "invitee2e")

	resp := doInvite(t, ctx, ts, fix, fix.AdminToken, "newhire@example.com", "level_4")
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("invite: got %d, want 201 (body: %s)", resp.StatusCode, raw)
	}
	var out struct {
		UserID          string `json:"user_id"`
		CreatedIdentity bool   `json:"created_identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode invite: %v", err)
	}
	if !out.CreatedIdentity {
		t.Error("expected a fresh identity for an unknown email")
	}

	tenantID := uuid.MustParse(fix.TenantID)
	userID := uuid.MustParse(out.UserID)

	// Identity, profile, and role row all exist.
	user, err := db.GetUserByID(ctx, userID)
	if err != nil || user == nil {
		t.Fatalf("invited user not found: %v", err)
	}
	if user.Email != "newhire@example.com" {
		t.Errorf("email = %q", user.Email)
	}
	member, err := db.GetMember(ctx, tenantID, userID)
	if err != nil || member == nil {
		t.Fatalf("invited member not found: %v", err)
	}
	if member.Role != "level_4" {
		t.Errorf("role = %q, want level_4", member.Role)
	}

	// The invitation email job is queued.
	job, err := db.ClaimJob(ctx, "invite_email", "test-worker")
	if err != nil {
		t.Fatalf("claim invite_email job: %v", err)
	}
	if job == nil {
		t.Fatal("no invite_email job queued")
	}
	var payload struct {
		UserID       uuid.UUID `json:"user_id"`
		TempPassword string    `json:"temp_password"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("unmarshal job payload: %v", err)
	}
	if payload.UserID != userID {
		t.Errorf("job user_id = %s, want %s", payload.UserID, userID)
	}
	if payload.TempPassword == "" {
		t.Error("temp password missing from email payload")
	}

	// Audit row recorded.
	listResp := doAuthed(t, ctx, ts, http.MethodGet,
		"/api/v1/tenants/"+fix.TenantID+"/members/invitations", fix.AdminToken, "")
	defer listResp.Body.Close() //nolint:errcheck
	var invs struct {
		Invitations []invitationBody `json:"invitations"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&invs); err != nil {
		t.Fatalf("decode invitations: %v", err)
	}
	if len(invs.Invitations) != 1 || invs.Invitations[0].Role != "level_4" {
		t.Errorf("invitations = %+v, want one level_4 row", invs.Invitations)
	}
}

func TestInviteExistingUserJoinsSecondTenant(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "crossinv")

	// A user who registered their own company elsewhere.
	other := doRegister(t, ctx, ts, "outsider@example.com", "password123", "Other Co")

	resp := doInvite(t, ctx, ts, fix, fix.AdminToken, "outsider@example.com", "subadmin")
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite existing user: got %d, want 201", resp.StatusCode)
	}
	var out struct {
		UserID          string `json:"user_id"`
		CreatedIdentity bool   `json:"created_identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.CreatedIdentity {
		t.Error("existing identity should be reused, not created")
	}
	if out.UserID != other.UserID {
		t.Errorf("user_id = %s, want existing %s", out.UserID, other.UserID)
	}

	// A repeat invite is a conflict.
	resp2 := doInvite(t, ctx, ts, fix, fix.AdminToken, "outsider@example.com", "subadmin")
	defer resp2.Body.Close() //nolint:errcheck
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("repeat invite: got %d, want 409", resp2.StatusCode)
	}

	// They can now log in with their own password and act in the new tenant.
	otherToken := loginToken(t, ctx, ts, "outsider@example.com", "password123")
	meResp := doAuthed(t, ctx, ts, http.MethodGet, "/api/v1/auth/me", otherToken, "")
	defer meResp.Body.Close() //nolint:errcheck
	var me struct {
		Tenants []struct {
			TenantID string `json:"tenant_id"`
		} `json:"tenants"`
	}
	if err := json.NewDecoder(meResp.Body).Decode(&me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if len(me.Tenants) != 2 {
		t.Errorf("memberships = %d, want 2", len(me.Tenants))
	}
}

func TestInviteAuthorizationStrict(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "authz")

	// Seat a level_4 manager via an existing identity so we can log in as them.
	doRegister(t, ctx, ts, "midlevel@example.com", "password123", "Personal Co")
	resp := doInvite(t, ctx, ts, fix, fix.AdminToken, "midlevel@example.com", "level_4")
	resp.Body.Close() //nolint:errcheck
	midToken := loginToken(t, ctx, ts, "midlevel@example.com", "password123")

	cases := []struct {
		name string
		role string
		want int
	}{
		{"own level", "level_4", http.StatusForbidden},
		{"above own level", "level_3", http.StatusForbidden},
		{"company", "company", http.StatusForbidden},
		{"below own level", "level_5", http.StatusCreated},
		{"out of range", "level_21", http.StatusForbidden},
		{"garbage", "cto", http.StatusForbidden},
	}
	for i, tc := range cases {
		email := fmt.Sprintf("authz-target-%d@example.com", i)
		resp := doInvite(t, ctx, ts, fix, midToken, email, tc.role)
		resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestPromotionRequiresOutrankingBothLevels(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "promo")

	// A level_3 director and a level_5 executive, both with their own logins.
	doRegister(t, ctx, ts, "director@example.com", "password123", "D Co")
	doRegister(t, ctx, ts, "exec@example.com", "password123", "E Co")
	r1 := doInvite(t, ctx, ts, fix, fix.AdminToken, "director@example.com", "level_3")
	r1.Body.Close() //nolint:errcheck
	r2 := doInvite(t, ctx, ts, fix, fix.AdminToken, "exec@example.com", "level_5")
	r2.Body.Close() //nolint:errcheck
	dirToken := loginToken(t, ctx, ts, "director@example.com", "password123")

	var execID string
	{
		resp := doAuthed(t, ctx, ts, http.MethodGet,
			"/api/v1/tenants/"+fix.TenantID+"/members/", fix.AdminToken, "")
		defer resp.Body.Close() //nolint:errcheck
		var list struct {
			Members []memberBody `json:"members"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatalf("decode members: %v", err)
		}
		for _, m := range list.Members {
			if m.Email == "exec@example.com" {
				execID = m.UserID
			}
		}
	}
	if execID == "" {
		t.Fatal("exec member not found in list")
	}

	patch := func(token, userID, role string) int {
		resp := doAuthed(t, ctx, ts, http.MethodPatch,
			"/api/v1/tenants/"+fix.TenantID+"/members/"+userID+"/role", token,
			fmt.Sprintf(`{"role":%q}`, role))
		defer resp.Body.Close() //nolint:errcheck
		return resp.StatusCode
	}

	// Director promotes the exec to level_4: outranks both 5 and 4. OK.
	if got := patch(dirToken, execID, "level_4"); got != http.StatusOK {
		t.Errorf("promote 5->4 by level 3: got %d, want 200", got)
	}
	// Director cannot raise anyone to their own level.
	if got := patch(dirToken, execID, "level_3"); got != http.StatusForbidden {
		t.Errorf("promote to own level: got %d, want 403", got)
	}
	// Nobody changes their own role.
	if got := patch(fix.AdminToken, fix.AdminID, "subadmin"); got != http.StatusForbidden {
		t.Errorf("self role change: got %d, want 403", got)
	}
	// The admin promotes the exec past the director: allowed for level 1.
	if got := patch(fix.AdminToken, execID, "subadmin"); got != http.StatusOK {
		t.Errorf("promote to subadmin by admin: got %d, want 200", got)
	}
	// Now the director no longer outranks the target's current level.
	if got := patch(dirToken, execID, "level_5"); got != http.StatusForbidden {
		t.Errorf("demote a higher-ranked member: got %d, want 403", got)
	}
}

func TestTreeAndRemoveMemberDetachesReports(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "tree")

	tenantID := uuid.MustParse(fix.TenantID)
	adminID := uuid.MustParse(fix.AdminID)

	invite := func(email, role string, manager *string) string {
		body := fmt.Sprintf(`{"email":%q,"full_name":"Member","role":%q`, email, role)
		if manager != nil {
			body += fmt.Sprintf(`,"manager_id":%q`, *manager)
		}
		body += `}`
		resp := doAuthed(t, ctx, ts, http.MethodPost,
			"/api/v1/tenants/"+fix.TenantID+"/members/invite", fix.AdminToken, body)
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusCreated {
			raw, _ := io.ReadAll(resp.Body)
			t.Fatalf("invite %s: got %d (body: %s)", email, resp.StatusCode, raw)
		}
		var out struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode invite: %v", err)
		}
		return out.UserID
	}

	adminStr := adminID.String()
	managerID := invite("mgr@example.com", "level_4", &adminStr)
	rep1 := invite("rep1@example.com", "level_5", &managerID)
	rep2 := invite("rep2@example.com", "level_5", &managerID)

	// Admin sees one root (themselves) with the manager chain below.
	resp := doAuthed(t, ctx, ts, http.MethodGet,
		"/api/v1/tenants/"+fix.TenantID+"/hierarchy/tree", fix.AdminToken, "")
	defer resp.Body.Close() //nolint:errcheck
	var tree treeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if len(tree.Roots) != 1 || tree.Roots[0].UserID != fix.AdminID {
		t.Fatalf("roots = %+v, want the admin alone", tree.Roots)
	}
	if len(tree.Unassigned) != 0 {
		t.Errorf("unassigned = %+v, want none", tree.Unassigned)
	}
	if len(tree.Roots[0].Reports) != 1 || tree.Roots[0].Reports[0].UserID != managerID {
		t.Fatalf("admin reports = %+v, want the manager", tree.Roots[0].Reports)
	}
	if got := len(tree.Roots[0].Reports[0].Reports); got != 2 {
		t.Errorf("manager reports = %d, want 2", got)
	}
	if lbl := tree.Roots[0].Reports[0].RoleLabel; lbl != "Manager" {
		t.Errorf("manager role label = %q, want Manager (tenant label for level 4)", lbl)
	}

	// Removing the manager detaches both reports into the unassigned bucket.
	delResp := doAuthed(t, ctx, ts, http.MethodDelete,
		"/api/v1/tenants/"+fix.TenantID+"/members/"+managerID, fix.AdminToken, "")
	defer delResp.Body.Close() //nolint:errcheck
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("remove manager: got %d, want 200", delResp.StatusCode)
	}
	var del removeMemberResponseBody
	if err := json.NewDecoder(delResp.Body).Decode(&del); err != nil {
		t.Fatalf("decode remove: %v", err)
	}
	if del.DetachedReports != 2 {
		t.Errorf("detached = %d, want 2", del.DetachedReports)
	}

	resp2 := doAuthed(t, ctx, ts, http.MethodGet,
		"/api/v1/tenants/"+fix.TenantID+"/hierarchy/tree", fix.AdminToken, "")
	defer resp2.Body.Close() //nolint:errcheck
	var tree2 treeResponseBody
	if err := json.NewDecoder(resp2.Body).Decode(&tree2); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	got := map[string]bool{}
	for _, n := range tree2.Unassigned {
		got[n.UserID] = true
	}
	if !got[rep1] || !got[rep2] || len(tree2.Unassigned) != 2 {
		t.Errorf("unassigned after removal = %+v, want both reps", tree2.Unassigned)
	}

	// Profile and role row are gone but the identity survives.
	member, err := db.GetMember(ctx, tenantID, uuid.MustParse(managerID))
	if err != nil {
		t.Fatalf("get removed member: %v", err)
	}
	if member != nil {
		t.Error("member profile should be deleted")
	}
	user, err := db.GetUserByID(ctx, uuid.MustParse(managerID))
	if err != nil || user == nil {
		t.Errorf("identity should survive removal: %v", err)
	}
}

func TestAssignableRolesRespectLabels(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "assignable")

	resp := doAuthed(t, ctx, ts, http.MethodGet,
		"/api/v1/tenants/"+fix.TenantID+"/members/assignable-roles", fix.AdminToken, "")
	defer resp.Body.Close() //nolint:errcheck
	var out struct {
		Roles []struct {
			Role  string `json:"role"`
			Level int    `json:"level"`
			Label string `json:"label"`
		} `json:"roles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Fixture labels levels 3-5; subadmin is always offered to a company admin.
	want := map[string]string{
		"subadmin": "Subadmin",
		"level_3":  "Director",
		"level_4":  "Manager",
		"level_5":  "Executive",
	}
	if len(out.Roles) != len(want) {
		t.Fatalf("roles = %+v, want %d entries", out.Roles, len(want))
	}
	for _, r := range out.Roles {
		if want[r.Role] != r.Label {
			t.Errorf("role %s label = %q, want %q", r.Role, r.Label, want[r.Role])
		}
	}

	// Non-members see nothing tenant-scoped at all.
	doRegister(t, ctx, ts, "stranger@example.com", "password123", "Stranger Co")
	strangerToken := loginToken(t, ctx, ts, "stranger@example.com", "password123")
	resp2 := doAuthed(t, ctx, ts, http.MethodGet,
		"/api/v1/tenants/"+fix.TenantID+"/members/assignable-roles", strangerToken, "")
	defer resp2.Body.Close() //nolint:errcheck
	if resp2.StatusCode != http.StatusForbidden {
		t.Errorf("stranger access: got %d, want 403", resp2.StatusCode)
	}
}

func TestInviteWithInitialPassword(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	ts := newTestServer(t, db)
	fix := newTenantFixture(t, ctx, ts, "invitepw")

	// A sub-6-character password is rejected before any rows are written.
	short := `{"email":"shortpw@example.com","full_name":"Short","role":"level_5","password":"abc"}`
	resp := doAuthed(t, ctx, ts, http.MethodPost,
		"/api/v1/tenants/"+fix.TenantID+"/members/invite", fix.AdminToken, short)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("short password invite: got %d, want 422", resp.StatusCode)
	}

	body := `{"email":"picked@example.com","full_name":"Picked Password","role":"level_5","password":"chosen-by-admin"}`
	resp2 := doAuthed(t, ctx, ts, http.MethodPost,
		"/api/v1/tenants/"+fix.TenantID+"/members/invite", fix.AdminToken, body)
	defer resp2.Body.Close() //nolint:errcheck
	if resp2.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp2.Body)
		t.Fatalf("invite: got %d, want 201 (body: %s)", resp2.StatusCode, raw)
	}

	// The invitee can log in with the password the admin set.
	loginResp := doLogin(t, ctx, ts, "picked@example.com", "chosen-by-admin")
	defer loginResp.Body.Close() //nolint:errcheck
	if loginResp.StatusCode != http.StatusOK {
		t.Errorf("login with initial password: got %d, want 200", loginResp.StatusCode)
	}
}
