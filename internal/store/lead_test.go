// ABOUTME: Integration tests for the leads store: CRUD, stage guard, cursors.
package store_test

import (
	"context"
	"testing"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/testutil"
)

func TestLeadLifecycle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	tenant, owner := seedTenant(t, s, "Pipeline Co")

	lead, err := s.CreateLead(ctx, tenant.ID, store.CreateLeadParams{
		OwnerUserID: &owner.ID,
		FullName:    "Priya Sharma",
		Email:       "priya@example.com",
		Source:      "webform",
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if lead.Stage != "new" {
		t.Errorf("new lead stage = %q, want new", lead.Stage)
	}

	// Stage guard: transition succeeds only from the expected stage.
	moved, err := s.UpdateLeadStage(ctx, tenant.ID, lead.ID, "new", "contacted")
	if err != nil {
		t.Fatalf("UpdateLeadStage: %v", err)
	}
	if moved == nil || moved.Stage != "contacted" {
		t.Fatalf("stage transition failed: %+v", moved)
	}

	// A second transition from the stale stage is rejected.
	stale, err := s.UpdateLeadStage(ctx, tenant.ID, lead.ID, "new", "qualified")
	if err != nil {
		t.Fatalf("UpdateLeadStage(stale): %v", err)
	}
	if stale != nil {
		t.Error("transition from stale stage should return nil")
	}

	// Soft delete hides the lead from reads.
	ok, err := s.DeleteLead(ctx, tenant.ID, lead.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteLead: ok=%v err=%v", ok, err)
	}
	gone, _ := s.GetLead(ctx, tenant.ID, lead.ID)
	if gone != nil {
		t.Error("soft-deleted lead still readable")
	}

	// Deleting again is a no-op.
	ok, err = s.DeleteLead(ctx, tenant.ID, lead.ID)
	if err != nil {
		t.Fatalf("DeleteLead(again): %v", err)
	}
	if ok {
		t.Error("second delete should report no row")
	}
}

func TestListLeadsCursorPagination(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	tenant, _ := seedTenant(t, s, "Cursor Co")
	for i := 0; i < 5; i++ {
		if _, err := s.CreateLead(ctx, tenant.ID, store.CreateLeadParams{
			FullName: "Lead",
			Source:   "import",
		}); err != nil {
			t.Fatalf("CreateLead: %v", err)
		}
	}

	// First page: limit+1 to detect next page.
	page1, err := s.ListLeads(ctx, tenant.ID, store.LeadFilter{}, nil, nil, 4)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(page1) != 4 {
		t.Fatalf("page1 len = %d, want 4", len(page1))
	}

	last := page1[2]
	page2, err := s.ListLeads(ctx, tenant.ID, store.LeadFilter{}, &last.CreatedAt, &last.ID, 4)
	if err != nil {
		t.Fatalf("ListLeads(page2): %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("page2 len = %d, want 2", len(page2))
	}
	for _, l := range page2 {
		for _, seen := range page1[:3] {
			if l.ID == seen.ID {
				t.Errorf("lead %s appeared on both pages", l.ID)
			}
		}
	}
}

func TestListLeadsStageFilter(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	tenant, _ := seedTenant(t, s, "Filter Co")
	a, _ := s.CreateLead(ctx, tenant.ID, store.CreateLeadParams{FullName: "A"})
	if _, err := s.CreateLead(ctx, tenant.ID, store.CreateLeadParams{FullName: "B"}); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if _, err := s.UpdateLeadStage(ctx, tenant.ID, a.ID, "new", "contacted"); err != nil {
		t.Fatalf("UpdateLeadStage: %v", err)
	}

	contacted, err := s.ListLeads(ctx, tenant.ID, store.LeadFilter{Stage: "contacted"}, nil, nil, 10)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(contacted) != 1 || contacted[0].ID != a.ID {
		t.Errorf("stage filter returned %d leads", len(contacted))
	}
}
