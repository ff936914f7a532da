// ABOUTME: Tests for the role catalog: level resolution, labels, and the
// ABOUTME: assignment authorizer.
package hierarchy_test

import (
	"errors"
	"testing"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
)

func TestLevelLegacyRoles(t *testing.T) {
	t.Parallel()
	cases := map[string]int{
		"super_admin":      0,
		"company":          1,
		"subadmin":         2,
		"director":         3,
		"senior_manager":   4,
		"manager":          5,
		"team_leader":      6,
		"senior_executive": 7,
		"executive":        8,
		"senior_agent":     9,
		"agent":            10,
		"intern":           11,
		"trainee":          12,
	}
	for role, want := range cases {
		if got := hierarchy.Level(role); got != want {
			t.Errorf("Level(%q) = %d, want %d", role, got, want)
		}
	}
}

func TestLevelPattern(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		role string
		want int
	}{
		{"level_3", 3},
		{"level_10", 10},
		{"level_20", 20},
		{"level_42", 42}, // permissive: the boundary validator rejects, Level does not
	} {
		if got := hierarchy.Level(tc.role); got != tc.want {
			t.Errorf("Level(%q) = %d, want %d", tc.role, got, tc.want)
		}
	}
}

func TestLevelUnrecognized(t *testing.T) {
	t.Parallel()
	for _, role := range []string{"", "ceo", "level_", "level_x", "LEVEL_5", "admin"} {
		if got := hierarchy.Level(role); got != hierarchy.LevelUnranked {
			t.Errorf("Level(%q) = %d, want %d", role, got, hierarchy.LevelUnranked)
		}
	}
}

func TestParseRoleBounds(t *testing.T) {
	t.Parallel()
	if _, err := hierarchy.ParseRole("level_3"); err != nil {
		t.Errorf("level_3: %v", err)
	}
	if _, err := hierarchy.ParseRole("level_20"); err != nil {
		t.Errorf("level_20: %v", err)
	}
	for _, role := range []string{"level_2", "level_21", "level_0", "ceo", ""} {
		if _, err := hierarchy.ParseRole(role); !errors.Is(err, hierarchy.ErrUnknownRole) {
			t.Errorf("ParseRole(%q): got %v, want ErrUnknownRole", role, err)
		}
	}
	if lvl, err := hierarchy.ParseRole("manager"); err != nil || lvl != 5 {
		t.Errorf("ParseRole(manager) = (%d, %v), want (5, nil)", lvl, err)
	}
}

func TestCanAssignStrict(t *testing.T) {
	t.Parallel()
	for acting := 0; acting <= 21; acting++ {
		for target := 0; target <= 21; target++ {
			want := acting < target
			if got := hierarchy.CanAssign(acting, target); got != want {
				t.Errorf("CanAssign(%d, %d) = %v, want %v", acting, target, got, want)
			}
		}
	}
}

func TestLabelFixedAndTenant(t *testing.T) {
	t.Parallel()
	labels := hierarchy.Labels{3: "Regional Head", 10: "Sales Agent"}

	if got := hierarchy.Label("company", labels); got != "Company Admin" {
		t.Errorf("company label = %q", got)
	}
	if got := hierarchy.Label("subadmin", labels); got != "Subadmin" {
		t.Errorf("subadmin label = %q", got)
	}
	if got := hierarchy.Label("level_3", labels); got != "Regional Head" {
		t.Errorf("level_3 label = %q", got)
	}
	// Absent label signals "not offered".
	if got := hierarchy.Label("level_4", labels); got != "" {
		t.Errorf("level_4 label = %q, want empty", got)
	}
}

func TestAssignableRolesFiltersUnlabeled(t *testing.T) {
	t.Parallel()
	labels := hierarchy.Labels{3: "Regional Head", 5: "Manager", 10: "Agent"}

	roles := hierarchy.AssignableRoles(1, labels)
	want := []string{"subadmin", "level_3", "level_5", "level_10"}
	if len(roles) != len(want) {
		t.Fatalf("got %d roles, want %d: %+v", len(roles), len(want), roles)
	}
	for i, r := range roles {
		if r.Role != want[i] {
			t.Errorf("roles[%d] = %q, want %q", i, r.Role, want[i])
		}
		if r.Label == "" {
			t.Errorf("roles[%d] has empty label", i)
		}
	}
}

func TestAssignableRolesNeverAtOrAboveActing(t *testing.T) {
	t.Parallel()
	labels := hierarchy.Labels{}
	for lvl := hierarchy.MinCustom; lvl <= hierarchy.MaxCustom; lvl++ {
		labels[lvl] = "L"
	}
	for acting := 1; acting <= 20; acting++ {
		for _, r := range hierarchy.AssignableRoles(acting, labels) {
			if r.Level <= acting {
				t.Errorf("acting level %d offered role at level %d", acting, r.Level)
			}
		}
	}
	// An actor at level 5 must never see the reserved roles.
	for _, r := range hierarchy.AssignableRoles(5, labels) {
		if r.Role == "subadmin" || r.Role == "company" {
			t.Errorf("acting level 5 offered reserved role %q", r.Role)
		}
	}
}
