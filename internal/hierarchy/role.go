// ABOUTME: Role catalog — numeric permission levels, tenant labels, and the
// ABOUTME: assignment authorizer (an actor may only grant roles below their level).
package hierarchy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Level boundaries. Levels 1 and 2 are reserved; 3–20 are tenant-customizable.
const (
	LevelCompany  = 1
	LevelSubadmin = 2
	MinCustom     = 3
	MaxCustom     = 20

	// LevelUnranked is the sentinel for unrecognized role identifiers.
	// It sorts after every real level so that unexpected data degrades to
	// "lowest priority" instead of failing.
	LevelUnranked = 99
)

// legacyLevels maps the closed set of named legacy roles to their levels.
// These identifiers predate the level_N scheme and still appear in older
// tenants' role rows.
var legacyLevels = map[string]int{
	"super_admin":      0,
	"company":          LevelCompany,
	"subadmin":         LevelSubadmin,
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

// Level returns the numeric permission level for a role identifier.
// Legacy names use the fixed table; "level_N" parses N from the suffix.
// Unrecognized identifiers return LevelUnranked.
func Level(role string) int {
	if lvl, ok := legacyLevels[role]; ok {
		return lvl
	}
	if n, ok := parseLevelSuffix(role); ok {
		return n
	}
	return LevelUnranked
}

// parseLevelSuffix extracts N from a "level_N" identifier.
func parseLevelSuffix(role string) (int, bool) {
	suffix, ok := strings.CutPrefix(role, "level_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RoleID returns the canonical identifier for a level: the reserved names for
// levels 1 and 2, "level_N" otherwise.
func RoleID(level int) string {
	switch level {
	case LevelCompany:
		return "company"
	case LevelSubadmin:
		return "subadmin"
	default:
		return fmt.Sprintf("level_%d", level)
	}
}

// ErrUnknownRole is returned by ParseRole for identifiers outside the
// recognized set or custom levels outside [MinCustom, MaxCustom].
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role identifier at the API boundary and returns its
// level. Unlike Level it rejects rather than degrades: legacy names are
// accepted as-is; level_N requires N in [3, 20].
func ParseRole(role string) (int, error) {
	if lvl, ok := legacyLevels[role]; ok {
		return lvl, nil
	}
	if n, ok := parseLevelSuffix(role); ok {
		if n < MinCustom || n > MaxCustom {
			return 0, fmt.Errorf("%w: level_%d out of range [%d, %d]", ErrUnknownRole, n, MinCustom, MaxCustom)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, role)
}

// Labels is a tenant's custom display labels for levels 3–20, keyed by level.
// A missing or empty label means the level is not offered in that tenant.
type Labels map[int]string

// Label returns the display label for a role in a tenant.
// Levels 1 and 2 have fixed, non-renameable labels. Levels >= 3 use the
// tenant's labels; an empty result signals "not offered" and callers must
// filter such roles out of selection lists.
func Label(role string, labels Labels) string {
	switch lvl := Level(role); lvl {
	case LevelCompany:
		return "Company Admin"
	case LevelSubadmin:
		return "Subadmin"
	default:
		return labels[lvl]
	}
}

// CanAssign reports whether an actor at actingLevel may assign or promote to
// targetLevel. Strict inequality: an actor can never grant their own level or
// anything more senior. This is the sole authorization invariant of the
// hierarchy model and is enforced server-side; client filtering is not a
// trust boundary.
func CanAssign(actingLevel, targetLevel int) bool {
	return actingLevel < targetLevel
}

// AssignableRole is one entry in an assignable-roles list.
type AssignableRole struct {
	Role  string `json:"role"`
	Level int    `json:"level"`
	Label string `json:"label"`
}

// AssignableRoles returns the roles an actor at actingLevel may grant in a
// tenant, ordered by level ascending. A role appears only when its level is
// strictly below the actor's privilege (level > actingLevel) and its label is
// non-empty — a level with no label has been removed from the tenant's
// hierarchy and must never be offered.
func AssignableRoles(actingLevel int, labels Labels) []AssignableRole {
	var out []AssignableRole
	if CanAssign(actingLevel, LevelSubadmin) {
		out = append(out, AssignableRole{Role: "subadmin", Level: LevelSubadmin, Label: "Subadmin"})
	}
	for lvl := MinCustom; lvl <= MaxCustom; lvl++ {
		if !CanAssign(actingLevel, lvl) {
			continue
		}
		label := labels[lvl]
		if label == "" {
			continue
		}
		out = append(out, AssignableRole{Role: RoleID(lvl), Level: lvl, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
