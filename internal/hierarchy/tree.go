// ABOUTME: Membership tree builder — converts flat manager pointers into a
// ABOUTME: display forest with orphan classification and cycle guards.
package hierarchy

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Member is one tenant member as seen by the tree builder.
type Member struct {
	ID        uuid.UUID
	FullName  string
	Email     string
	Role      string
	ManagerID *uuid.UUID
}

// Level returns the member's resolved permission level.
func (m Member) Level() int { return Level(m.Role) }

// Node wraps a member with its attached reports.
type Node struct {
	Member   Member
	Children []*Node
}

// Forest is the result of a tree build: main roots plus the unassigned bucket.
// MainRoots are sorted ascending by level (most senior first). Unassigned
// holds members above level 1 with no resolvable manager and is populated
// only for a Company-level viewer — from an admin's vantage an unmanaged node
// is a data-quality gap, while a non-admin's own unmanaged node is simply the
// top of their subtree.
type Forest struct {
	MainRoots  []*Node
	Unassigned []*Node
}

// BuildTree converts a flat member list into a Forest for the given viewer.
// The manager graph is a back-reference per node with no database constraint
// preventing cycles, so the build never traverses upward: children are only
// attached forward from the id index. A member whose manager id is itself or
// absent from the list is treated as having no manager.
func BuildTree(members []Member, viewerID uuid.UUID, viewerLevel int) Forest {
	index := make(map[uuid.UUID]*Node, len(members))
	for _, m := range members {
		index[m.ID] = &Node{Member: m}
	}

	var f Forest
	for _, m := range members {
		node := index[m.ID]
		if m.ManagerID != nil && *m.ManagerID != m.ID {
			if parent, ok := index[*m.ManagerID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		// No resolvable manager: classify the root.
		switch {
		case m.Level() == LevelCompany:
			f.MainRoots = append(f.MainRoots, node)
		case viewerLevel != LevelCompany && m.ID == viewerID:
			// A non-privileged viewer's own top-of-subtree node is a valid
			// entry point, not a gap.
			f.MainRoots = append(f.MainRoots, node)
		case viewerLevel == LevelCompany:
			f.Unassigned = append(f.Unassigned, node)
		}
	}

	sort.SliceStable(f.MainRoots, func(i, j int) bool {
		return f.MainRoots[i].Member.Level() < f.MainRoots[j].Member.Level()
	})
	return f
}

// Walk visits node and its descendants depth-first, calling fn with each
// member and its depth. A node id already seen on the current path is skipped
// and reported as inconsistent — a manager cycle in the tenant's data must
// not loop or render duplicates.
func Walk(root *Node, fn func(m Member, depth int)) {
	walk(root, 0, make(map[uuid.UUID]bool), fn)
}

func walk(n *Node, depth int, onPath map[uuid.UUID]bool, fn func(Member, int)) {
	if onPath[n.Member.ID] {
		slog.Warn("hierarchy: manager cycle detected, skipping revisit",
			"member_id", n.Member.ID)
		return
	}
	onPath[n.Member.ID] = true
	fn(n.Member, depth)
	for _, c := range n.Children {
		walk(c, depth+1, onPath, fn)
	}
	delete(onPath, n.Member.ID)
}
