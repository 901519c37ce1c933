// Package category maintains the category hierarchy as an arena of nodes
// addressed by id, with parent back-references and ordered child lists.
package category

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/folio/internal/apperr"
)

// Node is the nested, caller-owned view of a category.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
	Children []Node `json:"children"`
}

// Record is the flat persisted form of a category.
type Record struct {
	ID       string
	Name     string
	ParentID string // empty for root
	Position int
}

// PathEntry is one row of FlattenWithPath.
type PathEntry struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Path []string `json:"path"`
}

type node struct {
	id       string
	name     string
	parent   string
	children []string
}

// Tree is a forest of categories. It is not safe for concurrent use;
// callers that share a Tree must serialise access.
type Tree struct {
	nodes map[string]*node
	roots []string
	newID func() string
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		nodes: make(map[string]*node),
		newID: uuid.NewString,
	}
}

// Build reconstructs a tree from flat records. Records are grouped by parent
// and ordered by Position, ties keeping input order.
func Build(records []Record) (*Tree, error) {
	t := New()
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("category: record with empty id: %w", apperr.ErrValidation)
		}
		if _, dup := t.nodes[r.ID]; dup {
			return nil, fmt.Errorf("category: duplicate id %s: %w", r.ID, apperr.ErrAlreadyExists)
		}
		t.nodes[r.ID] = &node{id: r.ID, name: r.Name, parent: r.ParentID}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int { return a.Position - b.Position })
	for _, r := range sorted {
		if r.ParentID == "" {
			t.roots = append(t.roots, r.ID)
			continue
		}
		parent, ok := t.nodes[r.ParentID]
		if !ok {
			return nil, fmt.Errorf("category: %s references missing parent %s: %w", r.ID, r.ParentID, apperr.ErrNotFound)
		}
		parent.children = append(parent.children, r.ID)
	}

	// Every node must be reachable from a root, otherwise the parent links form a cycle.
	reached := 0
	t.walk(t.roots, func(string, int) { reached++ })
	if reached != len(t.nodes) {
		return nil, fmt.Errorf("category: parent links contain a cycle: %w", apperr.ErrInvalidParent)
	}
	return t, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Contains reports whether id is in the tree.
func (t *Tree) Contains(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// Get returns the node with its subtree.
func (t *Tree) Get(id string) (Node, error) {
	if _, ok := t.nodes[id]; !ok {
		return Node{}, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return t.nested(id), nil
}

// Insert creates a node named name and appends it to the children of
// parentID, or to the roots when parentID is empty.
func (t *Tree) Insert(parentID, name string) (Node, error) {
	n := &node{id: t.newID(), name: name, parent: parentID}
	if parentID == "" {
		t.roots = append(t.roots, n.id)
	} else {
		parent, ok := t.nodes[parentID]
		if !ok {
			return Node{}, fmt.Errorf("parent category %s: %w", parentID, apperr.ErrNotFound)
		}
		parent.children = append(parent.children, n.id)
	}
	t.nodes[n.id] = n
	return t.nested(n.id), nil
}

// Update renames a node in place.
func (t *Tree) Update(id, name string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	n.name = name
	return nil
}

// Move re-parents id under newParentID (empty for root), appending it to the
// new sibling list. Moving a node under itself or a descendant fails with
// ErrInvalidParent.
func (t *Tree) Move(id, newParentID string) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	if newParentID != "" {
		if _, ok := t.nodes[newParentID]; !ok {
			return fmt.Errorf("parent category %s: %w", newParentID, apperr.ErrNotFound)
		}
		if newParentID == id {
			return fmt.Errorf("category %s cannot be its own parent: %w", id, apperr.ErrInvalidParent)
		}
		desc, _ := t.DescendantIDs(id)
		if _, cyc := desc[newParentID]; cyc {
			return fmt.Errorf("category %s is a descendant of %s: %w", newParentID, id, apperr.ErrInvalidParent)
		}
	}
	if n.parent == newParentID {
		return nil
	}
	t.detach(n)
	n.parent = newParentID
	if newParentID == "" {
		t.roots = append(t.roots, id)
	} else {
		p := t.nodes[newParentID]
		p.children = append(p.children, id)
	}
	return nil
}

// Remove deletes id and its whole subtree and returns every removed id,
// id first. Selections keyed by those ids are stale afterwards.
func (t *Tree) Remove(id string) ([]string, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	removed := []string{}
	t.walk([]string{id}, func(cur string, _ int) { removed = append(removed, cur) })
	t.detach(n)
	for _, r := range removed {
		delete(t.nodes, r)
	}
	return removed, nil
}

// DescendantIDs returns every id reachable from id through child links,
// excluding id itself.
func (t *Tree) DescendantIDs(id string) (map[string]struct{}, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	out := make(map[string]struct{})
	t.walk(n.children, func(cur string, _ int) { out[cur] = struct{}{} })
	return out, nil
}

// ValidParents returns the ids id may be moved under: every node except id
// and its descendants, in pre-order.
func (t *Tree) ValidParents(id string) ([]string, error) {
	desc, err := t.DescendantIDs(id)
	if err != nil {
		return nil, err
	}
	out := []string{}
	t.walk(t.roots, func(cur string, _ int) {
		if cur == id {
			return
		}
		if _, skip := desc[cur]; skip {
			return
		}
		out = append(out, cur)
	})
	return out, nil
}

// HasChildren reports whether id has at least one child.
func (t *Tree) HasChildren(id string) (bool, error) {
	n, ok := t.nodes[id]
	if !ok {
		return false, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return len(n.children) > 0, nil
}

// FlattenWithPath lists every node in pre-order with the names of its
// ancestors followed by its own name.
func (t *Tree) FlattenWithPath() []PathEntry {
	out := make([]PathEntry, 0, len(t.nodes))
	var stack []string
	t.walk(t.roots, func(cur string, depth int) {
		n := t.nodes[cur]
		stack = append(stack[:depth], n.name)
		out = append(out, PathEntry{ID: n.id, Name: n.name, Path: slices.Clone(stack)})
	})
	return out
}

// Forest returns a nested copy of every root and its subtree.
func (t *Tree) Forest() []Node {
	out := make([]Node, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.nested(id))
	}
	return out
}

// Records returns the flat form of the tree with sibling positions, in pre-order.
func (t *Tree) Records() []Record {
	out := make([]Record, 0, len(t.nodes))
	t.walk(t.roots, func(cur string, _ int) {
		n := t.nodes[cur]
		out = append(out, Record{ID: n.id, Name: n.name, ParentID: n.parent, Position: t.position(n)})
	})
	return out
}

// Position returns the index of id among its siblings.
func (t *Tree) Position(id string) (int, error) {
	n, ok := t.nodes[id]
	if !ok {
		return 0, fmt.Errorf("category %s: %w", id, apperr.ErrNotFound)
	}
	return t.position(n), nil
}

func (t *Tree) position(n *node) int {
	return slices.Index(t.siblings(n), n.id)
}

func (t *Tree) siblings(n *node) []string {
	if n.parent == "" {
		return t.roots
	}
	return t.nodes[n.parent].children
}

func (t *Tree) detach(n *node) {
	if n.parent == "" {
		t.roots = slices.DeleteFunc(t.roots, func(s string) bool { return s == n.id })
		return
	}
	p := t.nodes[n.parent]
	p.children = slices.DeleteFunc(p.children, func(s string) bool { return s == n.id })
}

// walk visits start and their subtrees in pre-order with an explicit stack,
// passing the depth relative to start.
func (t *Tree) walk(start []string, visit func(id string, depth int)) {
	type frame struct {
		id    string
		depth int
	}
	stack := make([]frame, 0, len(start))
	for i := len(start) - 1; i >= 0; i-- {
		stack = append(stack, frame{start[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := t.nodes[f.id]
		if !ok {
			continue
		}
		visit(f.id, f.depth)
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, frame{n.children[i], f.depth + 1})
		}
	}
}

// nested builds the subtree under id. Reverse pre-order finishes every
// child before its parent, so no recursion is needed.
func (t *Tree) nested(id string) Node {
	var order []string
	t.walk([]string{id}, func(cur string, _ int) { order = append(order, cur) })

	built := make(map[string]Node, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := t.nodes[order[i]]
		out := Node{ID: n.id, Name: n.name, ParentID: n.parent, Children: make([]Node, 0, len(n.children))}
		for _, c := range n.children {
			out.Children = append(out.Children, built[c])
			delete(built, c)
		}
		built[n.id] = out
	}
	return built[id]
}
