package category

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/folio/internal/apperr"
)

func mustInsert(t *testing.T, tr *Tree, parent, name string) string {
	t.Helper()
	n, err := tr.Insert(parent, name)
	if err != nil {
		t.Fatalf("Insert(%q, %q): %v", parent, name, err)
	}
	return n.ID
}

// sample builds:
//
//	A
//	├─ B
//	│  └─ C
//	└─ D
//	E
func sample(t *testing.T) (*Tree, map[string]string) {
	t.Helper()
	tr := New()
	ids := map[string]string{}
	ids["A"] = mustInsert(t, tr, "", "A")
	ids["B"] = mustInsert(t, tr, ids["A"], "B")
	ids["C"] = mustInsert(t, tr, ids["B"], "C")
	ids["D"] = mustInsert(t, tr, ids["A"], "D")
	ids["E"] = mustInsert(t, tr, "", "E")
	return tr, ids
}

func TestFlattenWithPath_Chain(t *testing.T) {
	tr := New()
	a := mustInsert(t, tr, "", "A")
	b := mustInsert(t, tr, a, "B")
	c := mustInsert(t, tr, b, "C")

	got := tr.FlattenWithPath()
	want := []PathEntry{
		{ID: a, Name: "A", Path: []string{"A"}},
		{ID: b, Name: "B", Path: []string{"A", "B"}},
		{ID: c, Name: "C", Path: []string{"A", "B", "C"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FlattenWithPath mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenWithPath_PreOrderSiblings(t *testing.T) {
	tr, _ := sample(t)
	var names []string
	var paths [][]string
	for _, e := range tr.FlattenWithPath() {
		names = append(names, e.Name)
		paths = append(paths, e.Path)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D", "E"}, names); diff != "" {
		t.Errorf("order mismatch:\n%s", diff)
	}
	wantPaths := [][]string{{"A"}, {"A", "B"}, {"A", "B", "C"}, {"A", "D"}, {"E"}}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Errorf("paths mismatch:\n%s", diff)
	}
}

func TestDescendantIDs(t *testing.T) {
	tr, ids := sample(t)
	got, err := tr.DescendantIDs(ids["A"])
	if err != nil {
		t.Fatalf("DescendantIDs: %v", err)
	}
	want := map[string]struct{}{ids["B"]: {}, ids["C"]: {}, ids["D"]: {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch:\n%s", diff)
	}
	if _, self := got[ids["A"]]; self {
		t.Error("descendants contain the node itself")
	}

	leaf, _ := tr.DescendantIDs(ids["C"])
	if len(leaf) != 0 {
		t.Errorf("leaf descendants = %v", leaf)
	}

	if _, err := tr.DescendantIDs("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestValidParents(t *testing.T) {
	tr, ids := sample(t)
	got, err := tr.ValidParents(ids["B"])
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ids["A"], ids["D"], ids["E"]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ValidParents mismatch:\n%s", diff)
	}
}

func TestInsert_UnknownParent(t *testing.T) {
	tr := New()
	if _, err := tr.Insert("nope", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if tr.Len() != 0 {
		t.Errorf("failed insert left %d nodes", tr.Len())
	}
}

func TestUpdate(t *testing.T) {
	tr, ids := sample(t)
	if err := tr.Update(ids["C"], "Renamed"); err != nil {
		t.Fatal(err)
	}
	flat := tr.FlattenWithPath()
	if diff := cmp.Diff([]string{"A", "B", "Renamed"}, flat[2].Path); diff != "" {
		t.Errorf("path after rename:\n%s", diff)
	}
	if err := tr.Update("missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemove_Cascades(t *testing.T) {
	tr, ids := sample(t)
	removed, err := tr.Remove(ids["B"])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{ids["B"], ids["C"]}, removed); diff != "" {
		t.Errorf("removed mismatch:\n%s", diff)
	}
	if tr.Contains(ids["C"]) {
		t.Error("descendant survived removal")
	}
	desc, _ := tr.DescendantIDs(ids["A"])
	if diff := cmp.Diff(map[string]struct{}{ids["D"]: {}}, desc); diff != "" {
		t.Errorf("descendants after remove:\n%s", diff)
	}
	for _, e := range tr.FlattenWithPath() {
		if e.ID == ids["B"] || e.ID == ids["C"] {
			t.Errorf("removed node %s still flattened", e.Name)
		}
	}
	if _, err := tr.Remove(ids["B"]); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
}

func TestMove(t *testing.T) {
	tr, ids := sample(t)

	if err := tr.Move(ids["A"], ids["C"]); !errors.Is(err, apperr.ErrInvalidParent) {
		t.Errorf("move under descendant err = %v, want ErrInvalidParent", err)
	}
	if err := tr.Move(ids["A"], ids["A"]); !errors.Is(err, apperr.ErrInvalidParent) {
		t.Errorf("move under self err = %v, want ErrInvalidParent", err)
	}
	if err := tr.Move(ids["A"], "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("move under missing err = %v, want ErrNotFound", err)
	}

	if err := tr.Move(ids["B"], ids["E"]); err != nil {
		t.Fatalf("Move: %v", err)
	}
	var names []string
	for _, e := range tr.FlattenWithPath() {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"A", "D", "E", "B", "C"}, names); diff != "" {
		t.Errorf("order after move:\n%s", diff)
	}

	if err := tr.Move(ids["B"], ""); err != nil {
		t.Fatalf("Move to root: %v", err)
	}
	forest := tr.Forest()
	if len(forest) != 3 || forest[2].ID != ids["B"] || forest[2].ParentID != "" {
		t.Errorf("forest after move to root = %+v", forest)
	}
}

func TestBuild_RoundTripsRecords(t *testing.T) {
	tr, _ := sample(t)
	rebuilt, err := Build(tr.Records())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff(tr.Forest(), rebuilt.Forest()); diff != "" {
		t.Errorf("forest mismatch:\n%s", diff)
	}
}

func TestBuild_OrdersByPosition(t *testing.T) {
	tr, err := Build([]Record{
		{ID: "b", Name: "B", ParentID: "a", Position: 1},
		{ID: "c", Name: "C", ParentID: "a", Position: 0},
		{ID: "a", Name: "A"},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range tr.FlattenWithPath() {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"A", "C", "B"}, names); diff != "" {
		t.Errorf("order mismatch:\n%s", diff)
	}
}

func TestBuild_RejectsBadRecords(t *testing.T) {
	_, err := Build([]Record{{ID: "a", ParentID: "ghost"}})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("dangling parent err = %v", err)
	}
	_, err = Build([]Record{{ID: "a", ParentID: "b"}, {ID: "b", ParentID: "a"}})
	if !errors.Is(err, apperr.ErrInvalidParent) {
		t.Errorf("cycle err = %v", err)
	}
	_, err = Build([]Record{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestDeepChainIsIterative(t *testing.T) {
	tr := New()
	parent := ""
	var first string
	for i := 0; i < 5000; i++ {
		parent = mustInsert(t, tr, parent, "n")
		if i == 0 {
			first = parent
		}
	}
	desc, err := tr.DescendantIDs(first)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 4999 {
		t.Errorf("len(desc) = %d, want 4999", len(desc))
	}
	flat := tr.FlattenWithPath()
	if got := len(flat[len(flat)-1].Path); got != 5000 {
		t.Errorf("deepest path length = %d", got)
	}

	forest := tr.Forest()
	depth := 0
	for n := forest[0]; ; n = n.Children[0] {
		depth++
		if len(n.Children) == 0 {
			break
		}
	}
	if depth != 5000 {
		t.Errorf("forest depth = %d, want 5000", depth)
	}
	if got, err := tr.Get(first); err != nil || len(got.Children) != 1 {
		t.Errorf("Get(first) = %+v, %v", got.Children, err)
	}
}
