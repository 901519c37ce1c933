package articleservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/workflow"
)

type fakeCats map[string]bool

func (f fakeCats) Exists(id string) bool { return f[id] }

func newTestService(t *testing.T) (*Service, *index.DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp("", "folio-svc-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := index.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(store, db, fakeCats{"cat-go": true}), db
}

var ignoreIDs = cmpopts.IgnoreFields(content.Block{}, "ID")

func sample() []content.Block {
	return []content.Block{
		{Type: content.TypeHeading1, Content: "Channels"},
		{Type: content.TypeParagraph, Content: "Send & receive."},
		{Type: content.TypeCode, CodeData: &content.CodeData{Language: "go", Code: "ch <- 1"}},
		{Type: content.TypeImage, ImageURL: "/assets/ch.png", ImageAlt: "diagram", Content: "A channel"},
	}
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Path: "go/channels", Category: "cat-go", Tags: []string{"go"}, Blocks: sample()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Path != "go/channels.html" {
		t.Errorf("path = %q", created.Path)
	}
	if created.Title != "Channels" || created.Status != workflow.StatusDraft {
		t.Errorf("detail = %+v", created)
	}
	if diff := cmp.Diff([]workflow.Action{workflow.ActionSubmit}, created.Actions); diff != "" {
		t.Errorf("actions:\n%s", diff)
	}

	got, err := svc.Get(ctx, "go/channels.html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(sample(), got.Blocks, ignoreIDs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	if got.Checksum != created.Checksum {
		t.Errorf("checksum changed between create and get")
	}
	if diff := cmp.Diff([]string{"/assets/ch.png"}, got.Media); diff != "" {
		t.Errorf("media:\n%s", diff)
	}

	if _, err := svc.Create(ctx, CreateInput{Path: "go/channels.html"}); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	cases := []CreateInput{
		{Path: ""},
		{Path: "../escape"},
		{Path: ".hidden/x"},
		{Path: "notes.md"},
		{Path: "x", Blocks: []content.Block{{Type: "table"}}},
		{Path: "x", Blocks: []content.Block{{Type: content.TypeParagraph, Content: "a\x00b"}}},
		{Path: "x", Blocks: []content.Block{{Type: content.TypeList, ListItems: []string{"ok", "\x00"}}}},
		{Path: "x", Blocks: []content.Block{{Type: content.TypeCode, CodeData: &content.CodeData{Code: "nul\x00"}}}},
	}
	for _, in := range cases {
		if _, err := svc.Create(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%+v) err = %v, want ErrValidation", in, err)
		}
	}
	if _, err := svc.Get(ctx, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("rejected article was stored: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Path: "x", Category: "nope"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown category err = %v", err)
	}
}

func TestUpdate_IfMatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d, _ := svc.Create(ctx, CreateInput{Path: "a", Blocks: sample()})

	title := "Renamed"
	if _, err := svc.Update(ctx, "a.html", UpdateInput{Title: &title}, `"stale"`); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale If-Match err = %v", err)
	}
	updated, err := svc.Update(ctx, "a.html", UpdateInput{Title: &title}, `"`+d.Checksum+`"`)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Renamed" || updated.Checksum == d.Checksum {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := svc.Update(ctx, "missing", UpdateInput{Title: &title}, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestReplaceBlocks_KeepsIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, CreateInput{Path: "b", Blocks: sample()})

	blocks := []content.Block{content.NewBlock(content.TypeDivider), {ID: "keep-me", Type: content.TypeQuote, Content: "q"}}
	d, err := svc.ReplaceBlocks(ctx, "b", blocks, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Blocks[1].ID != "keep-me" || d.Blocks[0].ID != blocks[0].ID {
		t.Errorf("ids not preserved: %+v", d.Blocks)
	}
	got, checksum, err := svc.GetBlocks(ctx, "b")
	if err != nil || checksum != d.Checksum {
		t.Fatalf("GetBlocks: %v", err)
	}
	if diff := cmp.Diff(blocks, got, ignoreIDs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("blocks:\n%s", diff)
	}
}

func TestTransition(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, CreateInput{Path: "c", Blocks: sample()})

	if _, err := svc.Transition(ctx, "c", workflow.ActionPublish, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("publish draft err = %v", err)
	}
	d, err := svc.Transition(ctx, "c", workflow.ActionSubmit, "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != workflow.StatusSubmitted {
		t.Errorf("status = %s", d.Status)
	}
	row, _ := db.GetArticle("c.html")
	if row.Status != "submitted" {
		t.Errorf("indexed status = %s", row.Status)
	}
}

func TestImport_Sanitizes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	html := `<h1>Imported</h1><script>alert(1)</script><p onclick="steal()">Safe <b>text</b></p>` +
		`<pre><code class="language-go">x := 1</code></pre>`
	d, err := svc.Import(ctx, "imported", html)
	if err != nil {
		t.Fatal(err)
	}
	want := []content.Block{
		{Type: content.TypeHeading1, Content: "Imported"},
		{Type: content.TypeParagraph, Content: "Safe text"},
		{Type: content.TypeCode, CodeData: &content.CodeData{Language: "go", Code: "x := 1"}},
	}
	if diff := cmp.Diff(want, d.Blocks, ignoreIDs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("imported blocks (-want +got):\n%s", diff)
	}
	if strings.Contains(d.HTML, "script") || strings.Contains(d.HTML, "onclick") {
		t.Errorf("unsafe markup survived: %s", d.HTML)
	}
	if _, err := svc.Import(ctx, "empty", "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty import err = %v", err)
	}
}

func TestExportMarkdown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, CreateInput{Path: "m", Blocks: sample()})

	md, err := svc.ExportMarkdown(ctx, "m")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# Channels", "Send & receive.", "ch <- 1", "/assets/ch.png"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMoveDeleteAndQueries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, CreateInput{Path: "old", Blocks: sample()})

	if _, err := svc.Move(ctx, "old", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "old"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old path err = %v", err)
	}
	used, err := svc.MediaUsage(ctx, "/assets/ch.png")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"new.html"}, used); diff != "" {
		t.Errorf("usage:\n%s", diff)
	}
	hits, err := svc.Search(ctx, "receive", 10)
	if err != nil || len(hits) != 1 {
		t.Errorf("search = %+v, %v", hits, err)
	}
	items, total, err := svc.List(ctx, index.ListFilter{})
	if err != nil || total != 1 || items[0].Path != "new.html" {
		t.Errorf("list = %+v (%d), %v", items, total, err)
	}

	if err := svc.Delete(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "new"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if _, total, _ := svc.List(ctx, index.ListFilter{}); total != 0 {
		t.Errorf("total after delete = %d", total)
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"a":            "a.html",
		"/dir/b.html":  "dir/b.html",
		"dir//c":       "dir/c.html",
		`win\path\d`:   "win/path/d.html",
		" spaced.html": "spaced.html",
	}
	for in, want := range cases {
		got, err := CleanPath(in)
		if err != nil || got != want {
			t.Errorf("CleanPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestOnChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	var got []string
	svc.OnChange(func(kind, path string) { got = append(got, kind+":"+path) })

	_, _ = svc.Create(ctx, CreateInput{Path: "n", Blocks: sample()})
	_, _ = svc.Transition(ctx, "n", workflow.ActionSubmit, "")
	_, _ = svc.Transition(ctx, "n", workflow.ActionPublish, "")
	_, _ = svc.Move(ctx, "n", "m")
	_ = svc.Delete(ctx, "m")

	want := []string{
		"created:n.html",
		"updated:n.html",
		"deleted:n.html",
		"created:m.html",
		"deleted:m.html",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}
