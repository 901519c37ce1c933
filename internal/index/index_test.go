package index

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/category"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "folio-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"articles", "media", "categories"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
	if err := db.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestUpsertAndGetArticle(t *testing.T) {
	db := testDB(t)
	row := ArticleRow{
		Path:      "hello.html",
		Title:     "Hello World",
		Checksum:  "abc123",
		Category:  "cat-1",
		Status:    "submitted",
		Tags:      []string{"go", "test"},
		Summary:   "greeting",
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertArticle(row, "This is a hello world article.", []string{"/assets/a.png"}); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	cs, err := db.GetChecksum("hello.html")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}

	got, err := db.GetArticle("hello.html")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if got.Title != "Hello World" || got.Category != "cat-1" || got.Status != "submitted" || got.Summary != "greeting" {
		t.Errorf("article = %+v", got)
	}
	if diff := cmp.Diff([]string{"go", "test"}, got.Tags); diff != "" {
		t.Errorf("tags mismatch:\n%s", diff)
	}
}

func TestGetArticle_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetArticle("missing.html"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMediaUsage(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "a.html", Checksum: "1"}, "body", []string{"/assets/x.png"})
	_ = db.UpsertArticle(ArticleRow{Path: "c.html", Checksum: "2"}, "body", []string{"/assets/x.png", "/assets/y.mp4"})

	got, err := db.ArticlesUsingMedia("/assets/x.png")
	if err != nil {
		t.Fatalf("ArticlesUsingMedia: %v", err)
	}
	if diff := cmp.Diff([]string{"a.html", "c.html"}, got); diff != "" {
		t.Errorf("usage mismatch:\n%s", diff)
	}
}

func TestDeleteArticle(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "del.html", Checksum: "x"}, "body", []string{"/assets/t.png"})

	if err := db.DeleteArticle("del.html"); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	cs, _ := db.GetChecksum("del.html")
	if cs != "" {
		t.Errorf("deleted article still has checksum %q", cs)
	}
	used, _ := db.ArticlesUsingMedia("/assets/t.png")
	if len(used) != 0 {
		t.Errorf("expected no media usage after delete, got %v", used)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "up.html", Title: "Old", Checksum: "1"}, "old body", []string{"/x.png"})
	_ = db.UpsertArticle(ArticleRow{Path: "up.html", Title: "New", Checksum: "2", Tags: []string{"new"}}, "new body", []string{"/y.png"})

	cs, _ := db.GetChecksum("up.html")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	if used, _ := db.ArticlesUsingMedia("/x.png"); len(used) != 0 {
		t.Error("old media reference should be removed on upsert")
	}
	if used, _ := db.ArticlesUsingMedia("/y.png"); len(used) != 1 {
		t.Error("new media reference should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListArticles_Filters(t *testing.T) {
	db := testDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []ArticleRow{
		{Path: "a.html", Title: "Alpha", Checksum: "1", Category: "c1", Status: "draft", Tags: []string{"go"}, UpdatedAt: base},
		{Path: "b.html", Title: "beta", Checksum: "2", Category: "c2", Status: "published", Tags: []string{"rust"}, UpdatedAt: base.Add(time.Hour)},
		{Path: "c.html", Title: "Gamma", Checksum: "3", Category: "c1", Status: "published", Tags: []string{"go", "db"}, UpdatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range rows {
		if err := db.UpsertArticle(r, "", nil); err != nil {
			t.Fatal(err)
		}
	}

	paths := func(rs []ArticleRow) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Path)
		}
		return out
	}

	got, total, err := db.ListArticles(ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d", total)
	}
	if diff := cmp.Diff([]string{"c.html", "b.html", "a.html"}, paths(got)); diff != "" {
		t.Errorf("default order:\n%s", diff)
	}

	got, _, _ = db.ListArticles(ListFilter{Sort: "title"})
	if diff := cmp.Diff([]string{"a.html", "b.html", "c.html"}, paths(got)); diff != "" {
		t.Errorf("title order:\n%s", diff)
	}

	got, total, _ = db.ListArticles(ListFilter{Tag: "go", Status: "published"})
	if total != 1 || len(got) != 1 || got[0].Path != "c.html" {
		t.Errorf("tag+status filter = %v (total %d)", paths(got), total)
	}

	got, _, _ = db.ListArticles(ListFilter{Category: "c1", Limit: 1, Offset: 1})
	if diff := cmp.Diff([]string{"a.html"}, paths(got)); diff != "" {
		t.Errorf("category page:\n%s", diff)
	}

	if _, _, err := db.ListArticles(ListFilter{Sort: "checksum; DROP TABLE articles"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad sort err = %v", err)
	}
}

func TestArticlesInCategories(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "a.html", Checksum: "1", Category: "c1"}, "", nil)
	_ = db.UpsertArticle(ArticleRow{Path: "b.html", Checksum: "2", Category: "c2"}, "", nil)
	_ = db.UpsertArticle(ArticleRow{Path: "c.html", Checksum: "3", Category: "c3"}, "", nil)

	got, err := db.ArticlesInCategories([]string{"c1", "c3"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a.html", "c.html"}, got); diff != "" {
		t.Errorf("mismatch:\n%s", diff)
	}
	if got, _ := db.ArticlesInCategories(nil); len(got) != 0 {
		t.Errorf("empty ids = %v", got)
	}
}

func TestCategoriesReplaceAndList(t *testing.T) {
	db := testDB(t)
	recs := []category.Record{
		{ID: "r", Name: "Root", Position: 0},
		{ID: "k", Name: "Kid", ParentID: "r", Position: 1},
	}
	if err := db.ReplaceCategories(recs); err != nil {
		t.Fatalf("ReplaceCategories: %v", err)
	}
	got, err := db.ListCategories()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(recs, got); diff != "" {
		t.Errorf("records mismatch:\n%s", diff)
	}

	if err := db.ReplaceCategories(recs[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = db.ListCategories()
	if len(got) != 1 {
		t.Errorf("replace left %d records", len(got))
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "s.html", Title: "Search Me", Checksum: "1"}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.html" {
		t.Errorf("search results = %+v, want 1 hit for s.html", results)
	}
}

func TestIndexFile_ParsesArticle(t *testing.T) {
	db := testDB(t)
	data := []byte("---\ntitle: Parsed\ncategory: c9\nstatus: approved\n---\n<p>indexed words</p>\n<figure><img src=\"/assets/p.png\" alt=\"\" /><figcaption></figcaption></figure>\n")
	if err := IndexFile(db, "p.html", data); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	got, err := db.GetArticle("p.html")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Parsed" || got.Category != "c9" || got.Status != "approved" {
		t.Errorf("article = %+v", got)
	}
	if used, _ := db.ArticlesUsingMedia("/assets/p.png"); len(used) != 1 {
		t.Errorf("media not indexed")
	}
	if res, _ := db.Search("indexed", 5); len(res) != 1 {
		t.Errorf("body not searchable: %+v", res)
	}
}

func TestSearch_EveryTermMustMatch(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "both.html", Title: "Channels", Checksum: "1"}, "buffered channels and select", nil)
	_ = db.UpsertArticle(ArticleRow{Path: "one.html", Title: "Maps", Checksum: "2"}, "maps and select", nil)

	res, err := db.Search(`select, "buffered"`, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Path != "both.html" {
		t.Errorf("results = %+v", res)
	}
	if res, err := db.Search(` ?! `, 10); err != nil || len(res) != 0 {
		t.Errorf("punctuation-only query = %+v, %v", res, err)
	}
}

func TestSearchTermsAndLimit(t *testing.T) {
	if diff := cmp.Diff([]string{"go", "1", "22", "naïve"}, searchTerms(`"go 1.22" naïve*`)); diff != "" {
		t.Errorf("terms mismatch:\n%s", diff)
	}
	for in, want := range map[int]int{0: defaultSearchLimit, -3: defaultSearchLimit, 7: 7, 1000: maxSearchLimit} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDiff(t *testing.T) {
	disk := []models.ArticleMetadata{
		{Path: "same.html", Checksum: "s"},
		{Path: "changed.html", Checksum: "new"},
		{Path: "added.html", Checksum: "a"},
	}
	indexed := map[string]string{
		"same.html":    "s",
		"changed.html": "old",
		"removed.html": "r",
	}
	d := diff(disk, indexed)
	if diff := cmp.Diff([]string{"changed.html", "added.html"}, d.stale); diff != "" {
		t.Errorf("stale mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"removed.html"}, d.gone); diff != "" {
		t.Errorf("gone mismatch:\n%s", diff)
	}
}

func TestOpen_SchemaUpgradeKeepsCategories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.UpsertArticle(ArticleRow{Path: "a.html", Checksum: "1"}, "", nil)
	recs := []category.Record{{ID: "r", Name: "Root"}}
	if err := db.ReplaceCategories(recs); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec(`PRAGMA user_version = 1`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	if cs, _ := db.GetChecksum("a.html"); cs != "" {
		t.Error("derived article rows survived a schema upgrade")
	}
	got, err := db.ListCategories()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(recs, got); diff != "" {
		t.Errorf("categories mismatch:\n%s", diff)
	}
	var version int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil || version != schemaVersion {
		t.Errorf("user_version = %d, %v", version, err)
	}
}

func TestSync(t *testing.T) {
	root := t.TempDir()
	for name, body := range map[string]string{
		"keep.html": "<h1>Keep</h1>",
		"bad.html":  "---\nstatus: archived\n---\n<p>x</p>",
	} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	_ = db.UpsertArticle(ArticleRow{Path: "stale.html", Checksum: "x"}, "", nil)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	all, _ := db.AllChecksums()
	if _, ok := all["keep.html"]; !ok {
		t.Error("keep.html not indexed")
	}
	if _, ok := all["stale.html"]; ok {
		t.Error("stale.html not removed")
	}
	if _, ok := all["bad.html"]; ok {
		t.Error("unparseable file was indexed")
	}
}
