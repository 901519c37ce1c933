package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
)

// ArticleRow represents a row in the articles table.
type ArticleRow struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
	Tags      []string  `json:"tags"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ListFilter narrows ListArticles. Zero values mean "no filter".
type ListFilter struct {
	Limit    int
	Offset   int
	Tag      string
	Status   string
	Category string
	Sort     string // updated_at (default), title, path, status
}

var sortColumns = map[string]string{
	"":           "updated_at DESC",
	"updated_at": "updated_at DESC",
	"title":      "title COLLATE NOCASE ASC",
	"path":       "path ASC",
	"status":     "status ASC, updated_at DESC",
}

const articleColumns = `path, title, checksum, category, status, tags, summary, updated_at`

// UpsertArticle inserts or replaces an article, its FTS entry, and its media
// references within a transaction. body is the plain text used for search.
func (db *DB) UpsertArticle(a ArticleRow, body string, media []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if a.Tags == nil {
		a.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(a.Tags)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO articles (path, title, checksum, category, status, tags, summary, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			category   = excluded.category,
			status     = excluded.status,
			tags       = excluded.tags,
			summary    = excluded.summary,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, a.Path, a.Title, a.Checksum, a.Category, a.Status, string(tagsJSON), a.Summary, body, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert article: %w", err)
	}

	if err := ftsUpsert(tx, a, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM media WHERE article = ?`, a.Path); err != nil {
		return fmt.Errorf("index: clear media: %w", err)
	}
	if len(media) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO media (article, url) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare media insert: %w", err)
		}
		defer stmt.Close()
		for _, u := range media {
			if _, err := stmt.Exec(a.Path, u); err != nil {
				return fmt.Errorf("index: insert media: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteArticle removes an article, its FTS entry, and its media references.
func (db *DB) DeleteArticle(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM media WHERE article = ?`, path); err != nil {
		return fmt.Errorf("index: delete media: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM articles WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete article: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for an article, or "" if it is not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM articles WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetArticle returns one indexed article.
func (db *DB) GetArticle(path string) (*ArticleRow, error) {
	row := db.conn.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE path = ?`, path)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get article: %w", err)
	}
	return a, nil
}

// AllChecksums returns path -> checksum for every indexed article.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM articles`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// ListArticles returns one page of articles matching f and the total match count.
func (db *DB) ListArticles(f ListFilter) ([]ArticleRow, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	order, ok := sortColumns[f.Sort]
	if !ok {
		return nil, 0, fmt.Errorf("index: unknown sort %q: %w", f.Sort, apperr.ErrValidation)
	}

	var where []string
	var args []any
	if f.Tag != "" {
		quoted, _ := json.Marshal(f.Tag)
		where = append(where, `tags LIKE ?`)
		args = append(args, "%"+string(quoted)+"%")
	}
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, `category = ?`)
		args = append(args, f.Category)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM articles`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count articles: %w", err)
	}

	rows, err := db.conn.Query(
		`SELECT `+articleColumns+` FROM articles`+clause+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list articles: %w", err)
	}
	defer rows.Close()

	out := []ArticleRow{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// ArticlesUsingMedia returns the paths of articles that reference url.
func (db *DB) ArticlesUsingMedia(url string) ([]string, error) {
	return db.paths(`SELECT article FROM media WHERE url = ? ORDER BY article`, url)
}

// ArticlesInCategories returns the paths of articles filed under any of ids.
func (db *DB) ArticlesInCategories(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return db.paths(`SELECT path FROM articles WHERE category IN (`+marks+`) ORDER BY path`, args...)
}

func (db *DB) paths(query string, args ...any) ([]string, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query paths: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (*ArticleRow, error) {
	var a ArticleRow
	var tags string
	if err := s.Scan(&a.Path, &a.Title, &a.Checksum, &a.Category, &a.Status, &tags, &a.Summary, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil || a.Tags == nil {
		a.Tags = []string{}
	}
	return &a, nil
}
