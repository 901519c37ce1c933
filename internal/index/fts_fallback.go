//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Builds without the sqlite_fts5 tag search the articles table directly.
func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, ArticleRow, string) error { return nil }

func ftsDelete(*sql.Tx, string) error { return nil }

// Search returns articles containing every term in their title, summary,
// body or tags, newest first.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}
	var (
		where []string
		args  []any
	)
	for _, t := range terms {
		where = append(where, `(title LIKE ? OR summary LIKE ? OR body LIKE ? OR tags LIKE ?)`)
		like := "%" + t + "%"
		args = append(args, like, like, like, like)
	}
	args = append(args, clampLimit(limit))

	rows, err := db.conn.Query(`
		SELECT path, title, substr(body, 1, 200)
		FROM articles
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY updated_at DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectResults(rows)
}
