//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			path UNINDEXED,
			title,
			summary,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, a ArticleRow, body string) error {
	if err := ftsDelete(tx, a.Path); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT INTO articles_fts (path, title, summary, body, tags) VALUES (?, ?, ?, ?, ?)`,
		a.Path, a.Title, a.Summary, body, strings.Join(a.Tags, " "))
	if err != nil {
		return fmt.Errorf("index: fts insert %s: %w", a.Path, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	if _, err := tx.Exec(`DELETE FROM articles_fts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: fts delete %s: %w", path, err)
	}
	return nil
}

// matchExpr quotes every term and lets the last one match as a prefix, so
// "chan sel" finds "channels and select".
func matchExpr(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	quoted[len(quoted)-1] += "*"
	return strings.Join(quoted, " ")
}

// Search ranks articles with bm25, weighting title over summary over body,
// and returns a highlighted body snippet for each hit.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT path, title, snippet(articles_fts, 3, '<b>', '</b>', '...', 24)
		FROM articles_fts
		WHERE articles_fts MATCH ?
		ORDER BY bm25(articles_fts, 0, 10.0, 4.0, 1.0, 2.0)
		LIMIT ?
	`, matchExpr(terms), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectResults(rows)
}
