// Package index provides the SQLite-backed article index and category store,
// with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS articles (
	path       TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'draft',
	tags       TEXT NOT NULL DEFAULT '[]',
	summary    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
CREATE INDEX IF NOT EXISTS idx_articles_status ON articles(status);

CREATE TABLE IF NOT EXISTS media (
	article TEXT NOT NULL,
	url     TEXT NOT NULL,
	UNIQUE(article, url)
);

CREATE INDEX IF NOT EXISTS idx_media_url ON media(url);

CREATE TABLE IF NOT EXISTS categories (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	name      TEXT NOT NULL,
	position  INTEGER NOT NULL DEFAULT 0
);
`

// schemaVersion is stored in PRAGMA user_version. Bumping it drops the
// derived tables on the next Open; Sync then rebuilds them from the content
// root. Categories are not derived and are never dropped.
const schemaVersion = 2

var derivedTables = []string{"articles_fts", "media", "articles"}

// DB is the article index and category store.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var version int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if version != 0 && version != schemaVersion {
		for _, t := range derivedTables {
			if _, err := conn.Exec(`DROP TABLE IF EXISTS ` + t); err != nil {
				return fmt.Errorf("index: drop %s: %w", t, err)
			}
		}
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		return fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		return fmt.Errorf("index: apply fts schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("index: write schema version: %w", err)
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
