package index

import (
	"fmt"

	"github.com/starford/folio/internal/category"
)

// ListCategories returns every stored category ordered by position.
func (db *DB) ListCategories() ([]category.Record, error) {
	rows, err := db.conn.Query(`SELECT id, parent_id, name, position FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("index: list categories: %w", err)
	}
	defer rows.Close()

	out := []category.Record{}
	for rows.Next() {
		var r category.Record
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Name, &r.Position); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceCategories swaps the stored tree for records in one transaction.
func (db *DB) ReplaceCategories(records []category.Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM categories`); err != nil {
		return fmt.Errorf("index: clear categories: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO categories (id, parent_id, name, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare category insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(r.ID, r.ParentID, r.Name, r.Position); err != nil {
			return fmt.Errorf("index: insert category %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}
