// Package models defines the domain types shared by storage and services.
package models

import "time"

// ArticleMetadata is the lightweight view of an article file on disk.
type ArticleMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

