// Package storage keeps article files in a content directory.
package storage

import (
	"strings"

	"github.com/starford/folio/internal/models"
)

// ArticleExt is the extension of article files.
const ArticleExt = ".html"

// Provider is the file layer under the article service and the indexer.
// Paths are slash-separated and relative to the content root. Missing files
// produce errors matching apperr.ErrNotFound; paths outside the root produce
// apperr.ErrValidation.
type Provider interface {
	List(dir string) ([]models.ArticleMetadata, error)
	Exists(path string) (bool, error)
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
	Delete(path string) error
	// Move fails with apperr.ErrAlreadyExists when newPath is taken.
	Move(oldPath, newPath string) error
	Root() string
}

// IsArticle reports whether name looks like an article file.
func IsArticle(name string) bool {
	return len(name) > len(ArticleExt) && strings.HasSuffix(name, ArticleExt)
}
