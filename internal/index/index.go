package index

import "github.com/starford/folio/internal/category"

// ArticleIndex is the article side of the index as the article service
// sees it.
type ArticleIndex interface {
	UpsertArticle(a ArticleRow, body string, media []string) error
	DeleteArticle(path string) error
	GetChecksum(path string) (string, error)
	GetArticle(path string) (*ArticleRow, error)
	ListArticles(f ListFilter) ([]ArticleRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	ArticlesUsingMedia(url string) ([]string, error)
	ArticlesInCategories(ids []string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// CategoryStore persists the category tree.
type CategoryStore interface {
	ListCategories() ([]category.Record, error)
	ReplaceCategories(records []category.Record) error
}

var (
	_ ArticleIndex  = (*DB)(nil)
	_ CategoryStore = (*DB)(nil)
)
