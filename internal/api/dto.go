package api

import (
	"github.com/starford/folio/internal/articleservice"
	"github.com/starford/folio/internal/content"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/workflow"
)

// CreateArticleRequest is the request body for creating an article.
// Blocks win over HTML when both are present.
type CreateArticleRequest struct {
	Path     string          `json:"path" example:"guides/channels" validate:"required"`
	Title    string          `json:"title" example:"Channels"`
	Category string          `json:"category"`
	Tags     []string        `json:"tags"`
	Summary  string          `json:"summary"`
	Blocks   []content.Block `json:"blocks"`
	HTML     string          `json:"html"`
}

// UpdateArticleRequest changes metadata and/or blocks. Absent fields are kept.
type UpdateArticleRequest struct {
	Title    *string          `json:"title"`
	Category *string          `json:"category"`
	Tags     *[]string        `json:"tags"`
	Summary  *string          `json:"summary"`
	Blocks   *[]content.Block `json:"blocks"`
}

// BlocksRequest replaces an article body.
type BlocksRequest struct {
	Blocks []content.Block `json:"blocks" validate:"required"`
}

// BlocksResponse is the body of GET /blocks/*.
type BlocksResponse struct {
	Path     string          `json:"path"`
	Checksum string          `json:"checksum"`
	Blocks   []content.Block `json:"blocks"`
}

// ReviewRequest applies a review action.
type ReviewRequest struct {
	Action workflow.Action `json:"action" example:"submit" validate:"required"`
}

// ImportRequest stores foreign HTML as a new article.
type ImportRequest struct {
	Path string `json:"path" validate:"required"`
	HTML string `json:"html" validate:"required"`
}

// MoveRequest renames an article.
type MoveRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// ArticleDetail is the full article response type (aliased from the domain layer).
type ArticleDetail = articleservice.Detail

// ArticleListResponse wraps paginated article listings.
type ArticleListResponse struct {
	Articles []articleservice.ListItem `json:"articles" validate:"required"`
	Total    int                       `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// MediaUsageResponse lists the articles that embed a URL.
type MediaUsageResponse struct {
	URL      string   `json:"url"`
	Articles []string `json:"articles"`
}

// WorkflowResponse describes the review progression.
type WorkflowResponse struct {
	Statuses    []workflow.Status `json:"statuses"`
	Transitions []workflow.Step   `json:"transitions"`
}

// CreateCategoryRequest adds a category. An empty parentId creates a root.
type CreateCategoryRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name" validate:"required"`
}

// UpdateCategoryRequest renames and/or re-parents a category. A parentId of
// "" moves the category to the top level.
type UpdateCategoryRequest struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parentId"`
}

// IDsResponse is a list of category ids.
type IDsResponse struct {
	IDs []string `json:"ids"`
}
