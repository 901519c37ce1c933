package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/articleservice"
	"github.com/starford/folio/internal/checksum"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/workflow"
)

// Handler holds article route handlers.
type Handler struct {
	svc *articleservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *articleservice.Service) *Handler {
	return &Handler{svc: svc}
}

// articlePath extracts the article path from the wildcard segment.
// Supports encoded slashes from OpenAPI clients (e.g. guides%2Fchannels.html).
func articlePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := articlePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return p, true
}

func writeArticle(w http.ResponseWriter, status int, d *articleservice.Detail) {
	w.Header().Set("ETag", checksum.ETag(d.Checksum))
	writeJSON(w, status, d)
}

// ListArticles handles GET /api/articles.
//
//	@Summary		List articles with optional pagination and filtering
//	@Tags			articles
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			status		query		string	false	"Filter by review status"
//	@Param			category	query		string	false	"Filter by category id"
//	@Param			sort		query		string	false	"Sort field"	Enums(updated_at, title, path, status)
//	@Success		200			{object}	ArticleListResponse
//	@Security		BearerAuth
//	@Router			/articles [get]
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.List(r.Context(), index.ListFilter{
		Limit:    limit,
		Offset:   offset,
		Tag:      q.Get("tag"),
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list articles", err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleListResponse{Articles: items, Total: total})
}

// GetArticle handles GET /api/articles/*.
//
//	@Summary		Get a single article by path
//	@Tags			articles
//	@Produce		json
//	@Param			path	path		string	true	"Article path"
//	@Success		200		{object}	ArticleDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{path} [get]
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Get(r.Context(), path)
	if err != nil {
		writeError(w, "get article", err)
		return
	}
	writeArticle(w, http.StatusOK, d)
}

// CreateArticle handles POST /api/articles.
//
//	@Summary		Create a new draft article
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateArticleRequest	true	"Article to create"
//	@Success		201		{object}	ArticleDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles [post]
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var req CreateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Create(r.Context(), articleservice.CreateInput{
		Path:     req.Path,
		Title:    req.Title,
		Category: req.Category,
		Tags:     req.Tags,
		Summary:  req.Summary,
		Blocks:   req.Blocks,
		HTML:     req.HTML,
	})
	if err != nil {
		writeError(w, "create article", err)
		return
	}
	writeArticle(w, http.StatusCreated, d)
}

// UpdateArticle handles PUT /api/articles/*.
//
//	@Summary		Update article metadata and blocks with optimistic concurrency
//	@Tags			articles
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string					true	"Article path"
//	@Param			If-Match	header		string					false	"Checksum from a previous read"
//	@Param			body		body		UpdateArticleRequest	true	"Fields to change"
//	@Success		200			{object}	ArticleDetail
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{path} [put]
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req UpdateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Update(r.Context(), path, articleservice.UpdateInput{
		Title:    req.Title,
		Category: req.Category,
		Tags:     req.Tags,
		Summary:  req.Summary,
		Blocks:   req.Blocks,
	}, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "update article", err)
		return
	}
	writeArticle(w, http.StatusOK, d)
}

// DeleteArticle handles DELETE /api/articles/*.
//
//	@Summary		Delete an article
//	@Tags			articles
//	@Param			path	path	string	true	"Article path"
//	@Success		204		"Article deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/articles/{path} [delete]
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), path); err != nil {
		writeError(w, "delete article", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveArticle handles POST /api/move.
func (h *Handler) MoveArticle(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "move article", err)
		return
	}
	writeArticle(w, http.StatusOK, d)
}

// GetBlocks handles GET /api/blocks/*.
func (h *Handler) GetBlocks(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	blocks, sum, err := h.svc.GetBlocks(r.Context(), path)
	if err != nil {
		writeError(w, "get blocks", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(sum))
	writeJSON(w, http.StatusOK, BlocksResponse{Path: path, Checksum: sum, Blocks: blocks})
}

// PutBlocks handles PUT /api/blocks/*.
func (h *Handler) PutBlocks(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req BlocksRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.ReplaceBlocks(r.Context(), path, req.Blocks, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "replace blocks", err)
		return
	}
	writeArticle(w, http.StatusOK, d)
}

// Workflow handles GET /api/workflow.
func (h *Handler) Workflow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, WorkflowResponse{
		Statuses:    workflow.Steps(),
		Transitions: workflow.Transitions(),
	})
}

// Review handles POST /api/review/*.
//
//	@Summary		Apply a review action
//	@Tags			review
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Article path"
//	@Param			body	body		ReviewRequest	true	"Action"
//	@Success		200		{object}	ArticleDetail
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/review/{path} [post]
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("action is required"))
		return
	}
	d, err := h.svc.Transition(r.Context(), path, req.Action, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "review", err)
		return
	}
	writeArticle(w, http.StatusOK, d)
}

// Import handles POST /api/import.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.svc.Import(r.Context(), req.Path, req.HTML)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeArticle(w, http.StatusCreated, d)
}

// Export handles GET /api/export/* and returns the article as Markdown.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	md, err := h.svc.ExportMarkdown(r.Context(), path)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across articles
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// MediaUsage handles GET /api/media/usage.
func (h *Handler) MediaUsage(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	paths, err := h.svc.MediaUsage(r.Context(), u)
	if err != nil {
		writeError(w, "media usage", err)
		return
	}
	writeJSON(w, http.StatusOK, MediaUsageResponse{URL: u, Articles: paths})
}
