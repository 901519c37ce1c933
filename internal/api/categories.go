package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/categoryservice"
)

// CategoryHandler holds category route handlers.
type CategoryHandler struct {
	svc *categoryservice.Service
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(svc *categoryservice.Service) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// Forest handles GET /api/categories and returns the nested tree.
func (h *CategoryHandler) Forest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.svc.Forest(r.Context())})
}

// Flat handles GET /api/categories/flat and returns every category in
// pre-order with its ancestor path.
func (h *CategoryHandler) Flat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": h.svc.Flatten(r.Context())})
}

// Get handles GET /api/categories/{id}.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get category", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Create handles POST /api/categories.
//
//	@Summary		Create a category
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCategoryRequest	true	"Category to create"
//	@Success		201		{object}	category.Node
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories [post]
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Create(r.Context(), req.ParentID, req.Name)
	if err != nil {
		writeError(w, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// Update handles PUT /api/categories/{id}.
//
//	@Summary		Rename and/or re-parent a category
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Category id"
//	@Param			body	body		UpdateCategoryRequest	true	"Fields to change"
//	@Success		200		{object}	category.Node
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/categories/{id} [put]
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.ParentID)
	if err != nil {
		writeError(w, "update category", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Delete handles DELETE /api/categories/{id}. Categories with children need
// ?confirm=true.
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	res, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), confirm)
	if err != nil {
		writeError(w, "delete category", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidParents handles GET /api/categories/{id}/parents.
func (h *CategoryHandler) ValidParents(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ValidParents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "valid parents", err)
		return
	}
	writeJSON(w, http.StatusOK, IDsResponse{IDs: ids})
}

// Descendants handles GET /api/categories/{id}/descendants.
func (h *CategoryHandler) Descendants(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Descendants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "descendants", err)
		return
	}
	writeJSON(w, http.StatusOK, IDsResponse{IDs: ids})
}
