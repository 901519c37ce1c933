package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/assets"
)

// AssetHandler serves and accepts media files.
type AssetHandler struct {
	store *assets.Store
}

// NewAssetHandler creates a handler over store.
func NewAssetHandler(store *assets.Store) *AssetHandler {
	return &AssetHandler{store: store}
}

// ServeFile handles GET /api/assets/{filename}.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.store.Path(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, "serve asset", err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
// The response carries the block and HTML snippet that embed the file.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, assets.MaxSize+1<<20)

	if err := r.ParseMultipartForm(assets.MaxSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, assets.MaxSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	a, err := h.store.Save(header.Filename, data)
	if err != nil {
		writeError(w, "upload asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
