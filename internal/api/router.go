package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/articleservice"
	"github.com/starford/folio/internal/assets"
	"github.com/starford/folio/internal/categoryservice"
)

// Deps are the collaborators the API is built from.
type Deps struct {
	Articles   *articleservice.Service
	Categories *categoryservice.Service
	Assets     *assets.Store
	// Auth verifies bearer tokens; nil disables authentication.
	Auth Verifier
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Articles)
	ch := NewCategoryHandler(d.Categories)
	ah := NewAssetHandler(d.Assets)

	r := chi.NewRouter()

	// Stored media is embedded in published pages, so it is public.
	r.Get("/assets/{filename}", ah.ServeFile)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Auth))

		// Articles.
		r.Get("/articles", h.ListArticles)
		r.Post("/articles", h.CreateArticle)
		r.Get("/articles/*", h.GetArticle)
		r.Put("/articles/*", h.UpdateArticle)
		r.Delete("/articles/*", h.DeleteArticle)
		r.Post("/move", h.MoveArticle)

		// Block-level access.
		r.Get("/blocks/*", h.GetBlocks)
		r.Put("/blocks/*", h.PutBlocks)

		// Review workflow.
		r.Get("/workflow", h.Workflow)
		r.Post("/review/*", h.Review)

		// Import / export.
		r.Post("/import", h.Import)
		r.Get("/export/*", h.Export)

		// Search and media.
		r.Get("/search", h.Search)
		r.Get("/media/usage", h.MediaUsage)

		// Categories.
		r.Get("/categories", ch.Forest)
		r.Post("/categories", ch.Create)
		r.Get("/categories/flat", ch.Flat)
		r.Get("/categories/{id}", ch.Get)
		r.Put("/categories/{id}", ch.Update)
		r.Delete("/categories/{id}", ch.Delete)
		r.Get("/categories/{id}/parents", ch.ValidParents)
		r.Get("/categories/{id}/descendants", ch.Descendants)

		// Asset upload.
		r.Post("/assets", ah.Upload)

		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}
	})

	return r
}
