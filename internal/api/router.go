package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kvault/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted. Every route,
// including events when non-nil, sits behind IdentityMiddleware.
func NewRouter(svc *vault.Service, auth AuthOptions, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(IdentityMiddleware(auth))

	r.Route("/vault", func(r chi.Router) {
		r.Post("/initialize", h.Initialize)

		r.Get("/items", h.ListItems)
		r.Post("/items", h.CreateItem)
		r.Get("/items/{id}", h.GetItem)
		r.Put("/items/{id}", h.UpdateItem)
		r.Delete("/items/{id}", h.DeleteItem)

		r.Post("/items/{id}/links", h.CreateLink)
		r.Get("/items/{id}/links", h.ListLinks)
		r.Delete("/links/{id}", h.DeleteLink)

		r.Get("/search", h.Search)
		r.Get("/stats", h.Stats)
		r.Post("/migrate", h.Migrate)
	})

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
