package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/vcq/internal/contactservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// onRefresh, if non-nil, is called with every directory refreshed through
// POST /refresh.
func NewRouter(svc *contactservice.Service, authEnabled bool, token string, sseHandler http.Handler, onRefresh RefreshHook) chi.Router {
	h := NewHandler(svc, onRefresh)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/contacts", h.QueryContacts)
	r.Get("/directories", h.ListDirectories)
	r.Post("/refresh", h.Refresh)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
