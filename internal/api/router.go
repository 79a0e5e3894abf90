// Package api assembles the HTTP surface: routes, middleware stack, and the
// handler wiring.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/docpipe/docpipe/internal/api/middleware"
	"github.com/docpipe/docpipe/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitHandler http.HandlerFunc
	ListHandler   http.HandlerFunc
	StatusHandler http.HandlerFunc
	ResultHandler http.HandlerFunc
	CancelHandler http.HandlerFunc
	DeleteHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api/v1/documents", func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/", orNotImplemented(deps.SubmitHandler))
		r.Get("/", orNotImplemented(deps.ListHandler))

		r.Get("/{jobID}", orNotImplemented(deps.StatusHandler))
		r.Get("/{jobID}/result", orNotImplemented(deps.ResultHandler))
		r.Post("/{jobID}/cancel", orNotImplemented(deps.CancelHandler))
		r.Delete("/{jobID}", orNotImplemented(deps.DeleteHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
