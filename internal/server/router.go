// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/avila-roffe/agents-catalog/internal/catalog"
	"github.com/avila-roffe/agents-catalog/internal/server/handlers"
	"github.com/avila-roffe/agents-catalog/internal/server/ratelimit"
	"github.com/avila-roffe/agents-catalog/internal/server/reqctx"
	"github.com/maruel/ksid"
)

// NewRouter creates and configures the HTTP router. limiter, when non-nil,
// throttles every /api/v1 endpoint per client IP; /api/health stays open
// for probes.
func NewRouter(query *catalog.QueryService, mutations *catalog.MutationService, version string, limiter *ratelimit.Limiter) http.Handler {
	mux := &http.ServeMux{}
	ch := handlers.NewCatalogHandler(query, mutations)
	th := handlers.NewToolsHandler()
	hh := handlers.NewHealthHandler(version)

	mux.Handle("GET /api/health", Wrap(hh.Health, nil))
	mux.Handle("GET /api/v1/tools", Wrap(th.ListTools, limiter))
	mux.Handle("GET /api/v1/categories", Wrap(ch.ListCategories, limiter))
	mux.Handle("GET /api/v1/agents", Wrap(ch.ListAgents, limiter))
	mux.Handle("POST /api/v1/agents", Wrap(ch.CreateAgent, limiter))
	mux.Handle("POST /api/v1/agents/query", Wrap(ch.QueryAgents, limiter))
	mux.Handle("GET /api/v1/agents/{path...}", Wrap(ch.GetAgent, limiter))
	mux.Handle("PATCH /api/v1/agents/{path...}", Wrap(ch.UpdateAgent, limiter))
	mux.Handle("DELETE /api/v1/agents/{path...}", Wrap(ch.DeleteAgent, limiter))

	return withRequestID(mux)
}

// withRequestID assigns every request a sortable unique ID, exposed as
// X-Request-Id and available to handlers through the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ksid.NewID()
		w.Header().Set("X-Request-Id", id.String())
		next.ServeHTTP(w, r.WithContext(reqctx.WithRequestID(r.Context(), id)))
	})
}
