package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/observability"
	enginepkg "github.com/fintrack/fintrack-go/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewAgentRouter exposes the sync agent's local API. It speaks plain REST
// rather than the remote store's action dispatch: the agent is the piece
// local tooling talks to, and every write goes through the reconciliation
// engine so it works with or without connectivity.
func NewAgentRouter(engine *enginepkg.Engine, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/transactions", func(w http.ResponseWriter, req *http.Request) {
			list, err := engine.Load(req.Context())
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, list)
		})

		r.Post("/transactions", func(w http.ResponseWriter, req *http.Request) {
			var tx domain.Transaction
			if err := json.NewDecoder(req.Body).Decode(&tx); err != nil {
				writeError(w, http.StatusBadRequest, "invalid payload")
				return
			}
			created, err := engine.Create(req.Context(), tx)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		})

		r.Put("/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
			var patch domain.Patch
			if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
				writeError(w, http.StatusBadRequest, "invalid payload")
				return
			}
			updated, err := engine.Update(req.Context(), chi.URLParam(req, "id"), patch)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		})

		r.Delete("/transactions/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := engine.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
				handleServiceError(w, err, logger)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
			if err := engine.Synchronize(req.Context()); err != nil {
				// The cycle retries on the next tick; report the failure
				// without pretending the view is reconciled.
				writeJSON(w, http.StatusBadGateway, map[string]any{
					"synced": false,
					"error":  err.Error(),
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"synced": true})
		})

		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"engine": engine.Status(req.Context()),
				"stats":  metrics.GetSyncStats(),
			})
		})
	})

	return r
}
