package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arkilian/eventhash/internal/discard"
	"github.com/arkilian/eventhash/internal/event"
	"github.com/arkilian/eventhash/internal/observability"
	"github.com/arkilian/eventhash/internal/server"
	"github.com/arkilian/eventhash/internal/tombstone"
)

// Pipeline is the subset of the discard service exposed over HTTP.
type Pipeline interface {
	ComputeHashes(data event.Data) ([]string, error)
	MatchesDiscard(ctx context.Context, data event.Data, projectID int64) (tombstone.Match, error)
	RegisterTombstone(ctx context.Context, projectID int64, eventID string, tombstoneID int64) (tombstone.Registration, error)
	Ingest(ctx context.Context, projectID int64, raw []byte) (discard.IngestResult, error)
	Stats() *observability.PipelineStats
}

// Handler serves the pipeline endpoints.
type Handler struct {
	pipeline     Pipeline
	maxBodyBytes int64
	metrics      http.Handler
}

// NewHandler creates a handler. Request bodies above maxBodyBytes are
// rejected.
func NewHandler(pipeline Pipeline, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &Handler{pipeline: pipeline, maxBodyBytes: maxBodyBytes}
}

// WithMetrics serves m at GET /metrics.
func (h *Handler) WithMetrics(m http.Handler) *Handler {
	h.metrics = m
	return h
}

// NewRouter registers the routes and the middleware stack. sm may be nil,
// in which case in-flight requests are not tracked.
func NewRouter(h *Handler, sm *server.ShutdownManager) http.Handler {
	r := chi.NewRouter()
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(CorrelationIDMiddleware)
	r.Use(ContentTypeMiddleware)
	if sm != nil {
		r.Use(server.ShutdownMiddleware(sm))
	}

	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/hashes", h.computeHashes)
		r.Get("/stats", h.stats)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Post("/events", h.ingest)
			r.Post("/discard", h.matchDiscard)
			r.Post("/tombstones", h.registerTombstone)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", GetRequestID(r.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", GetRequestID(r.Context()))
	})
	return r
}
