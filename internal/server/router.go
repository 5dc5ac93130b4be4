package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groundline/groundline/internal/api"
	"github.com/groundline/groundline/internal/api/handlers"
	"github.com/groundline/groundline/internal/api/middleware"
)

type RouterConfig struct {
	AnswerHandler *handlers.AnswerHandler
	IngestHandler *handlers.IngestHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/answer", cfg.AnswerHandler.Answer)
	r.Post("/search", cfg.AnswerHandler.Search)

	r.Post("/chunks", cfg.IngestHandler.UpsertChunks)
	r.Post("/documents/{id}/stale", cfg.IngestHandler.MarkStale)

	return r
}
