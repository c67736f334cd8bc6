package server

import (
	"log/slog"
	"net/http"
)

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /v1/generations/text", h.GenerateText)
	mux.HandleFunc("POST /v1/generations/image", h.GenerateImage)
	mux.HandleFunc("POST /v1/generations/image/batch", h.GenerateImageBatch)
	mux.HandleFunc("POST /v1/generations/video", h.GenerateVideo)
	mux.HandleFunc("GET /v1/providers", h.ListProviders)
	mux.HandleFunc("POST /v1/providers", h.PutProvider)
	mux.HandleFunc("POST /v1/providers/{id}/enable", h.EnableProvider)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)

	return chain(mux)
}
