package server

import (
	"log/slog"
	"net/http"
	"regexp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// UAFilter rejects requests whose User-Agent matches; nil disables
	// the filter.
	UAFilter *regexp.Regexp
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /{$}", h.CreateSession)
	mux.HandleFunc("PATCH /{$}", h.SubmitChunk)
	mux.HandleFunc("GET /{id}", h.ListSession)
	mux.HandleFunc("GET /{id}/{file}", h.DownloadFile)
	mux.HandleFunc("DELETE /{id}", h.DeleteSession)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		UserAgentFilterMiddleware(cfg.UAFilter, logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
