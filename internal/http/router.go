package http

import (
	"net/http"
)

// RouterConfig assembles the HTTP surface.
type RouterConfig struct {
	Handler *Handler
	// Metrics, when set, is mounted at /metrics outside the middleware chain.
	Metrics    http.Handler
	Middleware []Middleware
}

// NewRouter mounts the API routes, the health probe and the optional metrics
// endpoint. Middleware wraps the API routes only.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	if cfg.Handler != nil {
		cfg.Handler.Register(mux)
	}

	api := Chain(mux, cfg.Middleware...)

	root := http.NewServeMux()
	root.Handle("/api/v1/", api)
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		root.Handle("GET /metrics", cfg.Metrics)
	}
	return root
}
