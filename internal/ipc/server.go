package ipc

import (
	"context"
	"net/http"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Project endpoints.
	mux.HandleFunc("GET /api/v1/projects", h.ListProjects)
	mux.HandleFunc("GET /api/v1/project/{name}", h.GetProject)
	mux.HandleFunc("GET /api/v1/project/{name}/constraints", h.ListConstraints)
	mux.HandleFunc("GET /api/v1/project/{name}/runs", h.ListRuns)

	// Run control endpoints.
	mux.HandleFunc("POST /api/v1/project/{name}/run", h.SubmitRun)
	mux.HandleFunc("POST /api/v1/project/{name}/cancel", h.CancelRun)
	mux.HandleFunc("GET /api/v1/active", h.ActiveRuns)

	// Run inspection endpoints.
	mux.HandleFunc("GET /api/v1/run/{runID}", h.GetRun)
	mux.HandleFunc("GET /api/v1/run/{runID}/events", h.ListRunEvents)
	mux.HandleFunc("GET /api/v1/run/{runID}/events/stream", h.StreamRunEvents)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers so local mapping tools can call the
// API from their own origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
