package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Index     string `json:"index"`
	Chunks    int    `json:"chunks"`
	Timestamp string `json:"timestamp"`
}

// Index is the live index as seen by health checks.
type Index interface {
	Health(ctx context.Context) error
	Len() int
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It answers 503 until an index is loaded.
func NewHealthHandler(index Index, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Version:   version,
			Timestamp: now(),
		}

		if err := index.Health(ctx); err != nil {
			response.Status = "unhealthy"
			response.Index = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		response.Status = "healthy"
		response.Index = "loaded"
		response.Chunks = index.Len()
		writeJSON(w, http.StatusOK, response)
	}
}
