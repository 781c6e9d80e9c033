package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Qdrant    string `json:"qdrant"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The storage layer implements this via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// SessionCounter reports live sessions. *session.Manager implements it.
type SessionCounter interface {
	Count() int
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// The index lives in memory, so the server is healthy whenever it answers;
// a configured mirror that cannot be reached makes it unhealthy.
// mirror may be nil.
func NewHealthHandler(sessions SessionCounter, mirror HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "healthy",
			Sessions:  sessions.Count(),
			Qdrant:    "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		if mirror != nil {
			// Create context with 3-second timeout for health check
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()

			if err := mirror.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Qdrant = "disconnected"
				code = http.StatusServiceUnavailable // 503
			} else {
				response.Qdrant = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
