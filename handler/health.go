package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/easytransac/easytransac-bridge/infra/response"
)

// HealthHandler reports service liveness and its dependencies.
type HealthHandler struct {
	db               *sql.DB
	openSearchActive bool
	startTime        time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sql.DB, openSearchActive bool) *HealthHandler {
	return &HealthHandler{
		db:               db,
		openSearchActive: openSearchActive,
		startTime:        time.Now(),
	}
}

// DatabaseHealth is the database section of a health report.
type DatabaseHealth struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// CheckHealth handles GET /health.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	db := h.checkDatabase(ctx)

	status := "healthy"
	statusCode := http.StatusOK
	if !db.Connected {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	_ = response.WriteJSON(w, statusCode, response.Response{
		Success: db.Connected,
		Message: "Service is " + status,
		Data: map[string]any{
			"status":             status,
			"version":            "1.0.0",
			"timestamp":          time.Now().UTC(),
			"uptime":             time.Since(h.startTime).String(),
			"database":           db,
			"opensearch_enabled": h.openSearchActive,
		},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) *DatabaseHealth {
	health := &DatabaseHealth{Status: "unknown"}
	if h.db == nil {
		health.Status = "unavailable"
		health.Error = "database not configured"
		return health
	}

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}

	health.Status = "healthy"
	health.Connected = true
	health.ResponseTime = time.Since(start).String()
	return health
}
