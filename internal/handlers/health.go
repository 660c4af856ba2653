package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health reports service liveness and database connectivity.
type Health struct {
	db  Pinger
	log *zap.Logger
	now func() time.Time
}

// NewHealth creates a health handler.
func NewHealth(db Pinger, log *zap.Logger) *Health {
	return &Health{db: db, log: log, now: time.Now}
}

// Check answers 200 when the database responds and 503 otherwise.
func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, database, code := "ok", "connected", http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		h.log.Warn("health check: database unreachable", zap.Error(err))
		status, database, code = "degraded", "unreachable", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status":    status,
		"database":  database,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
