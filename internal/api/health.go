package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"tradejournal/internal/db"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	database *db.DB
	redis    redis.UniversalClient
}

func NewHealthHandler(database *db.DB, redisClient redis.UniversalClient) *HealthHandler {
	return &HealthHandler{database: database, redis: redisClient}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{
		"database": "ok",
		"redis":    "disabled",
	}

	if err := h.database.PingContext(ctx); err != nil {
		checks["database"] = "error"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error"
			status = http.StatusServiceUnavailable
		}
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"success":   status == http.StatusOK,
		"status":    result,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
