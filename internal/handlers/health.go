package handlers

import (
	"context"
	"net/http"
	"time"

	"sonaged-backend/pkg/utils"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthStats exposes in-process counters on the health endpoint.
type HealthStats interface {
	Sessions() int
	Conversations() int
}

// Health reports database reachability and conversation load
func Health(db Pinger, stats HealthStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]interface{}{"status": "ok", "database": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if stats != nil {
			body["sessions"] = stats.Sessions()
			body["active_conversations"] = stats.Conversations()
		}
		utils.JSON(w, status, body)
	}
}

// Liveness answers as long as the process serves HTTP
func Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}
