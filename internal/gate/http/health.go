package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/llmgate/internal/gate/store"
	"github.com/aussiebroadwan/llmgate/pkg/gatesdk"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
)

// LivezHandler always answers 200 while the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, gatesdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler answers 200 only when the registry is reachable.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &gatesdk.HealthChecks{Database: "ok"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, gatesdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
