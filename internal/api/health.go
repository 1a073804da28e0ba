package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"store": s.d.Store.Type()}
	status := "ok"
	httpStatus := http.StatusOK

	if _, err := s.d.Registry.Stats(ctx); err != nil {
		checks["registry"] = err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["registry"] = "ok"
	}

	WriteJSON(w, httpStatus, healthResponse{
		Status:        status,
		Version:       s.d.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Checks:        checks,
	})
}
