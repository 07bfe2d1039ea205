package handler

import (
	"context"
	"net/http"
	"time"

	"edgeroute/api/distribute"
)

type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // up, down, unknown
	Details string `json:"details,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := []ServiceHealth{h.checkStore(ctx)}
	for _, p := range h.dist.Publishers {
		services = append(services, checkPublisher(ctx, p))
	}

	status := "healthy"
	code := http.StatusOK
	if services[0].Status == "down" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

func (h *Handler) checkStore(ctx context.Context) ServiceHealth {
	name := h.cfg.Store
	if err := h.db.Healthy(ctx); err != nil {
		return ServiceHealth{Name: name, Status: "down", Details: err.Error()}
	}
	return ServiceHealth{Name: name, Status: "up"}
}

func checkPublisher(ctx context.Context, p distribute.Publisher) ServiceHealth {
	var err error
	switch c := p.(type) {
	case interface{ Healthy(context.Context) error }:
		err = c.Healthy(ctx)
	case interface{ Healthy() error }:
		err = c.Healthy()
	default:
		return ServiceHealth{Name: p.Name(), Status: "unknown"}
	}
	if err != nil {
		return ServiceHealth{Name: p.Name(), Status: "down", Details: err.Error()}
	}
	return ServiceHealth{Name: p.Name(), Status: "up"}
}

// Reconcile runs a health pass over every node now instead of waiting for
// the next poll or tick.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.monitor.Reconcile(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, rep)
}
