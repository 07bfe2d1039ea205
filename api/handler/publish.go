package handler

import (
	"net/http"
)

// PublishJob is the scheduler name of the distribution run.
const PublishJob = "publish"

// Publish runs the publish job immediately and waits for it to finish.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
		return
	}
	if err := h.scheduler.Trigger(PublishJob); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "published"})
}

func (h *Handler) PublishStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not initialized")
		return
	}
	writeJSON(w, h.scheduler.States())
}
