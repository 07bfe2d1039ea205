package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"edgeroute/api/saga"
)

func (h *Handler) GetSagaEvents(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	events, err := h.sagaStore.ListBySaga(r.Context(), sagaID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "saga not found")
		return
	}
	writeJSON(w, events)
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)

	var (
		events []saga.Event
		err    error
	)
	if node := r.URL.Query().Get("node"); node != "" {
		events, err = h.sagaStore.ListByNode(r.Context(), node, limit)
	} else {
		events, err = h.sagaStore.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []saga.Event{}
	}
	writeJSON(w, events)
}
