package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"edgeroute/api/health"
	"edgeroute/api/hub"
	"edgeroute/api/model"
	"edgeroute/api/saga"
)

type nodeView struct {
	model.ResolverNode
	Status             model.NodeStatus `json:"status"`
	LastSeenMinutesAgo *int             `json:"lastSeenMinutesAgo,omitempty"`
}

func viewOf(n model.ResolverNode, now time.Time) nodeView {
	st := health.Evaluate(n, now)
	return nodeView{ResolverNode: n, Status: st.State, LastSeenMinutesAgo: st.LastSeenMinutesAgo}
}

type createNodeRequest struct {
	Name                       string `json:"name"`
	TenantID                   string `json:"tenantId"`
	InactivityThresholdSeconds int    `json:"inactivityThresholdSeconds"`
	PollingIntervalSeconds     int    `json:"pollingIntervalSeconds"`
}

type createNodeResponse struct {
	Node            nodeView `json:"node"`
	NodeKey         string   `json:"nodeKey"`
	ConnectionToken string   `json:"connectionToken"`
	ConnectURL      string   `json:"connectUrl"`
}

func newSecret() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 64 {
		writeError(w, http.StatusBadRequest, "name is required (max 64 characters)")
		return
	}
	if req.InactivityThresholdSeconds < 0 || req.PollingIntervalSeconds < 0 {
		writeError(w, http.StatusBadRequest, "intervals must not be negative")
		return
	}
	if req.InactivityThresholdSeconds == 0 {
		req.InactivityThresholdSeconds = model.DefaultInactivityThreshold
	}
	if req.PollingIntervalSeconds == 0 {
		req.PollingIntervalSeconds = model.DefaultPollingInterval
	}

	n := &model.ResolverNode{
		ID:                         uuid.New().String(),
		Name:                       req.Name,
		TenantID:                   req.TenantID,
		Key:                        newSecret(),
		ConnectionToken:            newSecret(),
		InactivityThresholdSeconds: req.InactivityThresholdSeconds,
		PollingIntervalSeconds:     req.PollingIntervalSeconds,
		CreatedAt:                  time.Now().UTC(),
	}
	if err := h.db.InsertNode(r.Context(), n); err != nil {
		writeErr(w, err)
		return
	}

	sg := saga.New(h.sagaStore, n.ID, "api")
	sg.Log(r.Context(), "node.created", fmt.Sprintf("node %s created", n.Name), map[string]string{"tenant": n.TenantID})
	h.ws.Broadcast(hub.Event{Type: "node.created", Subject: n.ID, Time: n.CreatedAt})

	writeJSONStatus(w, http.StatusCreated, createNodeResponse{
		Node:            viewOf(*n, time.Now()),
		NodeKey:         n.Key,
		ConnectionToken: n.ConnectionToken,
		ConnectURL:      "/api/connect/" + n.ConnectionToken,
	})
}

func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.db.ListNodes(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	tenant := r.URL.Query().Get("tenant")
	now := time.Now()
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		if tenant != "" && n.TenantID != tenant {
			continue
		}
		out = append(out, viewOf(n, now))
	}
	writeJSON(w, out)
}

func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.db.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, viewOf(*n, time.Now()))
}

// DeleteNode removes the node's assignments from its tenant's domains before
// deleting the node itself.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	n, err := h.db.GetNode(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}

	sg := saga.New(h.sagaStore, id, "api")
	removed, err := h.assigner.RemoveNode(ctx, id, n.TenantID)
	if err != nil {
		sg.StepFailed(ctx, "unassign", err)
		writeErr(w, err)
		return
	}
	if err := h.db.DeleteNode(ctx, id); err != nil {
		sg.StepFailed(ctx, "delete", err)
		writeErr(w, err)
		return
	}
	sg.Log(ctx, "node.deleted", fmt.Sprintf("node %s deleted, %d assignment(s) removed", n.Name, removed), nil)
	h.ws.Broadcast(hub.Event{Type: "node.deleted", Subject: id, Time: time.Now().UTC(), Payload: map[string]int{"removed": removed}})

	writeJSON(w, map[string]interface{}{"status": "deleted", "removedAssignments": removed})
}

// AssignNode re-runs auto-assignment for a node with its stored location.
func (h *Handler) AssignNode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	n, err := h.db.GetNode(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}

	sg := saga.New(h.sagaStore, id, "api")
	res, err := h.assigner.AutoAssign(ctx, *n)
	if err != nil {
		sg.StepFailed(ctx, "assign", err)
		writeErr(w, err)
		return
	}
	h.logAssignment(r, sg, n.ID, res.Locations, res.AssignedCount, res.Message)
	writeJSON(w, res)
}

func (h *Handler) logAssignment(r *http.Request, sg *saga.Saga, nodeID string, locs []string, assigned int, msg string) {
	sg.Log(r.Context(), "node.assigned", msg, map[string]string{
		"locations": strings.Join(locs, ","),
		"assigned":  fmt.Sprint(assigned),
	})
	if assigned > 0 {
		h.ws.Broadcast(hub.Event{Type: "assignment.added", Subject: nodeID, Time: time.Now().UTC(), Payload: map[string]interface{}{
			"locations": locs,
			"assigned":  assigned,
		}})
	}
}
