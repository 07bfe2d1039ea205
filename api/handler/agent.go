package handler

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"

	"edgeroute/api/assign"
	"edgeroute/api/distribute"
	"edgeroute/api/geoip"
	"edgeroute/api/hub"
	"edgeroute/api/model"
	"edgeroute/api/saga"
)

var (
	directTotal     = metrics.NewCounter(`edgeroute_decisions_total{kind="direct"}`)
	fallbackTotal   = metrics.NewCounter(`edgeroute_decisions_total{kind="fallback"}`)
	lastResortTotal = metrics.NewCounter(`edgeroute_decisions_total{kind="last_resort"}`)
	uncoveredTotal  = metrics.NewCounter(`edgeroute_decisions_total{kind="uncovered"}`)
)

type connectConfig struct {
	NodeID          string `json:"nodeId"`
	NodeKey         string `json:"nodeKey"`
	PollingInterval int    `json:"pollingInterval"`
	PollEndpoint    string `json:"pollEndpoint"`
}

type connectResponse struct {
	Message        string         `json:"message"`
	SagaID         string         `json:"sagaId"`
	Config         connectConfig  `json:"config"`
	Geo            *model.GeoInfo `json:"geo"`
	AutoAssignment assign.Result  `json:"autoAssignment"`
}

// Connect consumes a node's one-time connection token. The caller's address
// becomes the node's address and the node is assigned to the locations it
// geolocates to.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "invalid token")
		return
	}

	n, err := h.db.GetNodeByToken(ctx, token)
	if err != nil {
		writeErr(w, err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "invalid or expired connection token")
		return
	}
	if n.Connected {
		writeError(w, http.StatusConflict, "this connection token has already been used")
		return
	}

	sg := saga.New(h.sagaStore, n.ID, "connect")
	ip := geoip.ClientIP(r)
	sg.Log(ctx, "node.connect", fmt.Sprintf("node %s connecting from %s", n.Name, ip), map[string]string{"ip": ip})

	start := time.Now()
	sg.StepStart(ctx, "geolocate")
	g := h.geo.Lookup(ip)
	sg.StepComplete(ctx, "geolocate", time.Since(start))

	now := time.Now().UTC()
	if err := h.db.MarkConnected(ctx, n.ID, now); err != nil {
		sg.StepFailed(ctx, "connect", err)
		writeErr(w, err)
		return
	}
	if err := h.db.UpdateNodeGeo(ctx, n.ID, ip, g, model.MaxGeoHistory); err != nil {
		sg.StepFailed(ctx, "connect", err)
		writeErr(w, err)
		return
	}
	n.Connected, n.Active = true, true
	n.IPAddress, n.Geo = ip, g
	slog.Info("handler: node connected", "node", n.Name, "ip", ip, "country", g.CountryCode)

	// The token is spent at this point, so an assignment failure is reported
	// in the saga and the response rather than failing the connect.
	start = time.Now()
	sg.StepStart(ctx, "assign")
	res, err := h.assigner.AutoAssign(ctx, *n)
	if err != nil {
		sg.StepFailed(ctx, "assign", err)
		slog.Error("handler: auto-assign after connect", "node", n.ID, "err", err)
		res.Message = "auto-assignment incomplete: " + err.Error()
	} else {
		sg.StepComplete(ctx, "assign", time.Since(start))
	}
	h.logAssignment(r, sg, n.ID, res.Locations, res.AssignedCount, res.Message)

	h.ws.Broadcast(hub.Event{Type: "node.connected", Subject: n.ID, Time: now, Payload: map[string]string{
		"ip":      ip,
		"country": g.CountryCode,
		"sagaId":  sg.ID,
	}})

	writeJSON(w, connectResponse{
		Message: "node connected",
		SagaID:  sg.ID,
		Config: connectConfig{
			NodeID:          n.ID,
			NodeKey:         n.Key,
			PollingInterval: n.PollingIntervalSeconds,
			PollEndpoint:    "/api/poll",
		},
		Geo:            g,
		AutoAssignment: res,
	})
}

type pollRequest struct {
	NodeID  string `json:"nodeId"`
	NodeKey string `json:"nodeKey"`
}

type pollDomain struct {
	DomainID string                `json:"domainId"`
	Domain   string                `json:"domain"`
	Records  []model.AnycastRecord `json:"records"`
}

type pollResponse struct {
	Timestamp        time.Time    `json:"timestamp"`
	NodeID           string       `json:"nodeId"`
	IPChanged        bool         `json:"ipChanged"`
	Domains          []pollDomain `json:"domains"`
	NextPollInterval int          `json:"nextPollInterval"`
}

// Poll is the node heartbeat. It follows address changes, records the
// heartbeat, reconciles health and returns the current anycast records.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.NodeID == "" || req.NodeKey == "" {
		writeError(w, http.StatusBadRequest, "nodeId and nodeKey are required")
		return
	}

	n, err := h.db.GetNode(ctx, req.NodeID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.NodeKey), []byte(n.Key)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid node key")
		return
	}

	ip := geoip.ClientIP(r)
	changed := ip != n.IPAddress
	if changed {
		h.followAddress(r, n, ip)
	}

	now := time.Now().UTC()
	if err := h.db.RecordHeartbeat(ctx, n.ID, now); err != nil {
		writeErr(w, err)
		return
	}
	if h.monitor != nil {
		if _, err := h.monitor.Reconcile(ctx); err != nil {
			slog.Error("handler: reconcile on poll", "err", err)
		}
	}

	snaps, err := h.dist.Build(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	domains := make([]pollDomain, 0, len(snaps))
	for _, s := range snaps {
		countDecisions(s)
		domains = append(domains, pollDomain{DomainID: s.DomainID, Domain: s.Domain, Records: covered(s.Records)})
	}

	interval := n.PollingIntervalSeconds
	if interval <= 0 {
		interval = model.DefaultPollingInterval
	}
	writeJSON(w, pollResponse{
		Timestamp:        now,
		NodeID:           n.ID,
		IPChanged:        changed,
		Domains:          domains,
		NextPollInterval: interval,
	})
}

// followAddress geolocates a node's new address, stores it and re-runs
// auto-assignment. Failures are logged; the heartbeat still goes through.
func (h *Handler) followAddress(r *http.Request, n *model.ResolverNode, ip string) {
	ctx := r.Context()
	sg := saga.New(h.sagaStore, n.ID, "poll")
	sg.Log(ctx, "node.ip_changed", fmt.Sprintf("address changed from %q to %q", n.IPAddress, ip), map[string]string{
		"previous": n.IPAddress,
		"ip":       ip,
	})

	g := h.geo.Lookup(ip)
	if err := h.db.UpdateNodeGeo(ctx, n.ID, ip, g, model.MaxGeoHistory); err != nil {
		sg.StepFailed(ctx, "geolocate", err)
		slog.Error("handler: update node address", "node", n.ID, "err", err)
		return
	}
	n.IPAddress, n.Geo = ip, g
	h.ws.Broadcast(hub.Event{Type: "node.ip_changed", Subject: n.ID, Time: time.Now().UTC(), Payload: map[string]string{
		"ip":      ip,
		"country": g.CountryCode,
	}})

	res, err := h.assigner.AutoAssign(ctx, *n)
	if err != nil {
		sg.StepFailed(ctx, "assign", err)
		slog.Error("handler: auto-assign after address change", "node", n.ID, "err", err)
		return
	}
	h.logAssignment(r, sg, n.ID, res.Locations, res.AssignedCount, res.Message)
}

// covered drops records without a node; agents only receive answerable ones.
func covered(records []model.AnycastRecord) []model.AnycastRecord {
	out := make([]model.AnycastRecord, 0, len(records))
	for _, rec := range records {
		if rec.Value != nil {
			out = append(out, rec)
		}
	}
	return out
}

func countDecisions(s distribute.Snapshot) {
	directTotal.Add(s.Summary.Direct)
	fallbackTotal.Add(s.Summary.Fallback - s.Summary.LastResort)
	lastResortTotal.Add(s.Summary.LastResort)
	uncoveredTotal.Add(s.Summary.Uncovered)
}
