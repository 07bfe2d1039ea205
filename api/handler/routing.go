package handler

import (
	"net/http"
	"time"

	"edgeroute/api/distribute"
	"edgeroute/api/model"
	"edgeroute/api/selector"
)

type domainMap struct {
	DomainID  string           `json:"domainId"`
	Domain    string           `json:"domain"`
	Decisions []model.Decision `json:"decisions"`
	Summary   selector.Summary `json:"summary"`
}

type routingMap struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Nodes       int              `json:"eligibleNodes"`
	Domains     []domainMap      `json:"domains"`
	Totals      selector.Summary `json:"totals"`
}

// RoutingMap shows which node answers for every location of the active
// domains, optionally limited to one tenant.
func (h *Handler) RoutingMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domains, err := h.listDomains(ctx, r.URL.Query().Get("tenant"), true)
	if err != nil {
		writeErr(w, err)
		return
	}
	roster, err := h.db.ListActiveNodesWithIP(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}

	now := time.Now().UTC()
	out := routingMap{GeneratedAt: now, Nodes: len(roster), Domains: make([]domainMap, 0, len(domains))}
	for _, d := range domains {
		snap := distribute.Snap(d, roster, now)
		out.Domains = append(out.Domains, domainMap{
			DomainID:  snap.DomainID,
			Domain:    snap.Domain,
			Decisions: snap.Decisions,
			Summary:   snap.Summary,
		})
		out.Totals.Total += snap.Summary.Total
		out.Totals.Direct += snap.Summary.Direct
		out.Totals.Fallback += snap.Summary.Fallback
		out.Totals.LastResort += snap.Summary.LastResort
		out.Totals.Uncovered += snap.Summary.Uncovered
	}
	writeJSON(w, out)
}
