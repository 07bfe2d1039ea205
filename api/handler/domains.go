package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/miekg/dns"

	"edgeroute/api/distribute"
	"edgeroute/api/geo"
	"edgeroute/api/hub"
	"edgeroute/api/model"
)

type locationRequest struct {
	Code        string             `json:"code"`
	DisplayName string             `json:"displayName"`
	Type        model.LocationType `json:"type"`
}

type createDomainRequest struct {
	Name      string            `json:"name"`
	TenantID  string            `json:"tenantId"`
	Active    *bool             `json:"active"`
	Locations []locationRequest `json:"locations"`
}

// locationsFrom validates and normalizes the requested locations. Codes are
// lower-cased and must be unique; a missing type is inferred from the code.
func locationsFrom(reqs []locationRequest) ([]model.LocationRecord, error) {
	seen := make(map[string]bool, len(reqs))
	out := make([]model.LocationRecord, 0, len(reqs))
	for _, l := range reqs {
		code := strings.ToLower(strings.TrimSpace(l.Code))
		if err := geo.ValidateLocationCode(code); err != nil {
			return nil, err
		}
		if seen[code] {
			return nil, fmt.Errorf("duplicate location %q: %w", code, model.ErrInvalidInput)
		}
		seen[code] = true

		typ := l.Type
		switch {
		case typ != "" && !typ.Valid():
			return nil, fmt.Errorf("location %q has unknown type %q: %w", code, typ, model.ErrInvalidInput)
		case typ != "":
		case geo.IsContinent(code):
			typ = model.LocationContinent
		case len(code) == 2:
			typ = model.LocationCountry
		default:
			typ = model.LocationCustom
		}

		name := strings.TrimSpace(l.DisplayName)
		if name == "" {
			name = code
		}
		out = append(out, model.LocationRecord{Code: code, DisplayName: name, Type: typ, NodeIDs: []string{}})
	}
	return out, nil
}

func (h *Handler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	var req createDomainRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(req.Name)), ".")
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		writeError(w, http.StatusBadRequest, "invalid domain name")
		return
	}
	locs, err := locationsFrom(req.Locations)
	if err != nil {
		writeErr(w, err)
		return
	}

	d := &model.RoutingDomain{
		ID:        uuid.New().String(),
		Name:      name,
		TenantID:  req.TenantID,
		Active:    req.Active == nil || *req.Active,
		Locations: locs,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.db.InsertDomain(r.Context(), d); err != nil {
		writeErr(w, err)
		return
	}
	h.ws.Broadcast(hub.Event{Type: "domain.created", Subject: d.ID, Time: d.CreatedAt})
	writeJSONStatus(w, http.StatusCreated, d)
}

func (h *Handler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.listDomains(r.Context(), r.URL.Query().Get("tenant"), r.URL.Query().Get("active") == "true")
	if err != nil {
		writeErr(w, err)
		return
	}
	if domains == nil {
		domains = []model.RoutingDomain{}
	}
	writeJSON(w, domains)
}

// listDomains treats an empty tenant filter as every tenant.
func (h *Handler) listDomains(ctx context.Context, tenant string, activeOnly bool) ([]model.RoutingDomain, error) {
	if tenant == "" {
		return h.db.ListAllDomains(ctx, activeOnly)
	}
	return h.db.ListDomains(ctx, tenant, activeOnly)
}

func (h *Handler) domain(w http.ResponseWriter, r *http.Request) *model.RoutingDomain {
	d, err := h.db.GetDomain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return nil
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "domain not found")
		return nil
	}
	return d
}

func (h *Handler) GetDomain(w http.ResponseWriter, r *http.Request) {
	if d := h.domain(w, r); d != nil {
		writeJSON(w, d)
	}
}

func (h *Handler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	d := h.domain(w, r)
	if d == nil {
		return
	}
	if err := h.db.DeleteDomain(r.Context(), d.ID); err != nil {
		writeErr(w, err)
		return
	}
	h.ws.Broadcast(hub.Event{Type: "domain.deleted", Subject: d.ID, Time: time.Now().UTC()})
	writeJSON(w, map[string]string{"status": "deleted"})
}

// snapshot builds the current record set of the domain in the URL.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) (distribute.Snapshot, bool) {
	d := h.domain(w, r)
	if d == nil {
		return distribute.Snapshot{}, false
	}
	roster, err := h.db.ListActiveNodesWithIP(r.Context())
	if err != nil {
		writeErr(w, err)
		return distribute.Snapshot{}, false
	}
	return distribute.Snap(*d, roster, time.Now().UTC()), true
}

// DomainAssignments returns the selection outcome for every location of a
// domain, uncovered locations included.
func (h *Handler) DomainAssignments(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]interface{}{
		"domainId":    snap.DomainID,
		"domain":      snap.Domain,
		"generatedAt": snap.GeneratedAt,
		"records":     snap.Records,
		"summary":     snap.Summary,
	})
}

func (h *Handler) DomainZone(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/dns; charset=utf-8")
	w.Write([]byte(snap.Zone))
}
