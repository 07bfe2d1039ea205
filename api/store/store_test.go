package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"edgeroute/api/model"
)

// Both backends run the same checks. suffix keeps ids unique when the
// Postgres database is shared between runs.

func testNodeLifecycle(t *testing.T, s Store, suffix string) {
	ctx := context.Background()
	id := "node-" + suffix
	node := &model.ResolverNode{
		ID:                         id,
		Name:                       "fra-1",
		TenantID:                   "tenant-" + suffix,
		Key:                        "secret-" + suffix,
		ConnectionToken:            "tok-" + suffix,
		InactivityThresholdSeconds: model.DefaultInactivityThreshold,
		PollingIntervalSeconds:     model.DefaultPollingInterval,
		CreatedAt:                  time.Now(),
	}
	if err := s.InsertNode(ctx, node); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	t.Cleanup(func() { s.DeleteNode(context.Background(), id) })

	got, err := s.GetNodeByToken(ctx, "tok-"+suffix)
	if err != nil {
		t.Fatalf("GetNodeByToken: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("GetNodeByToken = %+v, want node %s", got, id)
	}
	if got.Key != "secret-"+suffix {
		t.Errorf("Key = %q, want secret-%s", got.Key, suffix)
	}
	if got.Connected || got.Active {
		t.Errorf("new node connected=%v active=%v, want both false", got.Connected, got.Active)
	}

	if err := s.MarkConnected(ctx, id, time.Now()); err != nil {
		t.Fatalf("MarkConnected: %v", err)
	}
	if err := s.MarkConnected(ctx, id, time.Now()); !errors.Is(err, model.ErrConflict) {
		t.Errorf("second MarkConnected = %v, want ErrConflict", err)
	}
	if n, _ := s.GetNodeByToken(ctx, "tok-"+suffix); n != nil {
		t.Error("connection token still resolves after connect")
	}

	got, err = s.GetNode(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("GetNode: %v %v", got, err)
	}
	if !got.Connected || !got.Active || got.ConnectedAt == nil || got.LastHeartbeat == nil {
		t.Errorf("after connect: %+v", got)
	}

	// First address: nothing to push to history.
	if err := s.UpdateNodeGeo(ctx, id, "192.0.2.1", &model.GeoInfo{CountryCode: "DE", Country: "Germany", City: "Frankfurt"}, model.MaxGeoHistory); err != nil {
		t.Fatalf("UpdateNodeGeo: %v", err)
	}
	got, _ = s.GetNode(ctx, id)
	if got.IPAddress != "192.0.2.1" || got.Geo == nil || got.Geo.CountryCode != "DE" {
		t.Errorf("after first geo update: ip=%q geo=%+v", got.IPAddress, got.Geo)
	}
	if len(got.GeoHistory) != 0 {
		t.Errorf("GeoHistory = %d entries, want 0", len(got.GeoHistory))
	}

	if err := s.UpdateNodeGeo(ctx, id, "198.51.100.7", &model.GeoInfo{CountryCode: "FR", Country: "France"}, model.MaxGeoHistory); err != nil {
		t.Fatalf("UpdateNodeGeo: %v", err)
	}
	got, _ = s.GetNode(ctx, id)
	if len(got.GeoHistory) != 1 {
		t.Fatalf("GeoHistory = %d entries, want 1", len(got.GeoHistory))
	}
	if h := got.GeoHistory[0]; h.IP != "192.0.2.1" || h.CountryCode != "DE" || h.City != "Frankfurt" {
		t.Errorf("history entry = %+v, want previous Frankfurt address", h)
	}

	for i := 0; i < 12; i++ {
		ip := fmt.Sprintf("203.0.113.%d", i+1)
		if err := s.UpdateNodeGeo(ctx, id, ip, &model.GeoInfo{CountryCode: "NL"}, model.MaxGeoHistory); err != nil {
			t.Fatalf("UpdateNodeGeo %s: %v", ip, err)
		}
	}
	got, _ = s.GetNode(ctx, id)
	if len(got.GeoHistory) != model.MaxGeoHistory {
		t.Fatalf("GeoHistory = %d entries, want %d", len(got.GeoHistory), model.MaxGeoHistory)
	}
	if last := got.GeoHistory[len(got.GeoHistory)-1]; last.IP != "203.0.113.11" {
		t.Errorf("newest history IP = %q, want 203.0.113.11", last.IP)
	}

	// Same address again does not grow the history.
	if err := s.UpdateNodeGeo(ctx, id, "203.0.113.12", &model.GeoInfo{CountryCode: "NL"}, model.MaxGeoHistory); err != nil {
		t.Fatalf("UpdateNodeGeo: %v", err)
	}
	got, _ = s.GetNode(ctx, id)
	if last := got.GeoHistory[len(got.GeoHistory)-1]; last.IP != "203.0.113.11" {
		t.Errorf("history changed on same-address update: %+v", last)
	}

	if !containsNode(t, s.ListActiveNodesWithIP, id) {
		t.Error("connected node with IP missing from active roster")
	}

	changed, err := s.SetNodeActive(ctx, id, false, true)
	if err != nil || !changed {
		t.Fatalf("SetNodeActive(false, true) = %v, %v; want true, nil", changed, err)
	}
	changed, err = s.SetNodeActive(ctx, id, false, true)
	if err != nil || changed {
		t.Errorf("stale SetNodeActive = %v, %v; want false, nil", changed, err)
	}
	if containsNode(t, s.ListActiveNodesWithIP, id) {
		t.Error("inactive node still in active roster")
	}
	if !containsNode(t, s.ListNodes, id) {
		t.Error("node missing from full listing")
	}

	if err := s.RecordHeartbeat(ctx, id, time.Now()); err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	got, _ = s.GetNode(ctx, id)
	if !got.Active {
		t.Error("heartbeat did not reactivate node")
	}

	if err := s.DeleteNode(ctx, id); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	got, err = s.GetNode(ctx, id)
	if err != nil || got != nil {
		t.Errorf("GetNode after delete = %v, %v; want nil, nil", got, err)
	}
}

func containsNode(t *testing.T, list func(context.Context) ([]model.ResolverNode, error), id string) bool {
	t.Helper()
	nodes, err := list(context.Background())
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func testDomainVersioning(t *testing.T, s Store, suffix string) {
	ctx := context.Background()
	tenant := "tenant-" + suffix
	d := &model.RoutingDomain{
		ID:       "dom-" + suffix,
		Name:     "d-" + suffix + ".example.com",
		TenantID: tenant,
		Active:   true,
		Locations: []model.LocationRecord{
			{Code: "europe", DisplayName: "Europe", Type: model.LocationContinent},
			{Code: "us", DisplayName: "United States", Type: model.LocationCountry},
		},
	}
	if err := s.InsertDomain(ctx, d); err != nil {
		t.Fatalf("InsertDomain: %v", err)
	}
	t.Cleanup(func() { s.DeleteDomain(context.Background(), d.ID) })

	dup := *d
	dup.ID = "dom-dup-" + suffix
	if err := s.InsertDomain(ctx, &dup); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate name insert = %v, want ErrConflict", err)
		s.DeleteDomain(ctx, dup.ID)
	}

	a, err := s.GetDomain(ctx, d.ID)
	if err != nil || a == nil {
		t.Fatalf("GetDomain: %v %v", a, err)
	}
	if a.Version != 0 || len(a.Locations) != 2 {
		t.Fatalf("fresh domain = %+v", a)
	}
	b, _ := s.GetDomain(ctx, d.ID)

	a.Locations[0].AddNode("n1")
	if err := s.SaveDomain(ctx, a); err != nil {
		t.Fatalf("SaveDomain: %v", err)
	}
	if a.Version != 1 {
		t.Errorf("Version after save = %d, want 1", a.Version)
	}

	b.Locations[0].AddNode("n2")
	if err := s.SaveDomain(ctx, b); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("stale SaveDomain = %v, want ErrConflict", err)
	}

	cur, _ := s.GetDomain(ctx, d.ID)
	if ids := cur.Locations[0].NodeIDs; len(ids) != 1 || ids[0] != "n1" {
		t.Errorf("NodeIDs = %v, want [n1]", ids)
	}

	active, err := s.ListDomains(ctx, tenant, true)
	if err != nil || len(active) != 1 {
		t.Fatalf("ListDomains(active) = %d, %v; want 1", len(active), err)
	}

	cur.Active = false
	if err := s.SaveDomain(ctx, cur); err != nil {
		t.Fatalf("SaveDomain: %v", err)
	}
	if active, _ := s.ListDomains(ctx, tenant, true); len(active) != 0 {
		t.Errorf("inactive domain listed as active")
	}
	if all, _ := s.ListDomains(ctx, tenant, false); len(all) != 1 {
		t.Errorf("ListDomains(all) = %d, want 1", len(all))
	}
	if other, _ := s.ListDomains(ctx, "nobody-"+suffix, false); len(other) != 0 {
		t.Errorf("foreign tenant sees %d domains", len(other))
	}
	untenanted, err := s.ListDomains(ctx, "", false)
	if err != nil {
		t.Fatalf("ListDomains(\"\"): %v", err)
	}
	for _, u := range untenanted {
		if u.ID == d.ID {
			t.Errorf("empty tenant lists domain of %q", tenant)
		}
	}
	every, err := s.ListAllDomains(ctx, false)
	if err != nil {
		t.Fatalf("ListAllDomains: %v", err)
	}
	found := false
	for _, e := range every {
		found = found || e.ID == d.ID
	}
	if !found {
		t.Errorf("ListAllDomains misses %s", d.ID)
	}

	missing := &model.RoutingDomain{ID: "missing-" + suffix, Name: "missing"}
	if err := s.SaveDomain(ctx, missing); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("SaveDomain(missing) = %v, want ErrNotFound", err)
	}

	if err := s.DeleteDomain(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDomain: %v", err)
	}
	if got, err := s.GetDomain(ctx, d.ID); err != nil || got != nil {
		t.Errorf("GetDomain after delete = %v, %v", got, err)
	}
}
