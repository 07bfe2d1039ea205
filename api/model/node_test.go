package model

import (
	"fmt"
	"testing"
	"time"
)

func TestThreshold(t *testing.T) {
	if got := (&ResolverNode{}).Threshold(); got != 300*time.Second {
		t.Errorf("default Threshold = %v, want 5m", got)
	}
	if got := (&ResolverNode{InactivityThresholdSeconds: 90}).Threshold(); got != 90*time.Second {
		t.Errorf("Threshold = %v, want 90s", got)
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		node ResolverNode
		want bool
	}{
		{ResolverNode{Active: true, IPAddress: "192.0.2.1"}, true},
		{ResolverNode{Active: false, IPAddress: "192.0.2.1"}, false},
		{ResolverNode{Active: true}, false},
	}
	for _, tt := range tests {
		if got := tt.node.Eligible(); got != tt.want {
			t.Errorf("Eligible(%+v) = %v, want %v", tt.node, got, tt.want)
		}
	}
}

func TestGeoInfo(t *testing.T) {
	var nilGeo *GeoInfo
	if nilGeo.CountryLower() != "" || nilGeo.IsUnknown() {
		t.Error("nil GeoInfo should have no country and not be the unknown sentinel")
	}
	g := &GeoInfo{CountryCode: " DE ", Country: "Germany", City: "Berlin"}
	if g.CountryLower() != "de" {
		t.Errorf("CountryLower = %q, want de", g.CountryLower())
	}
	if g.IsUnknown() {
		t.Error("Germany reported as unknown")
	}
	for _, u := range []*GeoInfo{
		{CountryCode: "xx"},
		{CountryCode: "ZZ", Country: "Unknown"},
		{City: "Localhost"},
	} {
		if !u.IsUnknown() {
			t.Errorf("%+v not reported as unknown", u)
		}
	}
}

func TestHistoryEntry(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &ResolverNode{IPAddress: "192.0.2.1", Geo: &GeoInfo{CountryCode: "NL", Country: "Netherlands", City: "Amsterdam"}}
	e := n.HistoryEntry(at)
	if e.IP != "192.0.2.1" || e.CountryCode != "NL" || e.City != "Amsterdam" || !e.ChangedAt.Equal(at) {
		t.Errorf("entry = %+v", e)
	}

	e = (&ResolverNode{IPAddress: "192.0.2.2"}).HistoryEntry(at)
	if e.IP != "192.0.2.2" || e.CountryCode != "" {
		t.Errorf("entry without geo = %+v", e)
	}
}

func TestTrimHistory(t *testing.T) {
	var h []GeoHistoryEntry
	for i := 0; i < 12; i++ {
		h = append(h, GeoHistoryEntry{IP: fmt.Sprintf("192.0.2.%d", i)})
	}

	got := TrimHistory(h, 0)
	if len(got) != MaxGeoHistory {
		t.Fatalf("len = %d, want %d", len(got), MaxGeoHistory)
	}
	if got[0].IP != "192.0.2.2" || got[9].IP != "192.0.2.11" {
		t.Errorf("kept %s..%s, want the newest entries", got[0].IP, got[9].IP)
	}

	short := h[:3]
	if got := TrimHistory(short, 10); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}
