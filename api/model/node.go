package model

import (
	"strings"
	"time"
)

const (
	DefaultInactivityThreshold = 300 // seconds
	DefaultPollingInterval     = 60  // seconds
	MaxGeoHistory              = 10
)

type NodeStatus string

const (
	NodeStatusPending  NodeStatus = "pending"
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoInfo is the IP-derived location of a resolver node.
type GeoInfo struct {
	CountryCode   string       `json:"countryCode"`
	Country       string       `json:"country"`
	City          string       `json:"city"`
	Region        string       `json:"region,omitempty"`
	Continent     string       `json:"continent,omitempty"`     // free-text hint, e.g. "Europe"
	ContinentCode string       `json:"continentCode,omitempty"` // EU, NA, ...
	ASOrg         string       `json:"asOrg,omitempty"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
}

// CountryLower returns the lower-cased country code, or "" when unknown.
func (g *GeoInfo) CountryLower() string {
	if g == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(g.CountryCode))
}

// IsUnknown reports whether g is the loopback/unresolvable sentinel.
func (g *GeoInfo) IsUnknown() bool {
	if g == nil {
		return false
	}
	return strings.EqualFold(g.CountryCode, UnknownCountryCode) ||
		g.Country == "Unknown" ||
		g.City == "Localhost"
}

const UnknownCountryCode = "XX"

type GeoHistoryEntry struct {
	IP          string    `json:"ip"`
	CountryCode string    `json:"countryCode,omitempty"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	ChangedAt   time.Time `json:"changedAt"`
}

type ResolverNode struct {
	ID                         string            `json:"id"`
	Name                       string            `json:"name"`
	TenantID                   string            `json:"tenantId"`
	Key                        string            `json:"-"`
	ConnectionToken            string            `json:"-"`
	Connected                  bool              `json:"connected"`
	Active                     bool              `json:"active"`
	LastHeartbeat              *time.Time        `json:"lastHeartbeat,omitempty"`
	InactivityThresholdSeconds int               `json:"inactivityThresholdSeconds"`
	PollingIntervalSeconds     int               `json:"pollingIntervalSeconds"`
	IPAddress                  string            `json:"ipAddress,omitempty"`
	Geo                        *GeoInfo          `json:"geo,omitempty"`
	GeoHistory                 []GeoHistoryEntry `json:"geoHistory,omitempty"`
	CreatedAt                  time.Time         `json:"createdAt"`
	ConnectedAt                *time.Time        `json:"connectedAt,omitempty"`
}

// Threshold returns the node's inactivity threshold, falling back to the default.
func (n *ResolverNode) Threshold() time.Duration {
	secs := n.InactivityThresholdSeconds
	if secs <= 0 {
		secs = DefaultInactivityThreshold
	}
	return time.Duration(secs) * time.Second
}

// Eligible reports whether the node may answer for a location.
func (n *ResolverNode) Eligible() bool {
	return n.Active && n.IPAddress != ""
}

// HistoryEntry snapshots the node's current address and location.
func (n *ResolverNode) HistoryEntry(at time.Time) GeoHistoryEntry {
	e := GeoHistoryEntry{IP: n.IPAddress, ChangedAt: at}
	if n.Geo != nil {
		e.CountryCode = n.Geo.CountryCode
		e.Country = n.Geo.Country
		e.City = n.Geo.City
	}
	return e
}

// TrimHistory keeps the newest max entries, dropping the oldest first.
func TrimHistory(h []GeoHistoryEntry, max int) []GeoHistoryEntry {
	if max <= 0 {
		max = MaxGeoHistory
	}
	if len(h) <= max {
		return h
	}
	return append([]GeoHistoryEntry(nil), h[len(h)-max:]...)
}
