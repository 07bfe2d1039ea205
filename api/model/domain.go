package model

import (
	"strings"
	"time"
)

type LocationType string

const (
	LocationContinent LocationType = "continent"
	LocationCountry   LocationType = "country"
	LocationCustom    LocationType = "custom"
)

func (t LocationType) Valid() bool {
	switch t {
	case LocationContinent, LocationCountry, LocationCustom:
		return true
	}
	return false
}

type LocationRecord struct {
	Code        string       `json:"code"`
	DisplayName string       `json:"displayName"`
	Type        LocationType `json:"type"`
	NodeIDs     []string     `json:"nodeIds"`
}

// HasNode reports whether id is already assigned to the location.
func (l *LocationRecord) HasNode(id string) bool {
	for _, n := range l.NodeIDs {
		if n == id {
			return true
		}
	}
	return false
}

// AddNode appends id if absent and reports whether it was added.
func (l *LocationRecord) AddNode(id string) bool {
	if l.HasNode(id) {
		return false
	}
	l.NodeIDs = append(l.NodeIDs, id)
	return true
}

// RemoveNode drops every occurrence of id and reports whether any was removed.
func (l *LocationRecord) RemoveNode(id string) bool {
	kept := l.NodeIDs[:0]
	removed := false
	for _, n := range l.NodeIDs {
		if n == id {
			removed = true
			continue
		}
		kept = append(kept, n)
	}
	l.NodeIDs = kept
	return removed
}

type RoutingDomain struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	TenantID  string           `json:"tenantId"`
	Active    bool             `json:"active"`
	Locations []LocationRecord `json:"locations"`
	Version   int64            `json:"version"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Location finds a location by code, case-insensitively.
func (d *RoutingDomain) Location(code string) *LocationRecord {
	for i := range d.Locations {
		if strings.EqualFold(d.Locations[i].Code, code) {
			return &d.Locations[i]
		}
	}
	return nil
}
