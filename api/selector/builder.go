package selector

import (
	"fmt"
	"strconv"

	"edgeroute/api/model"
)

const noNodeError = "No node available for this location"

// BuildAssignments selects a node for every location of domain, in the
// domain's location order. Locations without coverage are kept with an empty
// NodeID.
func BuildAssignments(domain model.RoutingDomain, roster []model.ResolverNode) []model.Decision {
	out := make([]model.Decision, 0, len(domain.Locations))
	for _, loc := range domain.Locations {
		if d := SelectNode(loc.Code, roster); d != nil {
			out = append(out, *d)
			continue
		}
		out = append(out, model.Decision{LocationCode: loc.Code})
	}
	return out
}

// AnycastRecords converts decisions into A records for distribution.
func AnycastRecords(decisions []model.Decision) []model.AnycastRecord {
	records := make([]model.AnycastRecord, 0, len(decisions))
	for _, d := range decisions {
		rec := model.AnycastRecord{
			Name:         d.LocationCode,
			Type:         "A",
			TTL:          model.AnycastTTL,
			LocationCode: d.LocationCode,
		}
		if !d.Covered() {
			rec.Error = noNodeError
			records = append(records, rec)
			continue
		}
		ip := d.NodeIP
		rec.Value = &ip
		rec.NodeID = d.NodeID
		rec.NodeName = d.NodeName
		rec.Distance = d.DistanceScore
		rec.DistanceKm = d.DistanceKm
		rec.IsDirect = d.IsDirect
		rec.IsLastResort = d.IsLastResort
		rec.Description = describe(d)
		records = append(records, rec)
	}
	return records
}

func describe(d model.Decision) string {
	if d.IsDirect {
		return "Direct: " + d.NodeName
	}
	prefix := "Nearest"
	if d.IsLastResort {
		prefix = "Last Resort"
	}
	if d.DistanceKm != nil && *d.DistanceKm != 0 {
		return fmt.Sprintf("%s: %s (%skm)", prefix, d.NodeName, strconv.FormatFloat(*d.DistanceKm, 'f', -1, 64))
	}
	return fmt.Sprintf("%s: %s (distance: %s)", prefix, d.NodeName, strconv.FormatFloat(d.DistanceScore, 'f', -1, 64))
}

// Summary counts decisions by outcome.
type Summary struct {
	Total      int `json:"total"`
	Direct     int `json:"direct"`
	Fallback   int `json:"fallback"`
	LastResort int `json:"lastResort"`
	Uncovered  int `json:"uncovered"`
}

func Summarize(decisions []model.Decision) Summary {
	s := Summary{Total: len(decisions)}
	for _, d := range decisions {
		switch {
		case !d.Covered():
			s.Uncovered++
		case d.IsDirect:
			s.Direct++
		default:
			s.Fallback++
			if d.IsLastResort {
				s.LastResort++
			}
		}
	}
	return s
}
