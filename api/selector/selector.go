// Package selector picks the resolver node that answers for a location.
//
// Selection is tiered: an eligible node located in the requested country
// always wins; otherwise nodes are ranked by great-circle distance from the
// location's center, falling back to continent hops when coordinates are
// missing on either side. The engine is pure and holds no state between calls.
package selector

import (
	"math"
	"sort"
	"strings"

	"edgeroute/api/geo"
	"edgeroute/api/model"
)

// Requests for protectedLocation avoid nodes located in excludedCountry unless
// nothing else is eligible.
const (
	protectedLocation = "ua"
	excludedCountry   = "ru"
)

// kmPerScorePoint normalizes kilometres onto the 0-10 score scale.
const (
	kmPerScorePoint = 2000
	maxKmScore      = 10
)

type candidate struct {
	node       *model.ResolverNode
	score      float64
	distanceKm *float64
}

// SelectNode returns the best node for locationCode, or nil when no node in
// roster is eligible.
func SelectNode(locationCode string, roster []model.ResolverNode) *model.Decision {
	code := strings.ToLower(strings.TrimSpace(locationCode))

	eligible := make([]*model.ResolverNode, 0, len(roster))
	for i := range roster {
		if roster[i].Eligible() {
			eligible = append(eligible, &roster[i])
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	if code != "" {
		for _, n := range eligible {
			if n.Geo.CountryLower() == code {
				zero := 0.0
				return &model.Decision{
					LocationCode: locationCode,
					NodeID:       n.ID,
					NodeName:     n.Name,
					NodeIP:       n.IPAddress,
					IsDirect:     true,
					DistanceKm:   &zero,
				}
			}
		}
	}

	candidates := eligible
	lastResort := false
	if code == protectedLocation {
		candidates, lastResort = excludeCountry(eligible, excludedCountry)
	}

	center, hasCenter := geo.CenterOf(code)
	ranked := make([]candidate, len(candidates))
	for i, n := range candidates {
		ranked[i] = rank(code, center, hasCenter, n)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score < ranked[j].score
	})

	best := ranked[0]
	return &model.Decision{
		LocationCode:  locationCode,
		NodeID:        best.node.ID,
		NodeName:      best.node.Name,
		NodeIP:        best.node.IPAddress,
		IsLastResort:  lastResort,
		DistanceKm:    best.distanceKm,
		DistanceScore: best.score,
	}
}

// excludeCountry drops nodes located in country. Nodes with no known country
// are kept. When nothing survives the full set is returned and the result is
// flagged as a last resort.
func excludeCountry(nodes []*model.ResolverNode, country string) ([]*model.ResolverNode, bool) {
	kept := make([]*model.ResolverNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Geo.CountryLower() != country {
			kept = append(kept, n)
		}
	}
	if len(kept) == 0 {
		return nodes, true
	}
	return kept, false
}

func rank(code string, center model.Coordinates, hasCenter bool, n *model.ResolverNode) candidate {
	if hasCenter && n.Geo != nil && n.Geo.Coordinates != nil {
		km := geo.Between(center, *n.Geo.Coordinates)
		rounded := math.Round(km)
		return candidate{
			node:       n,
			score:      math.Min(maxKmScore, km/kmPerScorePoint),
			distanceKm: &rounded,
		}
	}
	return candidate{node: n, score: hopScore(code, n)}
}

// hopScore ranks a node by continent adjacency when real coordinates are not
// available. This scale (0-4, 999 unknown) is not comparable with the km
// score; mixed rosters are ranked on both as-is.
func hopScore(code string, n *model.ResolverNode) float64 {
	country := n.Geo.CountryLower()
	if country == "" {
		return geo.UnknownDistance
	}

	nodeLoc := country
	if c, ok := geo.ContinentOf(country); ok {
		nodeLoc = c
	}
	if code == nodeLoc {
		return 0
	}

	target := code
	if c, ok := geo.ContinentFor(code); ok {
		target = c
	}
	// Same continent, but the request named a country on it.
	if target == nodeLoc && target != code {
		return 0.5
	}
	return geo.HopDistance(target, nodeLoc)
}
