// Package geo holds the static location tables and distance helpers used to
// rank resolver nodes. All tables are package data and are never mutated, so
// every function here is safe for concurrent use.
package geo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/umahmood/haversine"

	"edgeroute/api/model"
)

// UnknownDistance marks a pairing with no known relation.
const UnknownDistance = 999

var validLocationCodeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// DistanceKm returns the great-circle distance between two points in
// kilometres on a 6371 km sphere.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: lat1, Lon: lon1},
		haversine.Coord{Lat: lat2, Lon: lon2},
	)
	return km
}

// Between is DistanceKm for two coordinate pairs.
func Between(a, b model.Coordinates) float64 {
	return DistanceKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// ContinentOf maps a country code to its continent code.
func ContinentOf(countryCode string) (string, bool) {
	c, ok := countryContinents[normalize(countryCode)]
	return c, ok
}

func IsContinent(code string) bool {
	_, ok := continentHops[normalize(code)]
	return ok
}

// ContinentFor resolves any location code to a continent: continents map to
// themselves, countries to their continent.
func ContinentFor(code string) (string, bool) {
	code = normalize(code)
	if IsContinent(code) {
		return code, true
	}
	return ContinentOf(code)
}

// HopDistance returns the adjacency distance between two continents, or
// UnknownDistance when either side is not a known continent.
func HopDistance(a, b string) float64 {
	row, ok := continentHops[normalize(a)]
	if !ok {
		return UnknownDistance
	}
	d, ok := row[normalize(b)]
	if !ok {
		return UnknownDistance
	}
	return d
}

// CenterOf returns the geographic center for a country location code.
func CenterOf(code string) (model.Coordinates, bool) {
	c, ok := countryCenters[normalize(code)]
	return c, ok
}

// ValidateLocationCode rejects codes that cannot name a location.
func ValidateLocationCode(code string) error {
	if !validLocationCodeRe.MatchString(normalize(code)) {
		return fmt.Errorf("location code %q: %w", code, model.ErrInvalidInput)
	}
	return nil
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
