package assign

import (
	"strings"

	"edgeroute/api/geo"
	"edgeroute/api/model"
)

// DefaultLocation receives nodes whose address cannot be geolocated, such as
// loopback agents in local deployments.
const DefaultLocation = geo.Europe

// Countries that get their own location code, and countries folded into a
// continent. Keys are lower-case ISO codes.
var countryLocations = map[string]string{
	"ru": "ru", "tr": "tr",
	"us": "us", "ca": "ca",
	"cn": "cn", "jp": "jp", "kz": "kz", "ir": "ir", "ae": "ae",
	"au": "au",

	"de": geo.Europe, "fr": geo.Europe, "gb": geo.Europe, "it": geo.Europe,
	"es": geo.Europe, "pl": geo.Europe, "ua": geo.Europe, "nl": geo.Europe,
	"se": geo.Europe, "no": geo.Europe, "fi": geo.Europe, "dk": geo.Europe,
	"be": geo.Europe, "ch": geo.Europe, "at": geo.Europe, "cz": geo.Europe,
	"gr": geo.Europe, "pt": geo.Europe, "ro": geo.Europe, "hu": geo.Europe,
	"sk": geo.Europe, "bg": geo.Europe, "hr": geo.Europe, "rs": geo.Europe,
	"si": geo.Europe, "lt": geo.Europe, "lv": geo.Europe, "ee": geo.Europe,
	"ie": geo.Europe,

	"mx": geo.NorthAmerica,

	"br": geo.SouthAmerica, "ar": geo.SouthAmerica, "cl": geo.SouthAmerica,
	"co": geo.SouthAmerica, "pe": geo.SouthAmerica, "ve": geo.SouthAmerica,
	"ec": geo.SouthAmerica,

	"in": geo.Asia, "kr": geo.Asia, "th": geo.Asia, "vn": geo.Asia,
	"sg": geo.Asia, "my": geo.Asia, "id": geo.Asia, "ph": geo.Asia,
	"pk": geo.Asia, "bd": geo.Asia, "iq": geo.Asia, "sa": geo.Asia,
	"il": geo.Asia,

	"nz": geo.Oceania,

	"za": geo.Africa, "eg": geo.Africa, "ng": geo.Africa, "ke": geo.Africa,
	"ma": geo.Africa, "tn": geo.Africa, "dz": geo.Africa, "gh": geo.Africa,
	"ug": geo.Africa, "et": geo.Africa, "tz": geo.Africa,
}

// MaxMind continent codes.
var continentCodes = map[string]string{
	"EU": geo.Europe,
	"NA": geo.NorthAmerica,
	"SA": geo.SouthAmerica,
	"AF": geo.Africa,
	"AS": geo.Asia,
	"OC": geo.Oceania,
}

// LocationsFor derives the location codes a node located at g should serve.
// A node with no country yields no codes. The unknown/loopback sentinel
// yields fallback so local deployments still get routed.
func LocationsFor(g *model.GeoInfo, fallback string) []string {
	country := g.CountryLower()
	if country == "" {
		return nil
	}
	if g.IsUnknown() {
		if fallback == "" {
			fallback = DefaultLocation
		}
		return []string{fallback}
	}

	if loc, ok := countryLocations[country]; ok {
		locs := []string{loc}
		if cont, ok := geo.ContinentFor(loc); ok && cont != loc {
			locs = append(locs, cont)
		}
		return locs
	}

	if cont := guessContinent(g); cont != "" {
		return []string{cont}
	}
	return nil
}

func guessContinent(g *model.GeoInfo) string {
	if c, ok := continentCodes[strings.ToUpper(g.ContinentCode)]; ok {
		return c
	}
	if c := continentFromText(g.Continent); c != "" {
		return c
	}
	return continentFromText(g.Country)
}

func continentFromText(s string) string {
	s = strings.ToLower(s)
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "europe"):
		return geo.Europe
	case strings.Contains(s, "america") && strings.Contains(s, "south"):
		return geo.SouthAmerica
	case strings.Contains(s, "america"):
		return geo.NorthAmerica
	case strings.Contains(s, "africa"):
		return geo.Africa
	case strings.Contains(s, "asia"):
		return geo.Asia
	case strings.Contains(s, "oceania"), strings.Contains(s, "australia"):
		return geo.Oceania
	}
	return ""
}
