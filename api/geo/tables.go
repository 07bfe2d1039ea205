package geo

import "edgeroute/api/model"

const (
	Europe       = "europe"
	NorthAmerica = "north-america"
	SouthAmerica = "south-america"
	Africa       = "africa"
	Asia         = "asia"
	Oceania      = "oceania"
)

// Continents lists the continent location codes in a stable order.
var Continents = []string{Europe, NorthAmerica, SouthAmerica, Africa, Asia, Oceania}

// Geographic centers of countries, keyed by lower-case ISO code.
var countryCenters = map[string]model.Coordinates{
	// North America
	"us": {Lat: 39.8283, Lon: -98.5795},
	"ca": {Lat: 56.1304, Lon: -106.3468},
	"mx": {Lat: 23.6345, Lon: -102.5528},

	// South America
	"br": {Lat: -14.235, Lon: -51.9253},
	"ar": {Lat: -38.4161, Lon: -63.6167},
	"cl": {Lat: -35.6751, Lon: -71.543},
	"co": {Lat: 4.5709, Lon: -74.2973},
	"pe": {Lat: -9.19, Lon: -75.0152},

	// Europe
	"ru": {Lat: 61.524, Lon: 105.3188},
	"gb": {Lat: 55.3781, Lon: -3.436},
	"de": {Lat: 51.1657, Lon: 10.4515},
	"fr": {Lat: 46.2276, Lon: 2.2137},
	"it": {Lat: 41.8719, Lon: 12.5674},
	"es": {Lat: 40.4637, Lon: -3.7492},
	"pl": {Lat: 51.9194, Lon: 19.1451},
	"ua": {Lat: 48.3794, Lon: 31.1656},
	"nl": {Lat: 52.1326, Lon: 5.2913},
	"se": {Lat: 60.1282, Lon: 18.6435},
	"no": {Lat: 60.472, Lon: 8.4689},
	"fi": {Lat: 61.9241, Lon: 25.7482},
	"dk": {Lat: 56.2639, Lon: 9.5018},
	"ch": {Lat: 46.8182, Lon: 8.2275},
	"at": {Lat: 47.5162, Lon: 14.5501},
	"be": {Lat: 50.5039, Lon: 4.4699},
	"cz": {Lat: 49.8175, Lon: 15.473},
	"pt": {Lat: 39.3999, Lon: -8.2245},
	"gr": {Lat: 39.0742, Lon: 21.8243},
	"ro": {Lat: 45.9432, Lon: 24.9668},
	"hu": {Lat: 47.1625, Lon: 19.5033},
	"ie": {Lat: 53.4129, Lon: -8.2439},
	"tr": {Lat: 38.9637, Lon: 35.2433},

	// Asia
	"cn": {Lat: 35.8617, Lon: 104.1954},
	"jp": {Lat: 36.2048, Lon: 138.2529},
	"in": {Lat: 20.5937, Lon: 78.9629},
	"kr": {Lat: 35.9078, Lon: 127.7669},
	"kz": {Lat: 48.0196, Lon: 66.9237},
	"ir": {Lat: 32.4279, Lon: 53.688},
	"ae": {Lat: 23.4241, Lon: 53.8478},
	"sg": {Lat: 1.3521, Lon: 103.8198},
	"id": {Lat: -0.7893, Lon: 113.9213},
	"th": {Lat: 15.87, Lon: 100.9925},
	"my": {Lat: 4.2105, Lon: 101.9758},
	"vn": {Lat: 14.0583, Lon: 108.2772},
	"ph": {Lat: 12.8797, Lon: 121.774},
	"pk": {Lat: 30.3753, Lon: 69.3451},
	"bd": {Lat: 23.685, Lon: 90.3563},
	"il": {Lat: 31.0461, Lon: 34.8516},
	"sa": {Lat: 23.8859, Lon: 45.0792},
	"iq": {Lat: 33.2232, Lon: 43.6793},

	// Africa
	"za": {Lat: -30.5595, Lon: 22.9375},
	"eg": {Lat: 26.8206, Lon: 30.8025},
	"ng": {Lat: 9.082, Lon: 8.6753},
	"ke": {Lat: -0.0236, Lon: 37.9062},
	"ma": {Lat: 31.7917, Lon: -7.0926},
	"tz": {Lat: -6.369, Lon: 34.8888},
	"gh": {Lat: 7.9465, Lon: -1.0232},
	"dz": {Lat: 28.0339, Lon: 1.6596},

	// Oceania
	"au": {Lat: -25.2744, Lon: 133.7751},
	"nz": {Lat: -40.9006, Lon: 174.886},
}

// Country code to continent. Russia and Turkey are routed as Europe.
var countryContinents = map[string]string{
	"us": NorthAmerica, "ca": NorthAmerica, "mx": NorthAmerica,

	"br": SouthAmerica, "ar": SouthAmerica, "cl": SouthAmerica, "co": SouthAmerica,
	"pe": SouthAmerica, "ve": SouthAmerica, "ec": SouthAmerica,

	"ru": Europe, "tr": Europe, "fr": Europe, "de": Europe, "gb": Europe,
	"it": Europe, "es": Europe, "pl": Europe, "ua": Europe, "nl": Europe,
	"be": Europe, "se": Europe, "no": Europe, "fi": Europe, "dk": Europe,
	"ch": Europe, "at": Europe, "cz": Europe, "pt": Europe, "gr": Europe,
	"ro": Europe, "hu": Europe, "ie": Europe, "sk": Europe, "bg": Europe,
	"hr": Europe, "rs": Europe, "si": Europe, "lt": Europe, "lv": Europe,
	"ee": Europe,

	"cn": Asia, "jp": Asia, "kz": Asia, "ir": Asia, "ae": Asia, "in": Asia,
	"kr": Asia, "sg": Asia, "id": Asia, "th": Asia, "my": Asia, "vn": Asia,
	"ph": Asia, "pk": Asia, "bd": Asia, "il": Asia, "sa": Asia, "iq": Asia,

	"au": Oceania, "nz": Oceania,

	"za": Africa, "eg": Africa, "ng": Africa, "ke": Africa, "ma": Africa,
	"tz": Africa, "gh": Africa, "dz": Africa, "tn": Africa, "ug": Africa,
	"et": Africa,
}

// Hop distance between continents. Lower is closer.
var continentHops = map[string]map[string]float64{
	Europe: {
		Europe: 0, NorthAmerica: 2, SouthAmerica: 3, Africa: 1, Asia: 2, Oceania: 4,
	},
	NorthAmerica: {
		NorthAmerica: 0, Europe: 2, SouthAmerica: 1, Africa: 3, Asia: 3, Oceania: 4,
	},
	SouthAmerica: {
		SouthAmerica: 0, NorthAmerica: 1, Europe: 3, Africa: 2, Asia: 4, Oceania: 4,
	},
	Africa: {
		Africa: 0, Europe: 1, Asia: 2, NorthAmerica: 3, SouthAmerica: 2, Oceania: 4,
	},
	Asia: {
		Asia: 0, Oceania: 1, Europe: 2, Africa: 2, NorthAmerica: 3, SouthAmerica: 4,
	},
	Oceania: {
		Oceania: 0, Asia: 1, SouthAmerica: 4, NorthAmerica: 4, Europe: 4, Africa: 4,
	},
}
