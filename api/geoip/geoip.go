// Package geoip resolves node addresses to locations using a MaxMind
// GeoLite2-City database.
package geoip

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/bluele/gcache"
	"github.com/oschwald/maxminddb-golang"
	"golang.org/x/sync/singleflight"

	"edgeroute/api/model"
)

var (
	lookupsTotal   = metrics.NewCounter("edgeroute_geoip_lookups_total")
	cacheHitsTotal = metrics.NewCounter("edgeroute_geoip_cache_hits_total")
	failuresTotal  = metrics.NewCounter("edgeroute_geoip_failures_total")
)

const cacheTTL = time.Hour

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Continent struct {
		Code  string            `maxminddb:"code"`
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"continent"`
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Location struct {
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
	Traits struct {
		AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
	} `maxminddb:"traits"`
}

// Locator looks addresses up with an in-memory ARC cache in front of the
// database. Concurrent lookups of the same address share one database read.
// A Locator without a database answers every lookup with Unknown.
type Locator struct {
	reader *maxminddb.Reader
	cache  gcache.Cache
	group  singleflight.Group
}

// Open loads the database at path. An empty path yields a Locator without a
// database.
func Open(path string, cacheSize int) (*Locator, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	l := &Locator{cache: gcache.New(cacheSize).ARC().Expiration(cacheTTL).Build()}
	if path == "" {
		slog.Warn("geoip: no database configured, all nodes will resolve to Unknown")
		return l, nil
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	l.reader = reader
	slog.Info("geoip: database loaded", "path", path, "type", reader.Metadata.DatabaseType)
	return l, nil
}

func (l *Locator) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

// Lookup never fails: loopback and empty addresses yield Localhost, and
// anything the database cannot resolve yields Unknown.
func (l *Locator) Lookup(ip string) *model.GeoInfo {
	ip = CleanIP(ip)
	if isLoopback(ip) {
		return Localhost()
	}
	lookupsTotal.Inc()

	if v, err := l.cache.Get(ip); err == nil {
		cacheHitsTotal.Inc()
		return clone(v.(*model.GeoInfo))
	}

	v, _, _ := l.group.Do(ip, func() (interface{}, error) {
		g := l.resolve(ip)
		l.cache.Set(ip, g)
		return g, nil
	})
	return clone(v.(*model.GeoInfo))
}

func (l *Locator) resolve(ip string) *model.GeoInfo {
	addr := net.ParseIP(ip)
	if addr == nil || l.reader == nil {
		failuresTotal.Inc()
		return Unknown()
	}
	var rec cityRecord
	if err := l.reader.Lookup(addr, &rec); err != nil {
		failuresTotal.Inc()
		slog.Warn("geoip: lookup failed", "ip", ip, "err", err)
		return Unknown()
	}
	if rec.Country.ISOCode == "" {
		return Unknown()
	}

	g := &model.GeoInfo{
		CountryCode:   rec.Country.ISOCode,
		Country:       orUnknown(rec.Country.Names["en"]),
		City:          orUnknown(rec.City.Names["en"]),
		Continent:     rec.Continent.Names["en"],
		ContinentCode: rec.Continent.Code,
		ASOrg:         rec.Traits.AutonomousSystemOrganization,
	}
	if len(rec.Subdivisions) > 0 {
		g.Region = rec.Subdivisions[0].Names["en"]
	}
	// accuracy_radius is 1000 for anycast ranges; such coordinates are noise.
	if rec.Location.AccuracyRadius <= 500 && (rec.Location.Latitude != 0 || rec.Location.Longitude != 0) {
		g.Coordinates = &model.Coordinates{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}
	}
	return g
}

// Localhost is the record for loopback addresses.
func Localhost() *model.GeoInfo {
	return &model.GeoInfo{
		CountryCode: model.UnknownCountryCode,
		Country:     "Unknown",
		City:        "Localhost",
		Region:      "Unknown",
		ASOrg:       "Local",
	}
}

// Unknown is the record for addresses the database cannot place.
func Unknown() *model.GeoInfo {
	return &model.GeoInfo{
		CountryCode: model.UnknownCountryCode,
		Country:     "Unknown",
		City:        "Unknown",
		Region:      "Unknown",
	}
}

func clone(g *model.GeoInfo) *model.GeoInfo {
	c := *g
	if g.Coordinates != nil {
		coords := *g.Coordinates
		c.Coordinates = &coords
	}
	return &c
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func isLoopback(ip string) bool {
	if ip == "" || ip == "localhost" {
		return true
	}
	addr := net.ParseIP(ip)
	return addr != nil && addr.IsLoopback()
}

// CleanIP strips the IPv4-mapped IPv6 prefix, so ::ffff:192.0.2.1 becomes
// 192.0.2.1.
func CleanIP(ip string) string {
	ip = strings.TrimSpace(ip)
	return strings.TrimPrefix(ip, "::ffff:")
}

// ClientIP returns the caller's address, trusting proxy headers in the order
// CF-Connecting-IP, X-Real-IP, X-Forwarded-For (first hop), then RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return CleanIP(ip)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return CleanIP(ip)
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return CleanIP(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return CleanIP(r.RemoteAddr)
	}
	return CleanIP(host)
}
