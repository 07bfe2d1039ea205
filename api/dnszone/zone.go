// Package dnszone renders anycast records as a zone file fragment that the
// resolver fleet can load.
package dnszone

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"

	"edgeroute/api/model"
)

// Records converts the covered anycast records of domain into A/AAAA resource
// records. Records without a node are skipped.
func Records(domain string, records []model.AnycastRecord) ([]dns.RR, error) {
	origin := dns.Fqdn(strings.ToLower(domain))
	if _, ok := dns.IsDomainName(origin); !ok {
		return nil, fmt.Errorf("domain %q: %w", domain, model.ErrInvalidInput)
	}

	var rrs []dns.RR
	for _, rec := range records {
		if rec.Value == nil || *rec.Value == "" {
			continue
		}
		ip := net.ParseIP(*rec.Value)
		if ip == nil {
			return nil, fmt.Errorf("record %s value %q: %w", rec.Name, *rec.Value, model.ErrInvalidInput)
		}
		ttl := rec.TTL
		if ttl <= 0 {
			ttl = model.AnycastTTL
		}
		hdr := dns.RR_Header{
			Name:  dns.Fqdn(strings.ToLower(rec.Name) + "." + strings.TrimSuffix(origin, ".")),
			Class: dns.ClassINET,
			Ttl:   uint32(ttl),
		}
		if v4 := ip.To4(); v4 != nil {
			hdr.Rrtype = dns.TypeA
			rrs = append(rrs, &dns.A{Hdr: hdr, A: v4})
		} else {
			hdr.Rrtype = dns.TypeAAAA
			rrs = append(rrs, &dns.AAAA{Hdr: hdr, AAAA: ip})
		}
	}
	return rrs, nil
}

// Render returns the zone text for domain, one record per line, each preceded
// by its selection description as a comment.
func Render(domain string, records []model.AnycastRecord) (string, error) {
	rrs, err := Records(domain, records)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "$ORIGIN %s\n$TTL %d\n", dns.Fqdn(strings.ToLower(domain)), model.AnycastTTL)
	i := 0
	for _, rec := range records {
		if rec.Value == nil || *rec.Value == "" {
			if rec.Error != "" {
				fmt.Fprintf(&b, "; %s: %s\n", rec.Name, rec.Error)
			}
			continue
		}
		if rec.Description != "" {
			fmt.Fprintf(&b, "; %s\n", rec.Description)
		}
		b.WriteString(rrs[i].String())
		b.WriteByte('\n')
		i++
	}
	return b.String(), nil
}
