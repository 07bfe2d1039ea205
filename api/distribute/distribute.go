// Package distribute turns the current roster and routing domains into
// anycast record sets and hands them to the configured publishers.
package distribute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"

	"edgeroute/api/dnszone"
	"edgeroute/api/model"
	"edgeroute/api/selector"
)

var (
	runsTotal          = metrics.NewCounter("edgeroute_publish_runs_total")
	publishedTotal     = metrics.NewCounter("edgeroute_publish_snapshots_total")
	publishErrorsTotal = metrics.NewCounter("edgeroute_publish_errors_total")
)

// Source is the read side of the node and domain stores.
type Source interface {
	ListAllDomains(ctx context.Context, activeOnly bool) ([]model.RoutingDomain, error)
	ListActiveNodesWithIP(ctx context.Context) ([]model.ResolverNode, error)
}

// Snapshot is the record set of one domain at one point in time.
type Snapshot struct {
	DomainID    string                `json:"domainId"`
	Domain      string                `json:"domain"`
	GeneratedAt time.Time             `json:"generatedAt"`
	Records     []model.AnycastRecord `json:"records"`
	Decisions   []model.Decision      `json:"-"`
	Summary     selector.Summary      `json:"summary"`
	Zone        string                `json:"-"`
}

type Publisher interface {
	Name() string
	Publish(ctx context.Context, snap Snapshot) error
}

type Distributor struct {
	Source     Source
	Publishers []Publisher
	Timeout    time.Duration
	Now        func() time.Time
}

// Build computes a snapshot for every active domain of every tenant. Each
// domain is answered from the full active roster.
func (d *Distributor) Build(ctx context.Context) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	domains, err := d.Source.ListAllDomains(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("distribute: list domains: %w", err)
	}
	roster, err := d.Source.ListActiveNodesWithIP(ctx)
	if err != nil {
		return nil, fmt.Errorf("distribute: list nodes: %w", err)
	}

	now := d.now()
	snaps := make([]Snapshot, 0, len(domains))
	for _, dom := range domains {
		snaps = append(snaps, Snap(dom, roster, now))
	}
	return snaps, nil
}

// Snap builds the snapshot of one domain. A domain whose name cannot be
// rendered as a zone still gets its records; only Zone stays empty.
func Snap(dom model.RoutingDomain, roster []model.ResolverNode, at time.Time) Snapshot {
	decisions := selector.BuildAssignments(dom, roster)
	records := selector.AnycastRecords(decisions)
	zone, err := dnszone.Render(dom.Name, records)
	if err != nil {
		slog.Warn("distribute: zone render failed", "domain", dom.Name, "err", err)
	}
	return Snapshot{
		DomainID:    dom.ID,
		Domain:      dom.Name,
		GeneratedAt: at,
		Records:     records,
		Decisions:   decisions,
		Summary:     selector.Summarize(decisions),
		Zone:        zone,
	}
}

// Run builds all snapshots and publishes each to every publisher. One
// failing publisher does not stop the others; all failures are returned
// together.
func (d *Distributor) Run(ctx context.Context) error {
	runsTotal.Inc()
	snaps, err := d.Build(ctx)
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, snap := range snaps {
		for _, p := range d.Publishers {
			pctx, cancel := context.WithTimeout(ctx, d.timeout())
			err := p.Publish(pctx, snap)
			cancel()
			if err != nil {
				publishErrorsTotal.Inc()
				errs = multierror.Append(errs, fmt.Errorf("%s: %s: %w", p.Name(), snap.Domain, err))
				continue
			}
			publishedTotal.Inc()
		}
	}
	if errs != nil {
		slog.Error("distribute: publish failed", "errors", errs.Len())
	} else if len(d.Publishers) > 0 {
		slog.Info("distribute: published", "domains", len(snaps), "publishers", len(d.Publishers))
	}
	return errs.ErrorOrNil()
}

func (d *Distributor) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Distributor) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 10 * time.Second
	}
	return d.Timeout
}
