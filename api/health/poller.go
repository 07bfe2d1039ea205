package health

import (
	"context"
	"log/slog"
	"time"
)

// EventPruner deletes registration events older than a cutoff.
type EventPruner interface {
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// Poller periodically reconciles node health so nodes that stop polling are
// marked inactive even when no other node is polling.
type Poller struct {
	Monitor   *Monitor
	Events    EventPruner
	Interval  time.Duration
	Retention time.Duration
}

// Run starts the reconcile loop. It blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.Interval == 0 {
		p.Interval = 30 * time.Second
	}
	if p.Retention == 0 {
		p.Retention = 30 * 24 * time.Hour
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(1 * time.Hour)
	defer pruneTicker.Stop()

	// Run once immediately on start
	p.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcile(ctx)
		case <-pruneTicker.C:
			if p.Events == nil {
				continue
			}
			n, err := p.Events.PruneBefore(ctx, time.Now().Add(-p.Retention))
			if err != nil {
				slog.Error("health: prune error", "err", err)
			} else if n > 0 {
				slog.Info("health: pruned old events", "count", n)
			}
		}
	}
}

func (p *Poller) reconcile(ctx context.Context) {
	rep, err := p.Monitor.Reconcile(ctx)
	if err != nil {
		slog.Error("health: reconcile error", "err", err)
	}
	if len(rep.Deactivated) > 0 || len(rep.Activated) > 0 {
		slog.Info("health: reconciled",
			"checked", rep.Checked,
			"active", rep.Active,
			"inactive", rep.Inactive,
			"deactivated", rep.Deactivated,
			"activated", rep.Activated,
		)
	}
}
