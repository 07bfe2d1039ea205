package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"

	"edgeroute/api/hub"
	"edgeroute/api/model"
)

var (
	activeNodes      atomic.Int64
	deactivatedTotal = metrics.NewCounter("edgeroute_nodes_deactivated_total")
	activatedTotal   = metrics.NewCounter("edgeroute_nodes_activated_total")
	_                = metrics.NewGauge("edgeroute_nodes_active", func() float64 {
		return float64(activeNodes.Load())
	})
)

// NodeStore is what the monitor reads and writes. SetNodeActive must only
// write when the stored flag still equals expected, and report whether it did.
type NodeStore interface {
	ListNodes(ctx context.Context) ([]model.ResolverNode, error)
	SetNodeActive(ctx context.Context, id string, active, expected bool) (bool, error)
}

// Broadcaster receives status change events. *hub.Hub satisfies it.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

type Status struct {
	State              model.NodeStatus `json:"status"`
	Active             bool             `json:"active"`
	LastSeenMinutesAgo *int             `json:"lastSeenMinutesAgo,omitempty"`
}

// Evaluate derives a node's status from its last heartbeat. A node that never
// sent one is pending until it connects and inactive afterwards.
func Evaluate(n model.ResolverNode, now time.Time) Status {
	if n.LastHeartbeat == nil {
		if n.Connected {
			return Status{State: model.NodeStatusInactive}
		}
		return Status{State: model.NodeStatusPending}
	}

	since := now.Sub(*n.LastHeartbeat)
	mins := int(since / time.Minute)
	st := Status{LastSeenMinutesAgo: &mins}
	if since < n.Threshold() {
		st.State = model.NodeStatusActive
		st.Active = true
	} else {
		st.State = model.NodeStatusInactive
	}
	return st
}

type Report struct {
	Checked     int      `json:"checkedCount"`
	Active      int      `json:"activeCount"`
	Inactive    int      `json:"inactiveCount"`
	Deactivated []string `json:"deactivated"`
	Activated   []string `json:"activated"`
}

type Monitor struct {
	Nodes   NodeStore
	WS      Broadcaster
	Timeout time.Duration
	Now     func() time.Time
}

// Reconcile evaluates every node and flips the stored active flag where it
// disagrees. Failed flips are reported after all nodes were checked.
func (m *Monitor) Reconcile(ctx context.Context) (Report, error) {
	listCtx, cancel := context.WithTimeout(ctx, m.timeout())
	nodes, err := m.Nodes.ListNodes(listCtx)
	cancel()
	if err != nil {
		return Report{}, fmt.Errorf("health: list nodes: %w", err)
	}

	now := m.now()
	rep := Report{Checked: len(nodes), Deactivated: []string{}, Activated: []string{}}
	var errs *multierror.Error

	for _, n := range nodes {
		st := Evaluate(n, now)
		if st.Active {
			rep.Active++
		} else {
			rep.Inactive++
		}
		if n.Active == st.Active {
			continue
		}

		changed, err := m.setActive(ctx, n.ID, st.Active, n.Active)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("set node %s active=%t: %w", n.ID, st.Active, err))
			continue
		}
		if !changed {
			continue
		}

		evt := "node.activated"
		if st.Active {
			rep.Activated = append(rep.Activated, n.ID)
			activatedTotal.Inc()
		} else {
			evt = "node.deactivated"
			rep.Deactivated = append(rep.Deactivated, n.ID)
			deactivatedTotal.Inc()
		}
		slog.Info("health: node status changed", "node", n.ID, "name", n.Name, "status", st.State)
		if m.WS != nil {
			m.WS.Broadcast(hub.Event{
				Type:    evt,
				Subject: n.ID,
				Payload: map[string]interface{}{
					"name":   n.Name,
					"status": st.State,
				},
			})
		}
	}

	activeNodes.Store(int64(rep.Active))
	return rep, errs.ErrorOrNil()
}

func (m *Monitor) setActive(ctx context.Context, id string, active, expected bool) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout())
	defer cancel()
	return m.Nodes.SetNodeActive(ctx, id, active, expected)
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Monitor) timeout() time.Duration {
	if m.Timeout <= 0 {
		return 5 * time.Second
	}
	return m.Timeout
}
