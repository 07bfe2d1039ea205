package saga

import (
	"fmt"
	"strings"
)

// Timeline renders node events as text, one line per event:
//
//	09:30:15 connect  ✓ geolocate completed (12ms)
//
// Events must already be oldest first.
type Timeline struct {
	// ShowNode adds a short node id column, for listings that mix nodes.
	ShowNode bool
}

func (t Timeline) Format(events []Event) string {
	layout := "15:04:05"
	if len(events) > 1 {
		first, last := events[0].Timestamp, events[len(events)-1].Timestamp
		if first.YearDay() != last.YearDay() || first.Year() != last.Year() {
			layout = "Jan 02 15:04:05"
		}
	}

	var b strings.Builder
	for _, evt := range events {
		b.WriteString(evt.Timestamp.Format(layout))
		if t.ShowNode {
			fmt.Fprintf(&b, " %-8s", shortID(evt.NodeID))
		}
		fmt.Fprintf(&b, " %-8s %s %s", evt.Source, mark(evt.Action), evt.Message)
		if ms := evt.Metadata["durationMs"]; ms != "" {
			fmt.Fprintf(&b, " (%sms)", ms)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func mark(action string) string {
	switch action {
	case "step.start":
		return "▶"
	case "step.complete", "node.assigned", "node.connect":
		return "✓"
	case "step.failed":
		return "✗"
	case "node.ip_changed":
		return "↻"
	case "node.created":
		return "+"
	case "node.deleted":
		return "-"
	default:
		return "·"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
