// Package saga records the registration history of resolver nodes: connects,
// address changes, assignments and deletions, grouped by saga id.
package saga

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID        string            `json:"id"`
	SagaID    string            `json:"sagaId"`
	NodeID    string            `json:"nodeId"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // connect, poll, api
	Action    string            `json:"action"` // step.start, step.complete, step.failed, node.assigned, ...
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
	ListBySaga(ctx context.Context, sagaID string) ([]Event, error)
	ListByNode(ctx context.Context, nodeID string, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// Saga logs the steps of one registration flow for a node.
type Saga struct {
	ID     string
	NodeID string
	Source string
	store  Store
}

func New(store Store, nodeID, source string) *Saga {
	return &Saga{
		ID:     uuid.New().String(),
		NodeID: nodeID,
		Source: source,
		store:  store,
	}
}

func (s *Saga) Log(ctx context.Context, action, message string, metadata map[string]string) error {
	if s == nil || s.store == nil {
		return nil
	}
	evt := &Event{
		ID:        uuid.New().String(),
		SagaID:    s.ID,
		NodeID:    s.NodeID,
		Timestamp: time.Now(),
		Source:    s.Source,
		Action:    action,
		Message:   message,
		Metadata:  metadata,
	}
	return s.store.Append(ctx, evt)
}

func (s *Saga) StepStart(ctx context.Context, step string) error {
	return s.Log(ctx, "step.start", step+" started", map[string]string{"step": step})
}

func (s *Saga) StepComplete(ctx context.Context, step string, d time.Duration) error {
	return s.Log(ctx, "step.complete", step+" completed", map[string]string{
		"step":       step,
		"durationMs": strconv.FormatInt(d.Milliseconds(), 10),
	})
}

func (s *Saga) StepFailed(ctx context.Context, step string, err error) error {
	return s.Log(ctx, "step.failed", step+" failed: "+err.Error(), map[string]string{
		"step":  step,
		"error": err.Error(),
	})
}
