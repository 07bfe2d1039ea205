package saga

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"
)

var eventsBucket = []byte("events")

// BoltStore keeps events in the "events" bucket of a store.BoltDB file.
// Keys are the big-endian event time followed by the event id, so cursor
// order is time order.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func eventKey(ts time.Time, id string) []byte {
	k := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(k, uint64(ts.UnixNano()))
	return append(k, id...)
}

func (s *BoltStore) Append(ctx context.Context, evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(eventsBucket).Put(eventKey(evt.Timestamp, evt.ID), data)
	})
}

func (s *BoltStore) ListBySaga(ctx context.Context, sagaID string) ([]Event, error) {
	return s.scan(false, 0, func(e *Event) bool { return e.SagaID == sagaID })
}

func (s *BoltStore) ListByNode(ctx context.Context, nodeID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.scan(true, limit, func(e *Event) bool { return e.NodeID == nodeID })
}

func (s *BoltStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.scan(true, limit, func(*Event) bool { return true })
}

// scan walks the bucket oldest first, or newest first when desc is set, and
// stops after limit matches (0 means no limit).
func (s *BoltStore) scan(desc bool, limit int, match func(*Event) bool) ([]Event, error) {
	var events []Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		first, next := c.First, c.Next
		if desc {
			first, next = c.Last, c.Prev
		}
		for k, v := first(); k != nil; k, v = next() {
			var evt Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return err
			}
			if !match(&evt) {
				continue
			}
			events = append(events, evt)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	cutoff := make([]byte, 8)
	binary.BigEndian.PutUint64(cutoff, uint64(before.UnixNano()))

	var n int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], cutoff) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = int64(len(stale))
		return nil
	})
	return n, err
}
