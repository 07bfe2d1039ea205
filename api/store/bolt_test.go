package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"edgeroute/api/model"
)

func openTestBolt(t *testing.T) *BoltDB {
	t.Helper()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "edgeroute.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltHealthy(t *testing.T) {
	db := openTestBolt(t)
	if err := db.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy: %v", err)
	}
}

func TestBoltNodeLifecycle(t *testing.T) {
	testNodeLifecycle(t, openTestBolt(t), "bolt")
}

func TestBoltDomainVersioning(t *testing.T) {
	testDomainVersioning(t, openTestBolt(t), "bolt")
}

func TestBoltMissingRecords(t *testing.T) {
	db := openTestBolt(t)
	ctx := context.Background()

	if n, err := db.GetNode(ctx, "nope"); n != nil || err != nil {
		t.Errorf("GetNode = %v, %v; want nil, nil", n, err)
	}
	if n, err := db.GetNodeByToken(ctx, ""); n != nil || err != nil {
		t.Errorf("GetNodeByToken(\"\") = %v, %v; want nil, nil", n, err)
	}
	if err := db.MarkConnected(ctx, "nope", time.Now()); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("MarkConnected = %v, want ErrNotFound", err)
	}
	if changed, err := db.SetNodeActive(ctx, "nope", true, false); changed || err != nil {
		t.Errorf("SetNodeActive = %v, %v; want false, nil", changed, err)
	}
}

func TestBoltListOrder(t *testing.T) {
	db := openTestBolt(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Inserted out of id order; listing follows creation time.
	for i, id := range []string{"zeta", "alpha", "mid"} {
		n := &model.ResolverNode{ID: id, Key: "k", CreatedAt: base.AddDate(0, 0, i+1)}
		if err := db.InsertNode(ctx, n); err != nil {
			t.Fatalf("InsertNode: %v", err)
		}
	}
	nodes, err := db.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, n := range nodes {
		if n.ID != want[i] {
			t.Errorf("nodes[%d] = %s, want %s", i, n.ID, want[i])
		}
	}
	if err := db.InsertNode(ctx, &model.ResolverNode{ID: "zeta"}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("duplicate InsertNode = %v, want ErrConflict", err)
	}
}

// Concurrent writers that reload on conflict must not lose each other's
// appends.
func TestBoltConcurrentDomainSaves(t *testing.T) {
	db := openTestBolt(t)
	ctx := context.Background()
	d := &model.RoutingDomain{
		ID: "dom", Name: "cdn.example.com", Active: true,
		Locations: []model.LocationRecord{{Code: "europe", Type: model.LocationContinent}},
	}
	if err := db.InsertDomain(ctx, d); err != nil {
		t.Fatalf("InsertDomain: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				cur, err := db.GetDomain(ctx, "dom")
				if err != nil {
					errs <- err
					return
				}
				cur.Locations[0].AddNode(id)
				err = db.SaveDomain(ctx, cur)
				if errors.Is(err, model.ErrConflict) {
					continue
				}
				if err != nil {
					errs <- err
				}
				return
			}
		}(fmt.Sprintf("n%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("writer: %v", err)
	}

	got, _ := db.GetDomain(ctx, "dom")
	if n := len(got.Locations[0].NodeIDs); n != writers {
		t.Errorf("NodeIDs = %d, want %d", n, writers)
	}
	if got.Version != writers {
		t.Errorf("Version = %d, want %d", got.Version, writers)
	}
}
