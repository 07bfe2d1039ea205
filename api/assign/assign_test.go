package assign

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeroute/api/model"
	"edgeroute/api/store"
)

// memDomains is an in-memory DomainStore with version checks.
type memDomains struct {
	mu        sync.Mutex
	domains   map[string]model.RoutingDomain
	order     []string
	conflicts int // SaveDomain calls to reject before accepting
	saves     int
	failWith  error
}

func newMemDomains(domains ...model.RoutingDomain) *memDomains {
	m := &memDomains{domains: map[string]model.RoutingDomain{}}
	for _, d := range domains {
		m.domains[d.ID] = clone(d)
		m.order = append(m.order, d.ID)
	}
	return m
}

func clone(d model.RoutingDomain) model.RoutingDomain {
	locs := make([]model.LocationRecord, len(d.Locations))
	for i, l := range d.Locations {
		l.NodeIDs = append([]string(nil), l.NodeIDs...)
		locs[i] = l
	}
	d.Locations = locs
	return d
}

func (m *memDomains) ListDomains(_ context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RoutingDomain
	for _, id := range m.order {
		d := m.domains[id]
		if d.TenantID != tenantID {
			continue
		}
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, clone(d))
	}
	return out, nil
}

func (m *memDomains) GetDomain(_ context.Context, id string) (*model.RoutingDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[id]
	if !ok {
		return nil, nil
	}
	c := clone(d)
	return &c, nil
}

func (m *memDomains) SaveDomain(_ context.Context, d *model.RoutingDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	cur, ok := m.domains[d.ID]
	if !ok {
		return model.ErrNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		cur.Version++
		m.domains[d.ID] = cur
		return model.ErrConflict
	}
	if cur.Version != d.Version {
		return model.ErrConflict
	}
	d.Version++
	m.saves++
	m.domains[d.ID] = clone(*d)
	return nil
}

func (m *memDomains) location(t *testing.T, domainID, code string) model.LocationRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.domains[domainID]
	loc := d.Location(code)
	require.NotNil(t, loc, code)
	return *loc
}

func domain(id, tenant string, active bool, codes ...string) model.RoutingDomain {
	d := model.RoutingDomain{ID: id, Name: id + ".example", TenantID: tenant, Active: active}
	for _, c := range codes {
		d.Locations = append(d.Locations, model.LocationRecord{Code: c, Type: model.LocationCountry})
	}
	return d
}

func usNode(id string) model.ResolverNode {
	return model.ResolverNode{ID: id, TenantID: "t1", Geo: &model.GeoInfo{CountryCode: "US"}}
}

func TestAutoAssign(t *testing.T) {
	store := newMemDomains(
		domain("a", "t1", true, "us", "north-america", "europe"),
		domain("b", "t1", true, "NORTH-AMERICA"),
		domain("c", "t1", false, "us"),
		domain("d", "t2", true, "us"),
	)
	svc := &Service{Domains: store}

	res, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "north-america"}, res.Locations)
	assert.Equal(t, 3, res.AssignedCount)
	assert.Equal(t, 2, res.Domains)
	assert.Contains(t, res.Message, "us, north-america")

	assert.Equal(t, []string{"n1"}, store.location(t, "a", "us").NodeIDs)
	assert.Equal(t, []string{"n1"}, store.location(t, "a", "north-america").NodeIDs)
	assert.Empty(t, store.location(t, "a", "europe").NodeIDs)
	assert.Equal(t, []string{"n1"}, store.location(t, "b", "north-america").NodeIDs)
	assert.Empty(t, store.location(t, "c", "us").NodeIDs, "inactive domain")
	assert.Empty(t, store.location(t, "d", "us").NodeIDs, "other tenant")
}

func TestAutoAssignIsIdempotent(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "us", "north-america"))
	svc := &Service{Domains: store}

	first, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.AssignedCount)
	assert.Equal(t, 1, store.saves)

	second, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.NoError(t, err)
	assert.Equal(t, 0, second.AssignedCount)
	assert.Equal(t, 1, store.saves, "unchanged domain must not be saved")
	assert.Equal(t, []string{"n1"}, store.location(t, "a", "us").NodeIDs)
}

func TestAutoAssignNoGeoData(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "us"))
	svc := &Service{Domains: store}

	res, err := svc.AutoAssign(context.Background(), model.ResolverNode{ID: "n1", TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AssignedCount)
	assert.Empty(t, res.Locations)
	assert.Equal(t, 0, store.saves)
}

func TestAutoAssignLoopbackUsesDefault(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "europe", "lab"))
	node := model.ResolverNode{ID: "n1", TenantID: "t1", Geo: &model.GeoInfo{
		CountryCode: model.UnknownCountryCode, Country: "Unknown", City: "Localhost",
	}}

	res, err := (&Service{Domains: store}).AutoAssign(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, []string{"europe"}, res.Locations)
	assert.Equal(t, []string{"n1"}, store.location(t, "a", "europe").NodeIDs)

	res, err = (&Service{Domains: store, DefaultLocation: "lab"}).AutoAssign(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssignedCount)
	assert.Equal(t, []string{"n1"}, store.location(t, "a", "lab").NodeIDs)
}

func TestAutoAssignRejectsEmptyID(t *testing.T) {
	svc := &Service{Domains: newMemDomains()}
	_, err := svc.AutoAssign(context.Background(), model.ResolverNode{Geo: &model.GeoInfo{CountryCode: "US"}})
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestAutoAssignRetriesConflicts(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "us"))
	store.conflicts = 2
	svc := &Service{Domains: store, MaxAttempts: 3}

	res, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssignedCount)
	assert.Equal(t, []string{"n1"}, store.location(t, "a", "us").NodeIDs)
}

func TestAutoAssignSurfacesPersistentConflict(t *testing.T) {
	store := newMemDomains(
		domain("a", "t1", true, "us"),
		domain("b", "t1", true, "us"),
	)
	store.conflicts = 3
	svc := &Service{Domains: store, MaxAttempts: 3}

	res, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConflict))
	// The second domain still commits.
	assert.Equal(t, 1, res.AssignedCount)
	assert.Empty(t, store.location(t, "a", "us").NodeIDs)
	assert.Equal(t, []string{"n1"}, store.location(t, "b", "us").NodeIDs)
}

func TestAutoAssignStoreFailure(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "us"))
	store.failWith = errors.New("connection reset")
	svc := &Service{Domains: store}

	_, err := svc.AutoAssign(context.Background(), usNode("n1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrConflict))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAutoAssignConcurrentNodes(t *testing.T) {
	store := newMemDomains(domain("a", "t1", true, "us", "north-america"))
	const nodes = 20
	svc := &Service{Domains: store, MaxAttempts: nodes + 1}

	var wg sync.WaitGroup
	errs := make(chan error, nodes*2)
	for i := 0; i < nodes; i++ {
		id := fmt.Sprintf("n%02d", i)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.AutoAssign(context.Background(), usNode(id)); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AutoAssign: %v", err)
	}

	for _, code := range []string{"us", "north-america"} {
		ids := store.location(t, "a", code).NodeIDs
		assert.Len(t, ids, nodes, code)
		seen := map[string]bool{}
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate %s in %s", id, code)
			seen[id] = true
		}
	}
}

func TestRemoveNode(t *testing.T) {
	a := domain("a", "t1", true, "us", "north-america")
	a.Locations[0].NodeIDs = []string{"n1", "n2"}
	a.Locations[1].NodeIDs = []string{"n1"}
	b := domain("b", "t1", false, "us")
	b.Locations[0].NodeIDs = []string{"n1"}
	c := domain("c", "t2", true, "us")
	c.Locations[0].NodeIDs = []string{"n1"}
	store := newMemDomains(a, b, c)
	svc := &Service{Domains: store}

	n, err := svc.RemoveNode(context.Background(), "n1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"n2"}, store.location(t, "a", "us").NodeIDs)
	assert.Empty(t, store.location(t, "a", "north-america").NodeIDs)
	assert.Empty(t, store.location(t, "b", "us").NodeIDs)
	assert.Equal(t, []string{"n1"}, store.location(t, "c", "us").NodeIDs)

	n, err = svc.RemoveNode(context.Background(), "n1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAssignmentStaysInsideTenant(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenBolt(filepath.Join(t.TempDir(), "edgeroute.db"))
	require.NoError(t, err)
	defer db.Close()

	acme := domain("acme", "acme", true, "us")
	acme.Name = "acme.example"
	require.NoError(t, db.InsertDomain(ctx, &acme))
	shared := domain("shared", "", true, "us")
	shared.Name = "shared.example"
	require.NoError(t, db.InsertDomain(ctx, &shared))

	svc := &Service{Domains: db}
	orphan := model.ResolverNode{ID: "n1", Geo: &model.GeoInfo{CountryCode: "US"}}
	res, err := svc.AutoAssign(ctx, orphan)
	require.NoError(t, err)
	assert.Equal(t, 1, res.AssignedCount)
	assert.Equal(t, 1, res.Domains)

	got, err := db.GetDomain(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, got.Location("us").NodeIDs, "node without tenant joined acme")
	got, err = db.GetDomain(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, got.Location("us").NodeIDs)

	// An acme node in both domains is only removed from acme's.
	acmeNode := model.ResolverNode{ID: "n2", TenantID: "acme", Geo: &model.GeoInfo{CountryCode: "US"}}
	_, err = svc.AutoAssign(ctx, acmeNode)
	require.NoError(t, err)
	got, _ = db.GetDomain(ctx, "shared")
	got.Location("us").AddNode("n2")
	require.NoError(t, db.SaveDomain(ctx, got))

	n, err := svc.RemoveNode(ctx, "n2", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ = db.GetDomain(ctx, "acme")
	assert.Equal(t, []string{"n2"}, got.Location("us").NodeIDs, "removal crossed into acme")
}
