package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeroute/api/geo"
	"edgeroute/api/model"
)

func node(id, country string, coords *model.Coordinates) model.ResolverNode {
	n := model.ResolverNode{
		ID:        id,
		Name:      id,
		Active:    true,
		IPAddress: "10.0.0." + id,
	}
	if country != "" || coords != nil {
		n.Geo = &model.GeoInfo{CountryCode: country, Coordinates: coords}
	}
	return n
}

func at(lat, lon float64) *model.Coordinates {
	return &model.Coordinates{Lat: lat, Lon: lon}
}

func center(t *testing.T, code string) *model.Coordinates {
	t.Helper()
	c, ok := geo.CenterOf(code)
	require.True(t, ok, code)
	return &c
}

func TestSelectNodeNoEligibleNodes(t *testing.T) {
	inactive := node("1", "US", nil)
	inactive.Active = false
	noIP := node("2", "US", nil)
	noIP.IPAddress = ""

	assert.Nil(t, SelectNode("us", nil))
	assert.Nil(t, SelectNode("us", []model.ResolverNode{inactive, noIP}))
}

func TestSelectNodeExactMatch(t *testing.T) {
	roster := []model.ResolverNode{
		node("de", "DE", center(t, "de")),
		node("us1", "US", center(t, "us")),
		node("us2", "us", nil),
	}

	for _, code := range []string{"us", "US", " Us "} {
		d := SelectNode(code, roster)
		require.NotNil(t, d, code)
		assert.Equal(t, "us1", d.NodeID)
		assert.True(t, d.IsDirect)
		assert.False(t, d.IsLastResort)
		require.NotNil(t, d.DistanceKm)
		assert.Equal(t, 0.0, *d.DistanceKm)
	}
}

func TestSelectNodeExactMatchSkipsIneligible(t *testing.T) {
	down := node("us1", "US", center(t, "us"))
	down.Active = false
	roster := []model.ResolverNode{down, node("ca", "CA", center(t, "ca"))}

	d := SelectNode("us", roster)
	require.NotNil(t, d)
	assert.Equal(t, "ca", d.NodeID)
	assert.False(t, d.IsDirect)
}

func TestSelectNodeNearestSingleCandidate(t *testing.T) {
	roster := []model.ResolverNode{
		{ID: "A", Name: "A", Active: true, IPAddress: "1.1.1.1", Geo: &model.GeoInfo{
			CountryCode: "US",
			Coordinates: at(39.8, -98.5),
		}},
	}

	d := SelectNode("ca", roster)
	require.NotNil(t, d)
	assert.Equal(t, "A", d.NodeID)
	assert.Equal(t, "1.1.1.1", d.NodeIP)
	assert.False(t, d.IsDirect)

	ca := center(t, "ca")
	want := geo.DistanceKm(ca.Lat, ca.Lon, 39.8, -98.5)
	require.NotNil(t, d.DistanceKm)
	assert.InDelta(t, want, *d.DistanceKm, 0.5)
	assert.InDelta(t, want/2000, d.DistanceScore, 1e-9)
}

func TestSelectNodePrefersNearest(t *testing.T) {
	roster := []model.ResolverNode{
		node("us", "US", center(t, "us")),
		node("jp", "JP", center(t, "jp")),
		node("de", "DE", center(t, "de")),
	}

	d := SelectNode("fr", roster)
	require.NotNil(t, d)
	assert.Equal(t, "de", d.NodeID)

	d = SelectNode("kr", roster)
	require.NotNil(t, d)
	assert.Equal(t, "jp", d.NodeID)
}

func TestSelectNodeScoreIsCapped(t *testing.T) {
	// Both nodes sit near the antipode of Spain; the cap makes them tie.
	roster := []model.ResolverNode{
		node("a", "NZ", at(-40.4, 176.2)),
		node("b", "NZ", at(-40.5, 176.3)),
	}
	d := SelectNode("es", roster)
	require.NotNil(t, d)
	assert.Equal(t, 10.0, d.DistanceScore)
	assert.Equal(t, "a", d.NodeID)
}

func TestSelectNodeTiesKeepRosterOrder(t *testing.T) {
	de := center(t, "de")
	roster := []model.ResolverNode{
		node("first", "DE", de),
		node("second", "DE", de),
	}
	for i := 0; i < 20; i++ {
		d := SelectNode("fr", roster)
		require.NotNil(t, d)
		assert.Equal(t, "first", d.NodeID)
	}
}

func TestSelectNodeProtectedLocation(t *testing.T) {
	t.Run("only excluded country is last resort", func(t *testing.T) {
		roster := []model.ResolverNode{node("ru", "RU", center(t, "ru"))}
		d := SelectNode("ua", roster)
		require.NotNil(t, d)
		assert.Equal(t, "ru", d.NodeID)
		assert.True(t, d.IsLastResort)
		assert.False(t, d.IsDirect)
	})

	t.Run("other node preferred even when farther", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("msk", "RU", at(55.75, 37.62)),
			node("de", "DE", center(t, "de")),
		}
		d := SelectNode("UA", roster)
		require.NotNil(t, d)
		assert.Equal(t, "de", d.NodeID)
		assert.False(t, d.IsLastResort)
	})

	t.Run("unknown country is not excluded", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("ru", "RU", at(55.75, 37.62)),
			node("anon", "", nil),
		}
		d := SelectNode("ua", roster)
		require.NotNil(t, d)
		assert.Equal(t, "anon", d.NodeID)
		assert.False(t, d.IsLastResort)
	})

	t.Run("direct match wins first", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("ru", "RU", center(t, "ru")),
			node("kyiv", "UA", center(t, "ua")),
		}
		d := SelectNode("ua", roster)
		require.NotNil(t, d)
		assert.Equal(t, "kyiv", d.NodeID)
		assert.True(t, d.IsDirect)
		assert.False(t, d.IsLastResort)
	})

	t.Run("other locations do not exclude", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("ru", "RU", at(55.75, 37.62)),
			node("us", "US", center(t, "us")),
		}
		d := SelectNode("pl", roster)
		require.NotNil(t, d)
		assert.Equal(t, "ru", d.NodeID)
		assert.False(t, d.IsLastResort)
	})
}

func TestSelectNodeHopFallback(t *testing.T) {
	t.Run("continent target", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("jp", "JP", nil),
			node("de", "DE", nil),
		}
		d := SelectNode("europe", roster)
		require.NotNil(t, d)
		assert.Equal(t, "de", d.NodeID)
		assert.Equal(t, 0.0, d.DistanceScore)
		assert.Nil(t, d.DistanceKm)

		d = SelectNode("oceania", roster)
		require.NotNil(t, d)
		assert.Equal(t, "jp", d.NodeID)
		assert.Equal(t, 1.0, d.DistanceScore)
	})

	t.Run("country target on same continent", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("us", "US", nil),
			node("de", "DE", nil),
		}
		d := SelectNode("fr", roster)
		require.NotNil(t, d)
		assert.Equal(t, "de", d.NodeID)
		assert.Equal(t, 0.5, d.DistanceScore)
		assert.Nil(t, d.DistanceKm)
	})

	t.Run("node without geo is very far", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("anon", "", nil),
			node("br", "BR", nil),
		}
		d := SelectNode("europe", roster)
		require.NotNil(t, d)
		assert.Equal(t, "br", d.NodeID)
		assert.Equal(t, 3.0, d.DistanceScore)

		d = SelectNode("europe", roster[:1])
		require.NotNil(t, d)
		assert.Equal(t, "anon", d.NodeID)
		assert.Equal(t, float64(geo.UnknownDistance), d.DistanceScore)
	})

	t.Run("custom location has no relation", func(t *testing.T) {
		roster := []model.ResolverNode{
			node("de", "DE", center(t, "de")),
			node("us", "US", center(t, "us")),
		}
		d := SelectNode("edge-zone-1", roster)
		require.NotNil(t, d)
		assert.Equal(t, "de", d.NodeID)
		assert.Equal(t, float64(geo.UnknownDistance), d.DistanceScore)
	})
}

func TestSelectNodeMixedScalesCompareRawScores(t *testing.T) {
	// A km score of ~7.6 loses to a hop score of 2 even though the hop
	// candidate is on another continent.
	roster := []model.ResolverNode{
		node("au", "AU", center(t, "au")),
		node("us", "US", nil),
	}
	d := SelectNode("fr", roster)
	require.NotNil(t, d)
	assert.Equal(t, "us", d.NodeID)
	assert.Equal(t, 2.0, d.DistanceScore)
}

func TestSelectNodeDoesNotMutateRoster(t *testing.T) {
	roster := []model.ResolverNode{
		node("us", "US", center(t, "us")),
		node("de", "DE", center(t, "de")),
	}
	SelectNode("fr", roster)
	assert.Equal(t, "us", roster[0].ID)
	assert.Equal(t, "de", roster[1].ID)
}
