package territory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "agora/pkg/domain"
	"agora/pkg/platform/sentinel"
)

func seedDirectory() *InMemoryDirectory {
	d := NewInMemoryDirectory()
	d.Add(
		Territory{ID: "P1", Type: "polling_station", Name: "Station 1", ParentID: "D1"},
		Territory{ID: "D1", Type: "district", Name: "District 1", ParentID: "R1"},
		Territory{ID: "R1", Type: "region", Name: "Region 1", ParentID: "C"},
		Territory{ID: "C", Type: "country", Name: "Country"},
	)
	return d
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	d := seedDirectory()

	t.Run("computes parents and routes", func(t *testing.T) {
		p1, err := d.Resolve(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, []id.TerritoryID{"D1", "R1", "C"}, p1.Parents)

		route, ok := p1.Route("region")
		require.True(t, ok)
		assert.Equal(t, []id.TerritoryID{"P1", "D1", "R1"}, route)

		self, ok := p1.Route("polling_station")
		require.True(t, ok)
		assert.Equal(t, []id.TerritoryID{"P1"}, self)

		_, ok = p1.Route("continent")
		assert.False(t, ok)
	})

	t.Run("unknown territory", func(t *testing.T) {
		_, err := d.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		p1, err := d.Resolve(ctx, "P1")
		require.NoError(t, err)
		p1.RouteTo["region"][0] = "tampered"

		again, err := d.Resolve(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, id.TerritoryID("P1"), again.RouteTo["region"][0])
	})

	t.Run("missing parent", func(t *testing.T) {
		d.Add(Territory{ID: "orphan", Type: "district", ParentID: "ghost"})
		_, err := d.Resolve(ctx, "orphan")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestGetTerritoriesBulk(t *testing.T) {
	d := seedDirectory()
	got, err := d.GetTerritoriesBulk(context.Background(), []id.TerritoryID{"P1", "R1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Region 1", got["R1"].Name)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "territories.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"T","type":"city","name":"Town"},
		{"id":"S1","type":"polling_station","name":"School","parent_id":"T"}
	]`), 0o600))

	d := NewInMemoryDirectory()
	require.NoError(t, d.LoadSeed(path))

	s1, err := d.Resolve(context.Background(), "S1")
	require.NoError(t, err)
	route, ok := s1.Route("city")
	require.True(t, ok)
	assert.Equal(t, []id.TerritoryID{"S1", "T"}, route)
}
