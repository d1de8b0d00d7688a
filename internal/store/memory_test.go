package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

func TestMemoryPlaceStore_FindByUUIDsReturnsOnlyRequested(t *testing.T) {
	s := NewMemoryPlaceStore([]planner.Place{{UUID: "a"}, {UUID: "b"}, {UUID: "c"}})
	out, err := s.FindByUUIDs(context.Background(), []string{"a", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestMemoryPlaceStore_FindByTypeAndCorridorFiltersByTypeAndRegion(t *testing.T) {
	places := []planner.Place{
		{UUID: "p1", Metadata: planner.PlaceMetadata{CanonicalType: "museum", RegionKey: "kansai"}},
		{UUID: "p2", Metadata: planner.PlaceMetadata{CanonicalType: "museum", RegionKey: "kanto"}},
		{UUID: "p3", Metadata: planner.PlaceMetadata{CanonicalType: "food", RegionKey: "kansai"}},
	}
	s := NewMemoryPlaceStore(places)

	out, err := s.FindByTypeAndCorridor(context.Background(), PlaceFilter{Types: []string{"museum"}, Regions: []string{"kansai"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].UUID)
}

func TestMemoryPlaceStore_RespectsLimit(t *testing.T) {
	places := []planner.Place{
		{UUID: "p1", Metadata: planner.PlaceMetadata{CanonicalType: "museum"}},
		{UUID: "p2", Metadata: planner.PlaceMetadata{CanonicalType: "museum"}},
	}
	s := NewMemoryPlaceStore(places)
	out, err := s.FindByTypeAndCorridor(context.Background(), PlaceFilter{Types: []string{"museum"}, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestMemoryDirectionStore_ExcludesDeprecatedUnlessIncluded(t *testing.T) {
	dirs := []planner.RouteDirection{
		{UUID: "active", CountryCode: "JP", Status: planner.DirectionActive},
		{UUID: "deprecated", CountryCode: "JP", Status: planner.DirectionDeprecated},
	}
	s := NewMemoryDirectionStore(dirs)

	out, err := s.FindByCountry(context.Background(), "JP", DirectionQuery{})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	out, err = s.FindByCountry(context.Background(), "JP", DirectionQuery{IncludeDeprecated: true})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
