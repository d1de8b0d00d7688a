package store

import (
	"context"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/geo"
)

// MemoryPlaceStore is a slice-backed PlaceStore, suitable for tests and the
// cmd/ demo harness — a stand-in for the relational/spatial store that is an
// external collaborator in production (§1 Non-goals).
type MemoryPlaceStore struct {
	Places []planner.Place
}

// NewMemoryPlaceStore wraps a fixed slice of places.
func NewMemoryPlaceStore(places []planner.Place) *MemoryPlaceStore {
	return &MemoryPlaceStore{Places: places}
}

func (m *MemoryPlaceStore) FindByUUIDs(_ context.Context, uuids []string) ([]planner.Place, error) {
	want := make(map[string]struct{}, len(uuids))
	for _, u := range uuids {
		want[u] = struct{}{}
	}
	var out []planner.Place
	for _, p := range m.Places {
		if _, ok := want[p.UUID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryPlaceStore) FindByTypeAndCorridor(_ context.Context, f PlaceFilter) ([]planner.Place, error) {
	wantType := make(map[string]struct{}, len(f.Types))
	for _, t := range f.Types {
		wantType[t] = struct{}{}
	}
	wantRegion := make(map[string]struct{}, len(f.Regions))
	for _, r := range f.Regions {
		wantRegion[r] = struct{}{}
	}

	var out []planner.Place
	for _, p := range m.Places {
		if _, ok := wantType[p.Metadata.CanonicalType]; !ok {
			continue
		}
		if len(wantRegion) > 0 {
			if _, ok := wantRegion[p.Metadata.RegionKey]; !ok {
				continue
			}
		}
		if !withinBuffer(p.Geo, f.Corridor, f.BufferMeters) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryPlaceStore) FindByRegionsAndCorridor(_ context.Context, f RegionFilter) ([]planner.Place, error) {
	wantRegion := make(map[string]struct{}, len(f.Regions))
	for _, r := range f.Regions {
		wantRegion[r] = struct{}{}
	}

	var out []planner.Place
	for _, p := range m.Places {
		if len(wantRegion) > 0 {
			if _, ok := wantRegion[p.Metadata.RegionKey]; !ok {
				continue
			}
		}
		if !withinBuffer(p.Geo, f.Corridor, f.BufferMeters) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// withinBuffer gates a point against a corridor using the query's own
// buffer radius rather than whatever radius the corridor geometry was
// persisted with, per §4.4 "spatial distance <= bufferMeters".
func withinBuffer(p planner.GeoPoint, corridor *planner.Corridor, bufferMeters float64) bool {
	if corridor == nil {
		return true
	}
	scoped := *corridor
	scoped.BufferMeters = bufferMeters
	return geo.WithinCorridor(p, &scoped)
}

// MemoryDirectionStore is a slice-backed DirectionStore.
type MemoryDirectionStore struct {
	Directions []planner.RouteDirection
}

// NewMemoryDirectionStore wraps a fixed slice of directions.
func NewMemoryDirectionStore(directions []planner.RouteDirection) *MemoryDirectionStore {
	return &MemoryDirectionStore{Directions: directions}
}

func (m *MemoryDirectionStore) FindByCountry(_ context.Context, countryCode string, q DirectionQuery) ([]planner.RouteDirection, error) {
	var out []planner.RouteDirection
	for _, d := range m.Directions {
		if d.CountryCode != countryCode {
			continue
		}
		if d.Status == planner.DirectionDeprecated && !q.IncludeDeprecated {
			continue
		}
		out = append(out, d)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
