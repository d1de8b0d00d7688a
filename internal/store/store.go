// Package store declares the external collaborator interfaces the core
// depends on (§6 "The core consumes"): the Place store, Direction store,
// and clock. The travel-time provider interface lives in
// internal/planner/timematrix. The relational/spatial store itself is
// an external collaborator consumed only at these boundaries; this package
// holds no persistence logic of its own.
package store

import (
	"context"
	"time"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

// PlaceFilter narrows a type/region-matched Place query, per §4.4 step 2.
type PlaceFilter struct {
	Types        []string
	Regions      []string
	Corridor     *planner.Corridor
	BufferMeters float64
	Limit        int
}

// RegionFilter narrows a region-matched Place query, per §4.4 step 3.
type RegionFilter struct {
	Regions      []string
	Corridor     *planner.Corridor
	BufferMeters float64
	Limit        int
}

// PlaceStore resolves Place records for the POI Generator (C4).
type PlaceStore interface {
	FindByUUIDs(ctx context.Context, uuids []string) ([]planner.Place, error)
	FindByTypeAndCorridor(ctx context.Context, f PlaceFilter) ([]planner.Place, error)
	FindByRegionsAndCorridor(ctx context.Context, f RegionFilter) ([]planner.Place, error)
}

// DirectionQuery narrows a Direction store lookup, per §6.
type DirectionQuery struct {
	Tags              []string
	Limit             int
	IncludeDeprecated bool
}

// DirectionStore resolves RouteDirection records for the Direction Selector
// (C5).
type DirectionStore interface {
	FindByCountry(ctx context.Context, countryCode string, q DirectionQuery) ([]planner.RouteDirection, error)
}

// Clock resolves the current instant and interprets day-local "HH:MM"
// strings against an IANA timezone, per §6 "Clock / timezone".
type Clock interface {
	Now() time.Time
	LoadLocation(tz string) (*time.Location, error)
}

// SystemClock is the production Clock backed by the Go runtime clock and
// tzdata.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) LoadLocation(tz string) (*time.Location, error) {
	return time.LoadLocation(tz)
}
