// Package router implements the C6 Data-Source Router: a registry of
// country-scoped adapters (weather, road status, transport/ferry schedules)
// with priority-ordered dispatch and a per-(kind, countryCode) memo, plus the
// concurrent safety-assessment fan-out built on top of it.
package router

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

// ServiceKind names one of the data sources the router dispatches to.
type ServiceKind string

const (
	KindWeather           ServiceKind = "weather"
	KindRoadStatus        ServiceKind = "roadStatus"
	KindTransportSchedule ServiceKind = "transportSchedule"
	KindFerrySchedule     ServiceKind = "ferrySchedule"
)

// wildcardCountry is the adapter-registration value meaning "any country".
const wildcardCountry = "*"

// Query is one dispatch request: a location to resolve a country for, plus
// whatever the adapter needs to answer (dates, route ids, etc. travel via
// Params).
type Query struct {
	Geo         planner.GeoPoint
	CountryCode string // if already known; empty triggers ReverseGeocodeCountry
	Params      map[string]any
}

// Adapter is one country-scoped data source implementation.
type Adapter interface {
	Name() string
	Kind() ServiceKind
	SupportedCountries() []string
	Priority() int // lower wins
	Fetch(ctx context.Context, q Query) (map[string]any, error)
}

type memoKey struct {
	kind    ServiceKind
	country string
}

// Registry holds registered adapters and memoizes dispatch resolution for
// the process lifetime, per §4.6.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ServiceKind][]Adapter
	resolved map[memoKey]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[ServiceKind][]Adapter{},
		resolved: map[memoKey]Adapter{},
	}
}

// DefaultRegistry is the process-wide registry that internal/adapters
// implementations wire themselves into from their own init(), mirroring the
// teacher's sim/latency and sim/kv registration pattern: the owning package
// (router) exposes the var, implementation packages populate it on import.
var DefaultRegistry = NewRegistry()

// Register adds an adapter to the registry. Safe to call concurrently with
// Resolve, though registration is expected to happen at process start via
// adapter package init()s.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Kind()] = append(r.adapters[a.Kind()], a)
}

// Resolve picks the adapter that should serve countryCode for kind, per
// §4.6: among adapters whose supportedCountries contains the code, pick the
// lowest-priority one; if none matches specifically, fall back to a "*"
// adapter; if still none, return ErrNoAdapter. Resolution is memoized.
func (r *Registry) Resolve(kind ServiceKind, countryCode string) (Adapter, error) {
	key := memoKey{kind: kind, country: countryCode}

	r.mu.RLock()
	if a, ok := r.resolved[key]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.resolved[key]; ok {
		return a, nil
	}

	candidates := r.adapters[kind]
	specific := bestByPriority(candidates, countryCode, false)
	if specific != nil {
		r.resolved[key] = specific
		return specific, nil
	}
	wildcard := bestByPriority(candidates, countryCode, true)
	if wildcard != nil {
		r.resolved[key] = wildcard
		return wildcard, nil
	}
	return nil, fmt.Errorf("router: %s/%s: %w", kind, countryCode, planner.ErrNoAdapter)
}

// bestByPriority scans candidates for the lowest-priority adapter matching
// countryCode; wildcardOnly restricts the match to "*" registrations.
func bestByPriority(candidates []Adapter, countryCode string, wildcardOnly bool) Adapter {
	var best Adapter
	for _, a := range candidates {
		matched := false
		for _, c := range a.SupportedCountries() {
			if wildcardOnly {
				if c == wildcardCountry {
					matched = true
					break
				}
				continue
			}
			if c == countryCode {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if best == nil || a.Priority() < best.Priority() {
			best = a
		}
	}
	return best
}

// countryBoundingBox is a coarse reverse-geocode rule: a lat/lng rectangle
// mapped to an ISO 3166-1 alpha-2 code. Rules are evaluated in order; the
// first match wins.
type countryBoundingBox struct {
	code                         string
	minLat, maxLat, minLng, maxLng float64
}

// defaultBoundingBoxes covers the handful of regions the bundled adapters
// demonstrate; a production deployment would load this table from the
// direction/place store's region metadata instead.
var defaultBoundingBoxes = []countryBoundingBox{
	{code: "JP", minLat: 24.0, maxLat: 46.0, minLng: 122.0, maxLng: 146.0},
	{code: "NZ", minLat: -47.5, maxLat: -34.0, minLng: 166.0, maxLng: 179.0},
	{code: "IS", minLat: 63.0, maxLat: 67.0, minLng: -25.0, maxLng: -13.0},
	{code: "CH", minLat: 45.8, maxLat: 47.9, minLng: 5.9, maxLng: 10.5},
}

// ReverseGeocodeCountry resolves a coarse ISO country code for a point using
// the bounding-box table, returning "UNKNOWN" when nothing matches.
func ReverseGeocodeCountry(geo planner.GeoPoint) string {
	for _, box := range defaultBoundingBoxes {
		if geo.Lat >= box.minLat && geo.Lat <= box.maxLat && geo.Lng >= box.minLng && geo.Lng <= box.maxLng {
			return box.code
		}
	}
	return "UNKNOWN"
}

// SafetyResult bundles the concurrent outcome of a road/weather/transport
// fan-out for one location.
type SafetyResult struct {
	Road      map[string]any
	Weather   map[string]any
	Transport map[string]any
}

// SafetyAssessment dispatches to the road-status, weather, and
// transport-schedule adapters for q's location concurrently via errgroup,
// resolving the country code once up front if q.CountryCode is empty. A
// missing adapter for one kind does not fail the other two; its slot in the
// result stays nil and the error is returned wrapped with the kind name.
func SafetyAssessment(ctx context.Context, reg *Registry, q Query) (SafetyResult, error) {
	if q.CountryCode == "" {
		q.CountryCode = ReverseGeocodeCountry(q.Geo)
	}

	var result SafetyResult
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := dispatch(ctx, reg, KindRoadStatus, q)
		if err != nil {
			return fmt.Errorf("roadStatus: %w", err)
		}
		result.Road = data
		return nil
	})
	g.Go(func() error {
		data, err := dispatch(ctx, reg, KindWeather, q)
		if err != nil {
			return fmt.Errorf("weather: %w", err)
		}
		result.Weather = data
		return nil
	})
	g.Go(func() error {
		data, err := dispatch(ctx, reg, KindTransportSchedule, q)
		if err != nil {
			return fmt.Errorf("transportSchedule: %w", err)
		}
		result.Transport = data
		return nil
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func dispatch(ctx context.Context, reg *Registry, kind ServiceKind, q Query) (map[string]any, error) {
	a, err := reg.Resolve(kind, q.CountryCode)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, q)
}
