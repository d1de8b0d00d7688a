// Package timematrix builds the robust N×N travel-time matrix (C1): raw
// point-to-point durations inflated by a multiplicative buffer, a fixed
// buffer, modal-switch penalties, and cross-region penalties.
package timematrix

import (
	"context"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/geo"
)

// Provider resolves a single point-to-point travel duration. Implementations
// may fail (network adapter, no route found); callers fall back to a
// straight-line estimate per §4.1.
type Provider interface {
	Duration(ctx context.Context, from, to planner.GeoPoint, mode planner.TravelMode) (minutes float64, err error)
}

// fallbackSpeedsKMH are the mode-specific straight-line speeds from §4.1.
const (
	walkSpeedKMH          = 5
	driveSpeedKMH         = 25
	transitShortSpeedKMH  = 30 // <=5km
	transitLongSpeedKMH   = 40 // >5km
	transitShortThresholdKM = 5
)

func fallbackMinutes(distM float64, mode planner.TravelMode) float64 {
	distKM := distM / 1000.0
	var speed float64
	switch mode {
	case planner.ModeWalk:
		speed = walkSpeedKMH
	case planner.ModeDrive:
		speed = driveSpeedKMH
	case planner.ModeTransit, planner.ModeMetro:
		if distKM <= transitShortThresholdKM {
			speed = transitShortSpeedKMH
		} else {
			speed = transitLongSpeedKMH
		}
	default:
		speed = walkSpeedKMH
	}
	if speed <= 0 {
		return 0
	}
	return distKM / speed * 60.0
}

// pairCache memoises T_api per (lat1,lng1,lat2,lng2,mode), read-through with
// a lock held only around the fetch of a missing key (§5).
type pairCache struct {
	mu sync.Mutex
	m  map[pairKey]float64
}

type pairKey struct {
	lat1, lng1, lat2, lng2 float64
	mode                   planner.TravelMode
}

func newPairCache() *pairCache {
	return &pairCache{m: make(map[pairKey]float64)}
}

func (c *pairCache) get(k pairKey) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[k]
	return v, ok
}

func (c *pairCache) put(k pairKey, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = v
}

// Builder produces robust time matrices against one travel-time provider.
type Builder struct {
	Provider Provider
	cache    *pairCache
	log      *logrus.Entry
}

// NewBuilder constructs a Builder. A nil provider means every pair falls
// back to the straight-line estimate (useful for tests and for the pipeline
// when upstream discovery found no provider for a corridor).
func NewBuilder(provider Provider) *Builder {
	return &Builder{
		Provider: provider,
		cache:    newPairCache(),
		log:      logrus.WithField("component", "timematrix"),
	}
}

// modeOf infers a node's travel mode from its tags, per §4.1.
func modeOf(n *planner.PlanNode) planner.TravelMode {
	for _, t := range n.Meta.Tags {
		if t == "metro" || t == "station" {
			return planner.ModeMetro
		}
	}
	return planner.ModeWalk
}

// Build computes the robust time matrix for the given ordered nodes under
// policy. ctx bounds every provider call; a context deadline causes the
// remaining unresolved pairs to use the fallback estimate rather than
// failing the whole build (§5 "children... yield to the deadline by
// returning the most recent best-effort value").
func (b *Builder) Build(ctx context.Context, nodes []planner.PlanNode, policy planner.TransportPolicy) *planner.RobustTimeMatrix {
	n := len(nodes)
	m := &planner.RobustTimeMatrix{
		Unit:   "minute",
		Base:   "api_duration",
		Policy: policy,
		Matrix: makeGrid(n),
		Components: planner.MatrixComponents{
			API:         makeGrid(n),
			Buffer:      makeGrid(n),
			Fixed:       makeGrid(n),
			Switch:      makeGrid(n),
			CrossRegion: makeGrid(n),
		},
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			api := b.apiMinutes(ctx, nodes[i], nodes[j])
			sw := switchMinutes(policy, modeOf(&nodes[i]), modeOf(&nodes[j]))
			cross := crossRegionMinutes(policy, nodes[i], nodes[j])

			alpha := policy.BufferFactor
			if alpha == 0 {
				alpha = 1.0
			}
			buffer := api*alpha - api
			fixed := policy.FixedBufferMin

			m.Components.API[i][j] = api
			m.Components.Buffer[i][j] = buffer
			m.Components.Fixed[i][j] = fixed
			m.Components.Switch[i][j] = sw
			m.Components.CrossRegion[i][j] = cross
			m.Matrix[i][j] = math.Round(api*alpha + fixed + sw + cross)
		}
	}
	return m
}

func (b *Builder) apiMinutes(ctx context.Context, from, to planner.PlanNode) float64 {
	mode := modeOf(&to)
	key := pairKey{from.Geo.Lat, from.Geo.Lng, to.Geo.Lat, to.Geo.Lng, mode}
	if v, ok := b.cache.get(key); ok {
		return v
	}

	b.cache.mu.Lock()
	defer b.cache.mu.Unlock()
	if v, ok := b.cache.m[key]; ok {
		return v
	}

	var minutes float64
	if b.Provider != nil {
		if err := ctx.Err(); err != nil {
			b.log.WithError(err).Debug("context already done, using fallback estimate")
			minutes = fallbackMinutes(geo.DistanceMeters(from.Geo, to.Geo), mode)
		} else if v, err := b.Provider.Duration(ctx, from.Geo, to.Geo, mode); err == nil {
			minutes = v
		} else {
			b.log.WithError(err).WithFields(logrus.Fields{
				"from": from.ID, "to": to.ID,
			}).Debug("travel-time provider failed, using fallback estimate")
			minutes = fallbackMinutes(geo.DistanceMeters(from.Geo, to.Geo), mode)
		}
	} else {
		minutes = fallbackMinutes(geo.DistanceMeters(from.Geo, to.Geo), mode)
	}

	b.cache.m[key] = minutes
	return minutes
}

func switchMinutes(policy planner.TransportPolicy, from, to planner.TravelMode) float64 {
	if from == to {
		return 0
	}
	if policy.SwitchCostMin == nil {
		return 0
	}
	if v, ok := policy.SwitchCostMin[string(from)+">"+string(to)]; ok {
		return v
	}
	return 0
}

func crossRegionMinutes(policy planner.TransportPolicy, from, to planner.PlanNode) float64 {
	if from.Meta.RegionID == "" || to.Meta.RegionID == "" {
		return 0
	}
	if from.Meta.RegionID == to.Meta.RegionID {
		return 0
	}
	return policy.CrossRegionCostMin
}

func makeGrid(n int) [][]float64 {
	g := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
	}
	return g
}
