// Package geo wraps the third-party spatial libraries used by the corridor
// buffer check (C4) and the robust-time-matrix fallback estimate (C1):
// github.com/kellydunn/golang-geo for point-to-point great-circle distance,
// and github.com/golang/geo/s2 for polygon containment — the same pair the
// viamrobotics-rdk motion-planning stack depends on.
package geo

import (
	"math"

	golanggeo "github.com/kellydunn/golang-geo"
	"github.com/golang/geo/s2"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

const earthRadiusM = 6371000.0

// DistanceMeters returns the great-circle distance between two WGS84 points.
func DistanceMeters(a, b planner.GeoPoint) float64 {
	pa := golanggeo.NewPoint(a.Lat, a.Lng)
	pb := golanggeo.NewPoint(b.Lat, b.Lng)
	return pa.GreatCircleDistance(pb) * 1000.0
}

// WithinCorridor reports whether p lies within bufferMeters of the given
// corridor geometry. A nil corridor always returns true (no spatial gate).
func WithinCorridor(p planner.GeoPoint, c *planner.Corridor) bool {
	if c == nil {
		return true
	}
	switch c.Type {
	case planner.CorridorPolygon:
		return withinPolygon(p, c.Polygon, c.BufferMeters)
	case planner.CorridorLineString, planner.CorridorMultiLineString:
		return withinLines(p, c.Lines, c.BufferMeters)
	default:
		return true
	}
}

func withinPolygon(p planner.GeoPoint, ring []planner.GeoPoint, bufferMeters float64) bool {
	if len(ring) < 3 {
		return true
	}
	loop := s2.LoopFromPoints(toS2Points(ring))
	pt := toS2Point(p)
	if loop.ContainsPoint(pt) {
		return true
	}
	return nearestEdgeDistance(p, ring, true) <= bufferMeters
}

func withinLines(p planner.GeoPoint, lines [][]planner.GeoPoint, bufferMeters float64) bool {
	if len(lines) == 0 {
		return true
	}
	best := math.Inf(1)
	for _, line := range lines {
		d := nearestEdgeDistance(p, line, false)
		if d < best {
			best = d
		}
	}
	return best <= bufferMeters
}

// nearestEdgeDistance returns the minimum great-circle distance in meters
// from p to any segment of the given path (or ring, when closed=true).
// Segments are projected onto a local tangent (equirectangular) plane
// centered on each segment's midpoint — accurate to a small fraction of a
// percent for the country-scale corridor radii this planner deals with,
// and far cheaper than exact geodesic segment projection.
func nearestEdgeDistance(p planner.GeoPoint, path []planner.GeoPoint, closed bool) float64 {
	if len(path) == 0 {
		return math.Inf(1)
	}
	if len(path) == 1 {
		return DistanceMeters(p, path[0])
	}
	n := len(path)
	segments := n - 1
	if closed {
		segments = n
	}
	best := math.Inf(1)
	for i := 0; i < segments; i++ {
		a := path[i]
		b := path[(i+1)%n]
		d := pointToSegmentMeters(p, a, b)
		if d < best {
			best = d
		}
	}
	return best
}

func pointToSegmentMeters(p, a, b planner.GeoPoint) float64 {
	lat0 := (a.Lat + b.Lat) / 2
	cos0 := math.Cos(lat0 * math.Pi / 180)

	toXY := func(pt planner.GeoPoint) (float64, float64) {
		x := (pt.Lng - a.Lng) * cos0 * math.Pi / 180 * earthRadiusM
		y := (pt.Lat - a.Lat) * math.Pi / 180 * earthRadiusM
		return x, y
	}

	ax, ay := toXY(a)
	bx, by := toXY(b)
	px, py := toXY(p)

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(px-cx, py-cy)
}

func toS2Point(p planner.GeoPoint) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))
}

func toS2Points(pts []planner.GeoPoint) []s2.Point {
	out := make([]s2.Point, len(pts))
	for i, p := range pts {
		out[i] = toS2Point(p)
	}
	return out
}
