// Package poi implements the Candidate POI Generator (C4): it turns a
// selected direction into a deduplicated activity pool by combining
// signature examples, type-matched places, and region-matched places,
// gated by the direction's corridor buffer.
package poi

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/store"
)

const (
	defaultBufferMeters = 50000.0
	recommendedCap      = 50
	optionalCap         = 30
)

// natureTypes / museumTypes / foodTypes classify a place's canonicalType
// for the duration/risk/sensitivity projection rules of §4.4. A type absent
// from every set falls into the "else" branch of each rule.
var natureTypes = map[string]bool{
	"nature": true, "hike": true, "trail": true, "viewpoint": true, "park": true, "onsen": true,
}
var museumTypes = map[string]bool{
	"museum": true, "gallery": true, "temple": true, "shrine": true, "historic_site": true,
}
var foodTypes = map[string]bool{
	"food": true, "restaurant": true, "market": true, "cafe": true,
}
var indoorTypes = map[string]bool{
	"museum": true, "gallery": true, "food": true, "restaurant": true, "cafe": true, "market": true,
}

// Generator produces candidate activity pools for a direction.
type Generator struct {
	Places store.PlaceStore
}

// NewGenerator wires a Generator to its Place store collaborator.
func NewGenerator(places store.PlaceStore) *Generator {
	return &Generator{Places: places}
}

// PoolEvolution summarises, step by step, how the candidate pool was built
// up — the raw data behind the §4.8 "how did the pool shrink" question.
type PoolEvolution struct {
	CoreCount        int
	RecommendedCount int
	OptionalCount    int
	DuplicatesDropped int
}

// Generate runs §4.4's three-step procedure against direction, returning a
// deduplicated (by uuid) candidate list. regions is the optional explicit
// region filter; an empty slice means "no region filter supplied", which
// unlocks step 3. bufferMeters <= 0 defaults to 50 km.
func (g *Generator) Generate(ctx context.Context, direction *planner.RouteDirection, regions []string, bufferMeters float64) ([]planner.ActivityCandidate, PoolEvolution, error) {
	if bufferMeters <= 0 {
		bufferMeters = defaultBufferMeters
	}

	seen := make(map[string]planner.PlacePriority, 64)
	ordered := make([]taggedPlace, 0, 64)
	var evo PoolEvolution

	add := func(p planner.Place, priority planner.PlacePriority) {
		if _, ok := seen[p.UUID]; ok {
			evo.DuplicatesDropped++
			return
		}
		seen[p.UUID] = priority
		ordered = append(ordered, taggedPlace{place: p, priority: priority})
	}

	if len(direction.SignaturePois.Examples) > 0 {
		core, err := g.Places.FindByUUIDs(ctx, direction.SignaturePois.Examples)
		if err != nil {
			return nil, evo, fmt.Errorf("poi: find signature examples: %w", err)
		}
		for _, p := range core {
			add(p, planner.PlaceCore)
		}
		evo.CoreCount = len(core)
	}

	if len(direction.SignaturePois.Types) > 0 {
		recommended, err := g.Places.FindByTypeAndCorridor(ctx, store.PlaceFilter{
			Types:        direction.SignaturePois.Types,
			Regions:      regions,
			Corridor:     direction.Corridor,
			BufferMeters: bufferMeters,
			Limit:        recommendedCap,
		})
		if err != nil {
			return nil, evo, fmt.Errorf("poi: find type-matched places: %w", err)
		}
		if len(recommended) > recommendedCap {
			recommended = recommended[:recommendedCap]
		}
		for _, p := range recommended {
			add(p, planner.PlaceRecommended)
		}
		evo.RecommendedCount = len(recommended)
	}

	if len(regions) == 0 && len(direction.Regions) > 0 {
		optional, err := g.Places.FindByRegionsAndCorridor(ctx, store.RegionFilter{
			Regions:      direction.Regions,
			Corridor:     direction.Corridor,
			BufferMeters: bufferMeters,
			Limit:        optionalCap,
		})
		if err != nil {
			return nil, evo, fmt.Errorf("poi: find region-matched places: %w", err)
		}
		if len(optional) > optionalCap {
			optional = optional[:optionalCap]
		}
		for _, p := range optional {
			add(p, planner.PlaceOptional)
		}
		evo.OptionalCount = len(optional)
	}

	logrus.WithFields(logrus.Fields{
		"direction": direction.UUID,
		"core":      evo.CoreCount,
		"recommended": evo.RecommendedCount,
		"optional":  evo.OptionalCount,
		"duplicates": evo.DuplicatesDropped,
		"pool":      len(ordered),
	}).Debug("poi: candidate pool assembled")

	candidates := make([]planner.ActivityCandidate, 0, len(ordered))
	for _, tp := range ordered {
		candidates = append(candidates, project(tp.place, tp.priority))
	}
	return candidates, evo, nil
}

type taggedPlace struct {
	place    planner.Place
	priority planner.PlacePriority
}

// project maps a Place onto the activity-candidate shape per §4.4's
// duration/risk/sensitivity/indoorOutdoor/intentTags/qualityScore rules.
func project(p planner.Place, priority planner.PlacePriority) planner.ActivityCandidate {
	ct := p.Metadata.CanonicalType

	return planner.ActivityCandidate{
		UUID:               p.UUID,
		Name:               p.Name,
		Geo:                p.Geo,
		Priority:           priority,
		Type:               ct,
		DurationMin:        durationFor(ct),
		RiskLevel:          riskFor(p.Metadata.ElevationM),
		WeatherSensitivity: sensitivityFor(ct),
		IndoorOutdoor:      indoorOutdoorFor(ct),
		IntentTags:         intentTagsFor(ct, p.Metadata.Tags),
		QualityScore:       qualityFor(p.Metadata.Rating),
		MustSee:            priority == planner.PlaceCore,
	}
}

func durationFor(canonicalType string) float64 {
	switch {
	case natureTypes[canonicalType]:
		return 120
	case museumTypes[canonicalType]:
		return 90
	case foodTypes[canonicalType]:
		return 60
	default:
		return 60
	}
}

func riskFor(elevationM float64) planner.RiskLevel {
	switch {
	case elevationM > 4000:
		return planner.RiskHigh
	case elevationM > 3000:
		return planner.RiskMedium
	default:
		return planner.RiskLow
	}
}

func sensitivityFor(canonicalType string) int {
	switch {
	case natureTypes[canonicalType]:
		return 3
	case museumTypes[canonicalType]:
		return 0
	default:
		return 2
	}
}

func indoorOutdoorFor(canonicalType string) string {
	if indoorTypes[canonicalType] {
		return "indoor"
	}
	if natureTypes[canonicalType] {
		return "outdoor"
	}
	return "mixed"
}

func intentTagsFor(canonicalType string, metaTags []string) []string {
	tags := make([]string, 0, len(metaTags)+1)
	tags = append(tags, metaTags...)
	switch {
	case natureTypes[canonicalType]:
		tags = append(tags, "nature")
	case museumTypes[canonicalType]:
		tags = append(tags, "culture")
	case foodTypes[canonicalType]:
		tags = append(tags, "food")
	}
	return dedupStrings(tags)
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func qualityFor(rating *float64) float64 {
	if rating == nil {
		return 0.5
	}
	return *rating / 5.0
}

// CacheKey implements §4.4's "(directionId, bufferMeters, hash(signaturePois))"
// cache key, canonicalised (sorted slices, stable float formatting) before
// hashing, per §9.
func CacheKey(directionID string, bufferMeters float64, sp planner.SignaturePOIs) string {
	var b strings.Builder
	b.WriteString(directionID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(bufferMeters, 'f', 2, 64))
	b.WriteByte('|')

	types := append([]string(nil), sp.Types...)
	sort.Strings(types)
	b.WriteString(strings.Join(types, ","))
	b.WriteByte('|')

	examples := append([]string(nil), sp.Examples...)
	sort.Strings(examples)
	b.WriteString(strings.Join(examples, ","))
	b.WriteByte('|')

	weightKeys := make([]string, 0, len(sp.Weights))
	for k := range sp.Weights {
		weightKeys = append(weightKeys, k)
	}
	sort.Strings(weightKeys)
	for _, k := range weightKeys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(sp.Weights[k], 'f', 4, 64))
		b.WriteByte(',')
	}

	sum := xxhash.Sum64String(b.String())
	return strconv.FormatUint(sum, 16)
}
