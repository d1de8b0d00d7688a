package timematrix

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

func node(id string, lat, lng float64, region string, tags ...string) planner.PlanNode {
	return planner.PlanNode{
		ID:   id,
		Geo:  planner.GeoPoint{Lat: lat, Lng: lng},
		Meta: planner.NodeMeta{RegionID: region, Tags: tags},
	}
}

func TestBuild_DiagonalIsZero(t *testing.T) {
	b := NewBuilder(nil)
	nodes := []planner.PlanNode{node("a", 0, 0, ""), node("b", 0, 1, "")}
	m := b.Build(context.Background(), nodes, planner.DefaultTransportPolicy())
	assert.Equal(t, 0.0, m.Matrix[0][0])
	assert.Equal(t, 0.0, m.Matrix[1][1])
}

func TestBuild_FallbackUsesGreatCircleAndMode(t *testing.T) {
	b := NewBuilder(nil)
	// same latitude, ~111km apart at the equator for 1 degree longitude
	nodes := []planner.PlanNode{node("a", 0, 0, ""), node("b", 0, 1, "")}
	policy := planner.TransportPolicy{BufferFactor: 1.0, FixedBufferMin: 0}
	m := b.Build(context.Background(), nodes, policy)
	// walking at 5km/h over ~111km should be a large number of minutes > 0
	assert.Greater(t, m.Matrix[0][1], 0.0)
	// with alpha 1 and no fixed buffer the cell is the API estimate rounded
	// to whole minutes
	assert.Equal(t, math.Round(m.Components.API[0][1]), m.Matrix[0][1])
}

func TestBuild_BufferFactorAndFixedBufferApplied(t *testing.T) {
	b := NewBuilder(nil)
	nodes := []planner.PlanNode{node("a", 0, 0, ""), node("b", 0, 0.01, "")}
	policyNoBuffer := planner.TransportPolicy{BufferFactor: 1.0, FixedBufferMin: 0}
	base := b.Build(context.Background(), nodes, policyNoBuffer)

	b2 := NewBuilder(nil)
	policyBuffer := planner.TransportPolicy{BufferFactor: 1.5, FixedBufferMin: 10}
	buffered := b2.Build(context.Background(), nodes, policyBuffer)

	assert.InDelta(t, base.Matrix[0][1]*1.5+10, buffered.Matrix[0][1], 1.0)
}

func TestBuild_CrossRegionPenaltyAppliedOnlyWhenBothRegionsSetAndDiffer(t *testing.T) {
	b := NewBuilder(nil)
	policy := planner.TransportPolicy{BufferFactor: 1.0, FixedBufferMin: 0, CrossRegionCostMin: 8}
	sameRegion := []planner.PlanNode{node("a", 0, 0, "r1"), node("b", 0, 0.01, "r1")}
	diffRegion := []planner.PlanNode{node("a", 0, 0, "r1"), node("b", 0, 0.01, "r2")}
	unset := []planner.PlanNode{node("a", 0, 0, ""), node("b", 0, 0.01, "r2")}

	m1 := b.Build(context.Background(), sameRegion, policy)
	m2 := b.Build(context.Background(), diffRegion, policy)
	m3 := b.Build(context.Background(), unset, policy)

	assert.Equal(t, 0.0, m1.Components.CrossRegion[0][1])
	assert.Equal(t, 8.0, m2.Components.CrossRegion[0][1])
	assert.Equal(t, 0.0, m3.Components.CrossRegion[0][1])
}

func TestBuild_ModalSwitchCost(t *testing.T) {
	b := NewBuilder(nil)
	policy := planner.TransportPolicy{
		BufferFactor:  1.0,
		SwitchCostMin: map[string]float64{"walk>metro": 5},
	}
	nodes := []planner.PlanNode{
		node("a", 0, 0, ""),
		node("b", 0, 0.01, "", "metro"),
	}
	m := b.Build(context.Background(), nodes, policy)
	assert.Equal(t, 5.0, m.Components.Switch[0][1])
	// reverse direction has no map entry -> 0
	assert.Equal(t, 0.0, m.Components.Switch[1][0])
}

type fakeProvider struct{ minutes float64 }

func (f fakeProvider) Duration(_ context.Context, _, _ planner.GeoPoint, _ planner.TravelMode) (float64, error) {
	return f.minutes, nil
}

func TestBuild_UsesProviderWhenAvailable(t *testing.T) {
	b := NewBuilder(fakeProvider{minutes: 42})
	nodes := []planner.PlanNode{node("a", 0, 0, ""), node("b", 0, 1, "")}
	policy := planner.TransportPolicy{BufferFactor: 1.0}
	m := b.Build(context.Background(), nodes, policy)
	assert.Equal(t, 42.0, m.Components.API[0][1])
}
