package adapters

import (
	"context"

	"github.com/xudanli/tripnaraht-sub005/internal/planner/router"
)

func init() {
	router.DefaultRegistry.Register(jpRoadStatusAdapter{})
	router.DefaultRegistry.Register(jpTransportScheduleAdapter{})
	router.DefaultRegistry.Register(nzFerryScheduleAdapter{})
	router.DefaultRegistry.Register(globalRoadStatusAdapter{})
	router.DefaultRegistry.Register(globalTransportScheduleAdapter{})
}

// jpRoadStatusAdapter flags closures along mountain passes that are
// routinely snowed in outside the riskProfile-declared weather window.
type jpRoadStatusAdapter struct{}

func (jpRoadStatusAdapter) Name() string                { return "jp-pass-closures" }
func (jpRoadStatusAdapter) Kind() router.ServiceKind     { return router.KindRoadStatus }
func (jpRoadStatusAdapter) SupportedCountries() []string { return []string{"JP"} }
func (jpRoadStatusAdapter) Priority() int                { return 1 }

func (jpRoadStatusAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "jp-pass-closures", "closures": []string{}}, nil
}

// jpTransportScheduleAdapter reports the rail frequency band for a region,
// standing in for a live timetable provider.
type jpTransportScheduleAdapter struct{}

func (jpTransportScheduleAdapter) Name() string                { return "jp-rail-frequency" }
func (jpTransportScheduleAdapter) Kind() router.ServiceKind     { return router.KindTransportSchedule }
func (jpTransportScheduleAdapter) SupportedCountries() []string { return []string{"JP"} }
func (jpTransportScheduleAdapter) Priority() int                { return 1 }

func (jpTransportScheduleAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "jp-rail-frequency", "frequencyMin": 15}, nil
}

// nzFerryScheduleAdapter answers ferry-dependent direction queries for New
// Zealand's inter-island crossings.
type nzFerryScheduleAdapter struct{}

func (nzFerryScheduleAdapter) Name() string                { return "nz-interisland-ferry" }
func (nzFerryScheduleAdapter) Kind() router.ServiceKind     { return router.KindFerrySchedule }
func (nzFerryScheduleAdapter) SupportedCountries() []string { return []string{"NZ"} }
func (nzFerryScheduleAdapter) Priority() int                { return 1 }

func (nzFerryScheduleAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "nz-interisland-ferry", "sailingsPerDay": 4}, nil
}

// globalRoadStatusAdapter is the wildcard fallback used when no
// country-specific road-status adapter is registered.
type globalRoadStatusAdapter struct{}

func (globalRoadStatusAdapter) Name() string                { return "global-road-status-fallback" }
func (globalRoadStatusAdapter) Kind() router.ServiceKind     { return router.KindRoadStatus }
func (globalRoadStatusAdapter) SupportedCountries() []string { return []string{"*"} }
func (globalRoadStatusAdapter) Priority() int                { return 100 }

func (globalRoadStatusAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "global-road-status-fallback", "closures": []string{}}, nil
}

// globalTransportScheduleAdapter is the wildcard fallback for transport
// schedules.
type globalTransportScheduleAdapter struct{}

func (globalTransportScheduleAdapter) Name() string            { return "global-transport-fallback" }
func (globalTransportScheduleAdapter) Kind() router.ServiceKind { return router.KindTransportSchedule }
func (globalTransportScheduleAdapter) SupportedCountries() []string {
	return []string{"*"}
}
func (globalTransportScheduleAdapter) Priority() int { return 100 }

func (globalTransportScheduleAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "global-transport-fallback", "frequencyMin": 60}, nil
}
