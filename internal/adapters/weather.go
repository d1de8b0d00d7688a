// Package adapters provides sample country-scoped Data-Source Router (C6)
// adapters. Each registers itself into router.DefaultRegistry from its own
// init(), the same self-registration pattern used elsewhere in this module's
// registry-backed packages.
//
// These are reference implementations: they answer from a small static
// table rather than calling a live weather/road/transit provider, which is
// an external collaborator outside this module's scope (§1 Non-goals).
// Production deployments register real adapters the same way.
package adapters

import (
	"context"

	"github.com/xudanli/tripnaraht-sub005/internal/planner/router"
)

func init() {
	router.DefaultRegistry.Register(jpWeatherAdapter{})
	router.DefaultRegistry.Register(globalWeatherAdapter{})
}

// jpWeatherAdapter answers weather queries for Japan from a coarse seasonal
// table keyed by month, standing in for a real meteorological API.
type jpWeatherAdapter struct{}

func (jpWeatherAdapter) Name() string                { return "jp-seasonal-weather" }
func (jpWeatherAdapter) Kind() router.ServiceKind     { return router.KindWeather }
func (jpWeatherAdapter) SupportedCountries() []string { return []string{"JP"} }
func (jpWeatherAdapter) Priority() int                { return 1 }

func (jpWeatherAdapter) Fetch(_ context.Context, q router.Query) (map[string]any, error) {
	month, _ := q.Params["month"].(int)
	condition := "mild"
	switch {
	case month == 12 || month == 1 || month == 2:
		condition = "cold"
	case month >= 6 && month <= 8:
		condition = "humid"
	case month == 9:
		condition = "typhoon-risk"
	}
	return map[string]any{"source": "jp-seasonal-weather", "condition": condition}, nil
}

// globalWeatherAdapter is the wildcard fallback for countries without a
// dedicated weather adapter registered.
type globalWeatherAdapter struct{}

func (globalWeatherAdapter) Name() string                { return "global-weather-fallback" }
func (globalWeatherAdapter) Kind() router.ServiceKind     { return router.KindWeather }
func (globalWeatherAdapter) SupportedCountries() []string { return []string{"*"} }
func (globalWeatherAdapter) Priority() int                { return 100 }

func (globalWeatherAdapter) Fetch(_ context.Context, _ router.Query) (map[string]any, error) {
	return map[string]any{"source": "global-weather-fallback", "condition": "unknown"}, nil
}
