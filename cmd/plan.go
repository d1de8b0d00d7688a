package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/cache"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/direction"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/pipeline"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/poi"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/timematrix"
	"github.com/xudanli/tripnaraht-sub005/internal/planner/trace"
	"github.com/xudanli/tripnaraht-sub005/internal/store"
)

var (
	planRequestPath string
	directionsPath  string
	placesPath      string
	countryCode     string
	month           int
	preferences     string
	pace            string
	riskTolerance   string
	regionsFlag     string
	bufferMeters    float64
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Solve one day's itinerary from a PlanRequest document",
	Run:   runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planRequestPath, "request", "-", "Path to a PlanRequest JSON document, or - for stdin")
	planCmd.Flags().StringVar(&directionsPath, "directions", "", "Optional path to a JSON array of RouteDirection records")
	planCmd.Flags().StringVar(&placesPath, "places", "", "Optional path to a JSON array of Place records")
	planCmd.Flags().StringVar(&countryCode, "country", "", "Country code for direction selection")
	planCmd.Flags().IntVar(&month, "month", 0, "1-12 month for seasonality scoring, 0 for unknown")
	planCmd.Flags().StringVar(&preferences, "preferences", "", "Comma-separated preference tags")
	planCmd.Flags().StringVar(&pace, "pace", "", "relaxed | moderate | intense")
	planCmd.Flags().StringVar(&riskTolerance, "risk", "", "low | medium | high")
	planCmd.Flags().StringVar(&regionsFlag, "regions", "", "Comma-separated explicit region filter for candidate generation")
	planCmd.Flags().Float64Var(&bufferMeters, "buffer-meters", 0, "Corridor buffer radius, defaults to 50km")
}

func runPlan(cmd *cobra.Command, args []string) {
	planReq, err := readPlanRequest(planRequestPath)
	if err != nil {
		fatal(err)
	}

	directions, err := readDirections(directionsPath)
	if err != nil {
		fatal(err)
	}
	places, err := readPlaces(placesPath)
	if err != nil {
		fatal(err)
	}

	sel := direction.NewSelector(store.NewMemoryDirectionStore(directions))
	gen := poi.NewGenerator(store.NewMemoryPlaceStore(places))
	matrix := timematrix.NewBuilder(nil)
	c := cache.NewTwoTier(cache.NewMapBackend())
	traces, err := trace.NewStore(256)
	if err != nil {
		fatal(err)
	}
	p := pipeline.New(sel, gen, matrix, c, traces)

	var regions []string
	if regionsFlag != "" {
		regions = strings.Split(regionsFlag, ",")
	}
	var prefs []string
	if preferences != "" {
		prefs = strings.Split(preferences, ",")
	}

	result, err := p.PlanDay(cmd.Context(), pipeline.Request{
		Plan: planReq,
		Intent: planner.UserIntent{
			Preferences:   prefs,
			Pace:          pace,
			RiskTolerance: riskTolerance,
		},
		CountryCode:  countryCode,
		Month:        month,
		Regions:      regions,
		BufferMeters: bufferMeters,
	})
	if err != nil {
		fatal(err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func readPlanRequest(path string) (planner.PlanRequest, error) {
	data, err := readAll(path)
	if err != nil {
		return planner.PlanRequest{}, err
	}
	var req planner.PlanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return planner.PlanRequest{}, fmt.Errorf("decode plan request: %w", err)
	}
	return req, nil
}

func readDirections(path string) ([]planner.RouteDirection, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directions: %w", err)
	}
	var dirs []planner.RouteDirection
	if err := json.Unmarshal(data, &dirs); err != nil {
		return nil, fmt.Errorf("decode directions: %w", err)
	}
	for i := range dirs {
		dirs[i].NormalizeTags()
	}
	return dirs, nil
}

func readPlaces(path string) ([]planner.Place, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read places: %w", err)
	}
	var places []planner.Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil, fmt.Errorf("decode places: %w", err)
	}
	return places, nil
}

func readAll(path string) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
