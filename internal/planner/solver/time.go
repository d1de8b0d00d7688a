package solver

import (
	"fmt"
	"strconv"
	"strings"
)

// parseHHMM converts a day-local "HH:MM" string to minutes since midnight.
func parseHHMM(s string) (float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("solver: invalid HH:MM %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("solver: invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("solver: invalid minute in %q: %w", s, err)
	}
	return float64(h*60 + m), nil
}

// formatHHMM converts minutes since midnight back to a "HH:MM" string,
// rounding to the nearest minute.
func formatHHMM(minutes float64) string {
	total := int(minutes + 0.5)
	if total < 0 {
		total = 0
	}
	h := (total / 60) % 24
	m := total % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}
