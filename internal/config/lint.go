package config

import (
	"fmt"
	"sort"

	"github.com/fgeck/ilo-fanctl/internal/models"
)

// Lint returns non-fatal warnings about threshold tables: ranges that can
// never match because an earlier range covers them, and temperatures
// between ranges that leave the fans unchanged.
func Lint(cfg *models.FanControlConfig) []string {
	if cfg == nil {
		return nil
	}

	var warnings []string
	for i, target := range cfg.Targets {
		prefix := fmt.Sprintf("targets[%d] (%s)", i, target.Host)

		for j, r := range target.Thresholds {
			for k := 0; k < j; k++ {
				earlier := target.Thresholds[k]
				if earlier.MinTemp <= r.MinTemp && r.MaxTemp <= earlier.MaxTemp {
					warnings = append(warnings, fmt.Sprintf(
						"%s: temperature_fan_config[%d] (%d-%d) never matches, temperature_fan_config[%d] (%d-%d) covers it",
						prefix, j, r.MinTemp, r.MaxTemp, k, earlier.MinTemp, earlier.MaxTemp))
					break
				}
			}
		}

		for _, gap := range gaps(target.Thresholds) {
			warnings = append(warnings, fmt.Sprintf(
				"%s: temperatures %d-%d match no range, fans are left unchanged", prefix, gap[0], gap[1]))
		}
	}

	return warnings
}

// gaps returns the uncovered intervals between the lowest and highest bound.
func gaps(ranges []models.ThresholdRange) [][2]int {
	if len(ranges) < 2 {
		return nil
	}

	sorted := make([]models.ThresholdRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].MinTemp < sorted[b].MinTemp })

	var result [][2]int
	covered := sorted[0].MaxTemp
	for _, r := range sorted[1:] {
		if r.MinTemp > covered+1 {
			result = append(result, [2]int{covered + 1, r.MinTemp - 1})
		}
		if r.MaxTemp > covered {
			covered = r.MaxTemp
		}
	}
	return result
}
