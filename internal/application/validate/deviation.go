// Package validate implements the deviation rule check and the per-employee
// ETA synthesizer (together, component C9 of the pipeline).
package validate

import (
	"math"

	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

const unroutedTolerancePct = 0.05
const unroutedToleranceCapKm = 2.0
const ruleToleranceKm = 1e-6

// Deviation reports whether totalDistanceKm is within the band selected
// for facilityDistanceKm. Absence of rules or a profile-level bypass both
// pass unconditionally. unroutedPass tightens the tolerance to
// min(0.05*limit, 2.0km) for the recycler's stricter second pass.
func Deviation(profile *shuttle.Profile, facilityType string, facilityDistanceKm, totalDistanceKm float64, unroutedPass bool) bool {
	if profile.DeviationBypass {
		return true
	}

	rules := profile.RouteDeviationRules[facilityType]
	if len(rules) == 0 {
		return true
	}

	rule := selectRule(rules, facilityDistanceKm)

	if !unroutedPass {
		return totalDistanceKm <= rule.MaxTotalOneWayKm
	}

	if totalDistanceKm <= rule.MaxTotalOneWayKm {
		return true
	}
	exceedance := totalDistanceKm - rule.MaxTotalOneWayKm
	tolerance := math.Min(unroutedTolerancePct*rule.MaxTotalOneWayKm, unroutedToleranceCapKm)
	return exceedance <= tolerance
}

// selectRule picks the band containing facilityDistanceKm (with a small
// epsilon tolerance on the edges), falling back to the highest band if the
// distance exceeds every band and the lowest if it falls short of all of
// them.
func selectRule(rules []shuttle.DeviationRule, facilityDistanceKm float64) shuttle.DeviationRule {
	var highest, lowest shuttle.DeviationRule
	highestSet, lowestSet := false, false

	for _, r := range rules {
		if facilityDistanceKm >= r.MinDistKm-ruleToleranceKm && facilityDistanceKm <= r.MaxDistKm+ruleToleranceKm {
			return r
		}
		if !highestSet || r.MaxDistKm > highest.MaxDistKm {
			highest = r
			highestSet = true
		}
		if !lowestSet || r.MinDistKm < lowest.MinDistKm {
			lowest = r
			lowestSet = true
		}
	}

	if facilityDistanceKm > highest.MaxDistKm {
		return highest
	}
	return lowest
}
