package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetshuttle/router/internal/application/validate"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

func profileWithRules() *shuttle.Profile {
	return &shuttle.Profile{
		RouteDeviationRules: map[string][]shuttle.DeviationRule{
			"office": {
				{MinDistKm: 0, MaxDistKm: 10, MaxTotalOneWayKm: 15},
				{MinDistKm: 10, MaxDistKm: 20, MaxTotalOneWayKm: 25},
			},
		},
	}
}

func TestDeviation_PassesWithinBand(t *testing.T) {
	p := profileWithRules()
	assert.True(t, validate.Deviation(p, "office", 15, 25, false))
}

func TestDeviation_FailsOverBand(t *testing.T) {
	p := profileWithRules()
	assert.False(t, validate.Deviation(p, "office", 15, 26, false))
}

func TestDeviation_NoRulesAlwaysPasses(t *testing.T) {
	p := &shuttle.Profile{}
	assert.True(t, validate.Deviation(p, "office", 50, 500, false))
}

func TestDeviation_BypassAlwaysPasses(t *testing.T) {
	p := profileWithRules()
	p.DeviationBypass = true
	assert.True(t, validate.Deviation(p, "office", 15, 9999, false))
}

func TestDeviation_UnroutedPassTightenedTolerance(t *testing.T) {
	// Scenario from the literal boundary case: a single band with a 20km
	// one-way limit, so the unrouted-pass tolerance is min(5% of 20km, 2km)
	// = 1km.
	p := &shuttle.Profile{
		RouteDeviationRules: map[string][]shuttle.DeviationRule{
			"office": {{MinDistKm: 0, MaxDistKm: 100, MaxTotalOneWayKm: 20}},
		},
	}

	assert.True(t, validate.Deviation(p, "office", 5, 20.5, true), "20.5 is within the 1km tolerance of a 20km limit")
	assert.False(t, validate.Deviation(p, "office", 5, 22, true), "22 exceeds both the limit and its tolerance")
	assert.False(t, validate.Deviation(p, "office", 5, 21, false), "main pass has no tolerance at all")
}

func TestDeviation_BeyondAllBandsUsesHighest(t *testing.T) {
	p := profileWithRules()
	assert.True(t, validate.Deviation(p, "office", 1000, 25, false))
	assert.False(t, validate.Deviation(p, "office", 1000, 26, false))
}
