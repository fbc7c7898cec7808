package validate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/application/validate"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

func tunables() shuttle.HeuristicTunables {
	return shuttle.HeuristicTunables{
		TrafficBufferPeakAM:  0.60,
		TrafficBufferMidday:  0.40,
		TrafficBufferPeakPM:  0.60,
		TrafficBufferOffPeak: 0.40,
		TrafficBufferETACap:  0.40,
	}
}

func TestSynthesizeETA_PickupWalksBackwardAndAppliesReporting(t *testing.T) {
	shift := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	route := &shuttle.Route{
		TripType: shuttle.TripPickup,
		Employees: []shuttle.RoutedEmployee{
			{Employee: &shuttle.Employee{EmpCode: "E1"}, Order: 1},
			{Employee: &shuttle.Employee{EmpCode: "E2"}, Order: 2},
		},
		Details: shuttle.RouteDetails{
			Legs: []shuttle.Leg{
				{RawDurationS: 600}, // E1 -> E2
				{RawDurationS: 300}, // E2 -> facility
			},
		},
	}

	validate.SynthesizeETA(validate.ETAInputs{
		Route:                  route,
		ShiftTime:              shift,
		ShiftHour:              9,
		ReportingTime:          10 * time.Minute,
		ServiceTimePerEmployee: 2 * time.Minute,
		Tunables:               tunables(),
	})

	// 9:00 target - 10min reporting = 8:50. E2's leg (300s * 1.40 = 420s =
	// 7min) + 2min service walked first since E2 is last (index 1).
	expectedE2 := shift.Add(-10 * time.Minute).Add(-7 * time.Minute).Add(-2 * time.Minute)
	assert.True(t, route.Employees[1].ETA.Equal(expectedE2), "E2 ETA = %v, want %v", route.Employees[1].ETA, expectedE2)

	require.True(t, route.Employees[0].ETA.Before(route.Employees[1].ETA), "earlier stop must have an earlier pickup time")
}

func TestSynthesizeETA_DropoffWalksForward(t *testing.T) {
	shift := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
	route := &shuttle.Route{
		TripType: shuttle.TripDropoff,
		Employees: []shuttle.RoutedEmployee{
			{Employee: &shuttle.Employee{EmpCode: "E1"}, Order: 1},
			{Employee: &shuttle.Employee{EmpCode: "E2"}, Order: 2},
		},
		Details: shuttle.RouteDetails{
			Legs: []shuttle.Leg{
				{RawDurationS: 300}, // facility -> E1
				{RawDurationS: 600}, // E1 -> E2
			},
		},
	}

	validate.SynthesizeETA(validate.ETAInputs{
		Route:                  route,
		ShiftTime:              shift,
		ShiftHour:              18,
		ServiceTimePerEmployee: time.Minute,
		Tunables:               tunables(),
	})

	assert.True(t, route.Employees[0].ETA.After(shift))
	assert.True(t, route.Employees[1].ETA.After(route.Employees[0].ETA))
}
