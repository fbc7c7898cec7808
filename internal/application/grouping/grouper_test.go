package grouping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/application/grouping"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

// alwaysOKClient approves every tentative route with a short duration,
// scaling distance by stop count so deviation rules can still reject.
type alwaysOKClient struct {
	perStopDistanceM float64
	maxStops         int
}

func (c *alwaysOKClient) Route(_ context.Context, req *roadservice.RouteRequest) (*roadservice.RouteResponse, error) {
	stops := len(req.Coordinates)
	if c.maxStops > 0 && stops > c.maxStops {
		return nil, assertErr{"too many stops for this fake backend"}
	}
	legs := make([]roadservice.RouteLeg, stops-1)
	for i := range legs {
		legs[i] = roadservice.RouteLeg{RawDurationS: 120, DurationS: 120}
	}
	return &roadservice.RouteResponse{
		DistanceM: c.perStopDistanceM * float64(stops-1),
		DurationS: 120 * float64(stops-1),
		Legs:      legs,
	}, nil
}

func (c *alwaysOKClient) Table(context.Context, *roadservice.TableRequest) (*roadservice.TableResponse, error) {
	return nil, assertErr{"not used"}
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func testDeps(client roadservice.Client, tripType shuttle.TripType) grouping.Deps {
	return grouping.Deps{
		RoadService: client,
		Facility:    &shuttle.Facility{GeoY: 0, GeoX: 0, Type: "office"},
		Profile: &shuttle.Profile{
			Name:            "testcity",
			MaxDuration:     7200,
			MaxSwapDistanceKm: 1.5,
			RouteDeviationRules: map[string][]shuttle.DeviationRule{
				"office": {{MinDistKm: 0, MaxDistKm: 100, MaxTotalOneWayKm: 50}},
			},
			Tunables: shuttle.HeuristicTunables{
				ProgressWeight:  1.0,
				PenaltyScalar:   0.5,
				DistanceWeight:  1.0,
				DistanceScalar:  1.0,
				PickupAcceptanceFactor:  2.5,
				DropoffAcceptanceFactor: 0.95,
			},
		},
		TripType:  tripType,
		ShiftHour: 9,
	}
}

func employeeAt(code string, lat, lng, distToFacility float64) *shuttle.Employee {
	return &shuttle.Employee{EmpCode: code, Lat: lat, Lng: lng, DistToFacility: distToFacility}
}

func TestFormGroups_SeedsFarthestFirstForPickup(t *testing.T) {
	client := &alwaysOKClient{perStopDistanceM: 1000}
	employees := []*shuttle.Employee{
		employeeAt("NEAR", 0.01, 0.01, 1.0),
		employeeAt("FAR", 0.5, 0.5, 40.0),
	}

	result := grouping.FormGroups(context.Background(), employees, 4, testDeps(client, shuttle.TripPickup))

	require.Len(t, result.Groups, 2, "NEAR is ~77km from FAR, beyond the 2x MaxSwapDistanceKm extension cutoff")
	assert.Equal(t, "FAR", result.Groups[0][0].EmpCode, "pickup seeds with the farthest-from-facility employee")
}

func TestFormGroups_RespectsTargetSize(t *testing.T) {
	client := &alwaysOKClient{perStopDistanceM: 500}
	employees := []*shuttle.Employee{
		employeeAt("E1", 0.01, 0.01, 5),
		employeeAt("E2", 0.02, 0.01, 6),
		employeeAt("E3", 0.03, 0.01, 7),
		employeeAt("E4", 0.04, 0.01, 8),
		employeeAt("E5", 0.05, 0.01, 9),
	}

	result := grouping.FormGroups(context.Background(), employees, 2, testDeps(client, shuttle.TripDropoff))

	for _, g := range result.Groups {
		assert.LessOrEqual(t, len(g), 2)
	}
	total := 0
	for _, g := range result.Groups {
		total += len(g)
	}
	assert.Equal(t, len(employees), total+len(result.Deferred))
}

func TestFormGroups_FailedSeedGoesToDeferred(t *testing.T) {
	// The fake backend accepts every request but reports 100km per stop, so
	// the seed's single-stop validation already breaches the 50km deviation
	// rule and the seed goes to the deferred list.
	client := &alwaysOKClient{perStopDistanceM: 100000} // 100km per stop, breaches the 50km rule
	employees := []*shuttle.Employee{employeeAt("E1", 0.01, 0.01, 5)}

	result := grouping.FormGroups(context.Background(), employees, 4, testDeps(client, shuttle.TripPickup))

	assert.Empty(t, result.Groups)
	require.Len(t, result.Deferred, 1)
	assert.Equal(t, "E1", result.Deferred[0].EmpCode)
}
