package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/api"
	"github.com/fleetshuttle/router/internal/application/orchestrator"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

const kmPerDegLat = 111.32

func kmNorth(km float64) float64 { return km / kmPerDegLat }

// geoRoadClient answers /route and /table from the real haversine distance
// between the given coordinates, at a flat 60km/h, so test geometry (lat/lng
// offsets) controls route distance directly instead of a hand-fed constant.
type geoRoadClient struct{}

func (geoRoadClient) Route(_ context.Context, req *roadservice.RouteRequest) (*roadservice.RouteResponse, error) {
	legs := make([]roadservice.RouteLeg, 0, len(req.Coordinates)-1)
	totalKm := 0.0
	for i := 1; i < len(req.Coordinates); i++ {
		km := geo.HaversineKm(req.Coordinates[i-1], req.Coordinates[i])
		totalKm += km
		legs = append(legs, roadservice.RouteLeg{RawDurationS: km * 60, DurationS: km * 60})
	}
	return &roadservice.RouteResponse{DistanceM: totalKm * 1000, DurationS: totalKm * 60, RawDurationS: totalKm * 60, Legs: legs}, nil
}

func (geoRoadClient) Table(_ context.Context, req *roadservice.TableRequest) (*roadservice.TableResponse, error) {
	distances := make([][]float64, len(req.SourceIndices))
	durations := make([][]float64, len(req.SourceIndices))
	for i, src := range req.SourceIndices {
		distances[i] = make([]float64, len(req.DestIndices))
		durations[i] = make([]float64, len(req.DestIndices))
		for j, dst := range req.DestIndices {
			km := geo.HaversineKm(req.Coordinates[src], req.Coordinates[dst])
			distances[i][j] = km * 1000
			durations[i][j] = km * 60
		}
	}
	return &roadservice.TableResponse{DistancesM: distances, DurationsS: durations}, nil
}

// passthroughSolver returns the customers in matrix order as a single
// route, honoring any fixed-start/end pin; it never drops.
type passthroughSolver struct{}

func (passthroughSolver) Solve(_ context.Context, p *vrp.Problem) (*vrp.Solution, error) {
	n := len(p.DistanceMatrix) - 1
	route := make([]int, n)
	for i := range route {
		route[i] = i + 1
	}
	return &vrp.Solution{Routes: [][]int{route}}, nil
}

func baseProfile() *shuttle.Profile {
	return &shuttle.Profile{
		Name:                "testcity",
		Fleet:               []shuttle.VehicleClass{{Type: "s", Capacity: 4, Count: 10}, {Type: "m", Capacity: 6, Count: 10}},
		DefaultZoneCapacity: 6,
		MaxDuration:         7200,
		DirectionPenaltyWeightSolve: 2.0,
		DirectionPenaltyWeightReopt: 0.5,
		MaxSwapDistanceKm:         1.5,
		SwapDurationRegressionCap: 0.25,

		ImpossibleDistanceThresholdKm:    50,
		ForceSingletonDistanceKm:         40,
		UnroutedMaxGroupDistanceKm:       5,
		UnroutedMaxConsecutiveDistanceKm: 5,
		UnroutedMaxGroupSpanKm:           12,
		MaxUnroutedProcessingAttempts:    3,
		MaxTrimAttemptsPerGroup:          3,

		Tunables: shuttle.HeuristicTunables{
			ProgressWeight:          1.0,
			PenaltyScalar:           0.5,
			DistanceWeight:          1.0,
			DistanceScalar:          1.0,
			PickupAcceptanceFactor:  2.5,
			DropoffAcceptanceFactor: 0.95,
			TrafficBufferETACap:     0.40,
		},
	}
}

func newHandler(profile *shuttle.Profile) *orchestrator.Handler {
	return orchestrator.NewHandler(orchestrator.Deps{
		RoadService: geoRoadClient{},
		Solver:      passthroughSolver{},
		Profile:     profile,
	})
}

func baseRequest(tripType string) *api.RoutingRequest {
	return &api.RoutingRequest{
		UUID:      "req-1",
		Date:      "2026-07-30",
		ShiftTime: "0900",
		TripType:  tripType,
		Facility:  api.FacilityInput{GeoX: 0, GeoY: 0, Type: "office"},
		Guard:     true,
	}
}

// 1. A single employee on a pickup route gets one route with one employee,
// the smallest fleet tier able to carry them, and a pickup ETA derived by
// walking backward from the shift time.
func TestRoute_SingleEmployeePickup(t *testing.T) {
	req := baseRequest("PICKUP")
	req.Guard = false
	req.Employees = []api.EmployeeInput{{EmpCode: "E1", GeoY: kmNorth(2), GeoX: 0, Gender: "M"}}

	resp, err := newHandler(baseProfile()).Route(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)
	route := resp.Routes[0]
	assert.Len(t, route.Employees, 1)
	assert.Equal(t, "s", route.VehicleType)
	assert.False(t, route.Guard)
	assert.NotEmpty(t, route.Employees[0].ETA)
	assert.Empty(t, resp.UnroutedEmployees)
}

// 2. Ten medical employees must be split into routes of at most two each,
// never mixed with non-medical employees, and every one of them accounted
// for between committed routes and the unrouted list.
func TestRoute_TenMedicalEmployeesFormPairsOnly(t *testing.T) {
	req := baseRequest("DROPOFF")
	req.Guard = false
	for i := 0; i < 10; i++ {
		req.Employees = append(req.Employees, api.EmployeeInput{
			EmpCode: "MED" + string(rune('A'+i)), GeoY: kmNorth(float64(i) * 0.1), GeoX: 0, Gender: "M", IsMedical: true,
		})
	}

	resp, err := newHandler(baseProfile()).Route(context.Background(), req)

	require.NoError(t, err)
	accounted := len(resp.UnroutedEmployees)
	for _, route := range resp.Routes {
		assert.True(t, route.IsSpecialNeedsRoute)
		assert.LessOrEqual(t, len(route.Employees), 2)
		for _, e := range route.Employees {
			assert.True(t, e.IsMedical)
		}
		accounted += len(route.Employees)
	}
	assert.Equal(t, 10, accounted)
}

// 3. A Female critical seat with a Male within swap range triggers the
// experiential swap; the same layout stretched beyond swap range leaves the
// guard requirement in place.
func TestRoute_GuardSwapWithinRangeSwapsAndClearsGuard(t *testing.T) {
	req := baseRequest("DROPOFF")
	req.Employees = []api.EmployeeInput{
		{EmpCode: "M1", GeoY: kmNorth(1.0), GeoX: 0, Gender: "M"},
		{EmpCode: "M2", GeoY: kmNorth(1.9), GeoX: 0, Gender: "M"},
		{EmpCode: "F1", GeoY: kmNorth(2.0), GeoX: 0, Gender: "F"},
	}

	resp, err := newHandler(baseProfile()).Route(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)
	route := resp.Routes[0]
	assert.True(t, route.Swapped)
	require.NotNil(t, route.SwappedPairInfo)
	assert.Equal(t, "F1", route.SwappedPairInfo.OriginalCriticalEmpCode)
	assert.False(t, route.Guard)
}

func TestRoute_GuardSwapBeyondRangeLeavesGuardNeeded(t *testing.T) {
	req := baseRequest("DROPOFF")
	req.Employees = []api.EmployeeInput{
		{EmpCode: "M1", GeoY: kmNorth(0.5), GeoX: 0, Gender: "M"},
		{EmpCode: "M2", GeoY: kmNorth(1.0), GeoX: 0, Gender: "M"},
		{EmpCode: "F1", GeoY: kmNorth(3.0), GeoX: 0, Gender: "F"},
	}

	resp, err := newHandler(baseProfile()).Route(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)
	route := resp.Routes[0]
	assert.False(t, route.Swapped)
	assert.True(t, route.Guard)
	assert.Equal(t, route.VehicleCapacity-1, 3)
}

// 4. An employee 60km from the facility (beyond the impossible-distance
// threshold) must surface in unroutedEmployees rather than in any route.
func TestRoute_FarEmployeeBecomesImpossible(t *testing.T) {
	profile := baseProfile()
	profile.RouteDeviationRules = map[string][]shuttle.DeviationRule{
		"office": {{MinDistKm: 0, MaxDistKm: 200, MaxTotalOneWayKm: 50}},
	}
	req := baseRequest("PICKUP")
	req.Guard = false
	req.Employees = []api.EmployeeInput{{EmpCode: "FAR", GeoY: kmNorth(60), GeoX: 0, Gender: "M"}}

	resp, err := newHandler(profile).Route(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, resp.Routes)
	require.Len(t, resp.UnroutedEmployees, 1)
	assert.Equal(t, "FAR", resp.UnroutedEmployees[0].EmpCode)
}

// 5. An employee 25km out with no groupmate within range forms a forced
// singleton route rather than landing in impossible: the main pass's exact
// deviation check defers it (25km misses the 24.5km limit), and the
// recycler's looser unrouted-pass tolerance (exceedance 0.5km <= min(5%,
// 2km) of 24.5km) then lets the forced singleton through.
func TestRoute_DistantEmployeeWithNoGroupmateGetsForcedSingleton(t *testing.T) {
	profile := baseProfile()
	profile.ForceSingletonDistanceKm = 20
	profile.RouteDeviationRules = map[string][]shuttle.DeviationRule{
		"office": {{MinDistKm: 0, MaxDistKm: 200, MaxTotalOneWayKm: 24.5}},
	}
	req := baseRequest("PICKUP")
	req.Guard = false
	req.Employees = []api.EmployeeInput{{EmpCode: "LONE", GeoY: kmNorth(25), GeoX: 0, Gender: "M"}}

	resp, err := newHandler(profile).Route(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Routes, 1)
	assert.Len(t, resp.Routes[0].Employees, 1)
	assert.Equal(t, "LONE", resp.Routes[0].Employees[0].EmpCode)
	assert.Empty(t, resp.UnroutedEmployees)
}

// 6. A route whose farthest-employee distance clears the main-pass
// deviation rule by a hair still recovers in the unrouted pass's looser
// tolerance (exceedance <= min(5%, 2km) of the limit); one that exceeds it
// further does not.
func TestRoute_UnroutedPassToleratesSmallDeviationOverage(t *testing.T) {
	profile := baseProfile()
	profile.RouteDeviationRules = map[string][]shuttle.DeviationRule{
		"office": {{MinDistKm: 0, MaxDistKm: 200, MaxTotalOneWayKm: 20}},
	}
	req := baseRequest("PICKUP")
	req.Guard = false
	req.Employees = []api.EmployeeInput{{EmpCode: "E205", GeoY: kmNorth(20.5), GeoX: 0, Gender: "M"}}

	resp, err := newHandler(profile).Route(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Routes, 1, "20.5km exceeds the 20km limit by less than the 1km tolerance (min(5%%, 2km))")
	assert.Empty(t, resp.UnroutedEmployees)
}

func TestRoute_UnroutedPassRejectsLargerDeviationOverage(t *testing.T) {
	profile := baseProfile()
	profile.RouteDeviationRules = map[string][]shuttle.DeviationRule{
		"office": {{MinDistKm: 0, MaxDistKm: 200, MaxTotalOneWayKm: 20}},
	}
	req := baseRequest("PICKUP")
	req.Guard = false
	req.Employees = []api.EmployeeInput{{EmpCode: "E22", GeoY: kmNorth(22), GeoX: 0, Gender: "M"}}

	resp, err := newHandler(profile).Route(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, resp.Routes)
	require.Len(t, resp.UnroutedEmployees, 1, "22km exceeds the 20km limit by more than the 1km tolerance")
	assert.Equal(t, "E22", resp.UnroutedEmployees[0].EmpCode)
}

func TestRoute_RejectsRequestWithNoEmployees(t *testing.T) {
	req := baseRequest("PICKUP")
	_, err := newHandler(baseProfile()).Route(context.Background(), req)
	assert.Error(t, err)
}

func TestRoute_PartitionsEveryInputEmployee(t *testing.T) {
	profile := baseProfile()
	req := baseRequest("DROPOFF")
	req.Guard = false
	req.Employees = []api.EmployeeInput{
		{EmpCode: "A", GeoY: kmNorth(1), GeoX: 0, Gender: "M"},
		{EmpCode: "B", GeoY: kmNorth(2), GeoX: 0, Gender: "F"},
		{EmpCode: "C", GeoY: kmNorth(3), GeoX: 0.01, Gender: "M"},
	}

	resp, err := newHandler(profile).Route(context.Background(), req)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range resp.Routes {
		for _, e := range r.Employees {
			seen[e.EmpCode] = true
		}
	}
	for _, e := range resp.UnroutedEmployees {
		seen[e.EmpCode] = true
	}
	assert.Len(t, seen, 3)
}
