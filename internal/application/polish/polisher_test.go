package polish_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/application/polish"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

type fakeSolver struct {
	solution *vrp.Solution
	err      error
}

func (f *fakeSolver) Solve(context.Context, *vrp.Problem) (*vrp.Solution, error) {
	return f.solution, f.err
}

type fakeRoadClient struct {
	resp *roadservice.RouteResponse
	err  error
}

func (f *fakeRoadClient) Route(context.Context, *roadservice.RouteRequest) (*roadservice.RouteResponse, error) {
	return f.resp, f.err
}

func (f *fakeRoadClient) Table(context.Context, *roadservice.TableRequest) (*roadservice.TableResponse, error) {
	return nil, nil
}

type polishErr struct{ msg string }

func (e polishErr) Error() string { return e.msg }

func testProfile() *shuttle.Profile {
	return &shuttle.Profile{Name: "testcity", MaxDuration: 7200}
}

func TestPolish_ReordersAccordingToSolverRouteAndDropsUnassigned(t *testing.T) {
	group := []*shuttle.Employee{
		{EmpCode: "E1", Lat: 1, Lng: 1},
		{EmpCode: "E2", Lat: 2, Lng: 2},
		{EmpCode: "E3", Lat: 3, Lng: 3},
	}
	solver := &fakeSolver{solution: &vrp.Solution{
		Routes:             [][]int{{2, 1}},
		DroppedNodeIndices: []int{3},
	}}
	roadClient := &fakeRoadClient{resp: &roadservice.RouteResponse{
		DistanceM: 5000,
		DurationS: 600,
		Legs: []roadservice.RouteLeg{
			{RawDurationS: 300, DurationS: 400},
		},
		EncodedPolyline: "",
	}}

	result, details, err := polish.Polish(context.Background(), group, polish.Deps{
		Solver:      solver,
		RoadService: roadClient,
		Facility:    &shuttle.Facility{GeoY: 0, GeoX: 0, Type: "office"},
		Profile:     testProfile(),
		TripType:    shuttle.TripPickup,
		ShiftHour:   9,
	})

	require.NoError(t, err)
	require.Len(t, result.Ordered, 2)
	assert.Equal(t, "E2", result.Ordered[0].EmpCode)
	assert.Equal(t, "E1", result.Ordered[1].EmpCode)
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, "E3", result.Dropped[0].EmpCode)

	require.NotNil(t, details)
	assert.Equal(t, 5000.0, details.TotalDistanceM)
	require.Len(t, details.Legs, 1)
	assert.Equal(t, "E2", details.Legs[0].FromEmpCode)
	assert.Equal(t, "E1", details.Legs[0].ToEmpCode)
}

func TestPolish_SolverErrorDropsEveryEmployee(t *testing.T) {
	group := []*shuttle.Employee{{EmpCode: "E1"}, {EmpCode: "E2"}}
	solver := &fakeSolver{err: polishErr{"solver exploded"}}

	result, details, err := polish.Polish(context.Background(), group, polish.Deps{
		Solver:      solver,
		RoadService: &fakeRoadClient{},
		Facility:    &shuttle.Facility{Type: "office"},
		Profile:     testProfile(),
		TripType:    shuttle.TripDropoff,
	})

	require.Error(t, err)
	assert.Nil(t, details)
	require.Len(t, result.Dropped, 2)
	assert.Empty(t, result.Ordered)
}

func TestPolish_RoadServiceFailureSurfacesError(t *testing.T) {
	group := []*shuttle.Employee{{EmpCode: "E1"}}
	solver := &fakeSolver{solution: &vrp.Solution{Routes: [][]int{{1}}}}
	roadClient := &fakeRoadClient{err: polishErr{"road service down"}}

	_, details, err := polish.Polish(context.Background(), group, polish.Deps{
		Solver:      solver,
		RoadService: roadClient,
		Facility:    &shuttle.Facility{Type: "office"},
		Profile:     testProfile(),
		TripType:    shuttle.TripPickup,
	})

	require.Error(t, err)
	assert.Nil(t, details)
}
