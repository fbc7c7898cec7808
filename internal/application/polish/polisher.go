// Package polish re-sequences a heuristic group through the VRP solver in
// single-vehicle mode and recomputes its road-service geometry.
package polish

import (
	"context"
	"fmt"

	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

// Deps are the collaborators the polisher needs.
type Deps struct {
	Solver      vrp.Solver
	RoadService roadservice.Client
	Facility    *shuttle.Facility
	Profile     *shuttle.Profile
	TripType    shuttle.TripType
	ShiftHour   float64
}

// Result is the polished, re-ordered employee set plus whatever the solver
// dropped; dropped employees flow to the unrouted pool.
type Result struct {
	Ordered []*shuttle.Employee
	Dropped []*shuttle.Employee
}

// Polish re-sequences group via a single-vehicle VRP solve, then recomputes
// RouteDetails for the resulting order via the road service.
func Polish(ctx context.Context, group []*shuttle.Employee, deps Deps) (*Result, *shuttle.RouteDetails, error) {
	problem := buildProblem(group, deps, nil, nil)

	solution, err := deps.Solver.Solve(ctx, &problem)
	if err != nil {
		return &Result{Dropped: group}, nil, fmt.Errorf("polish: solver failed, treating all %d employees as dropped: %w", len(group), err)
	}

	ordered, dropped := applySolution(group, solution)
	if len(ordered) == 0 {
		return &Result{Dropped: dropped}, nil, fmt.Errorf("polish: solver dropped every employee")
	}

	details, err := fetchRouteDetails(ctx, ordered, deps)
	if err != nil {
		return &Result{Dropped: group}, nil, fmt.Errorf("polish: road service failed on committed sequence: %w", err)
	}

	return &Result{Ordered: ordered, Dropped: dropped}, details, nil
}

// buildProblem assembles a single-vehicle VRP problem for group. When
// fixedStart/fixedEnd are non-nil, the corresponding node index is pinned
// and dropping is disallowed; Polish always passes nil for both.
func buildProblem(group []*shuttle.Employee, deps Deps, fixedStart, fixedEnd *int) vrp.Problem {
	n := len(group) + 1 // depot + customers
	distances := make([][]float64, n)
	durations := make([][]float64, n)
	for i := range distances {
		distances[i] = make([]float64, n)
		durations[i] = make([]float64, n)
	}

	points := make([]geo.Point, n)
	points[0] = geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	for i, e := range group {
		points[i+1] = geo.Point{Lat: e.Lat, Lng: e.Lng}
	}
	for i := range points {
		for j := range points {
			if i == j {
				continue
			}
			distances[i][j] = geo.HaversineKm(points[i], points[j]) * 1000
		}
	}

	demands := make([]int, n)
	serviceTimes := make([]int, n)
	for i := 1; i < n; i++ {
		demands[i] = 1
	}

	direction := vrp.DirectionPickup
	if deps.TripType == shuttle.TripDropoff {
		direction = vrp.DirectionDropoff
	}

	allowDrop := fixedStart == nil && fixedEnd == nil
	penaltyWeight := deps.Profile.DirectionPenaltyWeightSolve
	if !allowDrop {
		penaltyWeight = deps.Profile.DirectionPenaltyWeightReopt
	}

	numVehicles := 1

	return vrp.Problem{
		DistanceMatrix:         distances,
		DurationMatrix:         durations,
		NumVehicles:            numVehicles,
		VehicleCapacities:      uniformCapacities(numVehicles, len(group)),
		Demands:                demands,
		DepotIndex:             0,
		MaxRouteDuration:       deps.Profile.MaxDuration,
		ServiceTimes:           serviceTimes,
		AllowDroppingVisits:    allowDrop,
		DropVisitPenalty:       deps.Profile.DropPenalty,
		FacilityCoords:         [2]float64{deps.Facility.GeoY, deps.Facility.GeoX},
		TripType:               direction,
		DirectionPenaltyWeight: penaltyWeight,
		FixedStartNodeIndex:    fixedStart,
		FixedEndNodeIndex:      fixedEnd,
	}
}

func uniformCapacities(numVehicles, groupSize int) []int {
	caps := make([]int, numVehicles)
	for i := range caps {
		caps[i] = groupSize
	}
	return caps
}

// applySolution flattens the solver's routes, in the order returned, into
// one ordered employee slice and maps dropped indices back to
// employees. Customer indices are 1..N in the order of group.
func applySolution(group []*shuttle.Employee, solution *vrp.Solution) (ordered, dropped []*shuttle.Employee) {
	for _, route := range solution.Routes {
		for _, idx := range route {
			if idx >= 1 && idx <= len(group) {
				ordered = append(ordered, group[idx-1])
			}
		}
	}
	for _, idx := range solution.DroppedNodeIndices {
		if idx >= 1 && idx <= len(group) {
			dropped = append(dropped, group[idx-1])
		}
	}
	return ordered, dropped
}

// fetchRouteDetails calls the road service for the final ordered sequence
// and assembles the canonical RouteDetails record.
func fetchRouteDetails(ctx context.Context, ordered []*shuttle.Employee, deps Deps) (*shuttle.RouteDetails, error) {
	facilityPoint := geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	coords := make([]geo.Point, 0, len(ordered)+1)
	if deps.TripType == shuttle.TripPickup {
		for _, e := range ordered {
			coords = append(coords, geo.Point{Lat: e.Lat, Lng: e.Lng})
		}
		coords = append(coords, facilityPoint)
	} else {
		coords = append(coords, facilityPoint)
		for _, e := range ordered {
			coords = append(coords, geo.Point{Lat: e.Lat, Lng: e.Lng})
		}
	}

	resp, err := deps.RoadService.Route(ctx, &roadservice.RouteRequest{
		City:        deps.Profile.Name,
		Coordinates: coords,
		ShiftHour:   deps.ShiftHour,
	})
	if err != nil {
		return nil, err
	}

	legs := make([]shuttle.Leg, len(resp.Legs))
	codes := legEndpoints(ordered, deps.TripType)
	for i, l := range resp.Legs {
		legs[i] = shuttle.Leg{
			FromEmpCode:  codes[i][0],
			ToEmpCode:    codes[i][1],
			RawDurationS: l.RawDurationS,
			DurationS:    l.DurationS,
		}
	}

	geometry, err := geo.DecodePolyline(resp.EncodedPolyline)
	if err != nil {
		geometry = nil
	}

	return &shuttle.RouteDetails{
		TotalDistanceM:  resp.DistanceM,
		TotalDurationS:  resp.DurationS,
		Legs:            legs,
		EncodedPolyline: resp.EncodedPolyline,
		Geometry:        geometry,
	}, nil
}

// legEndpoints names each leg's from/to employee codes; "" denotes the
// facility endpoint.
func legEndpoints(ordered []*shuttle.Employee, tripType shuttle.TripType) [][2]string {
	n := len(ordered)
	out := make([][2]string, n)
	if tripType == shuttle.TripPickup {
		for i := 0; i < n; i++ {
			from := ordered[i].EmpCode
			to := ""
			if i+1 < n {
				to = ordered[i+1].EmpCode
			}
			out[i] = [2]string{from, to}
		}
		return out
	}
	for i := 0; i < n; i++ {
		from := ""
		if i > 0 {
			from = ordered[i-1].EmpCode
		}
		out[i] = [2]string{from, ordered[i].EmpCode}
	}
	return out
}
