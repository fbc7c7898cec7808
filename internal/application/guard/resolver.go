// Package guard implements the experiential guard-avoidance swap: when the
// critical seat is Female, try to move the nearest in-route Male into that
// seat instead of carrying a guard. The swap is attempted whether or not the
// request's guard system is active; that flag is not checked here.
package guard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

// Deps are the collaborators the resolver needs.
type Deps struct {
	RoadService roadservice.Client
	Solver      vrp.Solver
	Facility    *shuttle.Facility
	Profile     *shuttle.Profile
	ShiftHour   float64
}

// Resolve attempts the critical-seat swap for route, active in place. It
// never mutates route.GuardNeeded itself; the caller must recompute
// guard-truthfulness from the final critical seat after Resolve returns, per
// the commit-time-only rule.
func Resolve(ctx context.Context, route *shuttle.Route, deps Deps) error {
	if !triggerApplies(route) {
		return setFarthestDistance(ctx, route, deps)
	}

	criticalIdx := route.CriticalSeatIndex()
	critical := route.Employees[criticalIdx].Employee

	males := malesExcept(route, criticalIdx)
	if len(males) == 0 {
		return setFarthestDistance(ctx, route, deps)
	}

	var distances []float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := nearestMaleDistances(gctx, critical, males, deps)
		if err != nil {
			return err
		}
		distances = d
		return nil
	})
	g.Go(func() error {
		return setFarthestDistance(gctx, route, deps)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("guard: table query failed: %w", err)
	}

	candidateIdx, candidateKm, ok := nearestWithinRange(males, distances, deps.Profile.MaxSwapDistanceKm)
	if !ok {
		return nil
	}

	return attemptSwap(ctx, route, criticalIdx, candidateIdx, candidateKm, deps)
}

// setFarthestDistance resolves the road distance for the farthest employee
// on route (by haversine) and stores it on the route for the caller's
// deviation check and response synthesis. It runs concurrently with the
// swap candidate /table query in Resolve's errgroup since the two calls are
// independent reads against the road service.
func setFarthestDistance(ctx context.Context, route *shuttle.Route, deps Deps) error {
	km, err := farthestEmployeeRoadDistanceKm(ctx, route, deps)
	if err != nil {
		return fmt.Errorf("guard: farthest employee road distance: %w", err)
	}
	route.FarthestEmployeeDistanceKm = km
	return nil
}

func triggerApplies(route *shuttle.Route) bool {
	if len(route.Employees) == 0 {
		return false
	}
	critical := route.CriticalSeatEmployee()
	return critical != nil && critical.Gender == shuttle.GenderFemale
}

type maleCandidate struct {
	index    int
	employee *shuttle.Employee
}

func malesExcept(route *shuttle.Route, excludeIdx int) []maleCandidate {
	var out []maleCandidate
	for i, re := range route.Employees {
		if i == excludeIdx {
			continue
		}
		if re.Employee.Gender == shuttle.GenderMale {
			out = append(out, maleCandidate{index: i, employee: re.Employee})
		}
	}
	return out
}

func nearestMaleDistances(ctx context.Context, critical *shuttle.Employee, males []maleCandidate, deps Deps) ([]float64, error) {
	coords := make([]geo.Point, 0, len(males)+1)
	coords = append(coords, geo.Point{Lat: critical.Lat, Lng: critical.Lng})
	for _, m := range males {
		coords = append(coords, geo.Point{Lat: m.employee.Lat, Lng: m.employee.Lng})
	}

	dests := make([]int, len(males))
	for i := range males {
		dests[i] = i + 1
	}

	resp, err := deps.RoadService.Table(ctx, &roadservice.TableRequest{
		City:          deps.Profile.Name,
		Coordinates:   coords,
		SourceIndices: []int{0},
		DestIndices:   dests,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.DistancesM) == 0 {
		return nil, fmt.Errorf("guard: empty distance table")
	}
	row := resp.DistancesM[0]
	km := make([]float64, len(row))
	for i, d := range row {
		km[i] = d / 1000.0
	}
	return km, nil
}

func nearestWithinRange(males []maleCandidate, distancesKm []float64, maxSwapKm float64) (idx int, km float64, ok bool) {
	best := -1
	bestKm := maxSwapKm + 1
	for i, d := range distancesKm {
		if d <= maxSwapKm && d < bestKm {
			best = males[i].index
			bestKm = d
		}
	}
	if best == -1 {
		return 0, 0, false
	}
	return best, bestKm, true
}

// attemptSwap swaps the candidate into the critical seat, re-validates via
// OSRM with the 25% duration-regression reject, then re-optimizes via the
// solver with the new critical seat pinned. On any rejection the route is
// left untouched.
func attemptSwap(ctx context.Context, route *shuttle.Route, criticalIdx, candidateIdx int, candidateKm float64, deps Deps) error {
	originalCritical := route.Employees[criticalIdx].Employee
	originalDuration := route.Details.TotalDurationS

	swapped := make([]shuttle.RoutedEmployee, len(route.Employees))
	copy(swapped, route.Employees)
	swapped[criticalIdx], swapped[candidateIdx] = swapped[candidateIdx], swapped[criticalIdx]

	employees := make([]*shuttle.Employee, len(swapped))
	for i, re := range swapped {
		employees[i] = re.Employee
	}

	details, err := routeDetailsFor(ctx, employees, route.TripType, deps)
	if err != nil {
		return nil // OSRM failure: reject the swap, retain the original order.
	}
	if originalDuration > 0 && details.TotalDurationS > originalDuration*(1+deps.Profile.SwapDurationRegressionCap) {
		return nil // duration regression beyond tolerance: reject the swap.
	}

	pinnedIdx := criticalIdx // the new critical seat's position in the re-sequenced problem
	reoptimized, reoptDetails, err := reoptimize(ctx, employees, route.TripType, pinnedIdx, deps)
	if err != nil || reoptimized == nil {
		commitSwap(route, swapped, details, originalCritical, employees[criticalIdx], candidateKm)
		return nil
	}

	commitSwap(route, reoptimized, reoptDetails, originalCritical, employees[criticalIdx], candidateKm)
	return nil
}

func routeDetailsFor(ctx context.Context, employees []*shuttle.Employee, tripType shuttle.TripType, deps Deps) (*shuttle.RouteDetails, error) {
	facilityPoint := geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	coords := make([]geo.Point, 0, len(employees)+1)
	if tripType == shuttle.TripPickup {
		for _, e := range employees {
			coords = append(coords, geo.Point{Lat: e.Lat, Lng: e.Lng})
		}
		coords = append(coords, facilityPoint)
	} else {
		coords = append(coords, facilityPoint)
		for _, e := range employees {
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
	for i, l := range resp.Legs {
		legs[i] = shuttle.Leg{RawDurationS: l.RawDurationS, DurationS: l.DurationS}
	}
	geometry, _ := geo.DecodePolyline(resp.EncodedPolyline)

	return &shuttle.RouteDetails{
		TotalDistanceM:  resp.DistanceM,
		TotalDurationS:  resp.DurationS,
		Legs:            legs,
		EncodedPolyline: resp.EncodedPolyline,
		Geometry:        geometry,
	}, nil
}

// reoptimize invokes the solver in single-vehicle re-optimize mode with the
// swapped-in employee's node pinned to the critical-seat position. Dropping
// is disallowed in this mode: a re-optimization that cannot honor the pin is
// treated as a failure, and the caller retains the simple-swap order.
func reoptimize(ctx context.Context, employees []*shuttle.Employee, tripType shuttle.TripType, pinnedIdx int, deps Deps) ([]shuttle.RoutedEmployee, *shuttle.RouteDetails, error) {
	n := len(employees) + 1
	distances := make([][]float64, n)
	points := make([]geo.Point, n)
	points[0] = geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	for i, e := range employees {
		points[i+1] = geo.Point{Lat: e.Lat, Lng: e.Lng}
	}
	for i := range distances {
		distances[i] = make([]float64, n)
		for j := range distances[i] {
			if i != j {
				distances[i][j] = geo.HaversineKm(points[i], points[j]) * 1000
			}
		}
	}

	demands := make([]int, n)
	for i := 1; i < n; i++ {
		demands[i] = 1
	}

	direction := vrp.DirectionPickup
	if tripType == shuttle.TripDropoff {
		direction = vrp.DirectionDropoff
	}

	// The critical seat is the first customer node for pickup (picked up
	// first, alone with the driver longest) and the last customer node for
	// dropoff (dropped off last); pin accordingly.
	pinnedNode := pinnedIdx + 1
	var fixedStart, fixedEnd *int
	if tripType == shuttle.TripPickup {
		fixedStart = &pinnedNode
	} else {
		fixedEnd = &pinnedNode
	}

	problem := &vrp.Problem{
		DistanceMatrix:         distances,
		DurationMatrix:         distances,
		NumVehicles:            1,
		VehicleCapacities:      []int{len(employees)},
		Demands:                demands,
		DepotIndex:             0,
		MaxRouteDuration:       deps.Profile.MaxDuration,
		ServiceTimes:           make([]int, n),
		AllowDroppingVisits:    false,
		DropVisitPenalty:       deps.Profile.DropPenalty,
		FacilityCoords:         [2]float64{deps.Facility.GeoY, deps.Facility.GeoX},
		TripType:               direction,
		DirectionPenaltyWeight: deps.Profile.DirectionPenaltyWeightReopt,
		FixedStartNodeIndex:    fixedStart,
		FixedEndNodeIndex:      fixedEnd,
	}

	solution, err := deps.Solver.Solve(ctx, problem)
	if err != nil || len(solution.DroppedNodeIndices) > 0 {
		return nil, nil, fmt.Errorf("guard: re-optimization could not honor the pin")
	}

	var ordered []*shuttle.Employee
	for _, r := range solution.Routes {
		for _, idx := range r {
			if idx >= 1 && idx <= len(employees) {
				ordered = append(ordered, employees[idx-1])
			}
		}
	}
	if len(ordered) != len(employees) {
		return nil, nil, fmt.Errorf("guard: re-optimization dropped nodes despite AllowDroppingVisits=false")
	}

	details, err := routeDetailsFor(ctx, ordered, tripType, deps)
	if err != nil {
		return nil, nil, err
	}
	return toRoutedEmployees(ordered), details, nil
}

func toRoutedEmployees(employees []*shuttle.Employee) []shuttle.RoutedEmployee {
	out := make([]shuttle.RoutedEmployee, len(employees))
	for i, e := range employees {
		out[i] = shuttle.RoutedEmployee{Employee: e, Order: i + 1}
	}
	return out
}

func commitSwap(route *shuttle.Route, swapped []shuttle.RoutedEmployee, details *shuttle.RouteDetails, originalCritical, swappedIn *shuttle.Employee, candidateKm float64) {
	for i, re := range swapped {
		re.Order = i + 1
		swapped[i] = re
	}
	route.Employees = swapped
	route.Details = *details
	route.Swapped = true
	route.SwappedPairInfo = &shuttle.SwappedPairInfo{
		OriginalCriticalEmpCode: originalCritical.EmpCode,
		SwappedInEmpCode:        swappedIn.EmpCode,
		RoadDistanceKm:          candidateKm,
	}
}

// farthestEmployeeRoadDistanceKm picks the employee farthest from the
// facility by haversine, then fetches the true one-way road distance for
// that single edge with a /route call in the direction the trip actually
// travels it: facility->employee for dropoff, employee->facility for
// pickup. This is the distance the deviation band is selected on, not the
// haversine used only to pick which employee is farthest.
func farthestEmployeeRoadDistanceKm(ctx context.Context, route *shuttle.Route, deps Deps) (float64, error) {
	if len(route.Employees) == 0 {
		return 0, nil
	}

	facilityPoint := geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	farthest := route.Employees[0].Employee
	farthestHaversine := geo.HaversineKm(geo.Point{Lat: farthest.Lat, Lng: farthest.Lng}, facilityPoint)
	for _, re := range route.Employees[1:] {
		d := geo.HaversineKm(geo.Point{Lat: re.Employee.Lat, Lng: re.Employee.Lng}, facilityPoint)
		if d > farthestHaversine {
			farthestHaversine = d
			farthest = re.Employee
		}
	}

	employeePoint := geo.Point{Lat: farthest.Lat, Lng: farthest.Lng}
	coords := []geo.Point{employeePoint, facilityPoint}
	if route.TripType == shuttle.TripDropoff {
		coords = []geo.Point{facilityPoint, employeePoint}
	}

	resp, err := deps.RoadService.Route(ctx, &roadservice.RouteRequest{
		City:        deps.Profile.Name,
		Coordinates: coords,
		ShiftHour:   deps.ShiftHour,
	})
	if err != nil {
		return 0, err
	}
	return resp.DistanceM / 1000.0, nil
}
