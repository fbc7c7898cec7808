// Package unrouted recovers employees who fell out of the main pass: never
// seeded, dropped by the solver, trimmed for capacity, or rejected for
// deviation. It forms small, tightly-bounded groups and retries the same
// fleet/polish/guard/deviation pipeline the main pass uses.
package unrouted

import (
	"context"
	"sort"

	"github.com/fleetshuttle/router/internal/application/fleet"
	"github.com/fleetshuttle/router/internal/application/guard"
	"github.com/fleetshuttle/router/internal/application/polish"
	"github.com/fleetshuttle/router/internal/application/validate"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

// Deps are the collaborators the recycler needs, mirroring the main pass's
// pipeline components.
type Deps struct {
	RoadService roadservice.Client
	Solver      vrp.Solver
	Facility    *shuttle.Facility
	Profile     *shuttle.Profile
	TripType    shuttle.TripType
	ShiftHour   float64
	Counts      map[string]int
	GuardActive bool
	ETA         validate.ETAInputs
}

// Result is the recycler's output: newly committed routes and the final,
// irrecoverable impossible list.
type Result struct {
	Routes     []*shuttle.Route
	Impossible []*shuttle.Employee
}

const (
	initialGroupTargetSize = 2
	groupReducerAvgKm      = 15.0
)

// Recycle runs a bounded attempts-and-iterations loop over the unrouted
// pool, regrouping and retrying each employee up to a per-employee attempt
// cap before giving up on it as impossible.
func Recycle(ctx context.Context, inputs []*shuttle.Employee, deps Deps) *Result {
	result := &Result{}
	if len(inputs) == 0 {
		return result
	}

	var queue, impossible, singletons []*shuttle.Employee
	for _, e := range inputs {
		distKm := geo.HaversineKm(geo.Point{Lat: e.Lat, Lng: e.Lng}, geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX})
		switch {
		case distKm > deps.Profile.ImpossibleDistanceThresholdKm:
			impossible = append(impossible, e)
		case distKm > deps.Profile.ForceSingletonDistanceKm:
			singletons = append(singletons, e)
		default:
			queue = append(queue, e)
		}
	}

	for _, e := range singletons {
		route, _, ok := processGroup(ctx, []*shuttle.Employee{e}, deps)
		if ok {
			result.Routes = append(result.Routes, route)
		} else {
			impossible = append(impossible, e)
		}
	}

	attempts := make(map[string]int)
	maxGlobalIterations := 3 * len(inputs)
	iterations := 0

	for len(queue) > 0 && iterations < maxGlobalIterations {
		iterations++
		sortByDistToFacility(queue)

		group := takeGroup(queue, deps)
		queue = queue[len(group):]

		if groupNeedsReduction(group, deps) {
			queue = append(append([]*shuttle.Employee{}, group[1:]...), queue...)
			group = group[:1]
		}

		route, sidelined, ok := processGroup(ctx, group, deps)
		for _, e := range sidelined {
			queue = requeueOrImpossible(queue, &impossible, e, attempts, deps.Profile.MaxUnroutedProcessingAttempts)
		}
		if ok {
			result.Routes = append(result.Routes, route)
			continue
		}

		remaining := group
		trimmed := 0
		for len(remaining) > 1 && trimmed < deps.Profile.MaxTrimAttemptsPerGroup {
			far := remaining[len(remaining)-1]
			remaining = remaining[:len(remaining)-1]
			queue = requeueOrImpossible(queue, &impossible, far, attempts, deps.Profile.MaxUnroutedProcessingAttempts)
			trimmed++

			var moreSidelined []*shuttle.Employee
			route, moreSidelined, ok = processGroup(ctx, remaining, deps)
			for _, e := range moreSidelined {
				queue = requeueOrImpossible(queue, &impossible, e, attempts, deps.Profile.MaxUnroutedProcessingAttempts)
			}
			if ok {
				result.Routes = append(result.Routes, route)
				break
			}
		}
		if !ok {
			for _, e := range remaining {
				queue = requeueOrImpossible(queue, &impossible, e, attempts, deps.Profile.MaxUnroutedProcessingAttempts)
			}
		}
	}

	impossible = append(impossible, queue...)
	result.Impossible = impossible
	return result
}

func sortByDistToFacility(employees []*shuttle.Employee) {
	sort.SliceStable(employees, func(i, j int) bool {
		return employees[i].DistToFacility < employees[j].DistToFacility
	})
}

// takeGroup pulls up to initialGroupTargetSize employees from the front of
// queue honoring the pairwise, consecutive, and span haversine limits.
func takeGroup(queue []*shuttle.Employee, deps Deps) []*shuttle.Employee {
	group := []*shuttle.Employee{queue[0]}
	for i := 1; i < len(queue) && len(group) < initialGroupTargetSize; i++ {
		candidate := queue[i]
		if fits(group, candidate, deps.Profile) {
			group = append(group, candidate)
		} else {
			break
		}
	}
	return group
}

func fits(group []*shuttle.Employee, candidate *shuttle.Employee, profile *shuttle.Profile) bool {
	last := group[len(group)-1]
	consecutiveKm := geo.HaversineKm(point(last), point(candidate))
	if consecutiveKm > profile.UnroutedMaxConsecutiveDistanceKm {
		return false
	}
	for _, e := range group {
		if geo.HaversineKm(point(e), point(candidate)) > profile.UnroutedMaxGroupDistanceKm {
			return false
		}
	}
	span := groupSpanKm(append(group, candidate))
	return span <= profile.UnroutedMaxGroupSpanKm
}

func groupSpanKm(group []*shuttle.Employee) float64 {
	max := 0.0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			d := geo.HaversineKm(point(group[i]), point(group[j]))
			if d > max {
				max = d
			}
		}
	}
	return max
}

func point(e *shuttle.Employee) geo.Point {
	return geo.Point{Lat: e.Lat, Lng: e.Lng}
}

// groupNeedsReduction reports whether the group's average employee-to-
// facility distance exceeds the profile's GroupSizeReducerThresholdKm
// (groupReducerAvgKm when unset), in which case the group is reduced to its
// first employee and the rest go back to the queue.
func groupNeedsReduction(group []*shuttle.Employee, deps Deps) bool {
	if len(group) <= 1 {
		return false
	}
	threshold := deps.Profile.Tunables.GroupSizeReducerThresholdKm
	if threshold <= 0 {
		threshold = groupReducerAvgKm
	}
	total := 0.0
	for _, e := range group {
		total += e.DistToFacility
	}
	return total/float64(len(group)) > threshold
}

func requeueOrImpossible(queue []*shuttle.Employee, impossible *[]*shuttle.Employee, e *shuttle.Employee, attempts map[string]int, maxAttempts int) []*shuttle.Employee {
	attempts[e.EmpCode]++
	if attempts[e.EmpCode] >= maxAttempts {
		*impossible = append(*impossible, e)
		return queue
	}
	return append(queue, e)
}

// processGroup runs the shared fleet/polish/guard/deviation pipeline on a
// single candidate group. It reports whether the group committed and, when
// it did, the employees sidelined along the way: the fleet allocator's
// capacity trims plus anyone the VRP solver dropped. When the group fails
// no employees are returned, because the caller requeues the whole group.
func processGroup(ctx context.Context, group []*shuttle.Employee, deps Deps) (*shuttle.Route, []*shuttle.Employee, bool) {
	route := &shuttle.Route{
		Zone:     "",
		TripType: deps.TripType,
	}

	allocResult, err := fleet.Allocate(route, group, deps.Counts, deps.Profile.Fleet, deps.GuardActive)
	if err != nil {
		return nil, nil, false
	}

	kept := make([]*shuttle.Employee, len(route.Employees))
	for i, re := range route.Employees {
		kept[i] = re.Employee
	}

	polished, details, err := polish.Polish(ctx, kept, polish.Deps{
		Solver:      deps.Solver,
		RoadService: deps.RoadService,
		Facility:    deps.Facility,
		Profile:     deps.Profile,
		TripType:    deps.TripType,
		ShiftHour:   deps.ShiftHour,
	})
	sidelined := append(append([]*shuttle.Employee{}, allocResult.Trimmed...), polished.Dropped...)
	if err != nil || len(polished.Ordered) == 0 {
		return nil, nil, false
	}

	route.Employees = toRoutedEmployees(polished.Ordered)
	route.Details = *details

	if err := guard.Resolve(ctx, route, guard.Deps{
		RoadService: deps.RoadService,
		Solver:      deps.Solver,
		Facility:    deps.Facility,
		Profile:     deps.Profile,
		ShiftHour:   deps.ShiftHour,
	}); err != nil {
		return nil, nil, false
	}
	recomputeGuardNeeded(route, deps.GuardActive)

	farthestKm := route.FarthestEmployeeDistanceKm
	totalKm := route.Details.TotalDistanceM / 1000.0
	if !validate.Deviation(deps.Profile, deps.Facility.Type, farthestKm, totalKm, true) {
		return nil, nil, false
	}

	etaInputs := deps.ETA
	etaInputs.Route = route
	validate.SynthesizeETA(etaInputs)

	return route, sidelined, true
}

func recomputeGuardNeeded(route *shuttle.Route, guardActive bool) {
	critical := route.CriticalSeatEmployee()
	route.GuardNeeded = guardActive && critical != nil && critical.Gender == shuttle.GenderFemale
}

func toRoutedEmployees(employees []*shuttle.Employee) []shuttle.RoutedEmployee {
	out := make([]shuttle.RoutedEmployee, len(employees))
	for i, e := range employees {
		out[i] = shuttle.RoutedEmployee{Employee: e, Order: i + 1}
	}
	return out
}
