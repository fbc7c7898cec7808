// Package grouping implements the heuristic group formation step (farthest-
// first seed, nearest-neighbor extension) validated online against the road
// service and the deviation rule.
package grouping

import (
	"context"
	"math"
	"sort"

	"github.com/fleetshuttle/router/internal/application/validate"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

const farCandidateMultiplier = 2.0

// Deps are the collaborators the grouper needs to validate candidate
// extensions online.
type Deps struct {
	RoadService roadservice.Client
	Facility    *shuttle.Facility
	Profile     *shuttle.Profile
	TripType    shuttle.TripType
	ShiftHour   float64
}

// Result is everything one call to FormGroups produced from a zone's
// employee pool.
type Result struct {
	Groups   [][]*shuttle.Employee
	Deferred []*shuttle.Employee
}

// FormGroups greedily carves zone out into as many heuristic groups of at
// most targetSize as its employees allow. Seeds whose single-stop validation
// fails are set aside in Deferred rather than retried within this pass.
func FormGroups(ctx context.Context, zone []*shuttle.Employee, targetSize int, deps Deps) *Result {
	pending := make([]*shuttle.Employee, len(zone))
	copy(pending, zone)
	sortBySeedOrder(pending, deps.TripType)

	result := &Result{}

	for len(pending) > 0 {
		seed := pending[0]
		pending = pending[1:]

		if !validateSingleStop(ctx, seed, deps) {
			result.Deferred = append(result.Deferred, seed)
			continue
		}

		group := []*shuttle.Employee{seed}
		remaining := pending

		for len(group) < targetSize {
			bestIdx, ok := pickBestCandidate(group, remaining, deps)
			if !ok {
				break
			}

			candidate := remaining[bestIdx]
			tentative := appendForTrip(group, candidate, deps.TripType)
			if !validateExtension(ctx, tentative, deps) {
				remaining = removeAt(remaining, bestIdx)
				continue
			}

			group = tentative
			remaining = removeAt(remaining, bestIdx)
		}

		pending = remaining
		result.Groups = append(result.Groups, group)
	}

	return result
}

func sortBySeedOrder(employees []*shuttle.Employee, tripType shuttle.TripType) {
	sort.SliceStable(employees, func(i, j int) bool {
		if tripType == shuttle.TripPickup {
			return employees[i].DistToFacility > employees[j].DistToFacility
		}
		return employees[i].DistToFacility < employees[j].DistToFacility
	})
}

// appendForTrip appends candidate in the position consistent with the trip
// direction: pickup routes fill inward (new stops ahead of the seed's walk
// toward the facility), dropoff routes fill outward from the facility. Both
// simply grow the tail; order is finalized by the route polisher (C7).
func appendForTrip(group []*shuttle.Employee, candidate *shuttle.Employee, _ shuttle.TripType) []*shuttle.Employee {
	out := make([]*shuttle.Employee, len(group)+1)
	copy(out, group)
	out[len(group)] = candidate
	return out
}

func removeAt(employees []*shuttle.Employee, idx int) []*shuttle.Employee {
	out := make([]*shuttle.Employee, 0, len(employees)-1)
	out = append(out, employees[:idx]...)
	out = append(out, employees[idx+1:]...)
	return out
}

// pickBestCandidate scores every remaining employee against the current
// group's tail and returns the index of the best, applying the special-
// needs homogeneity rule and the far-candidate haversine cutoff.
func pickBestCandidate(group []*shuttle.Employee, remaining []*shuttle.Employee, deps Deps) (int, bool) {
	if len(remaining) == 0 {
		return 0, false
	}

	seedSpecialNeeds := group[0].IsSpecialNeeds()
	tail := group[len(group)-1]
	maxSwap := deps.Profile.MaxSwapDistanceKm

	bestIdx := -1
	bestScore := math.Inf(-1)
	bestHav := math.Inf(1)

	for i, candidate := range remaining {
		if seedSpecialNeeds {
			if !candidate.IsSpecialNeeds() || len(group) >= 2 {
				continue
			}
		} else if candidate.IsSpecialNeeds() {
			continue
		}

		hav := geo.HaversineKm(
			geo.Point{Lat: tail.Lat, Lng: tail.Lng},
			geo.Point{Lat: candidate.Lat, Lng: candidate.Lng},
		)
		if hav > farCandidateMultiplier*maxSwap {
			continue
		}

		good := goodProgress(tail, candidate, deps)
		penalty := 1.0
		if !good {
			penalty = deps.Profile.Tunables.PenaltyScalar
		}

		progressTerm := 1.0 / (1.0 + math.Abs(candidate.DistToFacility-tail.DistToFacility))
		score := progressTerm*deps.Profile.Tunables.ProgressWeight*penalty +
			(1.0/(1.0+hav))*deps.Profile.Tunables.DistanceWeight*deps.Profile.Tunables.DistanceScalar

		const tolerance = 1e-9
		if score > bestScore+tolerance || (math.Abs(score-bestScore) <= tolerance && hav < bestHav) {
			bestIdx, bestScore, bestHav = i, score, hav
		}
	}

	return bestIdx, bestIdx >= 0
}

// goodProgress reports whether candidate continues the route in the
// direction the trip requires: toward the facility as a pickup route fills,
// away from it as a dropoff route fills, each within an acceptance factor
// (pickup loose, dropoff tight) since exact monotonicity is rarely hit.
func goodProgress(tail, candidate *shuttle.Employee, deps Deps) bool {
	if deps.TripType == shuttle.TripPickup {
		return candidate.DistToFacility <= tail.DistToFacility*deps.Profile.Tunables.PickupAcceptanceFactor
	}
	return candidate.DistToFacility >= tail.DistToFacility*deps.Profile.Tunables.DropoffAcceptanceFactor
}

func validateSingleStop(ctx context.Context, e *shuttle.Employee, deps Deps) bool {
	return validateExtension(ctx, []*shuttle.Employee{e}, deps)
}

// validateExtension calls the road service for the tentative sequence and
// re-runs the deviation and duration checks.
func validateExtension(ctx context.Context, group []*shuttle.Employee, deps Deps) bool {
	coords := routeCoordinates(group, deps)
	resp, err := deps.RoadService.Route(ctx, &roadservice.RouteRequest{
		City:        deps.Profile.Name,
		Coordinates: coords,
		ShiftHour:   deps.ShiftHour,
	})
	if err != nil {
		return false
	}

	if resp.DurationS > float64(deps.Profile.MaxDuration) {
		return false
	}

	facilityDistKm := farthestEmployeeFacilityDistance(group, deps)
	return validate.Deviation(deps.Profile, deps.Facility.Type, facilityDistKm, resp.DistanceM/1000.0, false)
}

func routeCoordinates(group []*shuttle.Employee, deps Deps) []geo.Point {
	facilityPoint := geo.Point{Lat: deps.Facility.GeoY, Lng: deps.Facility.GeoX}
	points := make([]geo.Point, 0, len(group)+1)

	if deps.TripType == shuttle.TripPickup {
		for _, e := range group {
			points = append(points, geo.Point{Lat: e.Lat, Lng: e.Lng})
		}
		points = append(points, facilityPoint)
	} else {
		points = append(points, facilityPoint)
		for _, e := range group {
			points = append(points, geo.Point{Lat: e.Lat, Lng: e.Lng})
		}
	}
	return points
}

func farthestEmployeeFacilityDistance(group []*shuttle.Employee, deps Deps) float64 {
	farthest := 0.0
	for _, e := range group {
		if e.DistToFacility > farthest {
			farthest = e.DistToFacility
		}
	}
	return farthest
}
