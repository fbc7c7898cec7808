// Package fleet assigns a vehicle class to a preliminary employee group and
// trims passengers down to whatever that vehicle can carry.
package fleet

import (
	"fmt"
	"sort"

	"github.com/fleetshuttle/router/internal/domain/shared"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

const mediumFleetType = "m"

// Result is what Allocate fills in on the route shell plus the employees it
// had to trim off to respect capacity.
type Result struct {
	Trimmed []*shuttle.Employee
}

// Allocate fills in the route's vehicle assignment, guard flag, and
// special-needs flag, trimming passengers as needed to respect capacity. It
// mutates counts, decrementing the chosen vehicle type's remaining count.
// employees is the preliminary ordered group; the route's final employees
// (after any trimming) are written back onto route.
func Allocate(route *shuttle.Route, employees []*shuttle.Employee, counts map[string]int, fleet []shuttle.VehicleClass, guardSystemActive bool) (*Result, error) {
	ordered := make([]*shuttle.Employee, len(employees))
	copy(ordered, employees)

	route.IsSpecialNeedsRoute = allSpecialNeeds(ordered)

	sorted := make([]shuttle.VehicleClass, len(fleet))
	copy(sorted, fleet)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Capacity < sorted[j].Capacity })

	criticalGender := criticalSeatGender(ordered, route.TripType)
	route.GuardNeeded = guardSystemActive && criticalGender == shuttle.GenderFemale
	required := len(ordered)
	if route.GuardNeeded {
		required++
	}

	vehicleType, capacity, ok := chooseVehicle(sorted, counts, required)
	if !ok {
		route.AfterFleetExhaustion = true
		mediumCap, mediumExists := capacityOf(sorted, mediumFleetType)
		if !mediumExists {
			route.Error = "fleet exhausted: no vehicle available and no medium fallback configured"
			return &Result{}, shared.NewCapacityExhaustionError(fmt.Sprintf("route %s: %s", route.UniqueKey, route.Error))
		}
		vehicleType, capacity = mediumFleetType, mediumCap
	}
	counts[vehicleType]--

	route.AssignedVehicleType = vehicleType
	route.VehicleCapacity = capacity

	trimmed := []*shuttle.Employee{}
	bound := len(ordered) + 3
	for iter := 0; iter < bound; iter++ {
		cap := passengerCap(capacity, route.GuardNeeded, route.IsSpecialNeedsRoute)
		if len(ordered) <= cap {
			break
		}

		var cut *shuttle.Employee
		if route.TripType == shuttle.TripDropoff {
			cut, ordered = ordered[0], ordered[1:]
		} else {
			cut, ordered = ordered[len(ordered)-1], ordered[:len(ordered)-1]
		}
		trimmed = append(trimmed, cut)

		criticalGender = criticalSeatGender(ordered, route.TripType)
		route.GuardNeeded = guardSystemActive && criticalGender == shuttle.GenderFemale
	}

	route.Employees = toRoutedEmployees(ordered)
	return &Result{Trimmed: trimmed}, nil
}

func chooseVehicle(sorted []shuttle.VehicleClass, counts map[string]int, required int) (string, int, bool) {
	for _, vc := range sorted {
		if vc.Capacity >= required && counts[vc.Type] > 0 {
			return vc.Type, vc.Capacity, true
		}
	}
	return "", 0, false
}

func capacityOf(sorted []shuttle.VehicleClass, vehicleType string) (int, bool) {
	for _, vc := range sorted {
		if vc.Type == vehicleType {
			return vc.Capacity, true
		}
	}
	return 0, false
}

func passengerCap(vehicleCapacity int, guardNeeded, specialNeeds bool) int {
	cap := vehicleCapacity
	if guardNeeded {
		cap--
	}
	if specialNeeds {
		limit := 2
		if guardNeeded {
			limit = 1
		}
		if limit < cap {
			cap = limit
		}
	}
	return cap
}

func allSpecialNeeds(employees []*shuttle.Employee) bool {
	if len(employees) == 0 {
		return false
	}
	for _, e := range employees {
		if !e.IsSpecialNeeds() {
			return false
		}
	}
	return true
}

func criticalSeatGender(employees []*shuttle.Employee, tripType shuttle.TripType) shuttle.Gender {
	if len(employees) == 0 {
		return ""
	}
	if tripType == shuttle.TripPickup {
		return employees[0].Gender
	}
	return employees[len(employees)-1].Gender
}

func toRoutedEmployees(employees []*shuttle.Employee) []shuttle.RoutedEmployee {
	out := make([]shuttle.RoutedEmployee, len(employees))
	for i, e := range employees {
		out[i] = shuttle.RoutedEmployee{Employee: e, Order: i + 1}
	}
	return out
}
