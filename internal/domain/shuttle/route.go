package shuttle

import "github.com/fleetshuttle/router/internal/domain/geo"

// Leg is one hop of a route's path, facility-to-first / employee-to-next /
// last-to-facility depending on trip direction.
type Leg struct {
	FromEmpCode  string
	ToEmpCode    string
	DistanceM    float64
	RawDurationS float64
	DurationS    float64
}

// RouteDetails is the single canonical record for a route's road-service
// derived geometry, replacing the mixed totalDistance/distance,
// totalDuration/duration shapes seen across legacy variants.
type RouteDetails struct {
	TotalDistanceM  float64
	TotalDurationS  float64
	Legs            []Leg
	EncodedPolyline string
	Geometry        []geo.Point
}

// SwappedPairInfo records an experiential guard swap: the Female moved out
// of the critical seat and the Male moved in.
type SwappedPairInfo struct {
	OriginalCriticalEmpCode string
	SwappedInEmpCode        string
	RoadDistanceKm          float64
}

// Route is one vehicle's assignment: an ordered employee sequence plus the
// flags and measurements the pipeline accumulates as it is built, validated,
// and (if it survives) committed.
type Route struct {
	UniqueKey string
	Zone      string
	TripType  TripType

	Employees []RoutedEmployee

	AssignedVehicleType string
	VehicleCapacity     int
	AfterFleetExhaustion bool

	GuardNeeded       bool
	IsSpecialNeedsRoute bool
	Swapped           bool
	SwappedPairInfo   *SwappedPairInfo
	DurationExceeded  bool
	Error             string

	Details RouteDetails

	// FarthestEmployeeDistanceKm is the one-way road distance (not
	// haversine) from the facility to the route's farthest employee, set
	// by guard.Resolve. It is the distance the deviation band is selected
	// on and the value reported back to the caller.
	FarthestEmployeeDistanceKm float64
}

// CriticalSeatIndex returns the index of the critical seat: the last stop
// for dropoff, the first for pickup — the position left alone with the
// driver.
func (r *Route) CriticalSeatIndex() int {
	if r.TripType == TripPickup {
		return 0
	}
	return len(r.Employees) - 1
}

// CriticalSeatEmployee returns the employee at the critical seat, or nil if
// the route is empty.
func (r *Route) CriticalSeatEmployee() *Employee {
	if len(r.Employees) == 0 {
		return nil
	}
	return r.Employees[r.CriticalSeatIndex()].Employee
}

// Occupancy is passenger count plus the guard seat, if any.
func (r *Route) Occupancy() int {
	n := len(r.Employees)
	if r.GuardNeeded {
		n++
	}
	return n
}

// EmpCodes returns the ordered list of employee codes in the route.
func (r *Route) EmpCodes() []string {
	codes := make([]string, len(r.Employees))
	for i, re := range r.Employees {
		codes[i] = re.Employee.EmpCode
	}
	return codes
}
