// Package shuttle holds the core data model the routing pipeline operates
// on: employees, facilities, profiles, and the routes built from them.
package shuttle

import "time"

// Gender identifies an employee for guard-resolution purposes.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// TripType is the direction a route runs.
type TripType string

const (
	TripPickup  TripType = "PICKUP"
	TripDropoff TripType = "DROPOFF"
)

// DefaultZone is the synthetic zone name for employees matching no polygon.
const DefaultZone = "DEFAULT_ZONE"

// Employee is the immutable input record for one person to be routed.
// Fields set during ingestion never change; order and ETA live on
// RoutedEmployee instead.
type Employee struct {
	EmpCode        string
	Lat            float64
	Lng            float64
	Gender         Gender
	IsMedical      bool
	IsPWD          bool
	IsNMT          bool
	IsOOB          bool
	Zone           string
	DistToFacility float64
}

// IsSpecialNeeds reports whether e requires a special-needs-only route.
func (e *Employee) IsSpecialNeeds() bool {
	return e.IsMedical || e.IsPWD
}

// RoutedEmployee wraps an immutable Employee with the position and time
// assigned once it is placed into a route. The wrapper, not the employee
// record, carries everything the pipeline mutates.
type RoutedEmployee struct {
	Employee *Employee
	Order    int
	ETA      time.Time
}
