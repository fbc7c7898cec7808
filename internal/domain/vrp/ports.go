// Package vrp defines the port the routing pipeline uses to reach the
// external VRP solver subprocess. The adapter in internal/adapters/vrp
// implements this by spawning the process; the pipeline only ever depends
// on this interface.
package vrp

import "context"

// TripDirection selects the direction penalty applied during solving.
type TripDirection string

const (
	DirectionPickup  TripDirection = "PICKUP"
	DirectionDropoff TripDirection = "DROPOFF"
)

// Problem is the JSON payload sent to the solver subprocess on stdin. Depot
// is always index 0; customer indices are 1..N in the order of the input
// point map.
type Problem struct {
	DistanceMatrix [][]float64 `json:"distance_matrix"`
	DurationMatrix [][]float64 `json:"duration_matrix"`
	NumVehicles    int         `json:"num_vehicles"`
	VehicleCapacities []int    `json:"vehicle_capacities"`
	Demands        []int       `json:"demands"`
	DepotIndex     int         `json:"depot_index"`
	MaxRouteDuration int       `json:"max_route_duration"`
	ServiceTimes   []int       `json:"service_times"`
	AllowDroppingVisits bool   `json:"allow_dropping_visits"`
	DropVisitPenalty    float64 `json:"drop_visit_penalty"`
	FacilityCoords [2]float64  `json:"facility_coords"`
	TripType       TripDirection `json:"trip_type"`
	DirectionPenaltyWeight float64 `json:"direction_penalty_weight"`

	FixedStartNodeIndex *int `json:"fixed_start_node_index_in_matrix,omitempty"`
	FixedEndNodeIndex   *int `json:"fixed_end_node_index_in_matrix,omitempty"`
}

// Solution is the last well-formed top-level JSON object the solver writes
// to stdout.
type Solution struct {
	Routes              [][]int `json:"routes"`
	DroppedNodeIndices  []int   `json:"dropped_node_indices"`
	Error               string  `json:"error,omitempty"`
}

// Solver spawns the external subprocess and parses its solution.
type Solver interface {
	Solve(ctx context.Context, problem *Problem) (*Solution, error)
}
