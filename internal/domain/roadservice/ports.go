// Package roadservice defines the port the routing pipeline uses to reach
// the external OSRM-compatible road-network service. The adapter living in
// internal/adapters/roadservice implements this over HTTP; the pipeline
// only ever depends on this interface.
package roadservice

import (
	"context"

	"github.com/fleetshuttle/router/internal/domain/geo"
)

// Client wraps the two operations the pipeline consumes from the road
// service: route (ordered-coordinate geometry) and table (pairwise
// distance/duration matrices).
type Client interface {
	Route(ctx context.Context, req *RouteRequest) (*RouteResponse, error)
	Table(ctx context.Context, req *TableRequest) (*TableResponse, error)
}

// RouteRequest asks for the road-network path through an ordered list of
// coordinates, for the named city backend.
type RouteRequest struct {
	City        string
	Coordinates []geo.Point
	ShiftHour   float64
}

// RouteStep is one maneuver within a leg, carrying its own polyline
// geometry; OSRM emits several per leg.
type RouteStep struct {
	Geometry string
}

// RouteLeg is the road distance/duration between two consecutive input
// coordinates. RawDurationS is the unbuffered OSRM figure; DurationS has
// already had 1+trafficBuffer(ShiftHour) applied. Callers that need a
// different buffer cap (the ETA synthesizer caps at 0.40 rather than the
// request's full peak buffer) recompute from RawDurationS.
type RouteLeg struct {
	RawDurationS float64
	DurationS    float64
	Steps        []RouteStep
}

// RouteResponse is the road service's answer to a /route call.
type RouteResponse struct {
	DistanceM       float64
	RawDurationS    float64
	DurationS       float64
	Legs            []RouteLeg
	EncodedPolyline string
}

// TableRequest asks for a distance/duration matrix over a coordinate set,
// optionally restricted to a source/destination index subset.
type TableRequest struct {
	City          string
	Coordinates   []geo.Point
	SourceIndices []int
	DestIndices   []int
}

// TableResponse is the pairwise matrices keyed [source][dest].
type TableResponse struct {
	DistancesM [][]float64
	DurationsS [][]float64
}

// TrafficBuffer returns the piecewise time-of-day buffer multiplier: a
// decimal hour in [7,10) or [16,20) is peak (0.60); otherwise off-peak
// (0.40). The ETA synthesizer passes the four bucket values from the
// profile's shuttle.HeuristicTunables; the HTTP road-service client always
// passes the fixed 0.60/0.40/0.60/0.40 values and does not read the profile.
func TrafficBuffer(decimalHour, peakAM, midday, peakPM, offPeak float64) float64 {
	switch {
	case decimalHour >= 7 && decimalHour < 10:
		return peakAM
	case decimalHour >= 10 && decimalHour < 16:
		return midday
	case decimalHour >= 16 && decimalHour < 20:
		return peakPM
	default:
		return offPeak
	}
}
