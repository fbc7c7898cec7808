package validate

import (
	"time"

	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

// ETAInputs carries everything the synthesizer needs to walk a route's legs
// and assign each employee a pickup or dropoff time.
type ETAInputs struct {
	Route                  *shuttle.Route
	ShiftTime              time.Time
	ShiftHour              float64
	ReportingTime          time.Duration
	ServiceTimePerEmployee time.Duration
	Tunables               shuttle.HeuristicTunables
}

// SynthesizeETA assigns route.Employees[i].ETA for every leg, walking
// backward from the shift time for pickup routes and forward for dropoff
// routes. reportingTime only applies to pickup, per the pipeline's
// resolution of the source's ambiguity on this point. Each leg's duration
// is recomputed from its raw (unbuffered) figure with the traffic buffer
// capped at TrafficBufferETACap, independent of whatever buffer the road
// service applied when the leg was first validated.
func SynthesizeETA(in ETAInputs) {
	r := in.Route
	if len(r.Employees) == 0 {
		return
	}

	if r.TripType == shuttle.TripPickup {
		synthesizePickup(in)
	} else {
		synthesizeDropoff(in)
	}
}

func (in ETAInputs) bufferedLegSeconds(leg shuttle.Leg) time.Duration {
	t := in.Tunables
	buffer := roadservice.TrafficBuffer(in.ShiftHour, t.TrafficBufferPeakAM, t.TrafficBufferMidday, t.TrafficBufferPeakPM, t.TrafficBufferOffPeak)
	if buffer > t.TrafficBufferETACap {
		buffer = t.TrafficBufferETACap
	}
	return time.Duration(leg.RawDurationS*(1+buffer)) * time.Second
}

func synthesizePickup(in ETAInputs) {
	r := in.Route
	current := in.ShiftTime.Add(-in.ReportingTime)

	// Legs run employee[i] -> employee[i+1], with the last employee's leg
	// running to the facility; walk backward from the facility-bound target.
	for i := len(r.Employees) - 1; i >= 0; i-- {
		current = current.Add(-in.bufferedLegSeconds(r.Details.Legs[i]))
		current = current.Add(-in.ServiceTimePerEmployee)
		r.Employees[i].ETA = current
	}
}

func synthesizeDropoff(in ETAInputs) {
	r := in.Route
	current := in.ShiftTime

	// Legs run facility -> employee[0] -> employee[1] -> ...; walk forward.
	for i := range r.Employees {
		current = current.Add(in.bufferedLegSeconds(r.Details.Legs[i]))
		current = current.Add(in.ServiceTimePerEmployee)
		r.Employees[i].ETA = current
	}
}
