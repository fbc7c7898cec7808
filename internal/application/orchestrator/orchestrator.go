// Package orchestrator drives the full routing pipeline (zone assignment
// through unrouted recovery) for one request and assembles the response
// envelope. It is registered as a common.RequestHandler against
// *api.RoutingRequest, so the mediator/middleware plumbing carries logging
// and timing around it like any other handler.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fleetshuttle/router/internal/api"
	"github.com/fleetshuttle/router/internal/application/common"
	"github.com/fleetshuttle/router/internal/application/fleet"
	"github.com/fleetshuttle/router/internal/application/grouping"
	"github.com/fleetshuttle/router/internal/application/guard"
	"github.com/fleetshuttle/router/internal/application/polish"
	"github.com/fleetshuttle/router/internal/application/unrouted"
	"github.com/fleetshuttle/router/internal/application/validate"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shared"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
	"github.com/fleetshuttle/router/internal/domain/zone"
)

// Deps are the collaborators a Handler needs for every request it serves.
// Unlike the per-pipeline Deps structs, these are request-independent:
// the handler builds the request-scoped fleet counters and zone maps fresh
// per call so one Handler is safe to reuse concurrently across requests.
type Deps struct {
	RoadService roadservice.Client
	Solver      vrp.Solver
	Zones       []zone.Zone
	Profile     *shuttle.Profile
	Clock       shared.Clock
}

// Handler implements common.RequestHandler for *api.RoutingRequest.
type Handler struct {
	deps Deps
}

// NewHandler builds an orchestrator handler with request-independent,
// reusable collaborators (road service, solver, zone polygons, profile).
func NewHandler(deps Deps) *Handler {
	if deps.Clock == nil {
		deps.Clock = shared.NewRealClock()
	}
	return &Handler{deps: deps}
}

// Handle implements common.RequestHandler.
func (h *Handler) Handle(ctx context.Context, request common.Request) (common.Response, error) {
	req, ok := request.(*api.RoutingRequest)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unexpected request type %T", request)
	}
	return h.Route(ctx, req)
}

// reason tags why an employee ended up unrouted, carried through the pool
// so the response can explain itself rather than silently dropping employees.
type pooledEmployee struct {
	employee *shuttle.Employee
	reason   string
}

// Route runs the whole pipeline for req and returns the response envelope.
func (h *Handler) Route(ctx context.Context, req *api.RoutingRequest) (*api.RoutingResponse, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}

	logger := common.LoggerFromContext(ctx)

	tripType := shuttle.TripPickup
	if req.TripType == "DROPOFF" {
		tripType = shuttle.TripDropoff
	}

	shiftTime, shiftHour, err := parseShiftTime(req.Date, req.ShiftTime)
	if err != nil {
		return nil, shared.NewInputError(fmt.Sprintf("orchestrator: %s", err))
	}

	facility := &shuttle.Facility{
		GeoY:    req.Facility.GeoY,
		GeoX:    req.Facility.GeoX,
		Type:    req.Facility.Type,
		Profile: h.deps.Profile,
	}

	employees := toEmployees(req.Employees, facility)

	counts := fleetCounts(h.deps.Profile.Fleet)

	zoned := zone.Assign(employees, h.deps.Zones)

	guardActive := req.Guard && guardWindowActive(h.deps.Profile, facility.Type, tripType, shiftTime)

	var committed []*shuttle.Route
	var pool []pooledEmployee

	for _, zoneName := range orderedZoneNames(zoned, h.deps.Profile) {
		group := zoned[zoneName]
		targetSize := h.deps.Profile.CapacityForZone(zoneName)

		formed := grouping.FormGroups(ctx, group, targetSize, grouping.Deps{
			RoadService: h.deps.RoadService,
			Facility:    facility,
			Profile:     h.deps.Profile,
			TripType:    tripType,
			ShiftHour:   shiftHour,
		})
		for _, e := range formed.Deferred {
			pool = append(pool, pooledEmployee{e, "seed validation failed"})
		}

		for _, g := range formed.Groups {
			route := &shuttle.Route{
				UniqueKey: uuid.NewString(),
				Zone:      zoneName,
				TripType:  tripType,
			}

			allocResult, err := fleet.Allocate(route, g, counts, h.deps.Profile.Fleet, guardActive)
			if err != nil {
				logger.Log("WARN", "route errored at fleet allocation", map[string]interface{}{"zone": zoneName, "error": err.Error()})
				for _, e := range g {
					pool = append(pool, pooledEmployee{e, "capacity exhaustion"})
				}
				continue
			}
			for _, e := range allocResult.Trimmed {
				pool = append(pool, pooledEmployee{e, "capacity trim"})
			}

			kept := make([]*shuttle.Employee, len(route.Employees))
			for i, re := range route.Employees {
				kept[i] = re.Employee
			}

			polished, details, err := polish.Polish(ctx, kept, polish.Deps{
				Solver:      h.deps.Solver,
				RoadService: h.deps.RoadService,
				Facility:    facility,
				Profile:     h.deps.Profile,
				TripType:    tripType,
				ShiftHour:   shiftHour,
			})
			for _, e := range polished.Dropped {
				pool = append(pool, pooledEmployee{e, "VRP dropped"})
			}
			if err != nil || len(polished.Ordered) == 0 {
				for _, e := range kept {
					found := false
					for _, d := range polished.Dropped {
						if d == e {
							found = true
							break
						}
					}
					if !found {
						pool = append(pool, pooledEmployee{e, "polish failed"})
					}
				}
				continue
			}

			route.Employees = toRoutedEmployees(polished.Ordered)
			route.Details = *details

			committed = append(committed, route)
		}
	}

	var survivors []*shuttle.Route
	for _, route := range committed {
		if err := guard.Resolve(ctx, route, guard.Deps{
			RoadService: h.deps.RoadService,
			Solver:      h.deps.Solver,
			Facility:    facility,
			Profile:     h.deps.Profile,
			ShiftHour:   shiftHour,
		}); err != nil {
			logger.Log("WARN", "guard resolution failed, route dissolved", map[string]interface{}{"route": route.UniqueKey, "error": err.Error()})
			for _, re := range route.Employees {
				pool = append(pool, pooledEmployee{re.Employee, "guard resolution failed"})
			}
			continue
		}
		recomputeGuardNeeded(route, guardActive)

		farthestKm := route.FarthestEmployeeDistanceKm
		totalKm := route.Details.TotalDistanceM / 1000.0
		if !validate.Deviation(h.deps.Profile, facility.Type, farthestKm, totalKm, false) {
			for _, re := range route.Employees {
				pool = append(pool, pooledEmployee{re.Employee, "deviation rule failed"})
			}
			continue
		}
		if route.Details.TotalDurationS > float64(h.deps.Profile.MaxDuration) {
			route.DurationExceeded = true
		}

		validate.SynthesizeETA(validate.ETAInputs{
			Route:                  route,
			ShiftTime:              shiftTime,
			ShiftHour:               shiftHour,
			ReportingTime:           time.Duration(req.ReportingTime) * time.Second,
			ServiceTimePerEmployee:  time.Duration(pickupTimePerEmployee(req)) * time.Second,
			Tunables:                h.deps.Profile.Tunables,
		})

		if err := shuttle.ValidateRoute(route, guardActive); err != nil {
			logger.Log("WARN", "route failed final invariant check, dissolved", map[string]interface{}{"route": route.UniqueKey, "error": err.Error()})
			for _, re := range route.Employees {
				pool = append(pool, pooledEmployee{re.Employee, "invariant check failed"})
			}
			continue
		}

		survivors = append(survivors, route)
	}

	unroutedInputs := make([]*shuttle.Employee, len(pool))
	reasons := make(map[string]string, len(pool))
	for i, p := range pool {
		unroutedInputs[i] = p.employee
		reasons[p.employee.EmpCode] = p.reason
	}

	recycled := unrouted.Recycle(ctx, unroutedInputs, unrouted.Deps{
		RoadService: h.deps.RoadService,
		Solver:      h.deps.Solver,
		Facility:    facility,
		Profile:     h.deps.Profile,
		TripType:    tripType,
		ShiftHour:   shiftHour,
		Counts:      counts,
		GuardActive: guardActive,
		ETA: validate.ETAInputs{
			ShiftTime:              shiftTime,
			ShiftHour:               shiftHour,
			ReportingTime:           time.Duration(req.ReportingTime) * time.Second,
			ServiceTimePerEmployee:  time.Duration(pickupTimePerEmployee(req)) * time.Second,
			Tunables:                h.deps.Profile.Tunables,
		},
	})

	survivors = append(survivors, recycled.Routes...)

	if err := shuttle.ValidatePartition(employees, survivors, recycled.Impossible); err != nil {
		logger.Log("ERROR", "partition invariant violated", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	return buildResponse(req, tripType, employees, survivors, recycled.Impossible, reasons), nil
}

func validateInput(req *api.RoutingRequest) error {
	if req == nil {
		return shared.NewInputError("orchestrator: nil request")
	}
	if len(req.Employees) == 0 {
		return shared.NewInputError("orchestrator: request has no employees")
	}
	if req.TripType != "PICKUP" && req.TripType != "DROPOFF" {
		return shared.NewInputError("orchestrator: tripType must be PICKUP or DROPOFF")
	}
	if req.Date == "" || req.ShiftTime == "" {
		return shared.NewInputError("orchestrator: date and shiftTime are required")
	}
	return nil
}

func parseShiftTime(date, hhmm string) (time.Time, float64, error) {
	if len(hhmm) != 4 {
		return time.Time{}, 0, fmt.Errorf("shiftTime must be HHMM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid shiftTime %q: %w", hhmm, err)
	}
	minute, err := strconv.Atoi(hhmm[2:])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid shiftTime %q: %w", hhmm, err)
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	shiftTime := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	return shiftTime, float64(hour) + float64(minute)/60.0, nil
}

func pickupTimePerEmployee(req *api.RoutingRequest) int {
	if req.PickupTimePerEmployee > 0 {
		return req.PickupTimePerEmployee
	}
	return 180
}

func toEmployees(inputs []api.EmployeeInput, facility *shuttle.Facility) []*shuttle.Employee {
	out := make([]*shuttle.Employee, 0, len(inputs))
	for _, in := range inputs {
		gender := shuttle.GenderMale
		if in.Gender == "F" {
			gender = shuttle.GenderFemale
		}
		e := &shuttle.Employee{
			EmpCode:   in.EmpCode,
			Lat:       in.GeoY,
			Lng:       in.GeoX,
			Gender:    gender,
			IsMedical: in.IsMedical,
			IsPWD:     in.IsPWD,
			IsNMT:     in.IsNMT,
			IsOOB:     in.IsOOB,
		}
		e.DistToFacility = geo.HaversineKm(geo.Point{Lat: e.Lat, Lng: e.Lng}, geo.Point{Lat: facility.GeoY, Lng: facility.GeoX})
		out = append(out, e)
	}
	return out
}

func fleetCounts(fleetClasses []shuttle.VehicleClass) map[string]int {
	counts := make(map[string]int, len(fleetClasses))
	for _, vc := range fleetClasses {
		counts[vc.Type] = vc.Count
	}
	return counts
}

// orderedZoneNames returns zone names in a stable order so that repeated
// runs over the same input are deterministic. With zoneClubbing on, zones
// connected through zonePairingMatrix are walked via BFS so each connected
// component's zones come out consecutively. Only the order changes: each
// zone's employees are still grouped in their own pass, not merged with
// the paired zones' employees.
func orderedZoneNames(zoned map[string][]*shuttle.Employee, profile *shuttle.Profile) []string {
	names := make([]string, 0, len(zoned))
	for name := range zoned {
		names = append(names, name)
	}
	sort.Strings(names)

	if !profile.ZoneClubbing || len(profile.ZonePairingMatrix) == 0 {
		return names
	}

	visited := make(map[string]bool, len(names))
	var ordered []string
	for _, name := range names {
		if visited[name] {
			continue
		}
		component := bfsComponent(name, profile.ZonePairingMatrix, zoned, visited)
		ordered = append(ordered, component...)
	}
	return ordered
}

func bfsComponent(start string, matrix map[string][]string, zoned map[string][]*shuttle.Employee, visited map[string]bool) []string {
	var component []string
	queue := []string{start}
	visited[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		component = append(component, cur)
		neighbors := append([]string{}, matrix[cur]...)
		sort.Strings(neighbors)
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			if _, exists := zoned[n]; !exists {
				continue
			}
			visited[n] = true
			queue = append(queue, n)
		}
	}
	return component
}

func guardWindowActive(profile *shuttle.Profile, facilityType string, tripType shuttle.TripType, shiftTime time.Time) bool {
	key := facilityType + "_" + string(tripType)
	window, ok := profile.NightShiftGuardTimings[key]
	if !ok {
		return true
	}
	minutes := shiftTime.Hour()*100 + shiftTime.Minute()
	if window.Start <= window.End {
		return minutes >= window.Start && minutes <= window.End
	}
	return minutes >= window.Start || minutes <= window.End
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

func buildResponse(req *api.RoutingRequest, tripType shuttle.TripType, input []*shuttle.Employee, routes []*shuttle.Route, impossible []*shuttle.Employee, reasons map[string]string) *api.RoutingResponse {
	shiftLetter := "P"
	if tripType == shuttle.TripDropoff {
		shiftLetter = "D"
	}

	resp := &api.RoutingResponse{
		UUID:     req.UUID,
		Date:     req.Date,
		Shift:    req.ShiftTime,
		TripType: shiftLetter,
	}
	resp.TotalEmployees = len(input)

	totalOccupancy := 0
	totalDistanceKm := 0.0
	totalDurationS := 0.0

	for i, route := range routes {
		out := routeToOutput(route, i+1)
		resp.Routes = append(resp.Routes, out)
		resp.TotalRoutedEmployees += len(route.Employees)
		totalOccupancy += route.Occupancy()
		totalDistanceKm += route.Details.TotalDistanceM / 1000.0
		totalDurationS += route.Details.TotalDurationS
		if route.GuardNeeded {
			resp.TotalGuardedRoutes++
		}
		if route.Swapped {
			resp.TotalSwappedRoutes++
		}
	}
	resp.TotalRoutes = len(routes)
	resp.OverallRouteDetails = api.OverallRouteDetails{TotalDistanceKm: totalDistanceKm, TotalDurationS: totalDurationS}
	if resp.TotalRoutes > 0 {
		resp.AverageOccupancy = float64(totalOccupancy) / float64(resp.TotalRoutes)
	}

	for _, e := range impossible {
		resp.UnroutedEmployees = append(resp.UnroutedEmployees, api.UnroutedEmployee{
			EmpCode: e.EmpCode,
			Gender:  string(e.Gender),
			GeoX:    e.Lng,
			GeoY:    e.Lat,
			Reason:  reasons[e.EmpCode],
		})
	}

	return resp
}

func routeToOutput(route *shuttle.Route, routeNumber int) api.RouteOutput {
	out := api.RouteOutput{
		RouteNumber:                routeNumber,
		Zone:                       route.Zone,
		VehicleCapacity:            route.VehicleCapacity,
		VehicleType:                route.AssignedVehicleType,
		Guard:                      route.GuardNeeded,
		Swapped:                    route.Swapped,
		DurationExceeded:           route.DurationExceeded,
		UniqueKey:                  route.UniqueKey,
		IsSpecialNeedsRoute:        route.IsSpecialNeedsRoute,
		AfterFleetExhaustion:       route.AfterFleetExhaustion,
		DistanceKm:                 route.Details.TotalDistanceM / 1000.0,
		DurationS:                  route.Details.TotalDurationS,
		Occupancy:                  route.Occupancy(),
		EncodedPolyline:            route.Details.EncodedPolyline,
	}

	if route.SwappedPairInfo != nil {
		out.SwappedPairInfo = &api.SwappedPairInfo{
			OriginalCriticalEmpCode: route.SwappedPairInfo.OriginalCriticalEmpCode,
			SwappedInEmpCode:        route.SwappedPairInfo.SwappedInEmpCode,
			RoadDistanceKm:          route.SwappedPairInfo.RoadDistanceKm,
		}
	}

	for _, re := range route.Employees {
		e := re.Employee
		if e.IsMedical {
			out.IsMedicalRoute = true
		}
		if e.IsPWD {
			out.IsPWDRoute = true
		}
		if e.IsNMT {
			out.IsNMTRoute = true
		}
		if e.IsOOB {
			out.IsOOBRoute = true
		}
		out.Employees = append(out.Employees, api.EmployeeOutput{
			EmpCode:   e.EmpCode,
			Gender:    string(e.Gender),
			IsMedical: e.IsMedical,
			IsPWD:     e.IsPWD,
			IsNMT:     e.IsNMT,
			IsOOB:     e.IsOOB,
			ETA:       formatETA(re.ETA),
			Order:     re.Order,
			GeoX:      e.Lng,
			GeoY:      e.Lat,
		})
	}
	out.FarthestEmployeeDistanceKm = route.FarthestEmployeeDistanceKm

	return out
}

func formatETA(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04")
}
