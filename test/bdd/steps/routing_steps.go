// Package steps holds the godog step definitions exercising the routing
// pipeline's literal boundary scenarios end to end through the
// orchestrator, the same way a request would reach it in production.
package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/fleetshuttle/router/internal/api"
	"github.com/fleetshuttle/router/internal/application/orchestrator"
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/roadservice"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
	"github.com/fleetshuttle/router/internal/domain/vrp"
)

const kmPerDegLat = 111.32

func kmNorth(km float64) float64 { return km / kmPerDegLat }

// geoRoadClient answers /route and /table from the real haversine distance
// between the given coordinates, at a flat 60km/h, so scenario geometry
// (lat/lng offsets) controls route distance directly.
type geoRoadClient struct{}

func (geoRoadClient) Route(_ context.Context, req *roadservice.RouteRequest) (*roadservice.RouteResponse, error) {
	legs := make([]roadservice.RouteLeg, 0, len(req.Coordinates)-1)
	totalKm := 0.0
	for i := 1; i < len(req.Coordinates); i++ {
		km := geo.HaversineKm(req.Coordinates[i-1], req.Coordinates[i])
		totalKm += km
		legs = append(legs, roadservice.RouteLeg{RawDurationS: km * 60, DurationS: km * 60})
	}
	return &roadservice.RouteResponse{DistanceM: totalKm * 1000, DurationS: totalKm * 60, RawDurationS: totalKm * 60, Legs: legs}, nil
}

func (geoRoadClient) Table(_ context.Context, req *roadservice.TableRequest) (*roadservice.TableResponse, error) {
	distances := make([][]float64, len(req.SourceIndices))
	durations := make([][]float64, len(req.SourceIndices))
	for i, src := range req.SourceIndices {
		distances[i] = make([]float64, len(req.DestIndices))
		durations[i] = make([]float64, len(req.DestIndices))
		for j, dst := range req.DestIndices {
			km := geo.HaversineKm(req.Coordinates[src], req.Coordinates[dst])
			distances[i][j] = km * 1000
			durations[i][j] = km * 60
		}
	}
	return &roadservice.TableResponse{DistancesM: distances, DurationsS: durations}, nil
}

// passthroughSolver returns the customers in matrix order as a single
// route, honoring any fixed-start/end pin; it never drops.
type passthroughSolver struct{}

func (passthroughSolver) Solve(_ context.Context, p *vrp.Problem) (*vrp.Solution, error) {
	n := len(p.DistanceMatrix) - 1
	route := make([]int, n)
	for i := range route {
		route[i] = i + 1
	}
	return &vrp.Solution{Routes: [][]int{route}}, nil
}

type routingContext struct {
	profile   *shuttle.Profile
	employees []api.EmployeeInput
	resp      *api.RoutingResponse
	err       error
}

func (c *routingContext) reset() {
	c.profile = &shuttle.Profile{
		Name:                        "testcity",
		DefaultZoneCapacity:         6,
		MaxDuration:                 7200,
		DirectionPenaltyWeightSolve: 2.0,
		DirectionPenaltyWeightReopt: 0.5,
		MaxSwapDistanceKm:           1.5,
		SwapDurationRegressionCap:   0.25,

		ImpossibleDistanceThresholdKm:    50,
		ForceSingletonDistanceKm:         40,
		UnroutedMaxGroupDistanceKm:       5,
		UnroutedMaxConsecutiveDistanceKm: 5,
		UnroutedMaxGroupSpanKm:           12,
		MaxUnroutedProcessingAttempts:    3,
		MaxTrimAttemptsPerGroup:          3,

		Tunables: shuttle.HeuristicTunables{
			ProgressWeight:          1.0,
			PenaltyScalar:           0.5,
			DistanceWeight:          1.0,
			DistanceScalar:          1.0,
			PickupAcceptanceFactor:  2.5,
			DropoffAcceptanceFactor: 0.95,
			TrafficBufferETACap:     0.40,
		},
	}
	c.employees = nil
	c.resp = nil
	c.err = nil
}

// Given steps

func (c *routingContext) aFleetProfileWithVehicleTiers(tiers string) error {
	c.profile.Fleet = nil
	for _, tier := range strings.Split(tiers, ",") {
		parts := strings.SplitN(strings.TrimSpace(tier), ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed vehicle tier %q", tier)
		}
		capacity, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("malformed vehicle tier capacity %q: %w", tier, err)
		}
		c.profile.Fleet = append(c.profile.Fleet, shuttle.VehicleClass{Type: parts[0], Capacity: capacity, Count: 10})
	}
	return nil
}

func (c *routingContext) anEmployeeAtKmFromTheFacility(code string, km float64) error {
	c.employees = append(c.employees, api.EmployeeInput{EmpCode: code, GeoY: kmNorth(km), GeoX: 0, Gender: "M"})
	return nil
}

func (c *routingContext) medicalEmployeesCloselySpacedNearTheFacility(n int) error {
	for i := 0; i < n; i++ {
		c.employees = append(c.employees, api.EmployeeInput{
			EmpCode: "MED" + strconv.Itoa(i), GeoY: kmNorth(float64(i) * 0.1), GeoX: 0, Gender: "M", IsMedical: true,
		})
	}
	return nil
}

func (c *routingContext) aDropoffGroupWhereTheFarthestStopIsFemaleAndAMaleIsWithinSwapRange() error {
	c.employees = append(c.employees,
		api.EmployeeInput{EmpCode: "M1", GeoY: kmNorth(1.0), GeoX: 0, Gender: "M"},
		api.EmployeeInput{EmpCode: "M2", GeoY: kmNorth(1.9), GeoX: 0, Gender: "M"},
		api.EmployeeInput{EmpCode: "F1", GeoY: kmNorth(2.0), GeoX: 0, Gender: "F"},
	)
	return nil
}

func (c *routingContext) aDropoffGroupWhereTheFarthestStopIsFemaleAndNoMaleIsWithinSwapRange() error {
	c.employees = append(c.employees,
		api.EmployeeInput{EmpCode: "M1", GeoY: kmNorth(0.5), GeoX: 0, Gender: "M"},
		api.EmployeeInput{EmpCode: "M2", GeoY: kmNorth(1.0), GeoX: 0, Gender: "M"},
		api.EmployeeInput{EmpCode: "F1", GeoY: kmNorth(3.0), GeoX: 0, Gender: "F"},
	)
	return nil
}

func (c *routingContext) aDeviationRuleWithAOneWayLimit(limitKm float64) error {
	c.profile.RouteDeviationRules = map[string][]shuttle.DeviationRule{
		"office": {{MinDistKm: 0, MaxDistKm: 200, MaxTotalOneWayKm: limitKm}},
	}
	return nil
}

func (c *routingContext) aForcedSingletonDistanceOf(km float64) error {
	c.profile.ForceSingletonDistanceKm = km
	return nil
}

// When step

func (c *routingContext) aRequestIsRouted(tripType, guardPhrase string) error {
	handler := orchestrator.NewHandler(orchestrator.Deps{
		RoadService: geoRoadClient{},
		Solver:      passthroughSolver{},
		Profile:     c.profile,
	})

	req := &api.RoutingRequest{
		UUID:      "bdd-req",
		Date:      "2026-07-30",
		ShiftTime: "0900",
		TripType:  tripType,
		Facility:  api.FacilityInput{GeoX: 0, GeoY: 0, Type: "office"},
		Guard:     guardPhrase == "with",
		Employees: c.employees,
	}

	c.resp, c.err = handler.Route(context.Background(), req)
	return nil
}

// Then steps

func (c *routingContext) thereShouldBeNCommittedRoutes(n int) error {
	if c.err != nil {
		return fmt.Errorf("routing failed: %w", c.err)
	}
	if len(c.resp.Routes) != n {
		return fmt.Errorf("expected %d committed routes, got %d", n, len(c.resp.Routes))
	}
	return nil
}

func (c *routingContext) routeNShouldUseVehicleType(n int, vehicleType string) error {
	route := c.resp.Routes[n-1]
	if route.VehicleType != vehicleType {
		return fmt.Errorf("expected route %d vehicle type %q, got %q", n, vehicleType, route.VehicleType)
	}
	return nil
}

func (c *routingContext) routeNShouldNotNeedAGuard(n int) error {
	if c.resp.Routes[n-1].Guard {
		return fmt.Errorf("expected route %d to not need a guard", n)
	}
	return nil
}

func (c *routingContext) routeNShouldStillNeedAGuard(n int) error {
	if !c.resp.Routes[n-1].Guard {
		return fmt.Errorf("expected route %d to still need a guard", n)
	}
	return nil
}

func (c *routingContext) everyEmployeeShouldHaveANonEmptyETA() error {
	for _, route := range c.resp.Routes {
		for _, e := range route.Employees {
			if e.ETA == "" {
				return fmt.Errorf("employee %s on route %d has an empty ETA", e.EmpCode, route.RouteNumber)
			}
		}
	}
	return nil
}

func (c *routingContext) thereShouldBeNoUnroutedEmployees() error {
	if len(c.resp.UnroutedEmployees) != 0 {
		return fmt.Errorf("expected no unrouted employees, got %d", len(c.resp.UnroutedEmployees))
	}
	return nil
}

func (c *routingContext) everyCommittedRouteShouldBeFlaggedAsASpecialNeedsRoute() error {
	for _, route := range c.resp.Routes {
		if !route.IsSpecialNeedsRoute {
			return fmt.Errorf("route %d is not flagged special-needs", route.RouteNumber)
		}
	}
	return nil
}

func (c *routingContext) everyCommittedRouteShouldCarryAtMostNEmployees(n int) error {
	for _, route := range c.resp.Routes {
		if len(route.Employees) > n {
			return fmt.Errorf("route %d carries %d employees, expected at most %d", route.RouteNumber, len(route.Employees), n)
		}
	}
	return nil
}

func (c *routingContext) everyRoutedOrUnroutedEmployeeShouldBeAccountedFor() error {
	accounted := len(c.resp.UnroutedEmployees)
	for _, route := range c.resp.Routes {
		accounted += len(route.Employees)
	}
	if accounted != len(c.employees) {
		return fmt.Errorf("expected %d employees accounted for, got %d", len(c.employees), accounted)
	}
	return nil
}

func (c *routingContext) routeNShouldBeSwapped(n int) error {
	if !c.resp.Routes[n-1].Swapped {
		return fmt.Errorf("expected route %d to be swapped", n)
	}
	return nil
}

func (c *routingContext) routeNShouldNotBeSwapped(n int) error {
	if c.resp.Routes[n-1].Swapped {
		return fmt.Errorf("expected route %d to not be swapped", n)
	}
	return nil
}

func (c *routingContext) theOriginalCriticalEmployeeOnRouteNShouldBe(n int, empCode string) error {
	info := c.resp.Routes[n-1].SwappedPairInfo
	if info == nil {
		return fmt.Errorf("route %d has no swap info", n)
	}
	if info.OriginalCriticalEmpCode != empCode {
		return fmt.Errorf("expected original critical employee %q, got %q", empCode, info.OriginalCriticalEmpCode)
	}
	return nil
}

func (c *routingContext) employeeShouldBeUnrouted(empCode string) error {
	for _, e := range c.resp.UnroutedEmployees {
		if e.EmpCode == empCode {
			return nil
		}
	}
	return fmt.Errorf("expected employee %q to be unrouted", empCode)
}

func (c *routingContext) employeeShouldBeTheOnlyEmployeeOnRouteN(empCode string, n int) error {
	route := c.resp.Routes[n-1]
	if len(route.Employees) != 1 || route.Employees[0].EmpCode != empCode {
		return fmt.Errorf("expected route %d to contain only %q", n, empCode)
	}
	return nil
}

// InitializeRoutingScenario registers every step above against sc.
func InitializeRoutingScenario(sc *godog.ScenarioContext) {
	c := &routingContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	sc.Step(`^a fleet profile with vehicle tiers "([^"]*)"$`, c.aFleetProfileWithVehicleTiers)
	sc.Step(`^an employee "([^"]*)" at (\d+(?:\.\d+)?)km from the facility$`, c.anEmployeeAtKmFromTheFacility)
	sc.Step(`^(\d+) medical employees closely spaced near the facility$`, c.medicalEmployeesCloselySpacedNearTheFacility)
	sc.Step(`^a dropoff group where the farthest stop is Female and a Male is within 1\.5km of it$`, c.aDropoffGroupWhereTheFarthestStopIsFemaleAndAMaleIsWithinSwapRange)
	sc.Step(`^a dropoff group where the farthest stop is Female and no Male is within 1\.5km of it$`, c.aDropoffGroupWhereTheFarthestStopIsFemaleAndNoMaleIsWithinSwapRange)
	sc.Step(`^a deviation rule with a (\d+(?:\.\d+)?)km one-way limit$`, c.aDeviationRuleWithAOneWayLimit)
	sc.Step(`^a forced-singleton distance of (\d+(?:\.\d+)?)km$`, c.aForcedSingletonDistanceOf)

	sc.Step(`^a (PICKUP|DROPOFF) request (with|without) a guard is routed$`, c.aRequestIsRouted)

	sc.Step(`^there should be (\d+) committed routes?$`, c.thereShouldBeNCommittedRoutes)
	sc.Step(`^route (\d+) should use vehicle type "([^"]*)"$`, c.routeNShouldUseVehicleType)
	sc.Step(`^route (\d+) should not need a guard$`, c.routeNShouldNotNeedAGuard)
	sc.Step(`^route (\d+) should still need a guard$`, c.routeNShouldStillNeedAGuard)
	sc.Step(`^every employee should have a non-empty ETA$`, c.everyEmployeeShouldHaveANonEmptyETA)
	sc.Step(`^there should be no unrouted employees$`, c.thereShouldBeNoUnroutedEmployees)
	sc.Step(`^every committed route should be flagged as a special-needs route$`, c.everyCommittedRouteShouldBeFlaggedAsASpecialNeedsRoute)
	sc.Step(`^every committed route should carry at most (\d+) employees$`, c.everyCommittedRouteShouldCarryAtMostNEmployees)
	sc.Step(`^every routed or unrouted employee should be accounted for$`, c.everyRoutedOrUnroutedEmployeeShouldBeAccountedFor)
	sc.Step(`^route (\d+) should be swapped$`, c.routeNShouldBeSwapped)
	sc.Step(`^route (\d+) should not be swapped$`, c.routeNShouldNotBeSwapped)
	sc.Step(`^the original critical employee on route (\d+) should be "([^"]*)"$`, c.theOriginalCriticalEmployeeOnRouteNShouldBe)
	sc.Step(`^employee "([^"]*)" should be unrouted$`, c.employeeShouldBeUnrouted)
	sc.Step(`^employee "([^"]*)" should be the only employee on route (\d+)$`, c.employeeShouldBeTheOnlyEmployeeOnRouteN)
}
