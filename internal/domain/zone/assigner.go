// Package zone partitions employees into named zones by polygon
// containment.
package zone

import (
	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

// Zone is a named polygon employees are matched against.
type Zone struct {
	Name    string
	Polygon geo.Polygon
}

// Assign partitions employees into zone names by first-match ray-casting
// point-in-polygon, in the order zones are given. Employees matching no
// zone are placed under shuttle.DefaultZone. Employees missing coordinates
// (both lat and lng zero) are dropped; callers reconcile them against
// unroutedEmployees by set difference.
func Assign(employees []*shuttle.Employee, zones []Zone) map[string][]*shuttle.Employee {
	result := make(map[string][]*shuttle.Employee)

	for _, e := range employees {
		if e.Lat == 0 && e.Lng == 0 {
			continue
		}

		p := geo.Point{Lat: e.Lat, Lng: e.Lng}
		matched := shuttle.DefaultZone
		for _, z := range zones {
			if z.Polygon.Contains(p) {
				matched = z.Name
				break
			}
		}

		e.Zone = matched
		result[matched] = append(result[matched], e)
	}

	return result
}
