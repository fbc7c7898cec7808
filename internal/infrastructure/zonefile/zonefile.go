// Package zonefile reads the GeoJSON-like zone polygon file referenced by a
// profile's zone configuration. It is loaded once at process startup and
// the resulting zones are reused across every request the process handles.
package zonefile

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetshuttle/router/internal/domain/geo"
	"github.com/fleetshuttle/router/internal/domain/zone"
)

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties properties `json:"properties"`
	Geometry   geometry   `json:"geometry"`
}

type properties struct {
	Name string `json:"Name"`
}

type geometry struct {
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Load reads path and returns one zone.Zone per feature. Each feature's
// outer ring (coordinates[0]) is read as [lng,lat] pairs, matching GeoJSON's
// axis order; zone.Zone stores them as geo.Point{Lat,Lng}.
func Load(path string) ([]zone.Zone, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("zonefile: read %s: %w", path, err)
	}

	var fc featureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("zonefile: parse %s: %w", path, err)
	}

	zones := make([]zone.Zone, 0, len(fc.Features))
	for _, f := range fc.Features {
		if len(f.Geometry.Coordinates) == 0 {
			continue
		}
		ring := f.Geometry.Coordinates[0]
		points := make([]geo.Point, len(ring))
		for i, c := range ring {
			points[i] = geo.Point{Lng: c[0], Lat: c[1]}
		}
		zones = append(zones, zone.Zone{
			Name:    f.Properties.Name,
			Polygon: geo.Polygon{Name: f.Properties.Name, Ring: points},
		})
	}
	return zones, nil
}
