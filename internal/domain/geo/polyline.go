package geo

import polyline "github.com/twpayne/go-polyline"

// EncodePolyline encodes an ordered list of points into an OSRM-style
// encoded polyline string.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes an OSRM-style encoded polyline string back into an
// ordered list of points.
func DecodePolyline(encoded string) ([]Point, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lat: c[0], Lng: c[1]}
	}
	return points, nil
}
