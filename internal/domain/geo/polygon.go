package geo

// Polygon is a simple outer ring of points, as read from the zone file.
type Polygon struct {
	Name string
	Ring []Point
}

// Contains reports whether p lies inside the polygon's outer ring using a
// standard ray-casting test (even-odd rule). Points exactly on an edge may
// resolve either way; the zone assigner treats first-match order as the
// tie-breaker, not boundary exactness.
func (poly Polygon) Contains(p Point) bool {
	ring := poly.Ring
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat

		intersects := (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
		j = i
	}
	return inside
}
