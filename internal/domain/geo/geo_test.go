package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/domain/geo"
)

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Delhi to Gurugram, roughly 25 km apart in a straight line.
	delhi := geo.Point{Lat: 28.6139, Lng: 77.2090}
	gurugram := geo.Point{Lat: 28.4595, Lng: 77.0266}

	d := geo.HaversineKm(delhi, gurugram)

	assert.InDelta(t, 24.7, d, 3.0)
}

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	p := geo.Point{Lat: 12.34, Lng: 56.78}
	assert.Zero(t, geo.HaversineKm(p, p))
}

func TestPolygonContains(t *testing.T) {
	square := geo.Polygon{
		Name: "square",
		Ring: []geo.Point{
			{Lat: 0, Lng: 0},
			{Lat: 0, Lng: 10},
			{Lat: 10, Lng: 10},
			{Lat: 10, Lng: 0},
		},
	}

	assert.True(t, square.Contains(geo.Point{Lat: 5, Lng: 5}))
	assert.False(t, square.Contains(geo.Point{Lat: 50, Lng: 50}))
}

func TestPolygonContains_DegenerateRingIsNeverInside(t *testing.T) {
	line := geo.Polygon{Ring: []geo.Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}}
	assert.False(t, line.Contains(geo.Point{Lat: 0, Lng: 0}))
}

func TestPolylineRoundTrip(t *testing.T) {
	points := []geo.Point{
		{Lat: 28.6139, Lng: 77.2090},
		{Lat: 28.6200, Lng: 77.2150},
		{Lat: 28.6300, Lng: 77.2300},
	}

	encoded := geo.EncodePolyline(points)
	decoded, err := geo.DecodePolyline(encoded)

	require.NoError(t, err)
	require.Len(t, decoded, len(points))
	for i := range points {
		assert.InDelta(t, points[i].Lat, decoded[i].Lat, 1e-5)
		assert.InDelta(t, points[i].Lng, decoded[i].Lng, 1e-5)
	}
}
