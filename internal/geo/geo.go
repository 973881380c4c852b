// Package geo provides polygon measurements for zone records: haversine
// distances, projected shoelace areas, perimeters and centroids. Inputs are
// rings of [lon, lat] pairs in degrees.
package geo

import "math"

const (
	// Earth radius in meters.
	earthRadiusM = 6371000

	// Meters per degree (approximate, varies by latitude).
	metersPerDegreeLat = 111000
	metersPerDegreeLon = 111320
)

// HaversineDistance returns the distance in meters between two points.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Pow(math.Sin(deltaLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// PolygonArea returns the area in square meters of a [lon, lat] ring.
// The ring is projected onto a plane at its center latitude, then measured
// with the shoelace formula. Rings with fewer than 3 points have zero area.
func PolygonArea(ring [][2]float64) float64 {
	if len(ring) < 3 {
		return 0
	}

	var centerLat float64
	for _, p := range ring {
		centerLat += p[1]
	}
	centerLat /= float64(len(ring))
	cosLat := math.Cos(centerLat * math.Pi / 180)

	type xy struct{ x, y float64 }
	planar := make([]xy, len(ring))
	for i, p := range ring {
		planar[i] = xy{
			x: p[0] * cosLat * metersPerDegreeLon,
			y: p[1] * metersPerDegreeLat,
		}
	}

	var area float64
	n := len(planar)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += planar[i].x*planar[j].y - planar[j].x*planar[i].y
	}

	return math.Abs(area) / 2
}

// PolygonPerimeter returns the perimeter in meters of a [lon, lat] ring,
// closing the ring from the last point back to the first.
func PolygonPerimeter(ring [][2]float64) float64 {
	if len(ring) < 2 {
		return 0
	}

	var perimeter float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		perimeter += HaversineDistance(ring[i][1], ring[i][0], ring[j][1], ring[j][0])
	}
	return perimeter
}

// Centroid returns the (lat, lon) centroid of a ring, (0, 0) for an empty
// ring.
func Centroid(ring [][2]float64) (lat, lon float64) {
	if len(ring) == 0 {
		return 0, 0
	}
	for _, p := range ring {
		lon += p[0]
		lat += p[1]
	}
	n := float64(len(ring))
	return lat / n, lon / n
}
