// Package geo holds the great-circle math used by the buffer filter.
package geo

import (
	"math"

	"github.com/sells-group/student-map/internal/model"
)

// EarthRadiusMeters is the sphere radius used for all distances. It is the
// same radius Leaflet uses for L.CRS.Earth, so a point inside a drawn circle
// is inside the filter result.
const EarthRadiusMeters = 6371000.0

// MetersPerMile converts the UI radius (miles) to meters.
const MetersPerMile = 1609.34

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b model.Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	sinLat := math.Sin(toRadians(b.Lat-a.Lat) / 2)
	sinLon := math.Sin(toRadians(b.Lon-a.Lon) / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// MilesToMeters converts miles to meters.
func MilesToMeters(miles float64) float64 {
	return miles * MetersPerMile
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
