package geo

import (
	"math"

	"github.com/sells-group/student-map/internal/model"
)

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Circle is a buffer region on the sphere.
type Circle struct {
	Center       model.Point `json:"center"`
	RadiusMeters float64     `json:"radius_meters"`
}

// Usable reports whether the circle can select anything: a valid center and
// a positive, finite radius.
func (c Circle) Usable() bool {
	r := c.RadiusMeters
	return c.Center.Valid() && !math.IsNaN(r) && !math.IsInf(r, 0) && r > 0
}

// Contains reports whether p lies within the circle, boundary included.
func (c Circle) Contains(p model.Point) bool {
	if !c.Usable() || !p.Finite() {
		return false
	}
	return Distance(c.Center, p) <= c.RadiusMeters
}

// Bounds returns the box a client should fit to show the whole circle.
// Longitude span widens with latitude; near the poles it covers all
// longitudes.
func (c Circle) Bounds() BBox {
	latDelta := c.RadiusMeters / EarthRadiusMeters * 180 / math.Pi

	minLat := math.Max(c.Center.Lat-latDelta, -90)
	maxLat := math.Min(c.Center.Lat+latDelta, 90)

	cosLat := math.Cos(toRadians(c.Center.Lat))
	if cosLat < 1e-9 || minLat <= -90 || maxLat >= 90 {
		return BBox{MinLng: -180, MinLat: minLat, MaxLng: 180, MaxLat: maxLat}
	}
	lngDelta := latDelta / cosLat
	if lngDelta >= 180 {
		return BBox{MinLng: -180, MinLat: minLat, MaxLng: 180, MaxLat: maxLat}
	}
	return BBox{
		MinLng: c.Center.Lon - lngDelta,
		MinLat: minLat,
		MaxLng: c.Center.Lon + lngDelta,
		MaxLat: maxLat,
	}
}
