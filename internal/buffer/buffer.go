// Package buffer selects the records that fall inside a circular buffer.
package buffer

import (
	"time"

	"github.com/sells-group/student-map/internal/geo"
	"github.com/sells-group/student-map/internal/model"
)

// Layer is a marker set as the filter sees it.
type Layer interface {
	Visible() bool
	Records() []model.Record
}

// Compute returns copies of the attributes of every record within
// radiusMeters of center, across visible layers. Order follows the layers,
// then record insertion order. A non-positive or non-finite radius, or an
// invalid center, yields an empty result.
func Compute(center model.Point, radiusMeters float64, layers []Layer) []model.Attributes {
	circle := geo.Circle{Center: center, RadiusMeters: radiusMeters}
	if !circle.Usable() {
		return nil
	}

	var out []model.Attributes
	for _, layer := range layers {
		if layer == nil || !layer.Visible() {
			continue
		}
		for _, r := range layer.Records() {
			if circle.Contains(r.Point()) {
				out = append(out, r.Attributes.Clone())
			}
		}
	}
	return out
}

// Selection is the result of the most recent buffer operation.
type Selection struct {
	Center       model.Point        `json:"center"`
	RadiusMeters float64            `json:"radius_meters"`
	Matches      []model.Attributes `json:"matches"`
	ComputedAt   time.Time          `json:"computed_at"`
}

// NewSelection runs Compute and captures its inputs.
func NewSelection(center model.Point, radiusMeters float64, layers []Layer) *Selection {
	return &Selection{
		Center:       center,
		RadiusMeters: radiusMeters,
		Matches:      Compute(center, radiusMeters, layers),
		ComputedAt:   time.Now().UTC(),
	}
}

// Empty reports whether the selection has no matches.
func (s *Selection) Empty() bool {
	return s == nil || len(s.Matches) == 0
}

// Circle returns the buffer region.
func (s *Selection) Circle() geo.Circle {
	return geo.Circle{Center: s.Center, RadiusMeters: s.RadiusMeters}
}

// Bounds returns the box covering the buffer, or a zero box when the
// radius is unusable.
func (s *Selection) Bounds() geo.BBox {
	c := s.Circle()
	if !c.Usable() {
		return geo.BBox{}
	}
	return c.Bounds()
}
