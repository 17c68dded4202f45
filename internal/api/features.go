package api

import (
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/student-map/internal/model"
)

// popupFields are shown in marker popups when present.
var popupFields = []string{"Full Address", "Address", "City", "Phone Number"}

// featureCollection renders records as GeoJSON points. Every attribute is a
// feature property; the popup field names are listed under "popup" so the
// client can build the popup without guessing.
func featureCollection(records []model.Record) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	if len(records) == 0 {
		return fc
	}

	bounds := geom.NewBounds(geom.XY)
	for i, r := range records {
		pt := geom.NewPointFlat(geom.XY, []float64{r.Longitude, r.Latitude})
		bounds.Extend(pt)

		props := r.Attributes.Map()
		props["source"] = r.Source
		props["popup"] = popupProperties(r.Attributes)

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.Source + "-" + strconv.Itoa(i),
			Geometry:   pt,
			Properties: props,
		})
	}
	fc.BBox = bounds
	return fc
}

func popupProperties(attrs model.Attributes) []string {
	fields := []string{}
	for _, name := range popupFields {
		if v, ok := attrs.Get(name); ok && v != "" {
			fields = append(fields, name)
		}
	}
	return fields
}
