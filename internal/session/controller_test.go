package session

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/student-map/internal/export"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/model"
)

// metersNorth is the latitude offset of d meters on the haversine sphere.
func metersNorth(d float64) float64 {
	return d / 6371000 * 180 / math.Pi
}

func record(source, name string, lat, lon float64) model.Record {
	return model.Record{
		Source:    source,
		Latitude:  lat,
		Longitude: lon,
		Attributes: model.Attributes{
			{Name: "Name", Value: name},
			{Name: "Source", Value: source},
		},
	}
}

func newTestMarkers(t *testing.T) *markers.Store {
	t.Helper()
	st := markers.NewStore([]markers.Definition{
		{Name: "office", Label: "Offices", Kind: model.KindOffice},
		{Name: "stripe", Label: "Stripe Students", Kind: model.KindStudent, Filterable: true},
		{Name: "enrollware", Label: "Enrollware Students", Kind: model.KindStudent, Filterable: true},
	})
	require.NoError(t, st.Replace("office", []model.Record{record("office", "HQ", 0, 0)}))
	require.NoError(t, st.Replace("stripe", []model.Record{
		record("stripe", "s-0m", 0, 0),
		record("stripe", "s-2000m", metersNorth(2000), 0),
	}))
	require.NoError(t, st.Replace("enrollware", []model.Record{
		record("enrollware", "e-500m", metersNorth(500), 0),
	}))
	return st
}

type captureDeliverer struct {
	artifacts []export.Artifact
}

func (c *captureDeliverer) Deliver(_ context.Context, a export.Artifact) error {
	c.artifacts = append(c.artifacts, a)
	return nil
}

func names(matches []model.Attributes) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i], _ = m.Get("Name")
	}
	return out
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "armed", StateArmed.String())
	assert.Equal(t, "buffer_computed", StateBufferComputed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestController_Defaults(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 0)

	assert.Equal(t, "s1", c.ID())
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, DefaultRadiusMiles, c.RadiusMiles())
	assert.True(t, c.LayerVisible("stripe"))
	assert.True(t, c.LayerVisible(markers.AggregateName))
	assert.False(t, c.LayerVisible(markers.HeatmapName))
	assert.Nil(t, c.Selection())
	assert.Equal(t, ExportStatus{}, c.ExportStatus())
}

func TestController_ClickIgnoredWhenIdle(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)

	sel, ok := c.OnMapClick(model.Point{})
	assert.False(t, ok)
	assert.Nil(t, sel)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_Workflow(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)

	assert.True(t, c.OnFilterToggle())
	assert.Equal(t, StateArmed, c.State())

	c.OnRadiusChange("0.621371") // about 1000 m
	sel, ok := c.OnMapClick(model.Point{Lat: 0, Lon: 0})
	require.True(t, ok)
	assert.Equal(t, StateBufferComputed, c.State())
	assert.Equal(t, []string{"s-0m", "e-500m"}, names(sel.Matches))
	assert.InDelta(t, 1000, sel.RadiusMeters, 0.1)
	assert.Equal(t, ExportStatus{Visible: true}, c.ExportStatus())

	assert.False(t, c.OnFilterToggle())
	assert.Equal(t, StateIdle, c.State())
	assert.Same(t, sel, c.Selection())
}

func TestController_OfficesNeverMatch(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	c.OnFilterToggle()

	sel, ok := c.OnMapClick(model.Point{Lat: 0, Lon: 0})
	require.True(t, ok)
	assert.NotContains(t, names(sel.Matches), "HQ")
	assert.Len(t, sel.Matches, 3)
}

func TestController_HiddenLayerExcluded(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	c.OnFilterToggle()
	require.NoError(t, c.SetLayerVisible("stripe", false))

	sel, ok := c.OnMapClick(model.Point{})
	require.True(t, ok)
	assert.Equal(t, []string{"e-500m"}, names(sel.Matches))
}

func TestController_SetLayerVisible_Unknown(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)

	err := c.SetLayerVisible("nope", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownLayer))
}

func TestController_UnparsableRadius(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	c.OnFilterToggle()
	c.OnRadiusChange("abc")
	assert.True(t, math.IsNaN(c.RadiusMiles()))

	sel, ok := c.OnMapClick(model.Point{})
	require.True(t, ok)
	assert.Empty(t, sel.Matches)
	assert.Equal(t, ExportStatus{Message: EmptyBufferMessage}, c.ExportStatus())
}

func TestController_NewClickOverwritesSelection(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	c.OnFilterToggle()

	first, _ := c.OnMapClick(model.Point{})
	require.NotEmpty(t, first.Matches)

	second, _ := c.OnMapClick(model.Point{Lat: 45, Lon: 90})
	assert.Empty(t, second.Matches)
	assert.Same(t, second, c.Selection())
	assert.Equal(t, EmptyBufferMessage, c.ExportStatus().Message)
}

func TestController_ExportEmpty(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	d := &captureDeliverer{}

	err := c.OnExportRequest(context.Background(), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, export.ErrEmptySelection))
	assert.Empty(t, d.artifacts)
}

func TestController_Export(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	c.OnFilterToggle()
	c.OnRadiusChange("0.621371")
	c.OnMapClick(model.Point{})

	d := &captureDeliverer{}
	require.NoError(t, c.OnExportRequest(context.Background(), d))
	require.Len(t, d.artifacts, 1)
	assert.Equal(t, export.DefaultFilename, d.artifacts[0].Name)
	assert.Equal(t, "Name,Source\n\"s-0m\",\"stripe\"\n\"e-500m\",\"enrollware\"", string(d.artifacts[0].Data))

	// Exporting leaves the session untouched.
	assert.Equal(t, StateBufferComputed, c.State())
	assert.True(t, c.ExportStatus().Visible)
}

func TestController_Layers(t *testing.T) {
	c := NewController("s1", newTestMarkers(t), 20)
	require.NoError(t, c.SetLayerVisible(markers.HeatmapName, true))

	layers := c.Layers()
	require.Len(t, layers, 5)
	assert.Equal(t, "office", layers[0].Name)
	assert.False(t, layers[0].Filterable)
	assert.Equal(t, 2, layers[1].Count)
	assert.Equal(t, markers.AggregateName, layers[3].Name)
	assert.Equal(t, 3, layers[3].Count)
	assert.Equal(t, markers.HeatmapName, layers[4].Name)
	assert.True(t, layers[4].Visible)
}
