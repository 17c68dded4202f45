package session

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/student-map/internal/buffer"
	"github.com/sells-group/student-map/internal/export"
	"github.com/sells-group/student-map/internal/geo"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/model"
)

// DefaultRadiusMiles is the buffer radius a new session starts with.
const DefaultRadiusMiles = 20.0

// Events is the set of user interactions the map client reports.
type Events interface {
	OnFilterToggle() bool
	OnRadiusChange(raw string)
	OnMapClick(p model.Point) (*buffer.Selection, bool)
	OnExportRequest(ctx context.Context, d export.Deliverer) error
}

var _ Events = (*Controller)(nil)

// LayerView is a layer as one session sees it.
type LayerView struct {
	Name       string     `json:"name"`
	Label      string     `json:"label"`
	Kind       model.Kind `json:"kind,omitempty"`
	Filterable bool       `json:"filterable"`
	Count      int        `json:"count"`
	Visible    bool       `json:"visible"`
}

// Controller owns one session's state. All methods are safe for concurrent
// use; calls for the same session are serialized.
type Controller struct {
	id      string
	markers *markers.Store

	mu          sync.Mutex
	state       State
	radiusMiles float64
	visible     map[string]bool
	selection   *buffer.Selection
	clicked     bool
	lastActive  time.Time
}

// NewController creates a session over the shared marker store. Every set
// and the aggregate layer start visible, the heatmap hidden.
func NewController(id string, store *markers.Store, radiusMiles float64) *Controller {
	if radiusMiles <= 0 || math.IsNaN(radiusMiles) || math.IsInf(radiusMiles, 0) {
		radiusMiles = DefaultRadiusMiles
	}
	c := &Controller{
		id:          id,
		markers:     store,
		radiusMiles: radiusMiles,
		visible: map[string]bool{
			markers.AggregateName: true,
			markers.HeatmapName:   false,
		},
		lastActive: time.Now(),
	}
	for _, d := range store.Definitions() {
		c.visible[d.Name] = true
	}
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// OnFilterToggle flips filter mode and reports whether it is now on.
// Turning it off keeps the last selection.
func (c *Controller) OnFilterToggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state == StateIdle {
		c.state = StateArmed
		return true
	}
	c.state = StateIdle
	return false
}

// OnRadiusChange stores the radius typed by the user, in miles. Input that
// does not parse as a number is kept as NaN so the next click selects
// nothing.
func (c *Controller) OnRadiusChange(raw string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		v = math.NaN()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.radiusMiles = v
}

// OnMapClick draws a buffer around p and replaces the selection. It does
// nothing and returns false when filter mode is off.
func (c *Controller) OnMapClick(p model.Point) (*buffer.Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if c.state == StateIdle {
		return nil, false
	}

	sel := buffer.NewSelection(p, geo.MilesToMeters(c.radiusMiles), c.filterLayers())
	c.selection = sel
	c.clicked = true
	c.state = StateBufferComputed
	return sel, true
}

// OnExportRequest renders the current selection and hands it to d under the
// default filename.
func (c *Controller) OnExportRequest(ctx context.Context, d export.Deliverer) error {
	_, err := c.Export(ctx, d, "")
	return err
}

// Export is OnExportRequest with an explicit filename. It returns the
// selection that was exported.
func (c *Controller) Export(ctx context.Context, d export.Deliverer, filename string) (*buffer.Selection, error) {
	c.mu.Lock()
	sel := c.selection
	c.touch()
	c.mu.Unlock()

	if sel.Empty() {
		return sel, export.ErrEmptySelection
	}
	if _, err := export.Export(ctx, d, sel.Matches, filename); err != nil {
		return sel, err
	}
	return sel, nil
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FilterEnabled reports whether filter mode is on.
func (c *Controller) FilterEnabled() bool {
	return c.State() != StateIdle
}

// RadiusMiles returns the current radius input, NaN when it was unparsable.
func (c *Controller) RadiusMiles() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radiusMiles
}

// Selection returns the last computed selection, or nil.
func (c *Controller) Selection() *buffer.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// ExportStatus reports whether the export button should be shown. Before
// the first click neither the button nor the message is shown.
func (c *Controller) ExportStatus() ExportStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.selection.Empty():
		return ExportStatus{Visible: true}
	case c.clicked:
		return ExportStatus{Message: EmptyBufferMessage}
	default:
		return ExportStatus{}
	}
}

// SetLayerVisible shows or hides a layer for this session.
func (c *Controller) SetLayerVisible(name string, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.visible[name]; !ok {
		return eris.Wrapf(ErrUnknownLayer, "%q", name)
	}
	c.touch()
	c.visible[name] = visible
	return nil
}

// LayerVisible reports whether name is shown. Unknown layers are hidden.
func (c *Controller) LayerVisible(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible[name]
}

// Layers lists every set in display order followed by the aggregate cluster
// and heatmap layers.
func (c *Controller) Layers() []LayerView {
	sets := c.markers.Sets()
	aggregate := 0
	for _, s := range sets {
		if s.Kind == model.KindStudent {
			aggregate += len(s.Records)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LayerView, 0, len(sets)+2)
	for _, s := range sets {
		out = append(out, LayerView{
			Name:       s.Name,
			Label:      s.Label,
			Kind:       s.Kind,
			Filterable: s.Filterable,
			Count:      len(s.Records),
			Visible:    c.visible[s.Name],
		})
	}
	out = append(out,
		LayerView{Name: markers.AggregateName, Label: "All Students", Kind: model.KindStudent, Count: aggregate, Visible: c.visible[markers.AggregateName]},
		LayerView{Name: markers.HeatmapName, Label: "Student Heatmap", Kind: model.KindStudent, Count: aggregate, Visible: c.visible[markers.HeatmapName]},
	)
	return out
}

// LastActive returns when the session was last used.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// filterLayers returns the filterable sets with this session's visibility.
// Callers hold c.mu.
func (c *Controller) filterLayers() []buffer.Layer {
	var layers []buffer.Layer
	for _, s := range c.markers.Sets() {
		if !s.Filterable {
			continue
		}
		layers = append(layers, buffer.StaticLayer{Shown: c.visible[s.Name], Items: s.Records})
	}
	return layers
}

func (c *Controller) touch() {
	c.lastActive = time.Now()
}
