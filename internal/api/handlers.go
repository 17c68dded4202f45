package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/student-map/internal/buffer"
	"github.com/sells-group/student-map/internal/export"
	"github.com/sells-group/student-map/internal/geo"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/model"
	"github.com/sells-group/student-map/internal/session"
)

// ExportRecorder logs successful exports.
type ExportRecorder interface {
	RecordExport(ctx context.Context, e *model.ExportEvent) error
}

// Handler serves the map API.
type Handler struct {
	markers  *markers.Store
	sessions *session.Registry
	exports  ExportRecorder
	filename string
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"counts": h.markers.Counts(),
	})
}

func (h *Handler) ListLayers(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	respondJSON(w, http.StatusOK, map[string]any{
		"layers": c.Layers(),
		"filter": filterView(c),
	})
}

type visibilityPayload struct {
	Visible *bool `json:"visible"`
}

func (h *Handler) SetLayerVisibility(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var payload visibilityPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Visible == nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	c := controllerFrom(r)
	if err := c.SetLayerVisible(name, *payload.Visible); err != nil {
		respondError(w, http.StatusNotFound, "unknown layer")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"name": name, "visible": *payload.Visible})
}

func (h *Handler) LayerFeatures(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var records []model.Record
	if name == markers.AggregateName {
		records = h.markers.Aggregate()
	} else {
		set, err := h.markers.Set(name)
		if err != nil {
			respondError(w, http.StatusNotFound, "unknown layer")
			return
		}
		records = set.Records
	}

	fc := featureCollection(records)
	body, err := fc.MarshalJSON()
	if err != nil {
		zap.L().Error("api: encode features", zap.String("layer", name), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to encode features")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) Heatmap(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"points": h.markers.HeatPoints()})
}

func (h *Handler) ToggleFilter(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	c.OnFilterToggle()
	respondJSON(w, http.StatusOK, filterView(c))
}

type radiusPayload struct {
	Radius json.RawMessage `json:"radius"`
}

// SetRadius takes the radius box's text. A JSON number is accepted as well.
func (h *Handler) SetRadius(w http.ResponseWriter, r *http.Request) {
	var payload radiusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Radius) == 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	raw := string(payload.Radius)
	var text string
	if err := json.Unmarshal(payload.Radius, &text); err == nil {
		raw = text
	}

	c := controllerFrom(r)
	c.OnRadiusChange(raw)
	respondJSON(w, http.StatusOK, filterView(c))
}

type clickPayload struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (h *Handler) MapClick(w http.ResponseWriter, r *http.Request) {
	var payload clickPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Lat == nil || payload.Lon == nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	c := controllerFrom(r)
	sel, applied := c.OnMapClick(model.Point{Lat: *payload.Lat, Lon: *payload.Lon})
	resp := clickResponse{
		Applied: applied,
		State:   c.State(),
		Export:  c.ExportStatus(),
	}
	if applied {
		resp.Selection = newSelectionView(sel)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	respondJSON(w, http.StatusOK, map[string]any{
		"state":     c.State(),
		"selection": newSelectionView(c.Selection()),
		"export":    c.ExportStatus(),
	})
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	name := h.exportFilename(r.URL.Query().Get("filename"))

	sel, err := c.Export(r.Context(), export.NewHTTPDeliverer(w), name)
	if errors.Is(err, export.ErrEmptySelection) {
		respondError(w, http.StatusUnprocessableEntity, export.EmptySelectionNotice)
		return
	}
	if err != nil {
		// The response is already under way; all that is left is to log.
		zap.L().Warn("api: export delivery failed", zap.String("session", c.ID()), zap.Error(err))
		return
	}

	zap.L().Info("buffer exported",
		zap.String("session", c.ID()),
		zap.String("filename", name),
		zap.Int("records", len(sel.Matches)),
	)

	if h.exports == nil {
		return
	}
	event := &model.ExportEvent{
		SessionID:    c.ID(),
		Center:       sel.Center,
		RadiusMeters: sel.RadiusMeters,
		RecordCount:  len(sel.Matches),
		Filename:     name,
		Sink:         "http",
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.exports.RecordExport(context.WithoutCancel(r.Context()), event); err != nil {
		zap.L().Warn("api: record export", zap.String("session", c.ID()), zap.Error(err))
	}
}

func (h *Handler) exportFilename(requested string) string {
	name := strings.TrimSpace(requested)
	if name != "" {
		name = path.Base(name)
	}
	if name == "" || name == "." || name == "/" {
		name = h.filename
	}
	if name == "" {
		name = export.DefaultFilename
	}
	return name
}

type filterStatus struct {
	Enabled     bool          `json:"enabled"`
	State       session.State `json:"state"`
	RadiusMiles *float64      `json:"radius_miles"`
}

// filterView reports the radius as null when the input did not parse.
func filterView(c *session.Controller) filterStatus {
	state := c.State()
	return filterStatus{
		Enabled:     state != session.StateIdle,
		State:       state,
		RadiusMiles: finite(c.RadiusMiles()),
	}
}

type clickResponse struct {
	Applied   bool                 `json:"applied"`
	State     session.State        `json:"state"`
	Selection *selectionView       `json:"selection,omitempty"`
	Export    session.ExportStatus `json:"export"`
}

type selectionView struct {
	Center       model.Point        `json:"center"`
	RadiusMeters *float64           `json:"radius_meters"`
	Bounds       *geo.BBox          `json:"bounds,omitempty"`
	Count        int                `json:"count"`
	Matches      []model.Attributes `json:"matches"`
	ComputedAt   time.Time          `json:"computed_at"`
}

func newSelectionView(sel *buffer.Selection) *selectionView {
	if sel == nil {
		return nil
	}
	v := &selectionView{
		Center:       sel.Center,
		RadiusMeters: finite(sel.RadiusMeters),
		Count:        len(sel.Matches),
		Matches:      sel.Matches,
		ComputedAt:   sel.ComputedAt,
	}
	if v.Matches == nil {
		v.Matches = []model.Attributes{}
	}
	if sel.Circle().Usable() {
		b := sel.Bounds()
		v.Bounds = &b
	}
	return v
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
