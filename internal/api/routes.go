// Package api serves the map's layers, buffer filter and CSV export over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/session"
)

// Options configures the router.
type Options struct {
	Markers        *markers.Store
	Sessions       *session.Registry
	Exports        ExportRecorder
	ExportFilename string
	CORSOrigins    []string
}

// NewRouter builds the full HTTP handler with middleware.
func NewRouter(opts Options) http.Handler {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ZapLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", sessionHeader},
		ExposedHeaders:   []string{sessionHeader, "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	AttachRoutes(r, opts)
	return r
}

// AttachRoutes wires HTTP routes to handlers.
func AttachRoutes(r chi.Router, opts Options) {
	handler := &Handler{
		markers:  opts.Markers,
		sessions: opts.Sessions,
		exports:  opts.Exports,
		filename: opts.ExportFilename,
	}

	r.Get("/health", handler.Health)

	r.Route("/api", func(ar chi.Router) {
		ar.Use(handler.withSession)
		ar.Get("/layers", handler.ListLayers)
		ar.Put("/layers/{name}/visibility", handler.SetLayerVisibility)
		ar.Get("/layers/{name}/features", handler.LayerFeatures)
		ar.Get("/heatmap", handler.Heatmap)
		ar.Post("/filter/toggle", handler.ToggleFilter)
		ar.Put("/filter/radius", handler.SetRadius)
		ar.Post("/map/click", handler.MapClick)
		ar.Get("/selection", handler.GetSelection)
		ar.Get("/export", handler.Export)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			zap.L().Warn("api: encode response", zap.Error(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
