package model

import "time"

// ExportEvent records one successful buffer export.
type ExportEvent struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id,omitempty"`
	Center       Point     `json:"center"`
	RadiusMeters float64   `json:"radius_meters"`
	RecordCount  int       `json:"record_count"`
	Filename     string    `json:"filename"`
	Sink         string    `json:"sink"`
	CreatedAt    time.Time `json:"created_at"`
}
