// Package store persists source snapshots and the export log.
package store

import (
	"context"

	"github.com/sells-group/student-map/internal/model"
)

// ExportFilter specifies criteria for listing export events.
type ExportFilter struct {
	SessionID string `json:"session_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence interface used by the map server and CLI.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, source string, records []model.Record) error
	LoadSnapshot(ctx context.Context, source string) ([]model.Record, error)

	// Export log
	RecordExport(ctx context.Context, e *model.ExportEvent) error
	ListExports(ctx context.Context, filter ExportFilter) ([]model.ExportEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
