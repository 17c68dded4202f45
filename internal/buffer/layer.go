package buffer

import "github.com/sells-group/student-map/internal/model"

// StaticLayer is a fixed record list with a visibility flag.
type StaticLayer struct {
	Shown bool
	Items []model.Record
}

// Visible implements Layer.
func (l StaticLayer) Visible() bool { return l.Shown }

// Records implements Layer.
func (l StaticLayer) Records() []model.Record { return l.Items }
