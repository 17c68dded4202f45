// Package export turns a buffer selection into a downloadable CSV file.
package export

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/student-map/internal/model"
)

// DefaultFilename is the name of the exported file.
const DefaultFilename = "students_in_buffer.csv"

// ContentType is the media type of the exported file.
const ContentType = "text/csv;charset=utf-8"

// ErrEmptySelection is returned when there is nothing to export.
var ErrEmptySelection = eris.New("export: empty selection")

// EmptySelectionNotice is the message shown to the user for ErrEmptySelection.
const EmptySelectionNotice = "No students in buffer to export."

// Render builds the CSV document. The header comes from the first record's
// field names. Every value is wrapped in double quotes without escaping,
// and missing fields render as "". Rows are joined by "\n".
func Render(records []model.Attributes) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmptySelection
	}

	headers := records[0].Names()

	var buf bytes.Buffer
	buf.WriteString(strings.Join(headers, ","))
	for _, r := range records {
		buf.WriteByte('\n')
		for i, h := range headers {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, _ := r.Get(h)
			buf.WriteByte('"')
			buf.WriteString(v)
			buf.WriteByte('"')
		}
	}
	return buf.Bytes(), nil
}

// Artifact is a named file ready for delivery.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Deliverer hands an artifact to the user or a storage target.
type Deliverer interface {
	Deliver(ctx context.Context, a Artifact) error
}

// Export renders records and delivers them under filename, or
// DefaultFilename when empty. Nothing is delivered for an empty selection.
func Export(ctx context.Context, d Deliverer, records []model.Attributes, filename string) (Artifact, error) {
	data, err := Render(records)
	if err != nil {
		return Artifact{}, err
	}
	if filename == "" {
		filename = DefaultFilename
	}
	a := Artifact{Name: filename, ContentType: ContentType, Data: data}
	if err := d.Deliver(ctx, a); err != nil {
		return Artifact{}, eris.Wrapf(err, "export: deliver %s", filename)
	}
	return a, nil
}
