package export

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
)

// HTTPDeliverer writes the artifact as an attachment response.
type HTTPDeliverer struct {
	w http.ResponseWriter
}

// NewHTTPDeliverer creates a deliverer bound to one response.
func NewHTTPDeliverer(w http.ResponseWriter) *HTTPDeliverer {
	return &HTTPDeliverer{w: w}
}

// Deliver implements Deliverer.
func (d *HTTPDeliverer) Deliver(_ context.Context, a Artifact) error {
	h := d.w.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	h.Set("Content-Length", strconv.Itoa(len(a.Data)))
	d.w.WriteHeader(http.StatusOK)
	if _, err := d.w.Write(a.Data); err != nil {
		return eris.Wrap(err, "http deliver: write body")
	}
	return nil
}

// FileDeliverer writes artifacts into a directory.
type FileDeliverer struct {
	Dir string
}

// Deliver implements Deliverer.
func (d FileDeliverer) Deliver(_ context.Context, a Artifact) error {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "file deliver: create dir %s", dir)
	}
	// Only the base name is honored so a caller-supplied name cannot escape Dir.
	path := filepath.Join(dir, filepath.Base(a.Name))
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return eris.Wrapf(err, "file deliver: write %s", path)
	}
	return nil
}

// Path returns where a file with the given name ends up.
func (d FileDeliverer) Path(name string) string {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filepath.Base(name))
}

// Location describes where an artifact went, for logs and the export log.
func Location(d Deliverer, name string) string {
	switch v := d.(type) {
	case FileDeliverer:
		return v.Path(name)
	case *ObjectDeliverer:
		return fmt.Sprintf("s3://%s/%s", v.bucket, v.key(name))
	case *HTTPDeliverer:
		return "http"
	default:
		return "unknown"
	}
}
