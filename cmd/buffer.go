package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/student-map/internal/buffer"
	"github.com/sells-group/student-map/internal/export"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/model"
	"github.com/sells-group/student-map/internal/session"
	"github.com/sells-group/student-map/internal/store"
)

type bufferOptions struct {
	Lat          float64
	Lon          float64
	RadiusMiles  string
	Layers       []string
	Out          string
	Sink         string
	FromSnapshot bool
}

var bufferOpts bufferOptions

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Export the students within a radius of a point",
	Long:  "Loads the sources, selects the students of the filterable layers within --radius-miles of --lat/--lon, and writes them as CSV to a directory or an S3 bucket.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuffer(cmd.Context(), bufferOpts, os.Stdout)
	},
}

func init() {
	f := bufferCmd.Flags()
	f.Float64Var(&bufferOpts.Lat, "lat", 0, "buffer center latitude")
	f.Float64Var(&bufferOpts.Lon, "lon", 0, "buffer center longitude")
	f.StringVar(&bufferOpts.RadiusMiles, "radius-miles", "", "buffer radius in miles (default from config)")
	f.StringSliceVar(&bufferOpts.Layers, "layers", nil, "layers to search (default: every filterable layer)")
	f.StringVar(&bufferOpts.Out, "out", "", "output filename (default from config)")
	f.StringVar(&bufferOpts.Sink, "sink", "", "where to write the file: file or s3 (default from config)")
	f.BoolVar(&bufferOpts.FromSnapshot, "from-snapshot", false, "use the last saved snapshot instead of fetching sources")
	_ = bufferCmd.MarkFlagRequired("lat")
	_ = bufferCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(bufferCmd)
}

func runBuffer(ctx context.Context, opts bufferOptions, out io.Writer) error {
	if opts.Sink != "" {
		cfg.Export.Sink = opts.Sink
	}
	if err := cfg.Validate("buffer"); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	if opts.FromSnapshot && st == nil {
		return eris.New("--from-snapshot needs a store (set store.driver to sqlite or postgres)")
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	ms := newMarkerStore()
	fillMarkers(ctx, ms, st, opts.FromSnapshot)

	ctrl := session.NewController("cli", ms, cfg.Buffer.DefaultRadiusMiles)
	if err := applyLayerSelection(ctrl, ms, opts.Layers); err != nil {
		return err
	}
	if opts.RadiusMiles != "" {
		ctrl.OnRadiusChange(opts.RadiusMiles)
	}
	ctrl.OnFilterToggle()
	sel, _ := ctrl.OnMapClick(model.Point{Lat: opts.Lat, Lon: opts.Lon})

	formatSelection(out, sel)

	d, err := newDeliverer(cfg.Export.Sink)
	if err != nil {
		return err
	}
	name := opts.Out
	if name == "" {
		name = cfg.Export.Filename
	}

	if _, err := ctrl.Export(ctx, d, name); err != nil {
		if errors.Is(err, export.ErrEmptySelection) {
			_, _ = fmt.Fprintln(out, export.EmptySelectionNotice)
			return nil
		}
		return eris.Wrap(err, "buffer export")
	}
	if name == "" {
		name = export.DefaultFilename
	}

	location := export.Location(d, name)
	_, _ = fmt.Fprintf(out, "Wrote %d students to %s\n", len(sel.Matches), location)
	recordExport(ctx, st, &model.ExportEvent{
		SessionID:    ctrl.ID(),
		Center:       sel.Center,
		RadiusMeters: sel.RadiusMeters,
		RecordCount:  len(sel.Matches),
		Filename:     name,
		Sink:         cfg.Export.Sink,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

// applyLayerSelection hides every filterable layer not named in layers. An
// empty list keeps them all.
func applyLayerSelection(ctrl *session.Controller, ms *markers.Store, layers []string) error {
	if len(layers) == 0 {
		return nil
	}
	want := make(map[string]bool, len(layers))
	for _, name := range layers {
		name = strings.TrimSpace(name)
		if !ms.Has(name) {
			return eris.Errorf("unknown layer %q", name)
		}
		want[name] = true
	}
	for _, d := range ms.Definitions() {
		if err := ctrl.SetLayerVisible(d.Name, want[d.Name]); err != nil {
			return err
		}
	}
	return nil
}

func newDeliverer(sink string) (export.Deliverer, error) {
	switch sink {
	case "s3":
		s3 := cfg.Export.S3
		return export.NewObjectDeliverer(export.ObjectConfig{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Region:    s3.Region,
			Secure:    s3.Secure,
		})
	case "file", "":
		return export.FileDeliverer{Dir: cfg.Export.Dir}, nil
	default:
		return nil, eris.Errorf("unsupported export sink: %s", sink)
	}
}

func recordExport(ctx context.Context, st store.Store, e *model.ExportEvent) {
	if st == nil {
		return
	}
	if err := st.RecordExport(ctx, e); err != nil {
		zap.L().Warn("record export failed", zap.Error(err))
	}
}

// formatSelection writes the buffer summary and its matches to out.
func formatSelection(out io.Writer, sel *buffer.Selection) {
	if sel == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "Center: %.6f, %.6f  Radius: %.1f m  Matches: %d\n",
		sel.Center.Lat, sel.Center.Lon, sel.RadiusMeters, len(sel.Matches))
	if sel.Empty() {
		return
	}

	headers := sel.Matches[0].Names()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.ToUpper(strings.Join(headers, "\t")))
	for _, m := range sel.Matches {
		cells := make([]string, len(headers))
		for i, h := range headers {
			v, _ := m.Get(h)
			cells[i] = truncate(v, 40)
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
}
