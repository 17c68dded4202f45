// Package ingest loads sheet rows into marker sets.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/student-map/internal/config"
	"github.com/sells-group/student-map/internal/fetcher"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/model"
)

const (
	sheetExportURL   = "https://docs.google.com/spreadsheets/d/%s/gviz/tq?tqx=out:csv"
	defaultLatColumn = "Latitude"
	defaultLonColumn = "Longitude"
)

// SheetCSVURL returns the CSV export endpoint of a Google Sheet.
func SheetCSVURL(sheetID string) string {
	return fmt.Sprintf(sheetExportURL, url.PathEscape(sheetID))
}

// Sink receives the records of a source once it has loaded.
type Sink interface {
	Replace(name string, records []model.Record) error
}

// SnapshotStore persists loaded records so they can be served without
// refetching.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, source string, records []model.Record) error
	LoadSnapshot(ctx context.Context, source string) ([]model.Record, error)
}

// Result summarizes one source load.
type Result struct {
	Source   string        `json:"source"`
	Loaded   int           `json:"loaded"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Loader fetches and parses sources.
type Loader struct {
	fetcher   fetcher.Fetcher
	snapshots SnapshotStore
}

// Option configures a Loader.
type Option func(*Loader)

// WithSnapshots saves every successful load to st.
func WithSnapshots(st SnapshotStore) Option {
	return func(l *Loader) {
		l.snapshots = st
	}
}

// NewLoader creates a Loader.
func NewLoader(f fetcher.Fetcher, opts ...Option) *Loader {
	l := &Loader{fetcher: f}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Definitions maps source configs to marker set definitions.
func Definitions(sources []config.SourceConfig) []markers.Definition {
	defs := make([]markers.Definition, 0, len(sources))
	for _, s := range sources {
		label := s.Label
		if label == "" {
			label = s.Name
		}
		defs = append(defs, markers.Definition{
			Name:       s.Name,
			Label:      label,
			Kind:       model.Kind(s.Kind),
			Filterable: s.IsFilterable(),
		})
	}
	return defs
}

// LoadAll loads every source concurrently and hands each result to sink as
// soon as it is ready. A failing source is logged and leaves its set as it
// was; it never stops the others.
func (l *Loader) LoadAll(ctx context.Context, sources []config.SourceConfig, sink Sink) []Result {
	results := make([]Result, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = l.loadInto(ctx, src, sink)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (l *Loader) loadInto(ctx context.Context, src config.SourceConfig, sink Sink) Result {
	start := time.Now()
	res := Result{Source: src.Name}

	records, dropped, err := l.LoadSource(ctx, src)
	res.Duration = time.Since(start)
	res.Dropped = dropped
	if err != nil {
		res.Err = err
		zap.L().Warn("source load failed",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return res
	}

	if err := sink.Replace(src.Name, records); err != nil {
		res.Err = err
		zap.L().Warn("source rejected by marker store",
			zap.String("source", src.Name),
			zap.Error(err),
		)
		return res
	}
	res.Loaded = len(records)

	if l.snapshots != nil {
		if err := l.snapshots.SaveSnapshot(ctx, src.Name, records); err != nil {
			zap.L().Warn("snapshot save failed",
				zap.String("source", src.Name),
				zap.Error(err),
			)
		}
	}

	zap.L().Info("source loaded",
		zap.String("source", src.Name),
		zap.Int("records", res.Loaded),
		zap.Int("dropped", res.Dropped),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// LoadSource fetches and parses one source. It returns the valid records and
// the number of rows dropped for unusable coordinates.
func (l *Loader) LoadSource(ctx context.Context, src config.SourceConfig) ([]model.Record, int, error) {
	headerCh := make(chan []string, 1)
	var (
		rowCh <-chan []string
		errCh <-chan error
	)

	switch {
	case src.Path != "" && strings.EqualFold(filepath.Ext(src.Path), ".xlsx"):
		rowCh, errCh = fetcher.StreamXLSX(ctx, src.Path, fetcher.XLSXOptions{
			SheetName: src.SheetName,
			HasHeader: true,
			HeaderCh:  headerCh,
		})
	case src.Path != "":
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: open %s", src.Path)
		}
		defer f.Close() //nolint:errcheck
		rowCh, errCh = streamCSV(ctx, f, src, headerCh)
	default:
		target := src.URL
		if src.SheetID != "" {
			target = SheetCSVURL(src.SheetID)
		}
		if target == "" {
			return nil, 0, eris.Errorf("ingest: source %q has no location", src.Name)
		}
		if l.fetcher == nil {
			return nil, 0, eris.Errorf("ingest: source %q needs a fetcher", src.Name)
		}
		body, err := l.fetcher.Download(ctx, target)
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: fetch %s", src.Name)
		}
		defer body.Close() //nolint:errcheck
		rowCh, errCh = streamCSV(ctx, body, src, headerCh)
	}

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: parse %s", src.Name)
		}
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
	}
	if header == nil {
		return nil, 0, nil
	}

	records, dropped := BuildRecords(src, header, rows)
	return records, dropped, nil
}

func streamCSV(ctx context.Context, r io.Reader, src config.SourceConfig, headerCh chan<- []string) (<-chan []string, <-chan error) {
	return fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		Encoding:  src.Encoding,
	})
}

// BuildRecords turns header-keyed rows into records. Cells beyond the header
// are ignored and missing cells become "". Rows whose latitude or longitude
// do not parse as finite numbers are dropped and counted.
func BuildRecords(src config.SourceConfig, header []string, rows [][]string) ([]model.Record, int) {
	latCol := src.LatColumn
	if latCol == "" {
		latCol = defaultLatColumn
	}
	lonCol := src.LonColumn
	if lonCol == "" {
		lonCol = defaultLonColumn
	}

	records := make([]model.Record, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		attrs := make(model.Attributes, 0, len(header))
		for i, name := range header {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			attrs = attrs.Set(name, value)
		}

		latRaw, _ := attrs.Get(latCol)
		lonRaw, _ := attrs.Get(lonCol)
		lat, latOK := parseCoord(latRaw)
		lon, lonOK := parseCoord(lonRaw)
		if !latOK || !lonOK {
			dropped++
			continue
		}

		records = append(records, model.Record{
			Source:     src.Name,
			Latitude:   lat,
			Longitude:  lon,
			Attributes: attrs,
		})
	}
	return records, dropped
}

func parseCoord(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// LoadSnapshots fills sink from previously saved snapshots instead of the
// network.
func LoadSnapshots(ctx context.Context, st SnapshotStore, sources []config.SourceConfig, sink Sink) []Result {
	results := make([]Result, len(sources))
	for i, src := range sources {
		start := time.Now()
		res := Result{Source: src.Name}
		records, err := st.LoadSnapshot(ctx, src.Name)
		if err == nil {
			err = sink.Replace(src.Name, records)
		}
		res.Duration = time.Since(start)
		if err != nil {
			res.Err = err
			zap.L().Warn("snapshot load failed", zap.String("source", src.Name), zap.Error(err))
		} else {
			res.Loaded = len(records)
		}
		results[i] = res
	}
	return results
}
