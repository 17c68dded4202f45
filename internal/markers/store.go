// Package markers holds the ingested marker sets shared by every session.
package markers

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/student-map/internal/model"
)

// AggregateName is the layer name of the combined student set.
const AggregateName = "all"

// HeatmapName is the layer name of the combined heat data.
const HeatmapName = "heatmap"

// Definition describes one category-specific marker set.
type Definition struct {
	Name       string
	Label      string
	Kind       model.Kind
	Filterable bool
}

// Set is a read-only snapshot of a marker set.
type Set struct {
	Definition
	Records []model.Record
}

// HeatPoint is a weighted heatmap sample encoded as [lat, lon, weight].
type HeatPoint [3]float64

// ErrUnknownSet is returned for a set name that was never defined.
var ErrUnknownSet = eris.New("markers: unknown set")

// Store keeps one ordered record list per defined set. Sets are populated
// independently as ingestion finishes, so readers must tolerate partially
// loaded data.
type Store struct {
	mu      sync.RWMutex
	order   []string
	defs    map[string]Definition
	records map[string][]model.Record
}

// NewStore creates a store with the given sets, in display order.
func NewStore(defs []Definition) *Store {
	s := &Store{
		defs:    make(map[string]Definition, len(defs)),
		records: make(map[string][]model.Record, len(defs)),
	}
	for _, d := range defs {
		if _, dup := s.defs[d.Name]; dup {
			continue
		}
		s.order = append(s.order, d.Name)
		s.defs[d.Name] = d
	}
	return s
}

// Replace swaps in the records for one set. The slice is owned by the store
// afterwards.
func (s *Store) Replace(name string, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[name]; !ok {
		return eris.Wrapf(ErrUnknownSet, "replace %q", name)
	}
	s.records[name] = records
	return nil
}

// Definitions returns the set definitions in display order.
func (s *Store) Definitions() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

// Has reports whether name is a defined set.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.defs[name]
	return ok
}

// Set returns a snapshot of one set.
func (s *Store) Set(name string) (Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name]
	if !ok {
		return Set{}, eris.Wrapf(ErrUnknownSet, "get %q", name)
	}
	return Set{Definition: def, Records: s.records[name]}, nil
}

// Sets returns snapshots of every set in display order.
func (s *Store) Sets() []Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Set, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Set{Definition: s.defs[name], Records: s.records[name]})
	}
	return out
}

// Aggregate returns the student records of every set, set by set, for the
// combined cluster layer.
func (s *Store) Aggregate() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Record
	for _, name := range s.order {
		if s.defs[name].Kind != model.KindStudent {
			continue
		}
		out = append(out, s.records[name]...)
	}
	return out
}

// HeatPoints returns one unit-weight sample per aggregate record.
func (s *Store) HeatPoints() []HeatPoint {
	agg := s.Aggregate()
	out := make([]HeatPoint, len(agg))
	for i, r := range agg {
		out[i] = HeatPoint{r.Latitude, r.Longitude, 1}
	}
	return out
}

// Counts returns the number of loaded records per set.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.order))
	for _, name := range s.order {
		out[name] = len(s.records[name])
	}
	return out
}
