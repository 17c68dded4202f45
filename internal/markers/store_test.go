package markers

import (
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/student-map/internal/model"
)

func testDefs() []Definition {
	return []Definition{
		{Name: "office", Label: "Offices", Kind: model.KindOffice},
		{Name: "stripe", Label: "Stripe Students", Kind: model.KindStudent, Filterable: true},
		{Name: "enrollware", Label: "Enrollware Students", Kind: model.KindStudent, Filterable: true},
	}
}

func rec(source string, lat, lon float64) model.Record {
	return model.Record{Source: source, Latitude: lat, Longitude: lon}
}

func TestStore_ReplaceAndSnapshot(t *testing.T) {
	s := NewStore(testDefs())
	require.NoError(t, s.Replace("stripe", []model.Record{rec("stripe", 1, 2)}))

	set, err := s.Set("stripe")
	require.NoError(t, err)
	assert.Equal(t, "Stripe Students", set.Label)
	assert.Len(t, set.Records, 1)

	empty, err := s.Set("enrollware")
	require.NoError(t, err)
	assert.Empty(t, empty.Records)
}

func TestStore_UnknownSet(t *testing.T) {
	s := NewStore(testDefs())
	err := s.Replace("bogus", nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnknownSet))

	_, err = s.Set("bogus")
	assert.True(t, eris.Is(err, ErrUnknownSet))
	assert.False(t, s.Has("bogus"))
}

func TestStore_DefinitionsKeepOrderAndDropDuplicates(t *testing.T) {
	defs := append(testDefs(), Definition{Name: "stripe", Label: "dup"})
	s := NewStore(defs)
	got := s.Definitions()
	require.Len(t, got, 3)
	assert.Equal(t, "office", got[0].Name)
	assert.Equal(t, "Stripe Students", got[1].Label)
}

func TestStore_AggregateExcludesOffices(t *testing.T) {
	s := NewStore(testDefs())
	require.NoError(t, s.Replace("office", []model.Record{rec("office", 9, 9)}))
	require.NoError(t, s.Replace("enrollware", []model.Record{rec("enrollware", 3, 4)}))
	require.NoError(t, s.Replace("stripe", []model.Record{rec("stripe", 1, 2)}))

	agg := s.Aggregate()
	require.Len(t, agg, 2)
	assert.Equal(t, "stripe", agg[0].Source)
	assert.Equal(t, "enrollware", agg[1].Source)

	heat := s.HeatPoints()
	assert.Equal(t, []HeatPoint{{1, 2, 1}, {3, 4, 1}}, heat)
	assert.Equal(t, map[string]int{"office": 1, "stripe": 1, "enrollware": 1}, s.Counts())
}

func TestStore_ConcurrentReplace(t *testing.T) {
	s := NewStore(testDefs())
	var wg sync.WaitGroup
	for _, name := range []string{"office", "stripe", "enrollware"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_ = s.Replace(name, []model.Record{rec(name, 0, 0)})
			_ = s.Sets()
		}(name)
	}
	wg.Wait()
	assert.Len(t, s.Aggregate(), 2)
}
