package store_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/domain"
	"folio/internal/store"
)

var (
	words = store.NewKey[[]string]("words")
	count = store.NewKey[int]("count")
	extra = store.NewKey[string]("extra")
)

func seeded(pages int) *store.Store {
	st := store.New(store.Metadata{store.MetaPath: "doc.pdf"})
	for p := 0; p < pages; p++ {
		store.Seed(st, words, p, []string{"w"})
	}
	return st
}

func TestSlice_CopiesOnlySlicePages(t *testing.T) {
	st := seeded(10)
	v := st.Slice([]int{3, 4, 5}, []store.Field{words.Field(), extra.Field()}, []store.Field{count.Field()})

	assert.Equal(t, []int{3, 4, 5}, v.Pages())
	assert.True(t, v.Has(words.Field()))
	assert.False(t, v.Has(extra.Field()), "absent optional fields are omitted")
	assert.True(t, v.HasPage(words.Field(), 4))
	assert.False(t, v.HasPage(words.Field(), 6))

	path, ok := v.Meta(store.MetaPath)
	assert.True(t, ok)
	assert.Equal(t, "doc.pdf", path)
}

func TestSlice_OnlyDeclaredFieldsAreVisible(t *testing.T) {
	st := seeded(2)
	store.Seed(st, extra, 0, "hidden")
	v := st.Slice([]int{0, 1}, []store.Field{words.Field()}, nil)

	_, ok := store.Get(v, extra, 0)
	assert.False(t, ok)
}

func TestPut_RejectsUndeclaredField(t *testing.T) {
	st := seeded(2)
	v := st.Slice([]int{0, 1}, []store.Field{words.Field()}, []store.Field{count.Field()})

	store.Put(v, count, 0, 7)
	require.NoError(t, v.Err())

	store.Put(v, words, 0, []string{"overwrite"})
	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))

	got, _ := store.Get(v, words, 0)
	assert.Equal(t, []string{"w"}, got)
}

func TestPut_RejectsPageOutsideSlice(t *testing.T) {
	st := seeded(6)
	v := st.Slice([]int{0, 1}, []store.Field{words.Field()}, []store.Field{count.Field()})

	store.Put(v, count, 1, 10)
	require.NoError(t, v.Err())

	store.Put(v, count, 4, 40)
	err := v.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))

	var iv *domain.IntegrityViolationError
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, 4, iv.Page)

	res := v.Result(0)
	assert.NotContains(t, res.Fields[count.Field()], 4)
	assert.Contains(t, res.Fields[count.Field()], 1)
}

func TestView_ChangesDoNotReachCanonicalStore(t *testing.T) {
	st := seeded(2)
	v := st.Slice([]int{0, 1}, nil, []store.Field{count.Field()})
	store.Put(v, count, 0, 1)
	v.SetMeta("k", "v")

	assert.False(t, st.Has(count.Field()))
	_, ok := st.Metadata()["k"]
	assert.False(t, ok)
}

func results(st *store.Store, slices [][]int) []store.SliceResult {
	out := make([]store.SliceResult, len(slices))
	for i, sl := range slices {
		v := st.Slice(sl, []store.Field{words.Field()}, []store.Field{count.Field()})
		for _, p := range sl {
			store.Put(v, count, p, p*10)
		}
		v.SetMeta("slice", i)
		v.RecordPerformance("counter", "process", float64(i+1))
		out[i] = v.Result(i)
	}
	return out
}

func TestMerge_IsOrderIndependentForFields(t *testing.T) {
	slices := [][]int{{0, 1, 2}, {3, 4}, {5}}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}

	var reference map[int]int
	for _, order := range orders {
		st := seeded(6)
		rs := results(st, slices)
		permuted := make([]store.SliceResult, len(order))
		for i, idx := range order {
			permuted[i] = rs[idx]
		}
		store.Merge(st, permuted, []store.Field{count.Field()})

		got := map[int]int{}
		for _, p := range st.Pages(count.Field()) {
			got[p], _ = store.Lookup(st, count, p)
		}
		if reference == nil {
			reference = got
			continue
		}
		assert.Equal(t, reference, got, "order %v", order)
	}
	assert.Equal(t, map[int]int{0: 0, 1: 10, 2: 20, 3: 30, 4: 40, 5: 50}, reference)
}

func TestMerge_FirstSliceMetadataWins(t *testing.T) {
	st := seeded(4)
	rs := results(st, [][]int{{0, 1}, {2, 3}})

	store.Merge(st, []store.SliceResult{rs[1], rs[0]}, []store.Field{count.Field()})
	assert.Equal(t, 1, st.Metadata()["slice"])
	assert.Equal(t, "doc.pdf", st.Metadata()[store.MetaPath])

	st = seeded(4)
	rs = results(st, [][]int{{0, 1}, {2, 3}})
	store.SortResults(rs)
	store.Merge(st, rs, []store.Field{count.Field()})
	assert.Equal(t, 0, st.Metadata()["slice"])
}

func TestMerge_KeepsSlowestSliceTime(t *testing.T) {
	st := seeded(6)
	store.Merge(st, results(st, [][]int{{0, 1}, {2, 3}, {4, 5}}), []store.Field{count.Field()})
	assert.Equal(t, 3.0, st.Performance()["counter"]["process"])
}

func TestMerge_ReplacesTimingFromEarlierRun(t *testing.T) {
	st := seeded(4)
	st.RecordPerformance("counter", "process", 9.5)

	store.Merge(st, results(st, [][]int{{0, 1}, {2, 3}}), []store.Field{count.Field()})
	assert.Equal(t, 2.0, st.Performance()["counter"]["process"])
}

func TestMerge_CreatesProducedFieldWithoutEntries(t *testing.T) {
	st := seeded(1)
	store.Merge(st, nil, []store.Field{extra.Field()})
	assert.True(t, st.Has(extra.Field()))
	assert.Empty(t, st.Pages(extra.Field()))
}

func TestSnapshot_IsReadOnly(t *testing.T) {
	st := seeded(3)
	v := st.Snapshot()
	assert.Equal(t, []int{0, 1, 2}, v.Pages())

	store.Put(v, words, 0, nil)
	assert.Error(t, v.Err())
	got, _ := store.Lookup(st, words, 0)
	assert.Equal(t, []string{"w"}, got)
}
