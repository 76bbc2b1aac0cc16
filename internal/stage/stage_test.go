package stage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/domain"
	"folio/internal/stage"
	"folio/internal/store"
)

var (
	input  = store.NewKey[int]("input")
	hint   = store.NewKey[int]("hint")
	output = store.NewKey[int]("output")
	final  = store.NewKey[int]("final")
)

// doubler writes output = 2*input (+hint when present).
type doubler struct {
	calls  int
	closed bool
}

func (d *doubler) Name() string { return "doubler" }
func (d *doubler) Requirements() stage.Requirements {
	return stage.Requirements{Required: []store.Field{input.Field()}, Optional: []store.Field{hint.Field()}}
}
func (d *doubler) Produces() []store.Field          { return []store.Field{output.Field()} }
func (d *doubler) Initialize(context.Context) error { return nil }
func (d *doubler) Transform(_ context.Context, v *store.View) error {
	d.calls++
	for _, p := range v.Pages() {
		in, _ := store.Get(v, input, p)
		h, _ := store.Get(v, hint, p)
		store.Put(v, output, p, 2*in+h)
	}
	return nil
}
func (d *doubler) Close() error {
	d.closed = true
	return nil
}

// incrementer writes final = output+1.
type incrementer struct{}

func (incrementer) Name() string { return "incrementer" }
func (incrementer) Requirements() stage.Requirements {
	return stage.Requirements{Required: []store.Field{output.Field()}}
}
func (incrementer) Produces() []store.Field          { return []store.Field{final.Field()} }
func (incrementer) Initialize(context.Context) error { return nil }
func (incrementer) Transform(_ context.Context, v *store.View) error {
	for _, p := range v.Pages() {
		o, _ := store.Get(v, output, p)
		store.Put(v, final, p, o+1)
	}
	return nil
}

// rogue writes a field it never declared.
type rogue struct{ incrementer }

func (rogue) Name() string { return "rogue" }
func (rogue) Transform(_ context.Context, v *store.View) error {
	store.Put(v, input, 0, 99)
	return nil
}

func view(pages []int, s stage.Stage, fill map[int]int) *store.View {
	st := store.New(nil)
	for p, val := range fill {
		store.Seed(st, input, p, val)
	}
	return st.Slice(pages, s.Requirements().All(), s.Produces())
}

func TestProcess_RunsTransformAndRecordsTiming(t *testing.T) {
	d := &doubler{}
	v := view([]int{0, 1}, d, map[int]int{0: 1, 1: 2})

	require.NoError(t, stage.Process(context.Background(), d, v))
	got, _ := store.Get(v, output, 1)
	assert.Equal(t, 4, got)

	res := v.Result(0)
	_, ok := res.Performance["doubler"]["process"]
	assert.True(t, ok)
}

func TestProcess_MissingRequiredFieldNeverCallsTransform(t *testing.T) {
	d := &doubler{}
	v := view([]int{0}, d, nil)

	err := stage.Process(context.Background(), d, v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingDependency))
	assert.Equal(t, 0, d.calls)

	var md *domain.MissingDependencyError
	require.True(t, errors.As(err, &md))
	assert.Equal(t, "doubler", md.Stage)
	assert.Equal(t, "input", md.Field)
	assert.Equal(t, -1, md.Page)
}

func TestProcess_MissingPageEntry(t *testing.T) {
	d := &doubler{}
	v := view([]int{0, 1}, d, map[int]int{0: 1})

	err := stage.Process(context.Background(), d, v)
	var md *domain.MissingDependencyError
	require.True(t, errors.As(err, &md))
	assert.Equal(t, 1, md.Page)
	assert.Equal(t, 0, d.calls)
}

func TestProcess_UndeclaredWriteIsIntegrityViolation(t *testing.T) {
	r := rogue{}
	st := store.New(nil)
	store.Seed(st, output, 0, 1)
	v := st.Slice([]int{0}, r.Requirements().All(), r.Produces())

	err := stage.Process(context.Background(), r, v)
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))
}

func TestAggregate_RequirementsAndProduces(t *testing.T) {
	agg, err := stage.NewAggregate("group", []stage.Descriptor{
		{New: func() (stage.Stage, error) { return &doubler{}, nil }},
		{New: func() (stage.Stage, error) { return incrementer{}, nil }, Render: true},
	}, hint.Field())
	require.NoError(t, err)

	req := agg.Requirements()
	assert.Equal(t, []store.Field{hint.Field(), input.Field()}, req.Required)
	assert.Empty(t, req.Optional, "hint is already required")
	assert.Equal(t, []store.Field{output.Field(), final.Field()}, agg.Produces())
	assert.Empty(t, agg.Renderables(), "incrementer cannot draw")
}

func TestAggregate_RunsMembersOnSameView(t *testing.T) {
	agg, err := stage.NewAggregate("group", []stage.Descriptor{
		{New: func() (stage.Stage, error) { return &doubler{}, nil }},
		{New: func() (stage.Stage, error) { return incrementer{}, nil }},
	})
	require.NoError(t, err)

	v := view([]int{0, 1}, agg, map[int]int{0: 3, 1: 5})
	require.NoError(t, agg.Initialize(context.Background()))
	require.NoError(t, stage.Process(context.Background(), agg, v))

	got, _ := store.Get(v, final, 1)
	assert.Equal(t, 11, got)

	perf := v.Result(0).Performance
	assert.Contains(t, perf, "doubler")
	assert.Contains(t, perf, "incrementer")
	assert.Contains(t, perf, "group")
}

func TestAggregate_CloseReachesMembers(t *testing.T) {
	d := &doubler{}
	agg, err := stage.NewAggregate("group", []stage.Descriptor{
		{New: func() (stage.Stage, error) { return d, nil }},
	})
	require.NoError(t, err)
	require.NoError(t, stage.Close(agg))
	assert.True(t, d.closed)
}

func TestAggregate_MemberConstructionError(t *testing.T) {
	_, err := stage.NewAggregate("group", []stage.Descriptor{
		{New: func() (stage.Stage, error) { return nil, errors.New("boom") }},
	})
	assert.Error(t, err)
}
