// Package pipeline sequences stages over a document store, splitting
// parallel-eligible stages into page slices processed by independent
// workers and merging their results back into the canonical store.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"folio/internal/domain"
	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
)

// Config holds orchestrator settings.
type Config struct {
	Slices SliceConfig
	// SliceTimeout bounds one slice's execution. Zero waits forever, so a
	// hung stage hangs the run.
	SliceTimeout time.Duration
	// Render invokes the page renderer after the last stage.
	Render bool
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{Slices: DefaultSliceConfig()}
}

// ResultFields are the fields guaranteed to exist when a run finishes.
var ResultFields = []store.Field{
	store.Content.Field(),
	store.PageHierarchy.Field(),
	store.ImageStore.Field(),
}

// Orchestrator owns the canonical store of a run and the ordered stage
// sequence.
type Orchestrator struct {
	cfg      Config
	source   port.DocumentSource
	stages   []stage.Descriptor
	renderer port.PageRenderer
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRenderer sets the overlay renderer used when Config.Render is on.
func WithRenderer(r port.PageRenderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// New creates an orchestrator over the given stage sequence.
func New(cfg Config, source port.DocumentSource, stages []stage.Descriptor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		source: source,
		stages: stages,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Read runs every stage over the document at path and returns the result.
// pages selects zero-based page numbers; empty means all pages. The first
// error aborts the run.
func (o *Orchestrator) Read(ctx context.Context, path string, pages []int) (*domain.ConversionResult, error) {
	doc, err := o.source.Resolve(ctx, path, pages)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	o.logger.Info("pipeline started", "path", path, "pages", len(doc.Pages), "page_count", doc.PageCount)

	st := store.New(store.Metadata{
		store.MetaPath:      path,
		store.MetaPageCount: doc.PageCount,
	})

	var renderables []stage.Renderable
	for _, desc := range o.stages {
		if err := o.RunStage(ctx, desc, doc.Pages, st); err != nil {
			return nil, err
		}
		if o.cfg.Render && desc.Render {
			r, err := renderablesOf(desc)
			if err != nil {
				return nil, err
			}
			renderables = append(renderables, r...)
		}
	}

	if o.cfg.Render && o.renderer != nil {
		if err := o.renderer.Render(ctx, renderables, st.Snapshot()); err != nil {
			return nil, fmt.Errorf("rendering pages: %w", err)
		}
	}

	return assemble(st)
}

// RunStage executes one stage descriptor over pages and merges its output
// into st.
func (o *Orchestrator) RunStage(ctx context.Context, desc stage.Descriptor, pages []int, st *store.Store) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	proto, err := desc.New()
	if err != nil {
		return fmt.Errorf("constructing stage: %w", err)
	}
	name := proto.Name()
	produced := proto.Produces()
	readable := proto.Requirements().All()

	slices := Partition(pages, desc.Parallel, o.cfg.Slices)
	o.logger.Debug("running stage", "stage", name, "slices", len(slices), "pages", len(pages))

	views := make([]*store.View, len(slices))
	for i, sl := range slices {
		views[i] = st.Slice(sl, readable, produced)
	}

	start := time.Now()
	var results []store.SliceResult
	if len(views) == 1 {
		if err := proto.Initialize(ctx); err != nil {
			return fmt.Errorf("stage %s: initialize: %w", name, err)
		}
		job := sliceJob{index: 0, view: views[0]}
		res, err := o.runSlice(ctx, proto, job)
		if cerr := stage.Close(proto); cerr != nil {
			o.logger.Warn("closing stage failed", "stage", name, "error", cerr)
		}
		if err != nil {
			return o.failure(name, job, err)
		}
		results = []store.SliceResult{res}
	} else {
		results, err = o.dispatch(ctx, desc, name, views)
		if err != nil {
			return err
		}
	}

	store.Merge(st, results, produced)
	st.RecordPerformance(name, "total", stage.Seconds(time.Since(start)))
	o.logger.Debug("stage finished", "stage", name, "elapsed", time.Since(start))
	return nil
}

// renderablesOf builds a fresh instance of a descriptor's stage and returns
// the renderable stages it holds.
func renderablesOf(desc stage.Descriptor) ([]stage.Renderable, error) {
	s, err := desc.New()
	if err != nil {
		return nil, fmt.Errorf("constructing renderer stage: %w", err)
	}
	if a, ok := s.(interface{ Renderables() []stage.Renderable }); ok {
		return a.Renderables(), nil
	}
	if r, ok := s.(stage.Renderable); ok {
		return []stage.Renderable{r}, nil
	}
	return nil, nil
}

func assemble(st *store.Store) (*domain.ConversionResult, error) {
	for _, f := range ResultFields {
		if !st.Has(f) {
			return nil, &domain.IntegrityViolationError{
				Component: "pipeline",
				Page:      -1,
				Detail:    fmt.Sprintf("field %q missing after last stage", f),
			}
		}
	}
	res := &domain.ConversionResult{
		Metadata:      st.Metadata(),
		Content:       collect(st, store.Content),
		PageHierarchy: collect(st, store.PageHierarchy),
		ImageStore:    collect(st, store.ImageStore),
		Performance:   st.Performance(),
	}
	return res, nil
}

func collect[T any](st *store.Store, k store.Key[T]) map[int]T {
	out := map[int]T{}
	for _, p := range st.Pages(k.Field()) {
		if v, ok := store.Lookup(st, k, p); ok {
			out[p] = v
		}
	}
	return out
}
