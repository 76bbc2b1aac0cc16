package stage

import (
	"context"
	"fmt"

	"folio/internal/store"
)

// Aggregate runs a fixed sequence of nested stages on the same view before
// control returns to the orchestrator.
type Aggregate struct {
	name       string
	stages     []Stage
	render     []bool
	additional []store.Field
}

// NewAggregate constructs every nested stage. additional lists fields the
// group requires beyond what its members declare.
func NewAggregate(name string, members []Descriptor, additional ...store.Field) (*Aggregate, error) {
	a := &Aggregate{name: name, additional: additional}
	for i, d := range members {
		s, err := d.New()
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: member %d: %w", name, i, err)
		}
		a.stages = append(a.stages, s)
		a.render = append(a.render, d.Render)
	}
	return a, nil
}

func (a *Aggregate) Name() string { return a.name }

// Requirements are the members' requirements minus the fields an earlier
// member produces, plus the additional requirements.
func (a *Aggregate) Requirements() Requirements {
	produced := map[store.Field]bool{}
	seen := map[store.Field]bool{}
	var r Requirements
	add := func(dst *[]store.Field, f store.Field) {
		if !seen[f] {
			seen[f] = true
			*dst = append(*dst, f)
		}
	}
	for _, f := range a.additional {
		add(&r.Required, f)
	}
	for _, s := range a.stages {
		req := s.Requirements()
		for _, f := range req.Required {
			if !produced[f] {
				add(&r.Required, f)
			}
		}
		for _, f := range req.Optional {
			if !produced[f] {
				add(&r.Optional, f)
			}
		}
		for _, f := range s.Produces() {
			produced[f] = true
		}
	}
	return r
}

// Produces is the union of the members' produced fields.
func (a *Aggregate) Produces() []store.Field {
	seen := map[store.Field]bool{}
	var out []store.Field
	for _, s := range a.stages {
		for _, f := range s.Produces() {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}

func (a *Aggregate) Initialize(ctx context.Context) error {
	for _, s := range a.stages {
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", s.Name(), err)
		}
	}
	return nil
}

func (a *Aggregate) Transform(ctx context.Context, v *store.View) error {
	for _, s := range a.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := Process(ctx, s, v); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every member, returning the first error.
func (a *Aggregate) Close() error {
	var first error
	for _, s := range a.stages {
		if err := Close(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Renderables returns the members flagged for rendering that can draw.
func (a *Aggregate) Renderables() []Renderable {
	var out []Renderable
	for i, s := range a.stages {
		if !a.render[i] {
			continue
		}
		if r, ok := s.(Renderable); ok {
			out = append(out, r)
		}
	}
	return out
}
