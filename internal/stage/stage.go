// Package stage defines the contract every pipeline stage implements and
// the instrumentation wrapped around it.
package stage

import (
	"context"
	"fmt"
	"image/draw"
	"io"
	"math"
	"time"

	"folio/internal/domain"
	"folio/internal/store"
)

// Requirements declares the fields a stage reads. Required fields must hold
// an entry for every page of the view; optional fields may be absent.
type Requirements struct {
	Required []store.Field
	Optional []store.Field
}

// All returns required followed by optional fields.
func (r Requirements) All() []store.Field {
	out := make([]store.Field, 0, len(r.Required)+len(r.Optional))
	out = append(out, r.Required...)
	return append(out, r.Optional...)
}

// Stage is one pipeline step.
type Stage interface {
	Name() string
	Requirements() Requirements
	Produces() []store.Field
	// Initialize performs expensive one-time setup. It is called once per
	// worker before the first Transform on that worker.
	Initialize(ctx context.Context) error
	// Transform reads declared fields from v and writes produced fields. It
	// must work on whatever subset of pages v covers.
	Transform(ctx context.Context, v *store.View) error
}

// Renderable is implemented by stages that can draw their output onto a
// page image for debugging.
type Renderable interface {
	Stage
	DrawPage(page int, v *store.View, dst draw.Image)
}

// Factory constructs a fresh stage instance with its arguments bound.
type Factory func() (Stage, error)

// Descriptor is an entry of the orchestrator's stage sequence.
type Descriptor struct {
	New Factory
	// Parallel marks the stage as eligible for page slicing.
	Parallel bool
	// Render records an instance for the overlay renderer.
	Render bool
}

// Check verifies that every required field is present in v for every page.
func Check(s Stage, v *store.View) error {
	pages := v.Pages()
	for _, f := range s.Requirements().Required {
		if !v.Has(f) {
			return &domain.MissingDependencyError{Stage: s.Name(), Field: f.String(), Page: -1}
		}
		for _, p := range pages {
			if !v.HasPage(f, p) {
				return &domain.MissingDependencyError{Stage: s.Name(), Field: f.String(), Page: p}
			}
		}
	}
	return nil
}

// Process runs s on v: it checks requirements, times Transform and records
// the elapsed seconds under performance[name]["process"].
func Process(ctx context.Context, s Stage, v *store.View) error {
	if err := Check(s, v); err != nil {
		return err
	}
	start := time.Now()
	if err := s.Transform(ctx, v); err != nil {
		return fmt.Errorf("stage %s: %w", s.Name(), err)
	}
	v.RecordPerformance(s.Name(), "process", Seconds(time.Since(start)))
	return v.Err()
}

// Close releases the resources of a stage that holds any.
func Close(s Stage) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Seconds converts a duration to seconds rounded to milliseconds.
func Seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
