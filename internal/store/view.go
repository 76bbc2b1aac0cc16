package store

import (
	"fmt"

	"folio/internal/domain"
)

// View is the reduced store a stage works on. It has no reference back to
// the canonical Store; its changes reach the canonical store only through
// the SliceResult message returned by Result.
type View struct {
	pages       []int
	own         map[int]bool
	fields      map[Field]PageMap
	writable    map[Field]bool
	metadata    Metadata
	performance domain.Performance
	err         error
}

// Pages returns the page numbers this view covers.
func (v *View) Pages() []int { return append([]int(nil), v.pages...) }

// Has reports whether the field is present in the view.
func (v *View) Has(f Field) bool {
	_, ok := v.fields[f]
	return ok
}

// HasPage reports whether the field holds an entry for page.
func (v *View) HasPage(f Field, page int) bool {
	_, ok := v.fields[f][page]
	return ok
}

// Meta returns a metadata value.
func (v *View) Meta(key string) (any, bool) {
	val, ok := v.metadata[key]
	return val, ok
}

// SetMeta sets a metadata value on this view's copy of the metadata.
func (v *View) SetMeta(key string, val any) { v.metadata[key] = val }

// RecordPerformance stores elapsed seconds for a stage phase.
func (v *View) RecordPerformance(stage, phase string, secs float64) {
	record(v.performance, stage, phase, secs)
}

// Err returns the first write to an undeclared field, if any.
func (v *View) Err() error { return v.err }

// Get reads the value stored for page.
func Get[T any](v *View, k Key[T], page int) (T, bool) {
	var zero T
	val, ok := v.fields[k.field][page]
	if !ok {
		return zero, false
	}
	t, ok := val.(T)
	return t, ok
}

// Put stores a value for page. Writing a field the view was not opened for,
// or a page outside the view, is rejected and remembered as the view's error.
func Put[T any](v *View, k Key[T], page int, val T) {
	switch {
	case !v.writable[k.field]:
		v.reject(page, fmt.Sprintf("write to undeclared field %q", k.field))
		return
	case !v.own[page]:
		v.reject(page, fmt.Sprintf("write to field %q outside the slice's pages", k.field))
		return
	}
	m, ok := v.fields[k.field]
	if !ok {
		m = PageMap{}
		v.fields[k.field] = m
	}
	m[page] = val
}

func (v *View) reject(page int, detail string) {
	if v.err == nil {
		v.err = &domain.IntegrityViolationError{Component: "store", Page: page, Detail: detail}
	}
}

// SliceResult is the message a worker sends back for one slice: the
// produced fields restricted to the slice's pages, the slice's metadata and
// the timings recorded while processing it.
type SliceResult struct {
	Index       int
	Pages       []int
	Fields      map[Field]PageMap
	Metadata    Metadata
	Performance domain.Performance
}

// Result packages the view's produced fields as a SliceResult.
func (v *View) Result(index int) SliceResult {
	r := SliceResult{
		Index:       index,
		Pages:       v.Pages(),
		Fields:      make(map[Field]PageMap, len(v.writable)),
		Metadata:    v.metadata.Clone(),
		Performance: clonePerformance(v.performance),
	}
	for f := range v.writable {
		if m, ok := v.fields[f]; ok {
			r.Fields[f] = m.clone()
		}
	}
	return r
}
