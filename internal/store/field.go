// Package store holds the page-indexed document store shared by pipeline
// stages. The canonical Store belongs to the orchestrator; stages only ever
// see a View, the reduced store of the pages they are processing.
package store

import (
	"image"

	"folio/internal/domain"
)

// Field names one page-indexed entry of the store.
type Field string

func (f Field) String() string { return string(f) }

// Key is a typed handle on a Field. Reads and writes through a Key are
// checked at compile time.
type Key[T any] struct {
	field Field
}

// NewKey declares a typed field.
func NewKey[T any](name string) Key[T] {
	return Key[T]{field: Field(name)}
}

// Field returns the untyped field name.
func (k Key[T]) Field() Field { return k.field }

// Fields known to the default pipeline.
var (
	PageBounds      = NewKey[domain.BBox]("page_bounds")
	PageImages      = NewKey[image.Image]("page_images")
	ImageStore      = NewKey[[]domain.StoredImage]("image_store")
	Tables          = NewKey[[]domain.DetectedTable]("tables")
	ExtractedTables = NewKey[[]*domain.Table]("extracted_tables")
	Content         = NewKey[[]domain.ContentItem]("content")
	PageHierarchy   = NewKey[[]domain.HierarchyEntry]("page_hierarchy")
)

// Metadata keys set by the orchestrator.
const (
	MetaPath      = "path"
	MetaPageCount = "page_count"
)

// PageMap maps a page number to the value a stage stored for it.
type PageMap map[int]any

func (m PageMap) clone() PageMap {
	out := make(PageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Metadata is the non-page-indexed record of the store.
type Metadata map[string]any

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePerformance(p domain.Performance) domain.Performance {
	out := make(domain.Performance, len(p))
	for stage, phases := range p {
		cp := make(map[string]float64, len(phases))
		for k, v := range phases {
			cp[k] = v
		}
		out[stage] = cp
	}
	return out
}

func record(p domain.Performance, stage, phase string, secs float64) {
	if p[stage] == nil {
		p[stage] = map[string]float64{}
	}
	p[stage][phase] = secs
}
