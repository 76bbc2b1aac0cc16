package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SourceDocument is the resolved view of a source file: its page count and
// the bounds-checked page numbers (zero-based) a run will process.
type SourceDocument struct {
	Path      string
	PageCount int
	Pages     []int
}

// StoredImage is an image held in the image store. Data is cleared and Key
// set once the image has been moved to object storage.
type StoredImage struct {
	ID     string `json:"id"`
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	MIME   string `json:"mime"`
	Key    string `json:"key,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// ContentItem is one entry of a page's ordered content.
type ContentItem struct {
	Kind    ContentKind `json:"kind"`
	BBox    BBox        `json:"bbox"`
	Table   *Table      `json:"table,omitempty"`
	ImageID string      `json:"image_id,omitempty"`
}

// HierarchyEntry is one navigable entry of a page's hierarchy.
type HierarchyEntry struct {
	Title string      `json:"title"`
	Level int         `json:"level"`
	Page  int         `json:"page"`
	Kind  ContentKind `json:"kind"`
	BBox  BBox        `json:"bbox"`
}

// Performance records elapsed seconds per stage and phase.
type Performance map[string]map[string]float64

// ConversionResult is the final output of a pipeline run: exactly the fields
// handed to serialization, plus timing.
type ConversionResult struct {
	Metadata      map[string]any           `json:"metadata"`
	Content       map[int][]ContentItem    `json:"content"`
	PageHierarchy map[int][]HierarchyEntry `json:"page_hierarchy"`
	ImageStore    map[int][]StoredImage    `json:"image_store"`
	Performance   Performance              `json:"-"`
}

// Tables returns every table of the content, page by page in page order.
func (r *ConversionResult) Tables() []PageTable {
	var out []PageTable
	for _, p := range SortedPages(r.Content) {
		n := 0
		for _, item := range r.Content[p] {
			if item.Kind == ContentTable && item.Table != nil {
				out = append(out, PageTable{Page: p, Index: n, Table: item.Table})
				n++
			}
		}
	}
	return out
}

// PageTable locates a table within the document.
type PageTable struct {
	Page  int
	Index int
	Table *Table
}

// ConversionRun is a persisted record of one conversion request.
type ConversionRun struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	FileName    string          `db:"file_name" json:"file_name"`
	SourceKey   string          `db:"source_key" json:"source_key"`
	OutputKey   string          `db:"output_key" json:"output_key,omitempty"`
	TablesKey   string          `db:"tables_key" json:"tables_key,omitempty"`
	Pages       string          `db:"pages" json:"pages,omitempty"`
	PageCount   int             `db:"page_count" json:"page_count"`
	Status      RunStatus       `db:"status" json:"status"`
	Error       string          `db:"error" json:"error,omitempty"`
	Attempts    int             `db:"attempts" json:"attempts"`
	Performance json.RawMessage `db:"performance" json:"performance,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}
