package port

import (
	"context"
	"image"

	"folio/internal/domain"
)

// DocumentSource opens source documents. Page numbers are zero-based.
type DocumentSource interface {
	// Resolve returns the page count and the bounds-checked page sequence to
	// process: all pages when pages is empty, otherwise the requested pages
	// that exist in the document.
	Resolve(ctx context.Context, path string, pages []int) (*domain.SourceDocument, error)
	// PageBounds returns the page box of every requested page.
	PageBounds(ctx context.Context, path string, pages []int) (map[int]domain.BBox, error)
}

// Rasterizer produces one image per page.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, pages []int) (map[int]image.Image, error)
}
