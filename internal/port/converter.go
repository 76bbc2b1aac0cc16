package port

import (
	"context"

	"folio/internal/domain"
)

// Converter runs the full pipeline over a source document.
type Converter interface {
	Read(ctx context.Context, path string, pages []int) (*domain.ConversionResult, error)
}
