package port

import (
	"context"
	"image"

	"folio/internal/domain"
)

// Detection is a candidate table region in image pixel coordinates.
type Detection struct {
	BBox  domain.BBox
	Score float64
}

// RecognizedPart is a labeled table part in the local pixel coordinates of
// the region it was recognized in.
type RecognizedPart struct {
	Label domain.TablePartLabel
	BBox  domain.BBox
	Score float64
}

// TableDetector finds table regions. The result holds one entry per input
// image, in input order.
type TableDetector interface {
	Detect(ctx context.Context, images []image.Image, threshold float64) ([][]Detection, error)
}

// StructureRecognizer labels the parts of cropped table regions. The result
// holds one entry per region, in input order.
type StructureRecognizer interface {
	Recognize(ctx context.Context, regions []image.Image, threshold float64) ([][]RecognizedPart, error)
}

// CellReader reads the text of a cropped table cell.
type CellReader interface {
	ReadCell(ctx context.Context, img image.Image) (string, error)
	Close() error
}
