// Package pdf reads PDF documents with pdfcpu: page count, page boxes and
// the embedded page images of scanned documents.
package pdf

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // embedded JPEG page images
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/tiff"

	"folio/internal/domain"
)

// DefaultDPI is the resolution of blank pages produced for pages without
// an embedded image.
const DefaultDPI = 150

// Source opens PDF files from the local filesystem. A Source holds no open
// files and is safe for concurrent use.
type Source struct {
	dpi    float64
	logger *slog.Logger
}

// New creates a Source. dpi <= 0 selects DefaultDPI.
func New(dpi float64, logger *slog.Logger) *Source {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Source{dpi: dpi, logger: logger}
}

func (s *Source) open(path string) (*model.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

// Resolve opens the document and resolves the page selection.
func (s *Source) Resolve(_ context.Context, path string, pages []int) (*domain.SourceDocument, error) {
	ctx, err := s.open(path)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolvePages(ctx.PageCount, pages)
	if err != nil {
		return nil, err
	}
	return &domain.SourceDocument{Path: path, PageCount: ctx.PageCount, Pages: resolved}, nil
}

// PageBounds returns the media box size of every requested page, in points.
func (s *Source) PageBounds(_ context.Context, path string, pages []int) (map[int]domain.BBox, error) {
	ctx, err := s.open(path)
	if err != nil {
		return nil, err
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("reading page dimensions: %w", err)
	}
	out := make(map[int]domain.BBox, len(pages))
	for _, p := range pages {
		if p < 0 || p >= len(dims) {
			return nil, fmt.Errorf("page %d: %w", p, domain.ErrInvalidPages)
		}
		out[p] = domain.PageBox(dims[p].Width, dims[p].Height)
	}
	return out, nil
}

// Rasterize returns one image per page: the largest image embedded in the
// page, or a blank page at the source's resolution when there is none.
func (s *Source) Rasterize(ctx context.Context, path string, pages []int) (map[int]image.Image, error) {
	pctx, err := s.open(path)
	if err != nil {
		return nil, err
	}
	dims, err := pctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("reading page dimensions: %w", err)
	}
	out := make(map[int]image.Image, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p < 0 || p >= len(dims) {
			return nil, fmt.Errorf("page %d: %w", p, domain.ErrInvalidPages)
		}
		img, err := s.pageImage(pctx, p+1)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", p, err)
		}
		if img == nil {
			img = s.blank(dims[p])
		}
		out[p] = img
	}
	return out, nil
}

func (s *Source) pageImage(ctx *model.Context, pageNr int) (image.Image, error) {
	imgs, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, fmt.Errorf("extracting images: %w", err)
	}
	var best *model.Image
	for objNr := range imgs {
		im := imgs[objNr]
		if best == nil || im.Width*im.Height > best.Width*best.Height {
			best = &im
		}
	}
	if best == nil {
		return nil, nil
	}
	img, err := decode(best)
	if err != nil {
		s.logger.Warn("pdf: undecodable page image, using blank page", "page", pageNr-1, "type", best.FileType, "error", err)
		return nil, nil
	}
	return img, nil
}

func decode(im *model.Image) (image.Image, error) {
	switch im.FileType {
	case "png":
		return png.Decode(im)
	case "tif", "tiff":
		return tiff.Decode(im)
	default:
		img, _, err := image.Decode(im)
		return img, err
	}
}

func (s *Source) blank(d types.Dim) image.Image {
	w := max(1, int(d.Width*s.dpi/72))
	h := max(1, int(d.Height*s.dpi/72))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// ResolvePages returns the zero-based pages to process: every page when
// requested is empty, otherwise the requested pages inside the document in
// request order with duplicates removed.
func ResolvePages(count int, requested []int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("document has no pages: %w", domain.ErrInvalidPages)
	}
	if len(requested) == 0 {
		out := make([]int, count)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	seen := make(map[int]bool, len(requested))
	out := make([]int, 0, len(requested))
	for _, p := range requested {
		if p < 0 || p >= count || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("none of %v within %d pages: %w", requested, count, domain.ErrInvalidPages)
	}
	return out, nil
}
