// Package tablepipe turns page images into typed table parts: a detector
// finds table regions, each region is cropped with a margin, and a
// structure recognizer labels the parts of every crop. Recognized boxes are
// translated back to page coordinates and every table is returned with its
// TABLE part first.
package tablepipe

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	"golang.org/x/image/draw"

	"folio/internal/domain"
	"folio/internal/port"
)

// Config holds the detect/recognize parameters.
type Config struct {
	// Margin expands every detected region before cropping.
	Margin float64
	// Correction widens every recognized box to counter recognizer bias.
	Correction         float64
	DetectionThreshold float64
	StructureThreshold float64
	// BatchSize is the number of pages per detector call; <= 0 sends all
	// pages in one call.
	BatchSize int
	// MaxDetectSide downscales larger page images before detection; 0 keeps
	// full resolution.
	MaxDetectSide int
}

// DefaultConfig returns the default parameters.
func DefaultConfig() Config {
	return Config{
		Margin:             25,
		Correction:         3,
		DetectionThreshold: 0.9,
		StructureThreshold: 0.75,
		BatchSize:          10,
	}
}

// PageTables holds the tables found on one page, in detection order.
type PageTables struct {
	Page   int
	Tables []domain.DetectedTable
}

// Extractor runs the two-phase detect/recognize protocol.
type Extractor struct {
	detector   port.TableDetector
	recognizer port.StructureRecognizer
	cfg        Config
	logger     *slog.Logger
}

// New creates an Extractor. A nil logger discards output.
func New(detector port.TableDetector, recognizer port.StructureRecognizer, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{detector: detector, recognizer: recognizer, cfg: cfg, logger: logger}
}

// Extract processes pages in batches and returns one entry per page in the
// order given.
func (e *Extractor) Extract(ctx context.Context, pages []int, images map[int]image.Image) ([]PageTables, error) {
	size := e.cfg.BatchSize
	if size <= 0 {
		size = len(pages)
	}
	out := make([]PageTables, 0, len(pages))
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		batch, err := e.extractBatch(ctx, pages[start:end], images)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// region is one cropped table candidate awaiting recognition.
type region struct {
	slot   int
	offset image.Point
	crop   image.Image
}

func (e *Extractor) extractBatch(ctx context.Context, pages []int, images map[int]image.Image) ([]PageTables, error) {
	imgs := make([]image.Image, len(pages))
	for i, p := range pages {
		img, ok := images[p]
		if !ok || img == nil {
			return nil, fmt.Errorf("no image for page %d", p)
		}
		imgs[i] = img
	}

	detectImgs, scales := e.prepare(imgs)
	detections, err := e.detector.Detect(ctx, detectImgs, e.cfg.DetectionThreshold)
	if err != nil {
		return nil, fmt.Errorf("detecting tables: %w", err)
	}
	if len(detections) != len(imgs) {
		return nil, &domain.IntegrityViolationError{Component: "tablepipe", Page: -1,
			Detail: fmt.Sprintf("detector returned %d results for %d images", len(detections), len(imgs))}
	}

	var regions []region
	for i, dets := range detections {
		bounds := imgs[i].Bounds()
		for _, d := range dets {
			box := d.BBox
			if scales[i] != 1 {
				box = box.Scale(1/scales[i], 1/scales[i])
			}
			r := CropRect(box, bounds.Dx(), bounds.Dy(), e.cfg.Margin)
			if r.Empty() {
				return nil, &domain.IntegrityViolationError{Component: "tablepipe", Page: pages[i],
					Detail: fmt.Sprintf("detected region %s is empty inside the %dx%d page", box.String(), bounds.Dx(), bounds.Dy())}
			}
			regions = append(regions, region{slot: i, offset: r.Min, crop: Crop(imgs[i], r)})
		}
	}

	out := make([]PageTables, len(pages))
	for i, p := range pages {
		out[i] = PageTables{Page: p, Tables: []domain.DetectedTable{}}
	}
	if len(regions) == 0 {
		return out, nil
	}

	crops := make([]image.Image, len(regions))
	for k, r := range regions {
		crops[k] = r.crop
	}
	parts, err := e.recognizer.Recognize(ctx, crops, e.cfg.StructureThreshold)
	if err != nil {
		return nil, fmt.Errorf("recognizing table structure: %w", err)
	}
	if len(parts) != len(regions) {
		return nil, &domain.IntegrityViolationError{Component: "tablepipe", Page: -1,
			Detail: fmt.Sprintf("recognizer returned %d results for %d regions", len(parts), len(regions))}
	}

	for k, r := range regions {
		b := imgs[r.slot].Bounds()
		t, err := e.assemble(parts[k], r.offset, float64(b.Dx()), float64(b.Dy()), pages[r.slot], k)
		if err != nil {
			return nil, err
		}
		out[r.slot].Tables = append(out[r.slot].Tables, t)
	}
	e.logger.Debug("tablepipe: batch done", "pages", len(pages), "regions", len(regions))
	return out, nil
}

// assemble translates a region's parts to page coordinates and orders them
// with the TABLE part first. A region without a TABLE part is fatal: it was
// detected as a table, so losing it would silently drop data.
func (e *Extractor) assemble(parts []port.RecognizedPart, offset image.Point, pageW, pageH float64, page, idx int) (domain.DetectedTable, error) {
	var head *domain.TablePart
	rest := make([]domain.TablePart, 0, len(parts))
	for _, p := range parts {
		if !p.Label.Valid() {
			return nil, &domain.IntegrityViolationError{Component: "tablepipe", Page: page,
				Detail: fmt.Sprintf("region %d: unknown part label %d", idx, int(p.Label))}
		}
		tp := domain.TablePart{
			Label: p.Label,
			BBox:  ToPage(p.BBox, offset, e.cfg.Correction, pageW, pageH),
			Score: p.Score,
		}
		if tp.Label != domain.PartTable {
			rest = append(rest, tp)
			continue
		}
		if head != nil {
			e.logger.Warn("tablepipe: extra table part dropped", "page", page, "region", idx)
			if tp.Score <= head.Score {
				continue
			}
		}
		head = &tp
	}
	if head == nil {
		return nil, &domain.IntegrityViolationError{Component: "tablepipe", Page: page,
			Detail: fmt.Sprintf("region %d was detected as a table but produced no table part", idx)}
	}
	return append(domain.DetectedTable{*head}, rest...), nil
}

// prepare downscales images above MaxDetectSide and returns the scale
// applied to each.
func (e *Extractor) prepare(imgs []image.Image) ([]image.Image, []float64) {
	out := make([]image.Image, len(imgs))
	scales := make([]float64, len(imgs))
	for i, img := range imgs {
		out[i], scales[i] = img, 1
		if e.cfg.MaxDetectSide <= 0 {
			continue
		}
		b := img.Bounds()
		side := max(b.Dx(), b.Dy())
		if side <= e.cfg.MaxDetectSide {
			continue
		}
		s := float64(e.cfg.MaxDetectSide) / float64(side)
		dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(b.Dx())*s)), max(1, int(float64(b.Dy())*s))))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		out[i] = dst
		scales[i] = float64(dst.Bounds().Dx()) / float64(b.Dx())
	}
	return out, scales
}

// CropRect expands a detected box by margin and clamps it to a w×h image.
// Coordinates are relative to the image's top-left corner. The result is
// empty when the box lies outside the image.
func CropRect(box domain.BBox, w, h int, margin float64) image.Rectangle {
	return image.Rectangle{
		Min: image.Pt(max(0, int(box.X0-margin)), max(0, int(box.Y0-margin))),
		Max: image.Pt(min(w, int(box.X1+margin)), min(h, int(box.Y1+margin))),
	}
}

// Crop copies the region r (relative to img's top-left corner) into a new
// image whose origin is (0, 0).
func Crop(img image.Image, r image.Rectangle) image.Image {
	src := r.Add(img.Bounds().Min)
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Copy(dst, image.Point{}, img, src, draw.Src, nil)
	return dst
}

// ToPage translates a box recognized inside a crop back to page coordinates
// and widens it by the correction.
func ToPage(local domain.BBox, offset image.Point, correction, pageW, pageH float64) domain.BBox {
	b := local.Offset(float64(offset.X), float64(offset.Y)).Expand(correction)
	b.PageWidth, b.PageHeight = pageW, pageH
	return b
}
