// Package overlay draws debug annotations onto page images.
package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"folio/internal/domain"
)

// Palette used by the renderable stages.
var (
	Page    = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	Table   = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	Row     = color.RGBA{R: 30, G: 144, B: 255, A: 255}
	Column  = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	Header  = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	Content = color.RGBA{R: 148, G: 0, B: 211, A: 255}
)

// Projector maps page coordinates onto the pixels of a page image.
type Projector struct {
	sx, sy float64
}

// NewProjector returns a projector from a page of the given bounds onto dst.
// A zero page size maps coordinates one to one.
func NewProjector(page domain.BBox, dst image.Rectangle) Projector {
	p := Projector{sx: 1, sy: 1}
	if page.PageWidth > 0 && page.PageHeight > 0 {
		p.sx = float64(dst.Dx()) / page.PageWidth
		p.sy = float64(dst.Dy()) / page.PageHeight
	}
	return p
}

// Rect converts a page box to image pixels.
func (p Projector) Rect(b domain.BBox) image.Rectangle {
	return b.Scale(p.sx, p.sy).Rect()
}

// StrokeRect draws the outline of r, width pixels thick, clipped to dst.
func StrokeRect(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	if width < 1 {
		width = 1
	}
	r = r.Canon()
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(dst.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(dst, e, src, image.Point{}, draw.Over)
	}
}
