package domain

import (
	"fmt"
	"image"
	"math"
)

// BBox is an axis-aligned box in page coordinates (origin top-left, y grows
// downwards) together with the page size it was measured against.
// BBox is a plain value: compare with ==, derive new boxes with the methods.
type BBox struct {
	X0         float64 `json:"x0"`
	Y0         float64 `json:"y0"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// NewBBox creates a box from two corners, normalizing their order.
func NewBBox(x0, y0, x1, y1, pageWidth, pageHeight float64) BBox {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return BBox{X0: x0, Y0: y0, X1: x1, Y1: y1, PageWidth: pageWidth, PageHeight: pageHeight}
}

// PageBox returns the box covering a whole page of the given size.
func PageBox(width, height float64) BBox {
	return BBox{X1: width, Y1: height, PageWidth: width, PageHeight: height}
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the area, or 0 for degenerate boxes.
func (b BBox) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return b.Width() * b.Height()
}

// IsEmpty reports whether the box has no area.
func (b BBox) IsEmpty() bool {
	return b.X1 <= b.X0 || b.Y1 <= b.Y0
}

// Center returns the center point.
func (b BBox) Center() (x, y float64) {
	return (b.X0 + b.X1) / 2, (b.Y0 + b.Y1) / 2
}

// ContainsPoint reports whether (x, y) lies inside the box, edges included.
func (b BBox) ContainsPoint(x, y float64) bool {
	return x >= b.X0 && x <= b.X1 && y >= b.Y0 && y <= b.Y1
}

// Union returns the smallest box enclosing both boxes.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0:         math.Min(b.X0, o.X0),
		Y0:         math.Min(b.Y0, o.Y0),
		X1:         math.Max(b.X1, o.X1),
		Y1:         math.Max(b.Y1, o.Y1),
		PageWidth:  b.PageWidth,
		PageHeight: b.PageHeight,
	}
}

// Intersection returns the overlapping region and whether one exists.
func (b BBox) Intersection(o BBox) (BBox, bool) {
	r := BBox{
		X0:         math.Max(b.X0, o.X0),
		Y0:         math.Max(b.Y0, o.Y0),
		X1:         math.Min(b.X1, o.X1),
		Y1:         math.Min(b.Y1, o.Y1),
		PageWidth:  b.PageWidth,
		PageHeight: b.PageHeight,
	}
	if r.IsEmpty() {
		return BBox{}, false
	}
	return r, true
}

// XOverlap returns the fraction of b's width covered by o.
func (b BBox) XOverlap(o BBox) float64 {
	if b.Width() <= 0 {
		return 0
	}
	w := math.Min(b.X1, o.X1) - math.Max(b.X0, o.X0)
	if w <= 0 {
		return 0
	}
	return w / b.Width()
}

// YOverlap returns the fraction of b's height covered by o.
func (b BBox) YOverlap(o BBox) float64 {
	if b.Height() <= 0 {
		return 0
	}
	h := math.Min(b.Y1, o.Y1) - math.Max(b.Y0, o.Y0)
	if h <= 0 {
		return 0
	}
	return h / b.Height()
}

// Offset translates the box by (dx, dy).
func (b BBox) Offset(dx, dy float64) BBox {
	b.X0 += dx
	b.X1 += dx
	b.Y0 += dy
	b.Y1 += dy
	return b
}

// Expand grows the box by margin on every side. A negative margin shrinks it.
func (b BBox) Expand(margin float64) BBox {
	b.X0 -= margin
	b.Y0 -= margin
	b.X1 += margin
	b.Y1 += margin
	return b
}

// Scale multiplies coordinates and page size by (sx, sy).
func (b BBox) Scale(sx, sy float64) BBox {
	return BBox{
		X0:         b.X0 * sx,
		Y0:         b.Y0 * sy,
		X1:         b.X1 * sx,
		Y1:         b.Y1 * sy,
		PageWidth:  b.PageWidth * sx,
		PageHeight: b.PageHeight * sy,
	}
}

// Crop re-expresses the box in the local frame of the crop region c:
// the origin moves to c's top-left corner and the page becomes c's size.
func (b BBox) Crop(c BBox) BBox {
	r := b.Offset(-c.X0, -c.Y0)
	r.PageWidth = c.Width()
	r.PageHeight = c.Height()
	return r
}

// Clamp limits the box to its page.
func (b BBox) Clamp() BBox {
	b.X0 = math.Max(0, b.X0)
	b.Y0 = math.Max(0, b.Y0)
	if b.PageWidth > 0 {
		b.X1 = math.Min(b.PageWidth, b.X1)
	}
	if b.PageHeight > 0 {
		b.Y1 = math.Min(b.PageHeight, b.Y1)
	}
	return b
}

// Rect converts the box to integer pixel bounds, truncating toward zero.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(int(b.X0), int(b.Y0), int(b.X1), int(b.Y1))
}

// BBoxFromRect converts pixel bounds of an image of size w×h to a box.
func BBoxFromRect(r image.Rectangle, w, h int) BBox {
	return NewBBox(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y), float64(w), float64(h))
}

func (b BBox) String() string {
	return fmt.Sprintf("[%.1f %.1f %.1f %.1f]/%.0fx%.0f", b.X0, b.Y0, b.X1, b.Y1, b.PageWidth, b.PageHeight)
}
