package stages

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"folio/internal/domain"
	"folio/internal/overlay"
	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
	"folio/internal/tablepipe"
)

// CellReaderFactory opens a cell reader for one worker.
type CellReaderFactory func() (port.CellReader, error)

// TableStructure converts detected table parts into structure models.
type TableStructure struct {
	newReader CellReaderFactory
	reader    port.CellReader
}

// NewTableStructure creates the table structure stage. A nil factory leaves
// every cell empty.
func NewTableStructure(newReader CellReaderFactory) *TableStructure {
	return &TableStructure{newReader: newReader}
}

func (s *TableStructure) Name() string { return "table_structure" }

func (s *TableStructure) Requirements() stage.Requirements {
	return stage.Requirements{Required: []store.Field{
		store.PageBounds.Field(), store.Tables.Field(), store.PageImages.Field(),
	}}
}

func (s *TableStructure) Produces() []store.Field {
	return []store.Field{store.ExtractedTables.Field()}
}

func (s *TableStructure) Initialize(context.Context) error {
	if s.newReader == nil || s.reader != nil {
		return nil
	}
	r, err := s.newReader()
	if err != nil {
		return fmt.Errorf("opening cell reader: %w", err)
	}
	s.reader = r
	return nil
}

// Close releases the cell reader.
func (s *TableStructure) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

func (s *TableStructure) Transform(ctx context.Context, v *store.View) error {
	for _, p := range v.Pages() {
		bounds, _ := store.Get(v, store.PageBounds, p)
		detected, _ := store.Get(v, store.Tables, p)
		img, _ := store.Get(v, store.PageImages, p)

		out := make([]*domain.Table, 0, len(detected))
		for i, dt := range detected {
			sx, sy := 1.0, 1.0
			if h := dt.Head().BBox; h.PageWidth > 0 && h.PageHeight > 0 {
				sx, sy = bounds.PageWidth/h.PageWidth, bounds.PageHeight/h.PageHeight
			}
			t, err := BuildTable(dt, sx, sy, s.cellText(ctx, img))
			if err != nil {
				return fmt.Errorf("page %d table %d: %w", p, i, err)
			}
			out = append(out, t)
		}
		store.Put(v, store.ExtractedTables, p, out)
	}
	return nil
}

func (s *TableStructure) cellText(ctx context.Context, img image.Image) CellText {
	if s.reader == nil || img == nil {
		return nil
	}
	b := img.Bounds()
	return func(box domain.BBox) (string, error) {
		r := box.Rect().Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
		if r.Empty() {
			return "", nil
		}
		return s.reader.ReadCell(ctx, tablepipe.Crop(img, r))
	}
}

// DrawPage outlines every table with its rows and columns.
func (s *TableStructure) DrawPage(page int, v *store.View, dst draw.Image) {
	bounds, ok := store.Get(v, store.PageBounds, page)
	if !ok {
		return
	}
	tables, _ := store.Get(v, store.ExtractedTables, page)
	proj := overlay.NewProjector(bounds, dst.Bounds())
	for _, t := range tables {
		for _, b := range t.RowBoxes() {
			overlay.StrokeRect(dst, proj.Rect(b), overlay.Row, 1)
		}
		for _, b := range t.ColBoxes() {
			overlay.StrokeRect(dst, proj.Rect(b), overlay.Column, 1)
		}
		overlay.StrokeRect(dst, proj.Rect(t.BBox()), overlay.Table, 3)
	}
}
