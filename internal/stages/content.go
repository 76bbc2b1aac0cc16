package stages

import (
	"context"
	"fmt"
	"image/draw"
	"sort"

	"folio/internal/domain"
	"folio/internal/overlay"
	"folio/internal/stage"
	"folio/internal/store"
)

// Content orders the items of every page and builds the page hierarchy.
type Content struct{}

// NewContent creates the content stage.
func NewContent() *Content { return &Content{} }

func (s *Content) Name() string { return "content" }

func (s *Content) Requirements() stage.Requirements {
	return stage.Requirements{
		Required: []store.Field{store.PageBounds.Field(), store.ExtractedTables.Field()},
		Optional: []store.Field{store.ImageStore.Field()},
	}
}

func (s *Content) Produces() []store.Field {
	return []store.Field{store.Content.Field(), store.PageHierarchy.Field()}
}

func (s *Content) Initialize(context.Context) error { return nil }

func (s *Content) Transform(_ context.Context, v *store.View) error {
	for _, p := range v.Pages() {
		bounds, _ := store.Get(v, store.PageBounds, p)
		tables, _ := store.Get(v, store.ExtractedTables, p)
		images, _ := store.Get(v, store.ImageStore, p)

		items := make([]domain.ContentItem, 0, len(tables)+len(images))
		for _, img := range images {
			items = append(items, domain.ContentItem{
				Kind:    domain.ContentImage,
				BBox:    domain.PageBox(bounds.PageWidth, bounds.PageHeight),
				ImageID: img.ID,
			})
		}
		for _, t := range tables {
			items = append(items, domain.ContentItem{Kind: domain.ContentTable, BBox: t.BBox(), Table: t})
		}
		sort.SliceStable(items, func(i, j int) bool { return readingOrder(items[i].BBox, items[j].BBox) })

		hierarchy := []domain.HierarchyEntry{}
		n := 0
		for _, it := range items {
			if it.Kind != domain.ContentTable {
				continue
			}
			n++
			hierarchy = append(hierarchy, domain.HierarchyEntry{
				Title: fmt.Sprintf("Table %d.%d", p+1, n),
				Level: 1,
				Page:  p,
				Kind:  domain.ContentTable,
				BBox:  it.BBox,
			})
		}
		store.Put(v, store.Content, p, items)
		store.Put(v, store.PageHierarchy, p, hierarchy)
	}
	return nil
}

// readingOrder sorts top to bottom, then left to right.
func readingOrder(a, b domain.BBox) bool {
	if a.Y0 != b.Y0 {
		return a.Y0 < b.Y0
	}
	return a.X0 < b.X0
}

// DrawPage outlines every content item.
func (s *Content) DrawPage(page int, v *store.View, dst draw.Image) {
	bounds, ok := store.Get(v, store.PageBounds, page)
	if !ok {
		return
	}
	items, _ := store.Get(v, store.Content, page)
	proj := overlay.NewProjector(bounds, dst.Bounds())
	for _, it := range items {
		if it.Kind == domain.ContentTable {
			overlay.StrokeRect(dst, proj.Rect(it.BBox).Inset(-4), overlay.Content, 1)
		}
	}
}
