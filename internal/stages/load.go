package stages

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/google/uuid"

	"folio/internal/domain"
	"folio/internal/overlay"
	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
)

// Load reads page geometry and page images from the source document.
type Load struct {
	source port.DocumentSource
	raster port.Rasterizer
}

// NewLoad creates the load stage.
func NewLoad(source port.DocumentSource, raster port.Rasterizer) *Load {
	return &Load{source: source, raster: raster}
}

func (s *Load) Name() string { return "load" }

func (s *Load) Requirements() stage.Requirements { return stage.Requirements{} }

func (s *Load) Produces() []store.Field {
	return []store.Field{store.PageBounds.Field(), store.PageImages.Field(), store.ImageStore.Field()}
}

func (s *Load) Initialize(context.Context) error { return nil }

func (s *Load) Transform(ctx context.Context, v *store.View) error {
	path, err := sourcePath(v)
	if err != nil {
		return err
	}
	pages := v.Pages()

	bounds, err := s.source.PageBounds(ctx, path, pages)
	if err != nil {
		return fmt.Errorf("reading page bounds: %w", err)
	}
	images, err := s.raster.Rasterize(ctx, path, pages)
	if err != nil {
		return fmt.Errorf("rasterizing pages: %w", err)
	}

	for _, p := range pages {
		b, ok := bounds[p]
		if !ok {
			return &domain.IntegrityViolationError{Component: s.Name(), Page: p, Detail: "no page bounds"}
		}
		img, ok := images[p]
		if !ok || img == nil {
			return &domain.IntegrityViolationError{Component: s.Name(), Page: p, Detail: "no page image"}
		}
		stored, err := storeImage(p, img)
		if err != nil {
			return err
		}
		store.Put(v, store.PageBounds, p, b)
		store.Put(v, store.PageImages, p, img)
		store.Put(v, store.ImageStore, p, []domain.StoredImage{stored})
	}
	return nil
}

// DrawPage outlines the page box.
func (s *Load) DrawPage(page int, v *store.View, dst draw.Image) {
	b, ok := store.Get(v, store.PageBounds, page)
	if !ok {
		return
	}
	proj := overlay.NewProjector(b, dst.Bounds())
	overlay.StrokeRect(dst, proj.Rect(domain.PageBox(b.PageWidth, b.PageHeight)), overlay.Page, 2)
}

func storeImage(page int, img image.Image) (domain.StoredImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.StoredImage{}, fmt.Errorf("encoding page %d image: %w", page, err)
	}
	b := img.Bounds()
	return domain.StoredImage{
		ID:     uuid.NewString(),
		Page:   page,
		Width:  b.Dx(),
		Height: b.Dy(),
		MIME:   "image/png",
		Data:   buf.Bytes(),
	}, nil
}

func sourcePath(v *store.View) (string, error) {
	raw, ok := v.Meta(store.MetaPath)
	if !ok {
		return "", &domain.IntegrityViolationError{Component: "load", Page: -1, Detail: "metadata has no source path"}
	}
	path, ok := raw.(string)
	if !ok || path == "" {
		return "", &domain.IntegrityViolationError{Component: "load", Page: -1, Detail: "source path is not a string"}
	}
	return path, nil
}
