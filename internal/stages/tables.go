package stages

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
	"folio/internal/tablepipe"
)

// Tables finds table regions on every page and labels their parts.
type Tables struct {
	detector   port.TableDetector
	recognizer port.StructureRecognizer
	cfg        tablepipe.Config
	logger     *slog.Logger
	extractor  *tablepipe.Extractor
}

// NewTables creates the table detection stage.
func NewTables(detector port.TableDetector, recognizer port.StructureRecognizer, cfg tablepipe.Config, logger *slog.Logger) *Tables {
	return &Tables{detector: detector, recognizer: recognizer, cfg: cfg, logger: logger}
}

func (s *Tables) Name() string { return "tables" }

func (s *Tables) Requirements() stage.Requirements {
	return stage.Requirements{Required: []store.Field{store.PageImages.Field()}}
}

func (s *Tables) Produces() []store.Field { return []store.Field{store.Tables.Field()} }

func (s *Tables) Initialize(context.Context) error {
	s.extractor = tablepipe.New(s.detector, s.recognizer, s.cfg, s.logger)
	return nil
}

func (s *Tables) Transform(ctx context.Context, v *store.View) error {
	if s.extractor == nil {
		return fmt.Errorf("not initialized")
	}
	pages := v.Pages()
	images := make(map[int]image.Image, len(pages))
	for _, p := range pages {
		img, _ := store.Get(v, store.PageImages, p)
		images[p] = img
	}
	found, err := s.extractor.Extract(ctx, pages, images)
	if err != nil {
		return err
	}
	for _, pt := range found {
		store.Put(v, store.Tables, pt.Page, pt.Tables)
	}
	return nil
}
