// Package render writes debug overlays of renderable stages as PNG files.
package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
)

// Renderer draws every renderable stage over a copy of each page image and
// writes one PNG per stage and page to Dir.
type Renderer struct {
	dir    string
	logger *slog.Logger
}

var _ port.PageRenderer = (*Renderer)(nil)

// New creates a Renderer writing into dir.
func New(dir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Renderer{dir: dir, logger: logger}
}

// FileName is the overlay file name of a stage on a zero-based page.
func FileName(stageName string, page int) string {
	return fmt.Sprintf("page-%04d-%s.png", page+1, stageName)
}

// Render implements port.PageRenderer.
func (r *Renderer) Render(ctx context.Context, stages []stage.Renderable, v *store.View) error {
	if len(stages) == 0 {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating render dir: %w", err)
	}

	written := 0
	for _, page := range v.Pages() {
		img, ok := store.Get(v, store.PageImages, page)
		if !ok {
			continue
		}
		for _, s := range stages {
			if err := ctx.Err(); err != nil {
				return err
			}
			canvas := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
			draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
			s.DrawPage(page, v, canvas)

			if err := writePNG(filepath.Join(r.dir, FileName(s.Name(), page)), canvas); err != nil {
				return err
			}
			written++
		}
	}
	r.logger.Info("render: overlays written", "dir", r.dir, "files", written)
	return nil
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
