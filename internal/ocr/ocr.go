//go:build ocr

// Package ocr reads table cell text with Tesseract via gosseract.
//
// Build with -tags ocr. Tesseract and its language data must be installed:
//
//	apt-get install tesseract-ocr libtesseract-dev
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Enabled reports whether the binary was built with OCR support.
const Enabled = true

// Reader implements port.CellReader. A Reader wraps one Tesseract handle
// and serializes calls to it.
type Reader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// New creates a Reader for the given language(s), e.g. "eng" or "eng+fra".
// The reader should be closed when no longer needed to release resources.
func New(lang string) (*Reader, error) {
	client := gosseract.NewClient()
	if lang != "" {
		if err := client.SetLanguage(lang); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("setting OCR language: %w", err)
		}
	}
	// Cells are small single blocks of text.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}
	return &Reader{client: client}, nil
}

// ReadCell returns the trimmed text of a cell image.
func (r *Reader) ReadCell(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b := img.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding cell image: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases OCR resources.
func (r *Reader) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
