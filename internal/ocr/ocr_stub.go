//go:build !ocr

// Package ocr reads table cell text with Tesseract. This build has OCR
// disabled; rebuild with -tags ocr to enable it.
package ocr

import (
	"context"
	"errors"
	"image"
)

// Enabled reports whether the binary was built with OCR support.
const Enabled = false

// ErrNotEnabled is returned when OCR is requested from a build without it.
var ErrNotEnabled = errors.New("ocr: not enabled in this build (rebuild with -tags ocr)")

// Reader is a placeholder; New never returns one.
type Reader struct{}

// New always fails with ErrNotEnabled.
func New(string) (*Reader, error) {
	return nil, ErrNotEnabled
}

// ReadCell always fails with ErrNotEnabled.
func (r *Reader) ReadCell(context.Context, image.Image) (string, error) {
	return "", ErrNotEnabled
}

// Close is a no-op.
func (r *Reader) Close() error {
	return nil
}
