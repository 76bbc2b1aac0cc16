// Package output serializes conversion results.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"folio/internal/domain"
	"folio/internal/port"
)

// ContentType is the MIME type of Encode output.
const ContentType = "application/json"

// Options control Encode.
type Options struct {
	Indent bool
	// OmitImageData drops inline image bytes, keeping only image metadata.
	OmitImageData bool
	// Performance adds the per-stage timings under "performance".
	Performance bool
}

type document struct {
	*domain.ConversionResult
	ImageStore  map[int][]domain.StoredImage `json:"image_store"`
	Performance domain.Performance           `json:"performance,omitempty"`
}

// Encode writes res as JSON.
func Encode(w io.Writer, res *domain.ConversionResult, opts Options) error {
	doc := document{ConversionResult: res, ImageStore: res.ImageStore}
	if opts.OmitImageData {
		doc.ImageStore = make(map[int][]domain.StoredImage, len(res.ImageStore))
		for p, imgs := range res.ImageStore {
			stripped := make([]domain.StoredImage, len(imgs))
			for i, img := range imgs {
				img.Data = nil
				stripped[i] = img
			}
			doc.ImageStore[p] = stripped
		}
	}
	if opts.Performance {
		doc.Performance = res.Performance
	}

	enc := json.NewEncoder(w)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// Offload uploads every stored image with inline data to bucket under
// prefix, then replaces the data by the object key.
func Offload(ctx context.Context, storage port.ObjectStorage, bucket, prefix string, res *domain.ConversionResult) error {
	for _, p := range domain.SortedPages(res.ImageStore) {
		imgs := res.ImageStore[p]
		for i := range imgs {
			img := &imgs[i]
			if len(img.Data) == 0 {
				continue
			}
			key := path.Join(prefix, "images", img.ID+".png")
			_, err := storage.Upload(ctx, port.UploadInput{
				Bucket:      bucket,
				Key:         key,
				Body:        bytes.NewReader(img.Data),
				ContentType: img.MIME,
				Size:        int64(len(img.Data)),
			})
			if err != nil {
				return fmt.Errorf("uploading image %s of page %d: %w", img.ID, p, err)
			}
			img.Key = key
			img.Data = nil
		}
	}
	return nil
}
