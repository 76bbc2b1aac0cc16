package port

import (
	"context"

	"folio/internal/stage"
	"folio/internal/store"
)

// PageRenderer draws debug overlays of renderable stages over the final
// store. It never mutates the store.
type PageRenderer interface {
	Render(ctx context.Context, stages []stage.Renderable, v *store.View) error
}
