// Package stages holds the stages of the default conversion pipeline.
package stages

import (
	"log/slog"

	"folio/internal/port"
	"folio/internal/stage"
	"folio/internal/store"
	"folio/internal/tablepipe"
)

// Deps are the collaborators the default stages are built from.
type Deps struct {
	Source     port.DocumentSource
	Rasterizer port.Rasterizer
	Detector   port.TableDetector
	Recognizer port.StructureRecognizer
	// NewCellReader is optional; without it tables keep their structure but
	// no cell text.
	NewCellReader CellReaderFactory
	Tables        tablepipe.Config
	Logger        *slog.Logger
}

// Default returns the stage sequence load → tables → structure, where
// structure groups table_structure and content on the same slice.
func Default(d Deps) []stage.Descriptor {
	return []stage.Descriptor{
		{
			New:      func() (stage.Stage, error) { return NewLoad(d.Source, d.Rasterizer), nil },
			Parallel: true,
			Render:   true,
		},
		{
			New: func() (stage.Stage, error) {
				return NewTables(d.Detector, d.Recognizer, d.Tables, d.Logger), nil
			},
		},
		{
			New: func() (stage.Stage, error) {
				a, err := NewStructure(d.NewCellReader)
				if err != nil {
					return nil, err
				}
				return a, nil
			},
			Parallel: true,
			Render:   true,
		},
	}
}

// NewStructure builds the structure aggregate.
func NewStructure(newReader CellReaderFactory) (*stage.Aggregate, error) {
	return stage.NewAggregate("structure", []stage.Descriptor{
		{New: func() (stage.Stage, error) { return NewTableStructure(newReader), nil }, Render: true},
		{New: func() (stage.Stage, error) { return NewContent(), nil }, Render: true},
	}, store.Tables.Field(), store.ImageStore.Field())
}
