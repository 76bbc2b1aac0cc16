// Package app assembles the default conversion pipeline from configuration.
package app

import (
	"fmt"
	"log/slog"

	"folio/internal/config"
	"folio/internal/inference"
	_ "folio/internal/inference/tatr" // registers the "tatr" provider
	"folio/internal/ocr"
	"folio/internal/pipeline"
	"folio/internal/port"
	"folio/internal/render"
	"folio/internal/source/pdf"
	"folio/internal/stages"
	"folio/internal/tablepipe"
)

// PipelineConfig maps configuration onto orchestrator settings.
func PipelineConfig(cfg *config.PipelineConfig) pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.MinSliceSize > 0 {
		pc.Slices.MinSliceSize = cfg.MinSliceSize
	}
	if cfg.MaxSlices > 0 {
		pc.Slices.MaxSlices = cfg.MaxSlices
	}
	pc.Slices.MaxThreads = cfg.MaxThreads
	pc.SliceTimeout = cfg.SliceTimeout
	pc.Render = cfg.Render
	return pc
}

// TablesConfig maps configuration onto table extraction settings.
func TablesConfig(cfg *config.TablesConfig) tablepipe.Config {
	return tablepipe.Config{
		Margin:             cfg.Margin,
		Correction:         cfg.Correction,
		DetectionThreshold: cfg.DetectionThreshold,
		StructureThreshold: cfg.StructureThreshold,
		BatchSize:          cfg.BatchSize,
		MaxDetectSide:      cfg.MaxDetectSide,
	}
}

// CellReaders returns a factory opening one OCR reader per worker, or nil
// when OCR is off.
func CellReaders(cfg *config.OCRConfig) (stages.CellReaderFactory, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if !ocr.Enabled {
		return nil, ocr.ErrNotEnabled
	}
	lang := cfg.Language
	return func() (port.CellReader, error) {
		r, err := ocr.New(lang)
		if err != nil {
			return nil, err
		}
		return r, nil
	}, nil
}

// NewOrchestrator builds the PDF source, the inference client and the
// default stage sequence described by cfg.
func NewOrchestrator(cfg *config.Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	client, err := inference.FromConfig(&cfg.Inference, inference.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating inference client: %w", err)
	}
	readers, err := CellReaders(&cfg.OCR)
	if err != nil {
		return nil, err
	}

	src := pdf.New(cfg.Source.DPI, logger)
	descs := stages.Default(stages.Deps{
		Source:        src,
		Rasterizer:    src,
		Detector:      client,
		Recognizer:    client,
		NewCellReader: readers,
		Tables:        TablesConfig(&cfg.Tables),
		Logger:        logger,
	})

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Pipeline.Render {
		opts = append(opts, pipeline.WithRenderer(render.New(cfg.Pipeline.RenderDir, logger)))
	}
	return pipeline.New(PipelineConfig(&cfg.Pipeline), src, descs, opts...), nil
}
