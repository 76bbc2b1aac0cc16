package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"folio/internal/port"
)

// QueueConfig holds settings for the conversion queue worker.
type QueueConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	Concurrency  int
	// RunTimeout bounds a single conversion; zero means 30 minutes.
	RunTimeout time.Duration
}

// ConversionQueueWorker polls for queued runs and dispatches them for conversion.
type ConversionQueueWorker struct {
	runRepo port.RunRepository
	svc     ConversionService
	cfg     QueueConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewConversionQueueWorker creates a new ConversionQueueWorker.
func NewConversionQueueWorker(runRepo port.RunRepository, svc ConversionService, cfg QueueConfig, logger *slog.Logger) *ConversionQueueWorker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConversionQueueWorker{
		runRepo: runRepo,
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start runs the polling loop until ctx is canceled. It blocks until all
// in-flight conversions have finished.
func (w *ConversionQueueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	w.logger.Info("conversionQueueWorker: started",
		"poll", w.cfg.PollInterval, "concurrency", w.cfg.Concurrency, "max_retries", w.cfg.MaxRetries)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("conversionQueueWorker: shutting down, waiting for in-flight runs")
			w.wg.Wait()
			w.logger.Info("conversionQueueWorker: shutdown complete")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			runs, err := w.runRepo.ClaimQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					// Context canceled during poll, exit on the next select.
					continue
				}
				w.logger.Error("conversionQueueWorker: ClaimQueued failed", "error", err)
				continue
			}

			for i := range runs {
				run := runs[i]

				sem <- struct{}{} // acquire
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }() // release

					// Use a fresh context independent of the poll context
					// so in-flight runs complete even during shutdown.
					runCtx, cancel := context.WithTimeout(context.Background(), w.cfg.RunTimeout)
					defer cancel()

					w.logger.Info("conversionQueueWorker: dispatching run", "run", run.ID, "attempt", run.Attempts)
					w.svc.Process(runCtx, &run, w.cfg.MaxRetries)
				}()
			}
		}
	}
}
