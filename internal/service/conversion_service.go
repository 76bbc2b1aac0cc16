package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"folio/internal/domain"
	"folio/internal/inference"
	"folio/internal/output"
	"folio/internal/port"
	"folio/internal/tableexport"
)

// SubmitInput is the DTO for conversion requests.
type SubmitInput struct {
	File     io.ReadSeeker
	FileName string
	Size     int64
	// Pages are zero-based; nil converts every page.
	Pages []int
}

// OutputKind selects one of a completed run's artifacts.
type OutputKind string

const (
	OutputJSON OutputKind = "json"
	OutputXLSX OutputKind = "xlsx"
)

// ConversionService defines the conversion run contract.
type ConversionService interface {
	Submit(ctx context.Context, input SubmitInput) (*domain.ConversionRun, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error)
	List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error)
	OutputURL(ctx context.Context, id uuid.UUID, kind OutputKind) (string, error)
	// Process runs the pipeline for a claimed run and records the outcome.
	Process(ctx context.Context, run *domain.ConversionRun, maxAttempts int)
}

// ConversionConfig holds storage settings for conversion runs.
type ConversionConfig struct {
	Bucket        string
	MaxFileSizeMB int64
	PresignExpiry int64
}

type conversionService struct {
	runRepo   port.RunRepository
	storage   port.ObjectStorage
	converter port.Converter
	cfg       ConversionConfig
	logger    *slog.Logger
}

// NewConversionService creates a new ConversionService.
func NewConversionService(
	runRepo port.RunRepository,
	storage port.ObjectStorage,
	converter port.Converter,
	cfg ConversionConfig,
	logger *slog.Logger,
) ConversionService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &conversionService{
		runRepo:   runRepo,
		storage:   storage,
		converter: converter,
		cfg:       cfg,
		logger:    logger,
	}
}

func runPrefix(id uuid.UUID) string {
	return "runs/" + id.String()
}

func (s *conversionService) Submit(ctx context.Context, input SubmitInput) (*domain.ConversionRun, error) {
	// Validate file extension
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(input.FileName), "."))
	fileType, ok := domain.AllowedExtensions[ext]
	if !ok {
		return nil, domain.ErrUnsupportedFileType
	}

	// Validate file size
	maxBytes := s.cfg.MaxFileSizeMB * 1024 * 1024
	if maxBytes > 0 && input.Size > maxBytes {
		return nil, domain.ErrFileTooLarge
	}

	// Read first 512 bytes for magic-byte content type detection
	buf := make([]byte, 512)
	n, err := input.File.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	detected, validContent := domain.AllowedContentTypes[http.DetectContentType(buf[:n])]
	if !validContent || detected != fileType {
		return nil, domain.ErrUnsupportedFileType
	}

	// Seek back to beginning for upload
	if _, err := input.File.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking file: %w", err)
	}

	run := &domain.ConversionRun{
		ID:       uuid.New(),
		FileName: filepath.Base(input.FileName),
		Pages:    domain.FormatPageList(input.Pages),
		Status:   domain.RunStatusQueued,
	}
	run.SourceKey = path.Join(runPrefix(run.ID), "source."+ext)

	s.logger.Info("conversionService.Submit: uploading source",
		"run", run.ID, "file", input.FileName, "bytes", input.Size)

	// Upload before the run becomes visible to the queue.
	_, err = s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         run.SourceKey,
		Body:        input.File,
		ContentType: "application/pdf",
		Size:        input.Size,
	})
	if err != nil {
		s.logger.Error("conversionService.Submit: upload failed", "run", run.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		if delErr := s.storage.Delete(ctx, s.cfg.Bucket, run.SourceKey); delErr != nil {
			s.logger.Warn("conversionService.Submit: cleanup failed", "run", run.ID, "error", delErr)
		}
		return nil, fmt.Errorf("creating conversion run: %w", err)
	}
	return run, nil
}

func (s *conversionService) Get(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error) {
	return s.runRepo.GetByID(ctx, id)
}

func (s *conversionService) List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error) {
	return s.runRepo.List(ctx, offset, limit)
}

func (s *conversionService) OutputURL(ctx context.Context, id uuid.UUID, kind OutputKind) (string, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if run.Status != domain.RunStatusCompleted {
		return "", domain.ErrRunNotCompleted
	}
	key := run.OutputKey
	if kind == OutputXLSX {
		key = run.TablesKey
	}
	if key == "" {
		return "", domain.ErrNotFound
	}
	return s.storage.GetPresignedURL(ctx, s.cfg.Bucket, key, s.cfg.PresignExpiry)
}

func (s *conversionService) Process(ctx context.Context, run *domain.ConversionRun, maxAttempts int) {
	log := s.logger.With("run", run.ID, "attempt", run.Attempts)

	src, err := os.CreateTemp("", "folio-*.pdf")
	if err != nil {
		s.fail(ctx, run, fmt.Errorf("creating temp file: %w", err), maxAttempts)
		return
	}
	defer func() {
		_ = src.Close()
		_ = os.Remove(src.Name())
	}()

	if _, err := s.storage.DownloadTo(ctx, s.cfg.Bucket, run.SourceKey, src); err != nil {
		s.fail(ctx, run, fmt.Errorf("downloading source: %w", err), maxAttempts)
		return
	}

	pages, err := domain.ParsePageList(run.Pages)
	if err != nil {
		s.fail(ctx, run, err, maxAttempts)
		return
	}

	res, err := s.converter.Read(ctx, src.Name(), pages)
	if err != nil {
		s.fail(ctx, run, err, maxAttempts)
		return
	}

	prefix := runPrefix(run.ID)
	if err := output.Offload(ctx, s.storage, s.cfg.Bucket, prefix, res); err != nil {
		s.fail(ctx, run, err, maxAttempts)
		return
	}

	var doc bytes.Buffer
	if err := output.Encode(&doc, res, output.Options{}); err != nil {
		s.fail(ctx, run, err, maxAttempts)
		return
	}
	outputKey := path.Join(prefix, "result.json")
	if err := s.upload(ctx, outputKey, output.ContentType, doc.Bytes()); err != nil {
		s.fail(ctx, run, err, maxAttempts)
		return
	}

	var tablesKey string
	if tables := res.Tables(); len(tables) > 0 {
		var xlsx bytes.Buffer
		if err := tableexport.WriteXLSX(&xlsx, tables); err != nil {
			s.fail(ctx, run, err, maxAttempts)
			return
		}
		tablesKey = path.Join(prefix, "tables.xlsx")
		if err := s.upload(ctx, tablesKey, tableexport.ContentTypeXLSX, xlsx.Bytes()); err != nil {
			s.fail(ctx, run, err, maxAttempts)
			return
		}
	}

	perf, err := json.Marshal(res.Performance)
	if err != nil {
		log.Warn("conversionService.Process: dropping performance", "error", err)
		perf = nil
	}
	if err := s.runRepo.Complete(ctx, run.ID, outputKey, tablesKey, len(res.Content), perf); err != nil {
		log.Error("conversionService.Process: failed to save results", "error", err)
		return
	}
	log.Info("conversionService.Process: run completed",
		"pages", len(res.Content), "tables", len(res.Tables()))
}

func (s *conversionService) upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.storage.Upload(ctx, port.UploadInput{
		Bucket:      s.cfg.Bucket,
		Key:         key,
		Body:        bytes.NewReader(data),
		ContentType: contentType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// fail requeues runs rejected by a rate-limited model server while attempts
// remain, and marks every other failure terminal.
func (s *conversionService) fail(ctx context.Context, run *domain.ConversionRun, cause error, maxAttempts int) {
	rlErr, limited := inference.AsRateLimit(cause)
	requeue := limited && run.Attempts < maxAttempts
	reason := cause.Error()
	if requeue {
		reason = fmt.Sprintf("rate limited by %s, queued for retry", rlErr.Provider)
	}

	s.logger.Warn("conversionService.Process: run failed",
		"run", run.ID, "attempt", run.Attempts, "requeue", requeue, "error", cause)
	if err := s.runRepo.Fail(ctx, run.ID, reason, requeue); err != nil {
		s.logger.Error("conversionService.Process: failed to record failure", "run", run.ID, "error", err)
	}
}
