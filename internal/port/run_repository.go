package port

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"folio/internal/domain"
)

// RunRepository defines the contract for conversion run persistence.
type RunRepository interface {
	Create(ctx context.Context, run *domain.ConversionRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error)
	List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error)
	// ClaimQueued atomically moves up to limit queued runs to processing.
	ClaimQueued(ctx context.Context, limit int) ([]domain.ConversionRun, error)
	Complete(ctx context.Context, id uuid.UUID, outputKey, tablesKey string, pageCount int, performance json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, reason string, requeue bool) error
}
