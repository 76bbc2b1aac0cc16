package mocks

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"folio/internal/domain"
)

// MockRunRepo is a mock implementation of port.RunRepository.
type MockRunRepo struct {
	mock.Mock
}

func (m *MockRunRepo) Create(ctx context.Context, run *domain.ConversionRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversionRun), args.Error(1)
}

func (m *MockRunRepo) List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ConversionRun), args.Int(1), args.Error(2)
}

func (m *MockRunRepo) ClaimQueued(ctx context.Context, limit int) ([]domain.ConversionRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConversionRun), args.Error(1)
}

func (m *MockRunRepo) Complete(ctx context.Context, id uuid.UUID, outputKey, tablesKey string, pageCount int, performance json.RawMessage) error {
	args := m.Called(ctx, id, outputKey, tablesKey, pageCount, performance)
	return args.Error(0)
}

func (m *MockRunRepo) Fail(ctx context.Context, id uuid.UUID, reason string, requeue bool) error {
	args := m.Called(ctx, id, reason, requeue)
	return args.Error(0)
}
