package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"folio/internal/domain"
	"folio/internal/service"
)

// MockConversionService is a mock implementation of service.ConversionService.
type MockConversionService struct {
	mock.Mock
}

func (m *MockConversionService) Submit(ctx context.Context, input service.SubmitInput) (*domain.ConversionRun, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversionRun), args.Error(1)
}

func (m *MockConversionService) Get(ctx context.Context, id uuid.UUID) (*domain.ConversionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversionRun), args.Error(1)
}

func (m *MockConversionService) List(ctx context.Context, offset, limit int) ([]domain.ConversionRun, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ConversionRun), args.Int(1), args.Error(2)
}

func (m *MockConversionService) OutputURL(ctx context.Context, id uuid.UUID, kind service.OutputKind) (string, error) {
	args := m.Called(ctx, id, kind)
	return args.String(0), args.Error(1)
}

func (m *MockConversionService) Process(ctx context.Context, run *domain.ConversionRun, maxAttempts int) {
	m.Called(ctx, run, maxAttempts)
}
