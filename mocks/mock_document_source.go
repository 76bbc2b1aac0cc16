package mocks

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"

	"folio/internal/domain"
)

// MockDocumentSource is a mock implementation of port.DocumentSource.
type MockDocumentSource struct {
	mock.Mock
}

func (m *MockDocumentSource) Resolve(ctx context.Context, path string, pages []int) (*domain.SourceDocument, error) {
	args := m.Called(ctx, path, pages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SourceDocument), args.Error(1)
}

func (m *MockDocumentSource) PageBounds(ctx context.Context, path string, pages []int) (map[int]domain.BBox, error) {
	args := m.Called(ctx, path, pages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]domain.BBox), args.Error(1)
}

// MockRasterizer is a mock implementation of port.Rasterizer.
type MockRasterizer struct {
	mock.Mock
}

func (m *MockRasterizer) Rasterize(ctx context.Context, path string, pages []int) (map[int]image.Image, error) {
	args := m.Called(ctx, path, pages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]image.Image), args.Error(1)
}
