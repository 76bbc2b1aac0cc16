package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"folio/internal/domain"
	"folio/internal/stage"
	"folio/internal/store"
)

// MockConverter is a mock implementation of port.Converter.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) Read(ctx context.Context, path string, pages []int) (*domain.ConversionResult, error) {
	args := m.Called(ctx, path, pages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversionResult), args.Error(1)
}

// MockPageRenderer is a mock implementation of port.PageRenderer.
type MockPageRenderer struct {
	mock.Mock
}

func (m *MockPageRenderer) Render(ctx context.Context, stages []stage.Renderable, v *store.View) error {
	args := m.Called(ctx, stages, v)
	return args.Error(0)
}
