package mocks

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"

	"folio/internal/port"
)

// MockTableDetector is a mock implementation of port.TableDetector.
type MockTableDetector struct {
	mock.Mock
}

func (m *MockTableDetector) Detect(ctx context.Context, images []image.Image, threshold float64) ([][]port.Detection, error) {
	args := m.Called(ctx, images, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]port.Detection), args.Error(1)
}

// MockStructureRecognizer is a mock implementation of port.StructureRecognizer.
type MockStructureRecognizer struct {
	mock.Mock
}

func (m *MockStructureRecognizer) Recognize(ctx context.Context, regions []image.Image, threshold float64) ([][]port.RecognizedPart, error) {
	args := m.Called(ctx, regions, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]port.RecognizedPart), args.Error(1)
}

// MockCellReader is a mock implementation of port.CellReader.
type MockCellReader struct {
	mock.Mock
}

func (m *MockCellReader) ReadCell(ctx context.Context, img image.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

func (m *MockCellReader) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockInferenceClient is a mock implementation of inference.Client.
type MockInferenceClient struct {
	mock.Mock
}

func (m *MockInferenceClient) Detect(ctx context.Context, images []image.Image, threshold float64) ([][]port.Detection, error) {
	args := m.Called(ctx, images, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]port.Detection), args.Error(1)
}

func (m *MockInferenceClient) Recognize(ctx context.Context, regions []image.Image, threshold float64) ([][]port.RecognizedPart, error) {
	args := m.Called(ctx, regions, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]port.RecognizedPart), args.Error(1)
}
