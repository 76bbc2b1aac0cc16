package tablepipe_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folio/internal/domain"
	"folio/internal/port"
	"folio/internal/tablepipe"
	"folio/mocks"
)

func page(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func batchOf(n int) interface{} {
	return mock.MatchedBy(func(imgs []image.Image) bool { return len(imgs) == n })
}

func TestExtract_TranslatesPartsToPageCoordinates(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(1), 0.9).Return([][]port.Detection{
		{{BBox: domain.BBox{X0: 50, Y0: 30, X1: 150, Y1: 80}, Score: 0.95}},
	}, nil)
	rec.On("Recognize", mock.Anything, mock.MatchedBy(func(regions []image.Image) bool {
		return len(regions) == 1 && regions[0].Bounds() == image.Rect(0, 0, 150, 95)
	}), 0.75).Return([][]port.RecognizedPart{{
		{Label: domain.PartColumn, BBox: domain.BBox{X0: 0, Y0: 0, X1: 10, Y1: 10}, Score: 0.8},
		{Label: domain.PartTable, BBox: domain.BBox{X0: 1, Y0: 1, X1: 100, Y1: 50}, Score: 0.9},
	}}, nil)

	ex := tablepipe.New(det, rec, tablepipe.DefaultConfig(), nil)
	out, err := ex.Extract(context.Background(), []int{4}, map[int]image.Image{4: page(200, 100)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].Page)
	require.Len(t, out[0].Tables, 1)

	tbl := out[0].Tables[0]
	require.NoError(t, tbl.Validate())
	head := tbl.Head()
	assert.Equal(t, domain.PartTable, head.Label)
	assert.Equal(t, domain.BBox{X0: 23, Y0: 3, X1: 128, Y1: 58, PageWidth: 200, PageHeight: 100}, head.BBox)
	assert.Equal(t, domain.PartColumn, tbl[1].Label)
	assert.Equal(t, domain.BBox{X0: 22, Y0: 2, X1: 38, Y1: 18, PageWidth: 200, PageHeight: 100}, tbl[1].BBox)

	det.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestExtract_MissingTablePartIsIntegrityViolation(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(1), mock.Anything).Return([][]port.Detection{
		{{BBox: domain.BBox{X0: 10, Y0: 10, X1: 60, Y1: 60}}},
	}, nil)
	rec.On("Recognize", mock.Anything, batchOf(1), mock.Anything).Return([][]port.RecognizedPart{{
		{Label: domain.PartRow, BBox: domain.BBox{X0: 0, Y0: 0, X1: 10, Y1: 10}},
	}}, nil)

	ex := tablepipe.New(det, rec, tablepipe.DefaultConfig(), nil)
	_, err := ex.Extract(context.Background(), []int{0}, map[int]image.Image{0: page(100, 100)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))

	var iv *domain.IntegrityViolationError
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, 0, iv.Page)
}

func TestExtract_RegionWithoutPartsIsIntegrityViolation(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(2), mock.Anything).Return([][]port.Detection{
		{},
		{{BBox: domain.BBox{X0: 10, Y0: 10, X1: 60, Y1: 60}}},
	}, nil)
	rec.On("Recognize", mock.Anything, batchOf(1), mock.Anything).Return([][]port.RecognizedPart{{}}, nil)

	ex := tablepipe.New(det, rec, tablepipe.DefaultConfig(), nil)
	out, err := ex.Extract(context.Background(), []int{6, 7}, map[int]image.Image{6: page(100, 100), 7: page(100, 100)})
	assert.Nil(t, out)
	require.Error(t, err)

	var iv *domain.IntegrityViolationError
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, 7, iv.Page)
}

func TestExtract_RegionOutsidePageIsIntegrityViolation(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(1), mock.Anything).Return([][]port.Detection{
		{{BBox: domain.BBox{X0: 300, Y0: 300, X1: 400, Y1: 400}, Score: 0.97}},
	}, nil)

	ex := tablepipe.New(det, rec, tablepipe.DefaultConfig(), nil)
	_, err := ex.Extract(context.Background(), []int{2}, map[int]image.Image{2: page(100, 100)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))

	var iv *domain.IntegrityViolationError
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, 2, iv.Page)
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_KeepsHighestScoringTablePart(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(1), mock.Anything).Return([][]port.Detection{
		{{BBox: domain.BBox{X0: 10, Y0: 10, X1: 60, Y1: 60}}},
	}, nil)
	rec.On("Recognize", mock.Anything, batchOf(1), mock.Anything).Return([][]port.RecognizedPart{{
		{Label: domain.PartTable, BBox: domain.BBox{X0: 0, Y0: 0, X1: 10, Y1: 10}, Score: 0.8},
		{Label: domain.PartRow, BBox: domain.BBox{X0: 0, Y0: 0, X1: 10, Y1: 5}, Score: 0.8},
		{Label: domain.PartTable, BBox: domain.BBox{X0: 0, Y0: 0, X1: 20, Y1: 20}, Score: 0.95},
	}}, nil)

	cfg := tablepipe.DefaultConfig()
	cfg.Margin, cfg.Correction = 0, 0
	ex := tablepipe.New(det, rec, cfg, nil)
	out, err := ex.Extract(context.Background(), []int{0}, map[int]image.Image{0: page(100, 100)})
	require.NoError(t, err)

	tbl := out[0].Tables[0]
	require.Len(t, tbl, 2)
	assert.Equal(t, 0.95, tbl.Head().Score)
	assert.Len(t, tbl.Parts(domain.PartTable), 1)
	assert.Len(t, tbl.Parts(domain.PartRow), 1)
}

func TestExtract_BatchesPagesAndKeepsOrder(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, batchOf(2), mock.Anything).Return([][]port.Detection{{}, {}}, nil).Once()
	det.On("Detect", mock.Anything, batchOf(1), mock.Anything).Return([][]port.Detection{{}}, nil).Once()

	cfg := tablepipe.DefaultConfig()
	cfg.BatchSize = 2
	ex := tablepipe.New(det, rec, cfg, nil)

	images := map[int]image.Image{3: page(10, 10), 5: page(10, 10), 9: page(10, 10)}
	out, err := ex.Extract(context.Background(), []int{3, 5, 9}, images)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, p := range []int{3, 5, 9} {
		assert.Equal(t, p, out[i].Page)
		assert.NotNil(t, out[i].Tables)
		assert.Empty(t, out[i].Tables)
	}
	det.AssertNumberOfCalls(t, "Detect", 2)
	rec.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_DetectorResultCountMismatch(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)
	det.On("Detect", mock.Anything, batchOf(2), mock.Anything).Return([][]port.Detection{{}}, nil)

	ex := tablepipe.New(det, rec, tablepipe.DefaultConfig(), nil)
	_, err := ex.Extract(context.Background(), []int{0, 1}, map[int]image.Image{0: page(5, 5), 1: page(5, 5)})
	assert.True(t, errors.Is(err, domain.ErrIntegrityViolation))
}

func TestExtract_MissingPageImage(t *testing.T) {
	ex := tablepipe.New(new(mocks.MockTableDetector), new(mocks.MockStructureRecognizer), tablepipe.DefaultConfig(), nil)
	_, err := ex.Extract(context.Background(), []int{2}, map[int]image.Image{})
	assert.Error(t, err)
}

func TestExtract_DownscalesForDetection(t *testing.T) {
	det := new(mocks.MockTableDetector)
	rec := new(mocks.MockStructureRecognizer)

	det.On("Detect", mock.Anything, mock.MatchedBy(func(imgs []image.Image) bool {
		return len(imgs) == 1 && imgs[0].Bounds().Dx() == 100 && imgs[0].Bounds().Dy() == 50
	}), mock.Anything).Return([][]port.Detection{
		{{BBox: domain.BBox{X0: 10, Y0: 10, X1: 20, Y1: 20}}},
	}, nil)
	rec.On("Recognize", mock.Anything, mock.MatchedBy(func(regions []image.Image) bool {
		return len(regions) == 1 && regions[0].Bounds() == image.Rect(0, 0, 20, 20)
	}), mock.Anything).Return([][]port.RecognizedPart{{
		{Label: domain.PartTable, BBox: domain.BBox{X0: 0, Y0: 0, X1: 20, Y1: 20}},
	}}, nil)

	cfg := tablepipe.DefaultConfig()
	cfg.Margin, cfg.Correction, cfg.MaxDetectSide = 0, 0, 100
	ex := tablepipe.New(det, rec, cfg, nil)
	out, err := ex.Extract(context.Background(), []int{0}, map[int]image.Image{0: page(200, 100)})
	require.NoError(t, err)
	assert.Equal(t, domain.BBox{X0: 20, Y0: 20, X1: 40, Y1: 40, PageWidth: 200, PageHeight: 100}, out[0].Tables[0].Head().BBox)
}

func TestCropRect_ClampsToImage(t *testing.T) {
	r := tablepipe.CropRect(domain.BBox{X0: 10, Y0: 5, X1: 190, Y1: 95}, 200, 100, 25)
	assert.Equal(t, image.Rect(0, 0, 200, 100), r)

	r = tablepipe.CropRect(domain.BBox{X0: 50.7, Y0: 40.2, X1: 60.9, Y1: 50.5}, 200, 100, 0)
	assert.Equal(t, image.Rect(50, 40, 60, 50), r)

	r = tablepipe.CropRect(domain.BBox{X0: 300, Y0: 10, X1: 400, Y1: 50}, 200, 100, 25)
	assert.True(t, r.Empty())
}

func TestCrop_RebasesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	src.Set(12, 7, color.RGBA{R: 255, A: 255})

	c := tablepipe.Crop(src, image.Rect(10, 5, 15, 10))
	assert.Equal(t, image.Rect(0, 0, 5, 5), c.Bounds())
	r, _, _, _ := c.At(2, 2).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestToPage_RoundTripsWithCropOffset(t *testing.T) {
	page := domain.BBox{X0: 120, Y0: 80, X1: 300, Y1: 220}
	offset := image.Pt(95, 55)
	local := page.Offset(-95, -55)

	got := tablepipe.ToPage(local, offset, 0, 400, 300)
	assert.Equal(t, domain.BBox{X0: 120, Y0: 80, X1: 300, Y1: 220, PageWidth: 400, PageHeight: 300}, got)
}
