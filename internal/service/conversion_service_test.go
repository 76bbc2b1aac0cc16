package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folio/internal/domain"
	"folio/internal/inference"
	"folio/internal/port"
	"folio/internal/service"
	"folio/mocks"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF")

type serviceFixture struct {
	runs      *mocks.MockRunRepo
	storage   *mocks.MockObjectStorage
	converter *mocks.MockConverter
	svc       service.ConversionService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		runs:      new(mocks.MockRunRepo),
		storage:   new(mocks.MockObjectStorage),
		converter: new(mocks.MockConverter),
	}
	f.svc = service.NewConversionService(f.runs, f.storage, f.converter, service.ConversionConfig{
		Bucket: "bucket", MaxFileSizeMB: 1, PresignExpiry: 60,
	}, nil)
	return f
}

func TestSubmit_UploadsAndQueues(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "bucket" && in.ContentType == "application/pdf"
	})).Return(&port.UploadOutput{}, nil)
	f.runs.On("Create", mock.Anything, mock.AnythingOfType("*domain.ConversionRun")).Return(nil)

	run, err := f.svc.Submit(context.Background(), service.SubmitInput{
		File: bytes.NewReader(pdfBytes), FileName: "reports/q3.pdf", Size: int64(len(pdfBytes)), Pages: []int{0, 2},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, run.Status)
	assert.Equal(t, "q3.pdf", run.FileName)
	assert.Equal(t, "0,2", run.Pages)
	assert.Equal(t, fmt.Sprintf("runs/%s/source.pdf", run.ID), run.SourceKey)
	f.storage.AssertExpectations(t)
	f.runs.AssertExpectations(t)
}

func TestSubmit_RejectsUnsupportedFiles(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.Submit(context.Background(), service.SubmitInput{
		File: bytes.NewReader(pdfBytes), FileName: "q3.docx", Size: 10,
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	_, err = f.svc.Submit(context.Background(), service.SubmitInput{
		File: bytes.NewReader([]byte("plain text, not a pdf")), FileName: "q3.pdf", Size: 10,
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	_, err = f.svc.Submit(context.Background(), service.SubmitInput{
		File: bytes.NewReader(pdfBytes), FileName: "q3.pdf", Size: 2 * 1024 * 1024,
	})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	f.storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestSubmit_CreateFailureRemovesUpload(t *testing.T) {
	f := newServiceFixture()
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.storage.On("Delete", mock.Anything, "bucket", mock.AnythingOfType("string")).Return(nil)
	f.runs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.svc.Submit(context.Background(), service.SubmitInput{
		File: bytes.NewReader(pdfBytes), FileName: "q3.pdf", Size: int64(len(pdfBytes)),
	})
	assert.ErrorContains(t, err, "db down")
	f.storage.AssertCalled(t, "Delete", mock.Anything, "bucket", mock.AnythingOfType("string"))
}

func TestOutputURL(t *testing.T) {
	f := newServiceFixture()
	done := &domain.ConversionRun{ID: uuid.New(), Status: domain.RunStatusCompleted, OutputKey: "runs/x/result.json"}
	pending := &domain.ConversionRun{ID: uuid.New(), Status: domain.RunStatusProcessing}
	f.runs.On("GetByID", mock.Anything, done.ID).Return(done, nil)
	f.runs.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)
	f.storage.On("GetPresignedURL", mock.Anything, "bucket", "runs/x/result.json", int64(60)).
		Return("https://signed", nil)

	url, err := f.svc.OutputURL(context.Background(), done.ID, service.OutputJSON)
	require.NoError(t, err)
	assert.Equal(t, "https://signed", url)

	_, err = f.svc.OutputURL(context.Background(), done.ID, service.OutputXLSX)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no tables exported")

	_, err = f.svc.OutputURL(context.Background(), pending.ID, service.OutputJSON)
	assert.ErrorIs(t, err, domain.ErrRunNotCompleted)
}

func resultWithTable(t *testing.T) *domain.ConversionResult {
	t.Helper()
	tbl, err := domain.NewTable(domain.BBox{X1: 10, Y1: 10}, [][]string{{"a"}})
	require.NoError(t, err)
	return &domain.ConversionResult{
		Metadata: map[string]any{},
		Content: map[int][]domain.ContentItem{
			1: {{Kind: domain.ContentTable, Table: tbl}},
		},
		PageHierarchy: map[int][]domain.HierarchyEntry{1: {}},
		ImageStore: map[int][]domain.StoredImage{
			1: {{ID: "img", MIME: "image/png", Data: []byte("png")}},
		},
		Performance: domain.Performance{"load": {"process": 0.5}},
	}
}

func TestProcess_CompletesRun(t *testing.T) {
	f := newServiceFixture()
	run := &domain.ConversionRun{ID: uuid.New(), SourceKey: "runs/r/source.pdf", Pages: "1", Attempts: 1}
	prefix := "runs/" + run.ID.String()

	f.storage.On("DownloadTo", mock.Anything, "bucket", "runs/r/source.pdf", mock.Anything).Return(int64(42), nil)
	f.converter.On("Read", mock.Anything, mock.AnythingOfType("string"), []int{1}).Return(resultWithTable(t), nil)
	f.storage.On("Upload", mock.Anything, mock.Anything).Return(&port.UploadOutput{}, nil)
	f.runs.On("Complete", mock.Anything, run.ID, prefix+"/result.json", prefix+"/tables.xlsx", 1,
		mock.MatchedBy(func(p []byte) bool { return bytes.Contains(p, []byte(`"load"`)) })).Return(nil)

	f.svc.Process(context.Background(), run, 3)

	f.runs.AssertExpectations(t)
	var keys []string
	for _, c := range f.storage.Calls {
		if c.Method == "Upload" {
			keys = append(keys, c.Arguments.Get(1).(port.UploadInput).Key)
		}
	}
	assert.Equal(t, []string{prefix + "/images/img.png", prefix + "/result.json", prefix + "/tables.xlsx"}, keys)
}

func TestProcess_RateLimitRequeues(t *testing.T) {
	f := newServiceFixture()
	run := &domain.ConversionRun{ID: uuid.New(), SourceKey: "k", Attempts: 1}

	f.storage.On("DownloadTo", mock.Anything, "bucket", "k", mock.Anything).Return(int64(1), nil)
	rl := inference.NewRateLimitError("tatr", errors.New("429"), 30)
	f.converter.On("Read", mock.Anything, mock.Anything, []int(nil)).
		Return(nil, fmt.Errorf("stage tables: %w", rl))
	f.runs.On("Fail", mock.Anything, run.ID, "rate limited by tatr, queued for retry", true).Return(nil)

	f.svc.Process(context.Background(), run, 3)
	f.runs.AssertExpectations(t)
}

func TestProcess_FinalAttemptFails(t *testing.T) {
	f := newServiceFixture()
	run := &domain.ConversionRun{ID: uuid.New(), SourceKey: "k", Attempts: 3}

	f.storage.On("DownloadTo", mock.Anything, "bucket", "k", mock.Anything).Return(int64(1), nil)
	f.converter.On("Read", mock.Anything, mock.Anything, []int(nil)).
		Return(nil, inference.NewRateLimitError("tatr", errors.New("429"), 30))
	f.runs.On("Fail", mock.Anything, run.ID, mock.MatchedBy(func(reason string) bool {
		return bytes.Contains([]byte(reason), []byte("tatr rate limited"))
	}), false).Return(nil)

	f.svc.Process(context.Background(), run, 3)
	f.runs.AssertExpectations(t)
}

func TestProcess_DownloadFailureIsTerminal(t *testing.T) {
	f := newServiceFixture()
	run := &domain.ConversionRun{ID: uuid.New(), SourceKey: "k", Attempts: 1}

	f.storage.On("DownloadTo", mock.Anything, "bucket", "k", mock.Anything).
		Return(int64(0), fmt.Errorf("s3 download k: %w", domain.ErrNotFound))
	f.runs.On("Fail", mock.Anything, run.ID, mock.AnythingOfType("string"), false).Return(nil)

	f.svc.Process(context.Background(), run, 3)
	f.runs.AssertExpectations(t)
	f.converter.AssertNotCalled(t, "Read", mock.Anything, mock.Anything, mock.Anything)
}
