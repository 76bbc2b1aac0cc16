package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folio/internal/domain"
	"folio/internal/handler"
	"folio/internal/service"
	"folio/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc *mocks.MockConversionService) *gin.Engine {
	h := handler.NewConversionHandler(svc)
	r := gin.New()
	r.POST("/conversions", h.Submit)
	r.GET("/conversions", h.List)
	r.GET("/conversions/:id", h.GetByID)
	r.GET("/conversions/:id/output", h.Output)
	return r
}

func multipartBody(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if withFile {
		part, err := w.CreateFormFile("file", "report.pdf")
		require.NoError(t, err)
		_, _ = part.Write([]byte("%PDF-1.4 test content"))
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.APIResponse {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestConversionHandler_Submit_Success(t *testing.T) {
	svc := new(mocks.MockConversionService)
	run := &domain.ConversionRun{ID: uuid.New(), FileName: "report.pdf", Status: domain.RunStatusQueued}
	svc.On("Submit", mock.Anything, mock.MatchedBy(func(in service.SubmitInput) bool {
		return in.FileName == "report.pdf" && assert.ObjectsAreEqual([]int{0, 2, 3, 4}, in.Pages)
	})).Return(run, nil)

	body, ct := multipartBody(t, map[string]string{"pages": "0,2-4"}, true)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/conversions", body)
	req.Header.Set("Content-Type", ct)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, decode(t, w).Success)
	svc.AssertExpectations(t)
}

func TestConversionHandler_Submit_MissingFile(t *testing.T) {
	svc := new(mocks.MockConversionService)
	body, ct := multipartBody(t, nil, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/conversions", body)
	req.Header.Set("Content-Type", ct)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", decode(t, w).Error.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestConversionHandler_Submit_InvalidPages(t *testing.T) {
	svc := new(mocks.MockConversionService)
	body, ct := multipartBody(t, map[string]string{"pages": "5-2"}, true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/conversions", body)
	req.Header.Set("Content-Type", ct)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PAGES", decode(t, w).Error.Code)
}

func TestConversionHandler_Submit_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unsupported", domain.ErrUnsupportedFileType, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{"too large", domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"upload", domain.ErrUploadFailed, http.StatusInternalServerError, "UPLOAD_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.MockConversionService)
			svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.err)

			body, ct := multipartBody(t, nil, true)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/conversions", body)
			req.Header.Set("Content-Type", ct)
			newRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestConversionHandler_List(t *testing.T) {
	svc := new(mocks.MockConversionService)
	runs := []domain.ConversionRun{{ID: uuid.New()}, {ID: uuid.New()}}
	svc.On("List", mock.Anything, 10, 5).Return(runs, 12, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions?offset=10&limit=5", http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, handler.PagMeta{Total: 12, Offset: 10, Limit: 5}, *resp.Meta)
}

func TestConversionHandler_List_ClampsLimit(t *testing.T) {
	svc := new(mocks.MockConversionService)
	svc.On("List", mock.Anything, 0, 20).Return([]domain.ConversionRun{}, 0, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions?offset=-3&limit=1000", http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestConversionHandler_GetByID(t *testing.T) {
	svc := new(mocks.MockConversionService)
	id := uuid.New()
	svc.On("Get", mock.Anything, id).Return(&domain.ConversionRun{ID: id, Status: domain.RunStatusCompleted}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+id.String(), http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestConversionHandler_GetByID_InvalidID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/not-a-uuid", http.NoBody)
	newRouter(new(mocks.MockConversionService)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", decode(t, w).Error.Code)
}

func TestConversionHandler_GetByID_NotFound(t *testing.T) {
	svc := new(mocks.MockConversionService)
	id := uuid.New()
	svc.On("Get", mock.Anything, id).Return(nil, domain.ErrNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+id.String(), http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConversionHandler_Output(t *testing.T) {
	svc := new(mocks.MockConversionService)
	id := uuid.New()
	svc.On("OutputURL", mock.Anything, id, service.OutputXLSX).Return("https://s3/tables.xlsx", nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+id.String()+"/output?format=xlsx", http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := decode(t, w).Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://s3/tables.xlsx", data["url"])
}

func TestConversionHandler_Output_NotCompleted(t *testing.T) {
	svc := new(mocks.MockConversionService)
	id := uuid.New()
	svc.On("OutputURL", mock.Anything, id, service.OutputJSON).Return("", domain.ErrRunNotCompleted)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+id.String()+"/output", http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RUN_NOT_COMPLETED", decode(t, w).Error.Code)
}

func TestConversionHandler_Output_InvalidFormat(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+uuid.NewString()+"/output?format=csv", http.NoBody)
	newRouter(new(mocks.MockConversionService)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FORMAT", decode(t, w).Error.Code)
}

func TestConversionHandler_Output_InternalError(t *testing.T) {
	svc := new(mocks.MockConversionService)
	id := uuid.New()
	svc.On("OutputURL", mock.Anything, id, service.OutputJSON).Return("", errors.New("s3 down"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/conversions/"+id.String()+"/output", http.NoBody)
	newRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decode(t, w).Error.Code)
}
