package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"folio/internal/domain"
	"folio/internal/service"
)

// ConversionHandler handles conversion run endpoints.
type ConversionHandler struct {
	svc service.ConversionService
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(svc service.ConversionService) *ConversionHandler {
	return &ConversionHandler{svc: svc}
}

// Submit handles POST /api/v1/conversions
// The multipart form carries the PDF in "file" and an optional zero-based
// page list in "pages", e.g. "0,2,5-9".
func (h *ConversionHandler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	pages, err := domain.ParsePageList(c.PostForm("pages"))
	if err != nil {
		HandleError(c, err)
		return
	}

	run, err := h.svc.Submit(c.Request.Context(), service.SubmitInput{
		File:     file,
		FileName: header.Filename,
		Size:     header.Size,
		Pages:    pages,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondAccepted(c, run)
}

// List handles GET /api/v1/conversions
func (h *ConversionHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)
	runs, total, err := h.svc.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondPaginated(c, runs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/conversions/:id
func (h *ConversionHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	run, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, run)
}

// Output handles GET /api/v1/conversions/:id/output?format=json|xlsx
func (h *ConversionHandler) Output(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	kind := service.OutputKind(c.DefaultQuery("format", string(service.OutputJSON)))
	if kind != service.OutputJSON && kind != service.OutputXLSX {
		RespondError(c, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or xlsx")
		return
	}
	url, err := h.svc.OutputURL(c.Request.Context(), id, kind)
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, gin.H{"url": url, "format": kind})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid conversion ID")
		return uuid.Nil, false
	}
	return id, true
}
