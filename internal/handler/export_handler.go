package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/academics-api/internal/service"
	"github.com/campuskit/academics-api/pkg/response"
)

// ExportHandler serves rendered documents.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

func serveFile(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// GradeSheet godoc
// @Summary Download a section grade sheet PDF
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Section ID"
// @Success 200 {string} string "PDF content"
// @Router /sections/{id}/grade-sheet.pdf [get]
func (h *ExportHandler) GradeSheet(c *gin.Context) {
	file, err := h.service.GradeSheetPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}

// Transcript godoc
// @Summary Download a student transcript PDF
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Success 200 {string} string "PDF content"
// @Router /students/{id}/transcript.pdf [get]
func (h *ExportHandler) Transcript(c *gin.Context) {
	file, err := h.service.TranscriptPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveFile(c, file)
}
