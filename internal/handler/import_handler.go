package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/academics-api/internal/models"
	"github.com/campuskit/academics-api/internal/service"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
	"github.com/campuskit/academics-api/pkg/response"
)

// ImportHandler exposes the bulk reconciliation endpoint.
type ImportHandler struct {
	service *service.ImportService
	exports *service.ExportService
}

// NewImportHandler constructs an import handler.
func NewImportHandler(svc *service.ImportService, exports *service.ExportService) *ImportHandler {
	return &ImportHandler{service: svc, exports: exports}
}

type importRequest struct {
	Classes []models.ImportClassRecord `json:"classes" binding:"required"`
}

// Run godoc
// @Summary Run a bulk class and grade import
// @Description Processes the batch with per-record error isolation and returns the reconciliation report
// @Tags Import
// @Accept json
// @Produce json
// @Param payload body importRequest true "Import batch"
// @Success 200 {object} response.Envelope
// @Router /import/classes [post]
func (h *ImportHandler) Run(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.service.Run(c.Request.Context(), req.Classes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, report, report.Warnings)
}

// ExportErrors godoc
// @Summary Export an import report's errors as CSV
// @Description Flattens a previously returned reconciliation report into CSV rows for offline correction
// @Tags Import
// @Accept json
// @Produce text/csv
// @Param payload body models.ImportReport true "Reconciliation report"
// @Success 200 {string} string "CSV content"
// @Router /import/errors.csv [post]
func (h *ImportHandler) ExportErrors(c *gin.Context) {
	var report models.ImportReport
	if err := c.ShouldBindJSON(&report); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	file, err := h.exports.ImportReportCSV(&report)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
