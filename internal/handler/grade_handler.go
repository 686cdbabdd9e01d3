package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/academics-api/internal/service"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
	"github.com/campuskit/academics-api/pkg/response"
)

// GradeHandler exposes grading endpoints.
type GradeHandler struct {
	service *service.GradeService
}

// NewGradeHandler constructs a grade handler.
func NewGradeHandler(svc *service.GradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// SetGrade godoc
// @Summary Record a grade for an enrollment
// @Description Stores the percentage and replaces all derived grade fields
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.SetGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade [put]
func (h *GradeHandler) SetGrade(c *gin.Context) {
	var req service.SetGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.service.SetGrade(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Preview godoc
// @Summary Preview grade derivation
// @Description Derives letter grade and points without persisting
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body previewGradeRequest true "Preview payload"
// @Success 200 {object} response.Envelope
// @Router /grades/preview [post]
func (h *GradeHandler) Preview(c *gin.Context) {
	var req previewGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	derived, err := service.DeriveGrade(req.PercentageGrade, req.Credits)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, derived, nil)
}

type previewGradeRequest struct {
	PercentageGrade float64 `json:"percentage_grade"`
	Credits         int     `json:"credits" binding:"required,min=1"`
}
