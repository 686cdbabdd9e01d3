package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/academics-api/internal/models"
	"github.com/campuskit/academics-api/internal/service"
	appErrors "github.com/campuskit/academics-api/pkg/errors"
	"github.com/campuskit/academics-api/pkg/response"
)

// ProgramHandler exposes program and curriculum endpoints.
type ProgramHandler struct {
	service *service.ProgramService
}

// NewProgramHandler constructs a program handler.
func NewProgramHandler(svc *service.ProgramService) *ProgramHandler {
	return &ProgramHandler{service: svc}
}

// List godoc
// @Summary List programs
// @Description List programs with filters
// @Tags Programs
// @Produce json
// @Param type query string false "Filter by program type"
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Search in codes and names"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	var filter models.ProgramFilter
	if programType := c.Query("type"); programType != "" {
		filter.Type = models.ProgramType(programType)
	}
	filter.Active = boolQuery(c, "active")
	filter.Search = c.Query("search")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	programs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get program
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	program, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Create program
// @Tags Programs
// @Accept json
// @Produce json
// @Param payload body service.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	var req service.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	program, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// Update godoc
// @Summary Update program
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body service.UpdateProgramRequest true "Program payload"
// @Success 200 {object} response.Envelope
// @Router /programs/{id} [put]
func (h *ProgramHandler) Update(c *gin.Context) {
	var req service.UpdateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	program, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Deactivate godoc
// @Summary Deactivate program
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/deactivate [post]
func (h *ProgramHandler) Deactivate(c *gin.Context) {
	program, err := h.service.SetActive(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Reactivate godoc
// @Summary Reactivate program
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/reactivate [post]
func (h *ProgramHandler) Reactivate(c *gin.Context) {
	program, err := h.service.SetActive(c.Request.Context(), c.Param("id"), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// ListCourses godoc
// @Summary List program curriculum
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/courses [get]
func (h *ProgramHandler) ListCourses(c *gin.Context) {
	courses, err := h.service.ListCourses(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// AttachCourse godoc
// @Summary Attach course to program
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param payload body service.AttachCourseRequest true "Association payload"
// @Success 201 {object} response.Envelope
// @Router /programs/{id}/courses [post]
func (h *ProgramHandler) AttachCourse(c *gin.Context) {
	var req service.AttachCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	association, err := h.service.AttachCourse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, association)
}

// UpdateAssociation godoc
// @Summary Update curriculum association
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path string true "Program ID"
// @Param associationId path string true "Association ID"
// @Param payload body service.UpdateAssociationRequest true "Association payload"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/courses/{associationId} [put]
func (h *ProgramHandler) UpdateAssociation(c *gin.Context) {
	var req service.UpdateAssociationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	association, err := h.service.UpdateCourseAssociation(c.Request.Context(), c.Param("id"), c.Param("associationId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, association, nil)
}

// DetachCourse godoc
// @Summary Detach course from program
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Param associationId path string true "Association ID"
// @Success 204
// @Router /programs/{id}/courses/{associationId} [delete]
func (h *ProgramHandler) DetachCourse(c *gin.Context) {
	if err := h.service.DetachCourse(c.Request.Context(), c.Param("id"), c.Param("associationId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecomputeCredits godoc
// @Summary Recompute program credit total
// @Tags Programs
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Router /programs/{id}/recompute-credits [post]
func (h *ProgramHandler) RecomputeCredits(c *gin.Context) {
	total, err := h.service.RecomputeCredits(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"total_credits": total}, nil)
}
