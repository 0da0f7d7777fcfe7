package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

// TermHandler exposes term endpoints.
type TermHandler struct {
	service   *service.TermService
	schedules *service.ScheduleService
}

// NewTermHandler constructs a term handler. The schedule service supplies "today" in the school's zone.
func NewTermHandler(svc *service.TermService, schedules *service.ScheduleService) *TermHandler {
	return &TermHandler{service: svc, schedules: schedules}
}

// List godoc
// @Summary List terms
// @Tags Terms
// @Produce json
// @Param timetable_format query string false "Filter by timetable format"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort column"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /terms [get]
func (h *TermHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.TermFilter{
		TimetableFormat: c.Query("timetable_format"),
		Page:            page,
		PageSize:        size,
		SortBy:          c.Query("sort"),
		SortOrder:       c.Query("order"),
	}

	terms, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, pagination)
}

// Current godoc
// @Summary Get the term covering a date
// @Description Returns null when no term covers the date.
// @Tags Terms
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /terms/current [get]
func (h *TermHandler) Current(c *gin.Context) {
	day, ok := dateQuery(c, "date", h.schedules.Today())
	if !ok {
		return
	}
	term, err := h.service.GetCurrent(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	if term == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// Get godoc
// @Summary Get term
// @Tags Terms
// @Produce json
// @Param id path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /terms/{id} [get]
func (h *TermHandler) Get(c *gin.Context) {
	term, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// Create godoc
// @Summary Create term
// @Tags Terms
// @Accept json
// @Produce json
// @Param payload body service.TermRequest true "Term payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /terms [post]
func (h *TermHandler) Create(c *gin.Context) {
	var req service.TermRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	term, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, term)
}

// Update godoc
// @Summary Update term
// @Tags Terms
// @Accept json
// @Produce json
// @Param id path string true "Term ID"
// @Param payload body service.TermRequest true "Term payload"
// @Success 200 {object} response.Envelope
// @Router /terms/{id} [put]
func (h *TermHandler) Update(c *gin.Context) {
	var req service.TermRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	term, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.schedules.InvalidateTerm(c.Request.Context(), term.ID)
	response.JSON(c, http.StatusOK, term, nil)
}

// Delete godoc
// @Summary Delete term
// @Tags Terms
// @Param id path string true "Term ID"
// @Success 204
// @Router /terms/{id} [delete]
func (h *TermHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	h.schedules.InvalidateTerm(c.Request.Context(), id)
	response.NoContent(c)
}
