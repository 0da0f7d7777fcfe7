package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

// TimetableHandler manages the caller's course selections.
type TimetableHandler struct {
	service *service.TimetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Get godoc
// @Summary Get my timetable
// @Tags Timetables
// @Produce json
// @Security BearerAuth
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /me/timetables/{termId} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	tt, err := h.service.Get(c.Request.Context(), actor.UserID, c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tt, nil)
}

// Replace godoc
// @Summary Replace my timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param termId path string true "Term ID"
// @Param payload body service.TimetableRequest true "Course selection"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /me/timetables/{termId} [put]
func (h *TimetableHandler) Replace(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.TimetableRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	tt, err := h.service.Replace(c.Request.Context(), actor.UserID, c.Param("termId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tt, nil)
}
