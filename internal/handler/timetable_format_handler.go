package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/timetable"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

// TimetableFormatHandler serves the loaded rotation schedule definitions.
type TimetableFormatHandler struct {
	formats *timetable.Registry
}

// NewTimetableFormatHandler constructs the handler.
func NewTimetableFormatHandler(formats *timetable.Registry) *TimetableFormatHandler {
	return &TimetableFormatHandler{formats: formats}
}

// List godoc
// @Summary List timetable formats
// @Tags Timetable Formats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable-formats [get]
func (h *TimetableFormatHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.formats.Formats(), nil)
}

// Get godoc
// @Summary Get timetable format
// @Tags Timetable Formats
// @Produce json
// @Param name path string true "Format name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable-formats/{name} [get]
func (h *TimetableFormatHandler) Get(c *gin.Context) {
	format, err := h.formats.Get(c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, format, nil)
}
