package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

type scheduleReader interface {
	Today() time.Time
	DaySchedule(ctx context.Context, termID string, day time.Time) (*timetable.Day, error)
	DayNumber(ctx context.Context, termID string, day time.Time) (int, bool, error)
	CurrentDaySchedule(ctx context.Context, day time.Time) (*models.Term, *timetable.Day, error)
	PersonalSchedule(ctx context.Context, userID string, day time.Time) (*service.PersonalDay, error)
}

type scheduleExporter interface {
	ScheduleExport(ctx context.Context, termID string, from, to time.Time, format string) (*service.ExportFile, error)
}

// DayNumberResponse answers a day-number query. DayNumber is null on days without school.
type DayNumberResponse struct {
	TermID    string `json:"term_id"`
	Date      string `json:"date"`
	DayNumber *int   `json:"day_number"`
}

// TodayResponse pairs the covering term with its schedule for the date.
type TodayResponse struct {
	Term     *models.Term   `json:"term"`
	Schedule *timetable.Day `json:"schedule"`
}

// ScheduleHandler serves computed day schedules.
type ScheduleHandler struct {
	schedules scheduleReader
	exports   scheduleExporter
}

// NewScheduleHandler constructs a schedule handler.
func NewScheduleHandler(schedules scheduleReader, exports scheduleExporter) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, exports: exports}
}

// Day godoc
// @Summary Day schedule of a term
// @Description data is null when the date has no school.
// @Tags Schedule
// @Produce json
// @Param id path string true "Term ID"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /terms/{id}/schedule [get]
func (h *ScheduleHandler) Day(c *gin.Context) {
	day, ok := dateQuery(c, "date", h.schedules.Today())
	if !ok {
		return
	}
	schedule, err := h.schedules.DaySchedule(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	if schedule == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// DayNumber godoc
// @Summary Cycle day number
// @Tags Schedule
// @Produce json
// @Param id path string true "Term ID"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope{data=DayNumberResponse}
// @Router /terms/{id}/day-number [get]
func (h *ScheduleHandler) DayNumber(c *gin.Context) {
	day, ok := dateQuery(c, "date", h.schedules.Today())
	if !ok {
		return
	}
	termID := c.Param("id")
	n, scheduled, err := h.schedules.DayNumber(c.Request.Context(), termID, day)
	if err != nil {
		response.Error(c, err)
		return
	}
	res := DayNumberResponse{TermID: termID, Date: day.Format("2006-01-02")}
	if scheduled {
		res.DayNumber = &n
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Today godoc
// @Summary Schedule of the current term for a date
// @Tags Schedule
// @Produce json
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope{data=TodayResponse}
// @Router /schedule/today [get]
func (h *ScheduleHandler) Today(c *gin.Context) {
	day, ok := dateQuery(c, "date", h.schedules.Today())
	if !ok {
		return
	}
	term, schedule, err := h.schedules.CurrentDaySchedule(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, TodayResponse{Term: term, Schedule: schedule}, nil)
}

// Mine godoc
// @Summary Personal schedule
// @Description The caller's day schedule with their timetable courses placed in each period.
// @Tags Schedule
// @Produce json
// @Security BearerAuth
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me/schedule [get]
func (h *ScheduleHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	day, ok := dateQuery(c, "date", h.schedules.Today())
	if !ok {
		return
	}
	personal, err := h.schedules.PersonalSchedule(c.Request.Context(), actor.UserID, day)
	if err != nil {
		response.Error(c, err)
		return
	}
	if personal == nil {
		response.JSON(c, http.StatusOK, nil, nil)
		return
	}
	response.JSON(c, http.StatusOK, personal, nil)
}

// Export godoc
// @Summary Export day schedules
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Term ID"
// @Param from query string false "YYYY-MM-DD, defaults to today"
// @Param to query string false "YYYY-MM-DD, defaults to from"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /terms/{id}/schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	from, ok := dateQuery(c, "from", h.schedules.Today())
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to", from)
	if !ok {
		return
	}
	file, err := h.exports.ScheduleExport(c.Request.Context(), c.Param("id"), from, to, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.ContentType, file.Filename, file.Body)
}
